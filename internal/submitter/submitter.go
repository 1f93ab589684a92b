package submitter

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/wormhole-foundation/wormhole/sdk/vaa"
)

// ErrUnconfirmed is returned together with the transfer hash when the transfer was broadcast
// but its receipt was not seen. The transfer must be treated as paid.
var ErrUnconfirmed = errors.New("transfer sent but not confirmed")

// TransferRequest describes a token bridge transfer to a wormhole chain.
type TransferRequest struct {
	Token          common.Address
	Amount         *big.Int
	RecipientChain vaa.ChainID
	Recipient      vaa.Address
	Nonce          uint32
	Payload        []byte
}

type TransferSubmitter interface {
	// SubmitTransfer approves the bridge and locks the tokens, returning the transfer transaction hash.
	// A non-empty hash with an error wrapping ErrUnconfirmed means the tokens may have moved.
	SubmitTransfer(ctx context.Context, req TransferRequest) (string, error)
}
