package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/orai-bridge/relayer/internal/clients"
)

// TokenBridgeClient is the part of clients.EVMClient the submitter drives.
type TokenBridgeClient interface {
	Address() common.Address
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	TransferTokensWithPayload(ctx context.Context, bridge, token common.Address, amount *big.Int,
		recipientChain uint16, recipient [32]byte, nonce uint32, payload []byte) (common.Hash, error)
}

// EVMSubmitter sends token bridge transfers from an EVM chain
type EVMSubmitter struct {
	tokenBridge common.Address
	evmClient   TokenBridgeClient
	logger      *zap.Logger
}

// NewEVMSubmitter creates a new EVM submitter instance
func NewEVMSubmitter(logger *zap.Logger, tokenBridge common.Address, evmClient TokenBridgeClient) *EVMSubmitter {
	return &EVMSubmitter{
		tokenBridge: tokenBridge,
		evmClient:   evmClient,
		logger:      logger.With(zap.String("component", "EVMSubmitter")),
	}
}

// SubmitTransfer approves the token bridge for the amount, then calls transferTokensWithPayload.
// Each transaction is mined before the next one is sent.
func (s *EVMSubmitter) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("invalid transfer amount %v", req.Amount)
	}

	s.logger.Info("Submitting token bridge transfer",
		zap.String("token", req.Token.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.Stringer("recipientChain", req.RecipientChain),
		zap.String("recipient", req.Recipient.String()),
		zap.String("fromAddress", s.evmClient.Address().Hex()))

	approveHash, err := s.evmClient.Approve(ctx, req.Token, s.tokenBridge, req.Amount)
	if err != nil {
		return "", fmt.Errorf("failed to approve token bridge: %w", err)
	}
	s.logger.Debug("Token bridge approved", zap.String("txHash", approveHash.Hex()))

	transferHash, err := s.evmClient.TransferTokensWithPayload(ctx, s.tokenBridge, req.Token, req.Amount,
		uint16(req.RecipientChain), req.Recipient, req.Nonce, req.Payload)
	switch {
	case err == nil:
	case transferHash != (common.Hash{}) && !errors.Is(err, clients.ErrTxReverted):
		// Broadcast went through, the transfer may be mined at any time.
		s.logger.Error("Token bridge transfer sent but not confirmed",
			zap.String("txHash", transferHash.Hex()),
			zap.Error(err))
		return transferHash.Hex(), fmt.Errorf("%w: %w", ErrUnconfirmed, err)
	default:
		return "", fmt.Errorf("failed to transfer tokens with payload: %w", err)
	}

	s.logger.Info("Token bridge transfer submitted",
		zap.String("txHash", transferHash.Hex()),
		zap.String("tokenBridge", s.tokenBridge.Hex()))

	return transferHash.Hex(), nil
}
