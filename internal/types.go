package internal

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"
	transfertypes "github.com/cosmos/ibc-go/v9/modules/apps/transfer/types"
)

const attributeKeyMsgIndex = "msg_index"

// RawBridgeEvent is a source-chain transaction carrying one or more matching send_packet events.
type RawBridgeEvent struct {
	TxHash      string
	TxMemo      string
	SendPackets []abci.Event
}

// PendingTransfer is a single send_packet event moving through the intake and execution queues.
type PendingTransfer struct {
	TxHash string
	TxMemo string
	Event  abci.Event
}

// MsgIndex is the index of the message inside its transaction that emitted the event, 0 if absent.
func (p PendingTransfer) MsgIndex() uint32 {
	for _, attr := range p.Event.Attributes {
		if attr.Key != attributeKeyMsgIndex {
			continue
		}
		index, err := strconv.ParseUint(attr.Value, 10, 32)
		if err != nil {
			return 0
		}
		return uint32(index)
	}
	return 0
}

type ParsedPacket struct {
	Sequence         uint64
	SrcChannel       string
	SrcPort          string
	DstChannel       string
	DstPort          string
	TimeoutTimestamp uint64 // nanoseconds since epoch
	Data             transfertypes.FungibleTokenPacketData
}

func (p *ParsedPacket) TimeoutMillis() int64 {
	return int64(p.TimeoutTimestamp / 1_000_000)
}

// BridgeSignature selects the send_packet events this relayer is responsible for.
type BridgeSignature struct {
	SrcChannel string
	SrcPort    string
	DstChannel string
	DstPort    string
}

// TransferMemo is the routing information a user attaches to the source transaction.
type TransferMemo struct {
	Destination string // EVM address of the relayer expected to execute the transfer
	Recipient   string // base58 Solana address receiving the bridged tokens
}
