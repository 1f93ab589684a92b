package internal

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"
	transfertypes "github.com/cosmos/ibc-go/v9/modules/apps/transfer/types"
	channeltypes "github.com/cosmos/ibc-go/v9/modules/core/04-channel/types"
)

const attributeKeyPacketData = "packet_data"

// ParsePacket extracts a fungible token packet from a send_packet or recv_packet event.
// It reports false instead of failing when a required attribute is missing or malformed.
func ParsePacket(event abci.Event) (*ParsedPacket, bool) {
	attrs := make(map[string]string, len(event.Attributes))
	for _, attr := range event.Attributes {
		if _, seen := attrs[attr.Key]; !seen {
			attrs[attr.Key] = attr.Value
		}
	}

	required := []string{
		channeltypes.AttributeKeySequence,
		channeltypes.AttributeKeySrcChannel,
		channeltypes.AttributeKeySrcPort,
		channeltypes.AttributeKeyDstChannel,
		channeltypes.AttributeKeyDstPort,
		channeltypes.AttributeKeyTimeoutTimestamp,
	}
	for _, key := range required {
		if _, ok := attrs[key]; !ok {
			return nil, false
		}
	}

	sequence, err := strconv.ParseUint(attrs[channeltypes.AttributeKeySequence], 10, 64)
	if err != nil {
		return nil, false
	}
	timeout, err := strconv.ParseUint(attrs[channeltypes.AttributeKeyTimeoutTimestamp], 10, 64)
	if err != nil {
		return nil, false
	}

	raw, ok := packetData(attrs)
	if !ok {
		return nil, false
	}
	var data transfertypes.FungibleTokenPacketData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	if data.Amount == "" || data.Denom == "" || data.Receiver == "" || data.Sender == "" {
		return nil, false
	}

	return &ParsedPacket{
		Sequence:         sequence,
		SrcChannel:       attrs[channeltypes.AttributeKeySrcChannel],
		SrcPort:          attrs[channeltypes.AttributeKeySrcPort],
		DstChannel:       attrs[channeltypes.AttributeKeyDstChannel],
		DstPort:          attrs[channeltypes.AttributeKeyDstPort],
		TimeoutTimestamp: timeout,
		Data:             data,
	}, true
}

// packetData prefers the plain JSON attribute and falls back to the hex encoded one.
func packetData(attrs map[string]string) ([]byte, bool) {
	if data, ok := attrs[attributeKeyPacketData]; ok {
		return []byte(data), true
	}
	if data, ok := attrs[channeltypes.AttributeKeyDataHex]; ok {
		raw, err := hex.DecodeString(data)
		if err != nil {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

// MatchesSignature reports whether a send_packet event travels the configured bridge path.
func MatchesSignature(event abci.Event, sig BridgeSignature) bool {
	if event.Type != channeltypes.EventTypeSendPacket {
		return false
	}

	var srcChannel, srcPort, dstChannel, dstPort string
	for _, attr := range event.Attributes {
		switch attr.Key {
		case channeltypes.AttributeKeySrcChannel:
			srcChannel = attr.Value
		case channeltypes.AttributeKeySrcPort:
			srcPort = attr.Value
		case channeltypes.AttributeKeyDstChannel:
			dstChannel = attr.Value
		case channeltypes.AttributeKeyDstPort:
			dstPort = attr.Value
		}
	}
	return srcChannel == sig.SrcChannel && srcPort == sig.SrcPort &&
		dstChannel == sig.DstChannel && dstPort == sig.DstPort
}
