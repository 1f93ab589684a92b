package internal

import (
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"
)

const (
	tokenAddressMarker = "oraib"
	// normalizedDecimals is the precision the source chain uses for bridged amounts.
	normalizedDecimals = 8
	maxAmountBits      = 256
)

// ParseTokenAddress returns the destination token contract encoded in the last segment
// of an IBC denom trace, e.g. "transfer/channel-1/oraib0xABCDEF" -> "0xABCDEF".
// It returns "" if the marker is absent.
func ParseTokenAddress(denom string) string {
	last := denom
	if i := strings.LastIndexByte(denom, '/'); i >= 0 {
		last = denom[i+1:]
	}

	_, after, found := strings.Cut(last, tokenAddressMarker)
	if !found {
		return ""
	}
	after, _, _ = strings.Cut(after, tokenAddressMarker)
	return after
}

// DeNormalizeAmount scales an 8-decimal amount to a token with the given decimals.
// Amounts for tokens with 8 or fewer decimals are returned unchanged. The result must fit
// in a uint256.
func DeNormalizeAmount(amount string, decimals uint8) (string, error) {
	value, ok := math.NewIntFromString(amount)
	if !ok || value.IsNegative() {
		return "", fmt.Errorf("invalid amount %q", amount)
	}
	if decimals <= normalizedDecimals {
		return value.String(), nil
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-normalizedDecimals)), nil)
	scaled := scale.Mul(scale, value.BigInt())
	if scaled.BitLen() > maxAmountBits {
		return "", fmt.Errorf("amount %s scaled to %d decimals overflows uint256", amount, decimals)
	}
	return scaled.String(), nil
}

// ParseTransferMemo reads {"destination": "0x...", "recipient": "<base58>"} from a tx memo.
func ParseTransferMemo(memo string) (*TransferMemo, bool) {
	if !gjson.Valid(memo) {
		return nil, false
	}
	result := gjson.Parse(memo)
	if !result.IsObject() {
		return nil, false
	}
	return &TransferMemo{
		Destination: strings.TrimSpace(result.Get("destination").String()),
		Recipient:   strings.TrimSpace(result.Get("recipient").String()),
	}, true
}

// ValidateSolanaAddress decodes a base58 address and requires it to be a point on the
// ed25519 curve, which excludes program derived addresses that cannot hold a wallet.
func ValidateSolanaAddress(address string) (solana.PublicKey, bool) {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, false
	}
	if _, err := new(edwards25519.Point).SetBytes(pubKey.Bytes()); err != nil {
		return solana.PublicKey{}, false
	}
	return pubKey, true
}
