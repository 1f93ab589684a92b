package internal

import (
	"math/big"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestParseTokenAddress(t *testing.T) {
	tests := []struct {
		denom string
		want  string
	}{
		{"transfer/channel-1/oraib0xABCDEF", "0xABCDEF"},
		{"oraib0x55d398326f99059fF775485246999027B3197955", "0x55d398326f99059fF775485246999027B3197955"},
		{"transfer/channel-1/uatom", ""},
		{"orai", ""},
		{"", ""},
		{"transfer/channel-1/", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ParseTokenAddress(tt.denom), tt.denom)
	}
}

func TestDeNormalizeAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"100000000", 8, "100000000"},
		{"100000000", 7, "100000000"},
		{"100000000", 9, "1000000000"},
		{"100000000", 10, "10000000000"},
		{"100000000", 18, "1000000000000000000"},
		{"1000000000000000000", 18, "10000000000000000000000000000"},
		{"0", 9, "0"},
		{"1", 9, "10"},
	}

	for _, tt := range tests {
		got, err := DeNormalizeAmount(tt.amount, tt.decimals)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "%s with %d decimals", tt.amount, tt.decimals)
	}
}

func TestDeNormalizeAmountRejectsInvalid(t *testing.T) {
	for _, amount := range []string{"", "abc", "-5", "1.5"} {
		_, err := DeNormalizeAmount(amount, 18)
		require.Error(t, err, amount)
	}
}

func TestDeNormalizeAmountRejectsOverflow(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
	}{
		{"1" + strings.Repeat("0", 68), 18},
		{"1000000000", 77},
		{"1", 100},
		{"1", 255},
	}

	for _, tt := range tests {
		_, err := DeNormalizeAmount(tt.amount, tt.decimals)
		require.ErrorContains(t, err, "overflows uint256", "%s with %d decimals", tt.amount, tt.decimals)
	}

	// 2^256-1 with no scaling still fits.
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)).String()
	got, err := DeNormalizeAmount(maxUint256, 8)
	require.NoError(t, err)
	require.Equal(t, maxUint256, got)
}

func TestParseTransferMemo(t *testing.T) {
	memo, ok := ParseTransferMemo(`{"destination":"0x8754032Ac7966A909e2E753308dF56bb08DabD69","recipient":"4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"}`)
	require.True(t, ok)
	require.Equal(t, "0x8754032Ac7966A909e2E753308dF56bb08DabD69", memo.Destination)
	require.Equal(t, "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T", memo.Recipient)

	memo, ok = ParseTransferMemo(`{"recipient":"x"}`)
	require.True(t, ok)
	require.Empty(t, memo.Destination)

	for _, bad := range []string{"", "plain text memo", "[1,2]", `{"destination":`} {
		_, ok := ParseTransferMemo(bad)
		require.False(t, ok, bad)
	}
}

func TestValidateSolanaAddress(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	got, ok := ValidateSolanaAddress(wallet.String())
	require.True(t, ok)
	require.Equal(t, wallet, got)

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("bridge")}, solana.TokenProgramID)
	require.NoError(t, err)
	_, ok = ValidateSolanaAddress(pda.String())
	require.False(t, ok, "program derived addresses are off curve")

	for _, bad := range []string{"", "abc", "0x8754032Ac7966A909e2E753308dF56bb08DabD69", "not base58 !!"} {
		_, ok := ValidateSolanaAddress(bad)
		require.False(t, ok, bad)
	}
}
