package clients

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestABISelectors(t *testing.T) {
	tests := []struct {
		method    string
		signature string
		selector  []byte
	}{
		{"balanceOf", "balanceOf(address)", erc20ABI.Methods["balanceOf"].ID},
		{"decimals", "decimals()", erc20ABI.Methods["decimals"].ID},
		{"approve", "approve(address,uint256)", erc20ABI.Methods["approve"].ID},
		{
			"transferTokensWithPayload",
			"transferTokensWithPayload(address,uint256,uint16,bytes32,uint32,bytes)",
			tokenBridgeABI.Methods["transferTokensWithPayload"].ID,
		},
	}

	for _, tt := range tests {
		require.Equal(t, crypto.Keccak256([]byte(tt.signature))[:4], tt.selector, tt.method)
	}
}

func TestPackTransferTokensWithPayload(t *testing.T) {
	var recipient [32]byte
	recipient[31] = 0x01

	data, err := tokenBridgeABI.Pack("transferTokensWithPayload",
		common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
		big.NewInt(1_000_000),
		uint16(1),
		recipient,
		uint32(0),
		[]byte{},
	)
	require.NoError(t, err)

	args, err := tokenBridgeABI.Methods["transferTokensWithPayload"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 6)
	require.Equal(t, uint16(1), args[2])
	require.Equal(t, recipient, args[3])
	require.Equal(t, uint32(0), args[4])
}
