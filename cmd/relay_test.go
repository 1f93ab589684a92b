package cmd

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/orai-bridge/relayer/internal"
	"github.com/orai-bridge/relayer/internal/store"
)

func validRelayConfig() RelayConfig {
	return RelayConfig{
		CosmosRPCURL:   DefaultCosmosRPCURL,
		SyncLimit:      50,
		MaxThreadLevel: 4,
		SyncInterval:   5 * time.Second,
		Bridge: internal.BridgeSignature{
			SrcPort:    DefaultSrcPort,
			SrcChannel: DefaultSrcChannel,
			DstPort:    DefaultDstPort,
			DstChannel: DefaultDstChannel,
		},
		OBridgeGRPCURL: "localhost:9090",
		ConfirmRetries: 10,
		ConfirmDelay:   5 * time.Second,
		EVMRPCURL:      "http://localhost:8545",
		PrivateKey:     "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		TokenBridge:    "0xB6F6D86a8f9879A9c87f643768d9efc38c1Da6E7",
		RecipientChain: vaa.ChainIDSolana,
		Store:          store.Config{Driver: "sqlite", DSN: "relayer.db"},
	}
}

func TestRelayConfigValidate(t *testing.T) {
	require.NoError(t, validRelayConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *RelayConfig)
		errMsg string
	}{
		{"missing ledger", func(c *RelayConfig) { c.OBridgeGRPCURL = "" }, "one of obridge-grpc-url or obridge-rpc-url is required"},
		{"missing key", func(c *RelayConfig) { c.PrivateKey = " " }, "private-key is required"},
		{"bad bridge address", func(c *RelayConfig) { c.TokenBridge = "0x1234" }, "is not an EVM address"},
		{"bad override", func(c *RelayConfig) { c.TokenOverrides = map[string]string{"uatom": "atom"} }, `token override for "uatom"`},
		{"zero sync limit", func(c *RelayConfig) { c.SyncLimit = 0 }, "sync-limit must be positive"},
		{"zero retries", func(c *RelayConfig) { c.ConfirmRetries = 0 }, "confirm-retries must be positive"},
		{"unset recipient chain", func(c *RelayConfig) { c.RecipientChain = vaa.ChainIDUnset }, "recipient-chain-id must be set"},
		{"unknown driver", func(c *RelayConfig) { c.Store.Driver = "postgres" }, `db.driver "postgres"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validRelayConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRelayConfigAcceptsLedgerRPC(t *testing.T) {
	c := validRelayConfig()
	c.OBridgeGRPCURL = ""
	c.OBridgeRPCURL = "http://localhost:26657"
	require.NoError(t, c.Validate())
}

func TestRelayConfigValidateReportsAllErrors(t *testing.T) {
	c := validRelayConfig()
	c.EVMRPCURL = ""
	c.Bridge.DstChannel = ""

	err := c.Validate()
	require.ErrorContains(t, err, "bridge.dst-channel is required")
	require.ErrorContains(t, err, "evm-rpc-url is required")
}

func TestRelayConfigTokenOverrides(t *testing.T) {
	c := validRelayConfig()
	c.TokenOverrides = map[string]string{"Transfer/channel-1/OraiB": "0x55d398326f99059fF775485246999027B3197955"}

	require.Equal(t,
		map[string]common.Address{"transfer/channel-1/oraib": common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")},
		c.tokenOverrides())
}

func TestNewRootLogger(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		logger, err := newRootLogger(format, true, "")
		require.NoError(t, err, format)
		require.NotNil(t, logger)
	}

	_, err := newRootLogger("yaml", false, "")
	require.ErrorContains(t, err, `unrecognized log format "yaml"`)
}
