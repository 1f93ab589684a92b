package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/orai-bridge/relayer/internal"
	"github.com/orai-bridge/relayer/internal/clients"
	"github.com/orai-bridge/relayer/internal/queue"
	"github.com/orai-bridge/relayer/internal/relayermetrics"
	"github.com/orai-bridge/relayer/internal/store"
	"github.com/orai-bridge/relayer/internal/submitter"
)

const (
	DefaultCosmosRPCURL  = "https://rpc.orai.io"
	DefaultSrcPort       = "wasm.orai195269awwnt5m6c843q6w7hp8rt0k7syfu9de4h0wz384slshuzps8y7ccm"
	DefaultSrcChannel    = "channel-29"
	DefaultDstPort       = "transfer"
	DefaultDstChannel    = "channel-1"
	DefaultMetricsListen = "127.0.0.1:5183"
)

// relayCmd represents the command that runs the bridge pipeline
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay OBridge transfers from Oraichain to Solana",
	Long: `Scans Oraichain blocks for send_packet events on the bridge channel, waits until
each packet is received on the OBridge ledger and then transfers the matching tokens
to the Solana recipient through the Wormhole token bridge.

Every transfer is paid out at most once. Processed transfers and the last scanned
height are kept in the configured store.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		printBanner()
	},
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)

	// Source chain
	relayCmd.Flags().String("cosmos-rpc-url", DefaultCosmosRPCURL, "CometBFT RPC URL of the source chain")
	relayCmd.Flags().Int64("sync-limit", 50, "Maximum number of heights scanned per poll")
	relayCmd.Flags().Int("max-thread-level", 4, "Maximum number of blocks fetched concurrently")
	relayCmd.Flags().Uint64("sync-block-offset", 0, "Lowest height the relayer resumes from")
	relayCmd.Flags().Duration("sync-interval", 5*time.Second, "Delay between polls once caught up")

	// Bridge signature
	relayCmd.Flags().String("src-port", DefaultSrcPort, "Source port of bridge packets")
	relayCmd.Flags().String("src-channel", DefaultSrcChannel, "Source channel of bridge packets")
	relayCmd.Flags().String("dst-port", DefaultDstPort, "Destination port of bridge packets")
	relayCmd.Flags().String("dst-channel", DefaultDstChannel, "Destination channel of bridge packets")

	// Confirmation
	relayCmd.Flags().String("obridge-grpc-url", "", "gRPC endpoint of the OBridge ledger")
	relayCmd.Flags().String("obridge-rpc-url", "", "CometBFT RPC URL of the OBridge ledger, used when no gRPC endpoint is set")
	relayCmd.Flags().Uint("confirm-retries", 10, "Number of OBridge queries before a packet is dropped")
	relayCmd.Flags().Duration("confirm-delay", 5*time.Second, "Delay between OBridge queries")

	// Execution
	relayCmd.Flags().String("evm-rpc-url", "", "RPC URL of the EVM chain (required)")
	relayCmd.Flags().String("private-key", "", "Private key of the relayer EVM account (required)")
	relayCmd.Flags().String("token-bridge-address", "", "Wormhole token bridge contract on the EVM chain (required)")
	relayCmd.Flags().Uint16("recipient-chain-id", uint16(vaa.ChainIDSolana), "Wormhole chain id transfers are sent to")
	relayCmd.Flags().StringToString("token-overrides", nil, "Token contracts for denoms that carry no address (denom=0x...)")
	relayCmd.Flags().Duration("persist-retry-delay", 2*time.Second, "Delay between attempts to record a completed transfer")

	relayCmd.Flags().Duration("idle-delay", time.Second, "Delay of an idle worker before it checks its queue again")
	relayCmd.Flags().String("metrics-listen-addr", DefaultMetricsListen, "Address the Prometheus endpoint listens on, empty disables it")

	// Bind flags to viper
	for _, name := range []string{
		"cosmos-rpc-url", "sync-limit", "max-thread-level", "sync-block-offset", "sync-interval",
		"obridge-grpc-url", "obridge-rpc-url", "confirm-retries", "confirm-delay",
		"evm-rpc-url", "private-key", "token-bridge-address", "recipient-chain-id", "token-overrides",
		"persist-retry-delay", "idle-delay", "metrics-listen-addr",
	} {
		_ = viper.BindPFlag(name, relayCmd.Flags().Lookup(name))
	}
	for _, name := range []string{"src-port", "src-channel", "dst-port", "dst-channel"} {
		_ = viper.BindPFlag("bridge."+name, relayCmd.Flags().Lookup(name))
	}
}

type RelayConfig struct {
	CosmosRPCURL    string        // Source chain CometBFT RPC
	SyncLimit       int64         // Heights per poll
	MaxThreadLevel  int           // Concurrent block fetches
	SyncBlockOffset uint64        // Offset floor
	SyncInterval    time.Duration // Poll delay once caught up
	Bridge          internal.BridgeSignature
	OBridgeGRPCURL  string
	OBridgeRPCURL   string
	ConfirmRetries  uint
	ConfirmDelay    time.Duration
	EVMRPCURL       string
	PrivateKey      string
	TokenBridge     string // Wormhole token bridge contract
	RecipientChain  vaa.ChainID
	TokenOverrides  map[string]string // denom -> token contract
	PersistDelay    time.Duration
	IdleDelay       time.Duration
	MetricsAddr     string
	Store           store.Config
}

func loadRelayConfig() RelayConfig {
	return RelayConfig{
		CosmosRPCURL:    viper.GetString("cosmos-rpc-url"),
		SyncLimit:       viper.GetInt64("sync-limit"),
		MaxThreadLevel:  viper.GetInt("max-thread-level"),
		SyncBlockOffset: viper.GetUint64("sync-block-offset"),
		SyncInterval:    viper.GetDuration("sync-interval"),
		Bridge: internal.BridgeSignature{
			SrcPort:    viper.GetString("bridge.src-port"),
			SrcChannel: viper.GetString("bridge.src-channel"),
			DstPort:    viper.GetString("bridge.dst-port"),
			DstChannel: viper.GetString("bridge.dst-channel"),
		},
		OBridgeGRPCURL: viper.GetString("obridge-grpc-url"),
		OBridgeRPCURL:  viper.GetString("obridge-rpc-url"),
		ConfirmRetries: viper.GetUint("confirm-retries"),
		ConfirmDelay:   viper.GetDuration("confirm-delay"),
		EVMRPCURL:      viper.GetString("evm-rpc-url"),
		PrivateKey:     viper.GetString("private-key"),
		TokenBridge:    viper.GetString("token-bridge-address"),
		RecipientChain: vaa.ChainID(viper.GetUint16("recipient-chain-id")),
		TokenOverrides: viper.GetStringMapString("token-overrides"),
		PersistDelay:   viper.GetDuration("persist-retry-delay"),
		IdleDelay:      viper.GetDuration("idle-delay"),
		MetricsAddr:    viper.GetString("metrics-listen-addr"),
		Store: store.Config{
			Driver: viper.GetString("db.driver"),
			DSN:    viper.GetString("db.dsn"),
		},
	}
}

// Validate reports every missing or malformed setting at once.
func (c RelayConfig) Validate() error {
	var errs []error
	required := map[string]string{
		"cosmos-rpc-url":       c.CosmosRPCURL,
		"evm-rpc-url":          c.EVMRPCURL,
		"private-key":          c.PrivateKey,
		"token-bridge-address": c.TokenBridge,
		"db.dsn":               c.Store.DSN,
		"bridge.src-port":      c.Bridge.SrcPort,
		"bridge.src-channel":   c.Bridge.SrcChannel,
		"bridge.dst-port":      c.Bridge.DstPort,
		"bridge.dst-channel":   c.Bridge.DstChannel,
	}
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if strings.TrimSpace(c.OBridgeGRPCURL) == "" && strings.TrimSpace(c.OBridgeRPCURL) == "" {
		errs = append(errs, errors.New("one of obridge-grpc-url or obridge-rpc-url is required"))
	}
	if c.TokenBridge != "" && !common.IsHexAddress(c.TokenBridge) {
		errs = append(errs, fmt.Errorf("token-bridge-address %q is not an EVM address", c.TokenBridge))
	}
	for denom, token := range c.TokenOverrides {
		if !common.IsHexAddress(token) {
			errs = append(errs, fmt.Errorf("token override for %q: %q is not an EVM address", denom, token))
		}
	}
	if c.SyncLimit < 1 {
		errs = append(errs, errors.New("sync-limit must be positive"))
	}
	if c.ConfirmRetries < 1 {
		errs = append(errs, errors.New("confirm-retries must be positive"))
	}
	if c.RecipientChain == vaa.ChainIDUnset {
		errs = append(errs, errors.New("recipient-chain-id must be set"))
	}
	switch c.Store.Driver {
	case "sqlite", "mysql", "leveldb":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not one of sqlite, mysql, leveldb", c.Store.Driver))
	}
	return multierr.Combine(errs...)
}

// tokenOverrides keys the overrides by lowercased denom.
func (c RelayConfig) tokenOverrides() map[string]common.Address {
	overrides := make(map[string]common.Address, len(c.TokenOverrides))
	for denom, token := range c.TokenOverrides {
		overrides[strings.ToLower(denom)] = common.HexToAddress(token)
	}
	return overrides
}

func runRelay(cmd *cobra.Command, args []string) (err error) {
	logger, err := configureLogging(cmd, args)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting OBridge relayer")

	config := loadRelayConfig()
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("Configuration",
		zap.String("cosmosRPC", config.CosmosRPCURL),
		zap.String("obridgeGRPC", config.OBridgeGRPCURL),
		zap.String("obridgeRPC", config.OBridgeRPCURL),
		zap.String("evmRPC", config.EVMRPCURL),
		zap.String("tokenBridge", config.TokenBridge),
		zap.Stringer("recipientChain", config.RecipientChain),
		zap.String("srcChannel", config.Bridge.SrcChannel),
		zap.String("dstChannel", config.Bridge.DstChannel),
		zap.String("dbDriver", config.Store.Driver))

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("Received shutdown signal")
		cancel()
	}()

	db, err := store.Open(config.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	offset, err := store.LoadOffset(ctx, db, config.SyncBlockOffset)
	if err != nil {
		return err
	}

	cosmosClient, err := clients.NewCosmosClient(logger, config.CosmosRPCURL, config.MaxThreadLevel)
	if err != nil {
		return fmt.Errorf("failed to create source chain client: %w", err)
	}

	ledger, closeLedger, err := newLedger(logger, config)
	if err != nil {
		return err
	}
	defer closeLedger()

	evmClient, err := clients.NewEVMClient(logger, config.EVMRPCURL, config.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to create EVM client: %w", err)
	}
	defer evmClient.Close()

	evmSubmitter := submitter.NewEVMSubmitter(logger, common.HexToAddress(config.TokenBridge), evmClient)

	// A destination that cannot be reached still lets the pipeline run; every transfer is
	// skipped and stays replayable from the source chain.
	exec, err := internal.Connect(ctx, evmClient, evmSubmitter)
	if err != nil {
		logger.Error("Destination chain not connected, transfers will be skipped", zap.Error(err))
	} else {
		logger.Info("Connected to destination chain",
			zap.String("chainId", exec.ChainID.String()),
			zap.String("address", exec.Identity.Hex()))
	}

	metrics := relayermetrics.NewPrometheusMetrics()
	if config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", config.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address %s: %w", config.MetricsAddr, err)
		}
		logger.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))
		relayermetrics.StartMetricsServer(ctx, logger, ln, metrics.Registry)
	}

	intake := queue.NewMemoryQueue[internal.PendingTransfer]()
	execution := queue.NewMemoryQueue[internal.PendingTransfer]()

	watcher := internal.NewWatcher(logger, cosmosClient, internal.WatcherConfig{
		Signature:   config.Bridge,
		SyncLimit:   config.SyncLimit,
		Interval:    config.SyncInterval,
		StartOffset: offset,
	}, metrics)

	confirmer := internal.NewConfirmationWorker(logger, intake, execution, ledger,
		internal.ConfirmationConfig{
			Retries:   config.ConfirmRetries,
			Delay:     config.ConfirmDelay,
			IdleDelay: config.IdleDelay,
		}, metrics)

	executor := internal.NewExecutionWorker(logger, execution, exec, db, db, watcher,
		internal.ExecutionConfig{
			Identity:          evmClient.Address(),
			RecipientChain:    config.RecipientChain,
			TokenOverrides:    config.tokenOverrides(),
			IdleDelay:         config.IdleDelay,
			PersistRetryDelay: config.PersistDelay,
		}, metrics)

	relayer := internal.NewRelayer(logger, watcher, intake, confirmer, executor)

	// Start the relayer
	if err := relayer.Start(ctx); err != nil {
		return fmt.Errorf("relayer stopped with error: %w", err)
	}

	return nil
}

// newLedger prefers the OBridge gRPC tx service and falls back to CometBFT tx_search.
func newLedger(logger *zap.Logger, config RelayConfig) (internal.Ledger, func(), error) {
	if config.OBridgeGRPCURL != "" {
		client, err := clients.NewOBridgeClient(logger, config.OBridgeGRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OBridge client: %w", err)
		}
		return client, client.Close, nil
	}

	client, err := clients.NewCosmosClient(logger, config.OBridgeRPCURL, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OBridge RPC client: %w", err)
	}
	return client, func() {}, nil
}
