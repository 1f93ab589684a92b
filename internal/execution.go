package internal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orai-bridge/relayer/internal/queue"
	"github.com/orai-bridge/relayer/internal/relayermetrics"
	"github.com/orai-bridge/relayer/internal/store"
	"github.com/orai-bridge/relayer/internal/submitter"
)

// DestinationChain reads chain and token state for the relayer's signing identity.
type DestinationChain interface {
	Address() common.Address
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// ExecutionContext is the connected destination chain. It is created once by Connect and
// never modified afterwards.
type ExecutionContext struct {
	ChainID   *big.Int
	Identity  common.Address
	Chain     DestinationChain
	Submitter submitter.TransferSubmitter
}

// Connect verifies the destination chain is reachable and binds it to the submitter.
func Connect(ctx context.Context, chain DestinationChain, transferSubmitter submitter.TransferSubmitter) (*ExecutionContext, error) {
	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect destination chain: %w", err)
	}
	return &ExecutionContext{
		ChainID:   chainID,
		Identity:  chain.Address(),
		Chain:     chain,
		Submitter: transferSubmitter,
	}, nil
}

// OffsetSource exposes the watcher cursor for checkpointing.
type OffsetSource interface {
	Offset() uint64
}

type ExecutionConfig struct {
	Identity          common.Address            // this relayer's destination address, matched against the memo
	RecipientChain    vaa.ChainID               // wormhole chain the tokens are bridged to
	TokenOverrides    map[string]common.Address // lowercased denom -> token, takes precedence over the denom marker
	IdleDelay         time.Duration
	PersistRetryDelay time.Duration
}

// ExecutionWorker submits confirmed transfers on the destination chain exactly once and is
// the only writer of the processed transfer ledger and the checkpoint.
type ExecutionWorker struct {
	queue       *queue.MemoryQueue[PendingTransfer]
	exec        *ExecutionContext
	processed   store.ProcessedTransferStore
	checkpoints store.CheckpointStore
	offsets     OffsetSource
	config      ExecutionConfig
	now         func() time.Time
	metrics     *relayermetrics.PrometheusMetrics
	logger      *zap.Logger
}

// NewExecutionWorker accepts a nil exec, in which case every transfer is skipped.
func NewExecutionWorker(
	logger *zap.Logger,
	executionQueue *queue.MemoryQueue[PendingTransfer],
	exec *ExecutionContext,
	processed store.ProcessedTransferStore,
	checkpoints store.CheckpointStore,
	offsets OffsetSource,
	config ExecutionConfig,
	metrics *relayermetrics.PrometheusMetrics,
) *ExecutionWorker {
	return &ExecutionWorker{
		queue:       executionQueue,
		exec:        exec,
		processed:   processed,
		checkpoints: checkpoints,
		offsets:     offsets,
		config:      config,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger.With(zap.String("component", "ExecutionWorker")),
	}
}

func (w *ExecutionWorker) Start(ctx context.Context) error {
	var persisted uint64
	for {
		transfer, ok := w.queue.Dequeue()
		if ok {
			w.Execute(ctx, transfer)
		} else if !wait(ctx, w.config.IdleDelay) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		size := w.queue.Size()
		w.metrics.SetQueueSize("execution", size)
		if size > 0 {
			continue
		}
		if offset := w.offsets.Offset(); offset > persisted {
			if err := w.checkpoints.SetOffset(ctx, offset); err != nil {
				w.logger.Warn("Failed to persist offset", zap.Uint64("offset", offset), zap.Error(err))
				continue
			}
			persisted = offset
			w.logger.Debug("Persisted offset", zap.Uint64("offset", offset))
		}
	}
}

// Execute runs the transfer through every precondition and, if all pass, submits it and
// records it. It returns the outcome label.
func (w *ExecutionWorker) Execute(ctx context.Context, transfer PendingTransfer) string {
	outcome := w.execute(ctx, transfer)
	w.metrics.IncOutcome(outcome)
	return outcome
}

func (w *ExecutionWorker) execute(ctx context.Context, transfer PendingTransfer) string {
	msgIndex := transfer.MsgIndex()
	logger := w.logger.With(zap.String("txHash", transfer.TxHash), zap.Uint32("msgIndex", msgIndex))

	packet, ok := ParsePacket(transfer.Event)
	if !ok {
		logger.Warn("Skipping malformed packet")
		return relayermetrics.OutcomeMalformed
	}
	logger = logger.With(zap.Uint64("sequence", packet.Sequence))

	memo, ok := ParseTransferMemo(transfer.TxMemo)
	if !ok || !common.IsHexAddress(memo.Destination) || common.HexToAddress(memo.Destination) != w.config.Identity {
		logger.Info("Skipping packet addressed to another relayer", zap.String("memo", transfer.TxMemo))
		return relayermetrics.OutcomeNotForMe
	}

	if w.exec == nil {
		logger.Warn("Skipping packet, destination chain not connected")
		return relayermetrics.OutcomeNotConnected
	}

	recipient, ok := ValidateSolanaAddress(memo.Recipient)
	if !ok {
		logger.Warn("Skipping packet with invalid recipient", zap.String("recipient", memo.Recipient))
		return relayermetrics.OutcomeInvalidRecipient
	}

	var record *store.ProcessedTransfer
	err := w.retryForever(ctx, logger, "lookup processed transfer", func() error {
		var err error
		record, err = w.processed.Get(ctx, transfer.TxHash, msgIndex)
		return err
	})
	if err != nil {
		return relayermetrics.OutcomeSubmitFailed
	}
	if record != nil {
		logger.Info("Skipping already processed transfer", zap.Time("processedAt", record.ProcessedAt))
		return relayermetrics.OutcomeDuplicate
	}

	token, ok := w.resolveToken(packet.Data.Denom)
	if !ok {
		logger.Error("Skipping packet with unresolvable token", zap.String("denom", packet.Data.Denom))
		return relayermetrics.OutcomeUnresolvedToken
	}
	logger = logger.With(zap.String("token", token.Hex()))

	amount, err := w.scaleAmount(ctx, token, packet.Data.Amount)
	if err != nil {
		logger.Error("Failed to compute transfer amount", zap.String("amount", packet.Data.Amount), zap.Error(err))
		return relayermetrics.OutcomeSubmitFailed
	}

	balance, err := w.exec.Chain.BalanceOf(ctx, token, w.exec.Identity)
	if err != nil {
		logger.Error("Failed to read relayer balance", zap.Error(err))
		return relayermetrics.OutcomeSubmitFailed
	}
	if balance.Cmp(amount) < 0 {
		logger.Error("Insufficient relayer balance, fund the relayer and resubmit",
			zap.String("balance", balance.String()),
			zap.String("amount", amount.String()),
			zap.String("relayer", w.exec.Identity.Hex()))
		return relayermetrics.OutcomeInsufficientFunds
	}

	txHash, err := w.exec.Submitter.SubmitTransfer(ctx, submitter.TransferRequest{
		Token:          token,
		Amount:         amount,
		RecipientChain: w.config.RecipientChain,
		Recipient:      vaa.Address(recipient),
		Payload:        []byte{},
	})
	unconfirmed := errors.Is(err, submitter.ErrUnconfirmed)
	if err != nil && !unconfirmed {
		logger.Error("Failed to submit transfer", zap.String("amount", amount.String()), zap.Error(err))
		return relayermetrics.OutcomeSubmitFailed
	}

	w.record(ctx, logger, transfer.TxHash, msgIndex)

	if unconfirmed {
		logger.Error("Transfer sent but not confirmed, recorded as processed, verify it on chain",
			zap.String("destTxHash", txHash),
			zap.String("amount", amount.String()),
			zap.String("recipient", recipient.String()),
			zap.Error(err))
		return relayermetrics.OutcomeSentUnconfirmed
	}
	logger.Info("Transfer completed",
		zap.String("destTxHash", txHash),
		zap.String("amount", amount.String()),
		zap.String("recipient", recipient.String()))
	return relayermetrics.OutcomeCompleted
}

// record writes the processed transfer. The tokens already moved, so it never gives up, not
// even while shutting down.
func (w *ExecutionWorker) record(ctx context.Context, logger *zap.Logger, txHash string, msgIndex uint32) {
	persistCtx := context.WithoutCancel(ctx)
	_ = w.retryForever(persistCtx, logger, "record processed transfer", func() error {
		err := w.processed.Insert(persistCtx, txHash, msgIndex, w.now())
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return err
	})
}

func (w *ExecutionWorker) resolveToken(denom string) (common.Address, bool) {
	if token, ok := w.config.TokenOverrides[strings.ToLower(denom)]; ok {
		return token, true
	}
	address := ParseTokenAddress(denom)
	if !common.IsHexAddress(address) {
		return common.Address{}, false
	}
	return common.HexToAddress(address), true
}

func (w *ExecutionWorker) scaleAmount(ctx context.Context, token common.Address, amount string) (*big.Int, error) {
	decimals, err := w.exec.Chain.Decimals(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("read decimals: %w", err)
	}
	scaled, err := DeNormalizeAmount(amount, decimals)
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(scaled, 10)
	if !ok {
		return nil, fmt.Errorf("invalid scaled amount %q", scaled)
	}
	return value, nil
}

// retryForever retries fn with a fixed delay until it succeeds or ctx is done.
func (w *ExecutionWorker) retryForever(ctx context.Context, logger *zap.Logger, what string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(w.config.PersistRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Error("Store operation failed, retrying",
				zap.String("operation", what),
				zap.Uint("attempt", n+1),
				zap.Duration("retryIn", w.config.PersistRetryDelay),
				zap.Error(err))
		}),
	)
}
