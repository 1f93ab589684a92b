package internal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"go.uber.org/zap"

	"github.com/orai-bridge/relayer/internal/clients"
	"github.com/orai-bridge/relayer/internal/relayermetrics"
)

// SourceChain is the block source the watcher polls.
type SourceChain interface {
	LatestHeight(ctx context.Context) (int64, error)
	FetchTxs(ctx context.Context, from, to int64) ([]clients.ChainTx, error)
}

// BatchHandler receives the matching transactions of one poll, in block order.
type BatchHandler func(ctx context.Context, batch []RawBridgeEvent)

type WatcherConfig struct {
	Signature   BridgeSignature
	SyncLimit   int64         // max heights scanned per poll
	Interval    time.Duration // delay between polls
	StartOffset uint64        // last height already scanned
}

// Watcher scans source chain blocks for send_packet events on the bridge path.
type Watcher struct {
	chain   SourceChain
	config  WatcherConfig
	offset  atomic.Uint64
	metrics *relayermetrics.PrometheusMetrics
	logger  *zap.Logger
}

func NewWatcher(logger *zap.Logger, chain SourceChain, config WatcherConfig, metrics *relayermetrics.PrometheusMetrics) *Watcher {
	if config.SyncLimit < 1 {
		config.SyncLimit = 1
	}
	w := &Watcher{
		chain:   chain,
		config:  config,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "Watcher")),
	}
	w.offset.Store(config.StartOffset)
	metrics.SetOffset(config.StartOffset)
	return w
}

// Offset is the last source height whose matching events were handed to the handler.
func (w *Watcher) Offset() uint64 {
	return w.offset.Load()
}

// Start polls until ctx is cancelled. A failed poll is logged and the same range is retried.
func (w *Watcher) Start(ctx context.Context, handle BatchHandler) error {
	w.logger.Info("Watching source chain",
		zap.Uint64("offset", w.Offset()),
		zap.String("srcChannel", w.config.Signature.SrcChannel),
		zap.String("dstChannel", w.config.Signature.DstChannel))

	for {
		caughtUp, err := w.poll(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.metrics.IncBlockQueryFailure("poll")
			w.logger.Error("Failed to poll source chain", zap.Uint64("offset", w.Offset()), zap.Error(err))
		}

		delay := w.config.Interval
		if err == nil && !caughtUp {
			delay = 0
		}
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped", zap.Uint64("offset", w.Offset()))
			return nil
		case <-time.After(delay):
		}
	}
}

// poll scans one batch of heights. caughtUp reports whether the chain tip was reached.
func (w *Watcher) poll(ctx context.Context, handle BatchHandler) (caughtUp bool, err error) {
	tip, err := w.chain.LatestHeight(ctx)
	if err != nil {
		return false, err
	}

	offset := w.Offset()
	if tip <= int64(offset) {
		return true, nil
	}
	from := int64(offset) + 1
	to := min(tip, int64(offset)+w.config.SyncLimit)

	txs, err := w.chain.FetchTxs(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("fetch heights %d-%d: %w", from, to, err)
	}

	var batch []RawBridgeEvent
	for _, tx := range txs {
		sendPackets := filterSendPackets(tx, w.config.Signature)
		if len(sendPackets) == 0 {
			continue
		}

		memo, err := decodeTxMemo(tx.Tx)
		if err != nil {
			w.logger.Warn("Failed to decode tx memo", zap.String("txHash", tx.Hash), zap.Int64("height", tx.Height), zap.Error(err))
			continue
		}

		w.logger.Info("Found bridge transaction",
			zap.String("txHash", tx.Hash),
			zap.Int64("height", tx.Height),
			zap.Int("sendPackets", len(sendPackets)))
		batch = append(batch, RawBridgeEvent{TxHash: tx.Hash, TxMemo: memo, SendPackets: sendPackets})
		w.metrics.AddPacketsObserved(w.config.Signature.SrcChannel, w.config.Signature.SrcPort, len(sendPackets))
	}

	if len(batch) > 0 {
		handle(ctx, batch)
	}

	w.offset.Store(uint64(to))
	w.metrics.SetOffset(uint64(to))
	w.logger.Debug("Scanned heights", zap.Int64("from", from), zap.Int64("to", to), zap.Int("matches", len(batch)))
	return to == tip, nil
}

func filterSendPackets(tx clients.ChainTx, sig BridgeSignature) []abci.Event {
	var events []abci.Event
	for _, event := range tx.Events {
		if MatchesSignature(event, sig) {
			events = append(events, event)
		}
	}
	return events
}

func decodeTxMemo(txBytes []byte) (string, error) {
	var raw txtypes.TxRaw
	if err := raw.Unmarshal(txBytes); err != nil {
		return "", fmt.Errorf("unmarshal tx raw: %w", err)
	}
	var body txtypes.TxBody
	if err := body.Unmarshal(raw.BodyBytes); err != nil {
		return "", fmt.Errorf("unmarshal tx body: %w", err)
	}
	return body.Memo, nil
}
