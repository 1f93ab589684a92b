package internal

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orai-bridge/relayer/internal/queue"
)

// Relayer runs the watch, confirm and execute loops concurrently.
type Relayer struct {
	watcher   *Watcher
	intake    *queue.MemoryQueue[PendingTransfer]
	confirmer *ConfirmationWorker
	executor  *ExecutionWorker
	logger    *zap.Logger
}

// NewRelayer creates a new relayer instance
func NewRelayer(
	logger *zap.Logger,
	watcher *Watcher,
	intake *queue.MemoryQueue[PendingTransfer],
	confirmer *ConfirmationWorker,
	executor *ExecutionWorker,
) *Relayer {
	return &Relayer{
		logger:    logger.With(zap.String("component", "Relayer")),
		watcher:   watcher,
		intake:    intake,
		confirmer: confirmer,
		executor:  executor,
	}
}

// Start blocks until ctx is cancelled or a loop fails.
func (r *Relayer) Start(ctx context.Context) error {
	r.logger.Info("Starting relayer", zap.Uint64("offset", r.watcher.Offset()))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return r.watcher.Start(egCtx, r.enqueue)
	})
	eg.Go(func() error {
		return r.confirmer.Start(egCtx)
	})
	eg.Go(func() error {
		return r.executor.Start(egCtx)
	})

	err := eg.Wait()
	r.logger.Info("Shutdown complete",
		zap.Uint64("offset", r.watcher.Offset()),
		zap.Int("intakeDropped", r.intake.Size()))
	return err
}

// enqueue splits each bridge transaction into one pending transfer per send_packet event.
func (r *Relayer) enqueue(_ context.Context, batch []RawBridgeEvent) {
	for _, tx := range batch {
		for _, event := range tx.SendPackets {
			r.intake.Enqueue(PendingTransfer{
				TxHash: tx.TxHash,
				TxMemo: tx.TxMemo,
				Event:  event,
			})
		}
	}
}

// wait sleeps for d and reports false if ctx was cancelled first.
func wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
