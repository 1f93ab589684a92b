package internal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	channeltypes "github.com/cosmos/ibc-go/v9/modules/core/04-channel/types"
	"go.uber.org/zap"

	"github.com/orai-bridge/relayer/internal/clients"
	"github.com/orai-bridge/relayer/internal/queue"
	"github.com/orai-bridge/relayer/internal/relayermetrics"
)

var errNotYetRelayed = errors.New("packet not yet received on the intermediate ledger")

// Ledger is the intermediate chain queried to corroborate a packet.
type Ledger interface {
	CountTxs(ctx context.Context, query string) (int, error)
}

type ConfirmationConfig struct {
	Retries   uint          // max corroboration attempts per packet
	Delay     time.Duration // delay between attempts
	IdleDelay time.Duration // sleep when the intake queue is empty
}

// ConfirmationWorker moves packets from the intake queue to the execution queue once the
// intermediate ledger shows a matching recv_packet.
type ConfirmationWorker struct {
	intake    *queue.MemoryQueue[PendingTransfer]
	execution *queue.MemoryQueue[PendingTransfer]
	ledger    Ledger
	config    ConfirmationConfig
	now       func() time.Time
	metrics   *relayermetrics.PrometheusMetrics
	logger    *zap.Logger
}

func NewConfirmationWorker(
	logger *zap.Logger,
	intake, execution *queue.MemoryQueue[PendingTransfer],
	ledger Ledger,
	config ConfirmationConfig,
	metrics *relayermetrics.PrometheusMetrics,
) *ConfirmationWorker {
	if config.Retries == 0 {
		config.Retries = 1
	}
	return &ConfirmationWorker{
		intake:    intake,
		execution: execution,
		ledger:    ledger,
		config:    config,
		now:       time.Now,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "ConfirmationWorker")),
	}
}

func (w *ConfirmationWorker) Start(ctx context.Context) error {
	for {
		w.metrics.SetQueueSize("intake", w.intake.Size())

		transfer, ok := w.intake.Dequeue()
		if !ok {
			if !wait(ctx, w.config.IdleDelay) {
				return nil
			}
			continue
		}

		w.Confirm(ctx, transfer)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Confirm forwards the transfer to the execution queue and reports true once the ledger
// corroborates it. Every other path drops the transfer.
func (w *ConfirmationWorker) Confirm(ctx context.Context, transfer PendingTransfer) bool {
	logger := w.logger.With(zap.String("txHash", transfer.TxHash), zap.Uint32("msgIndex", transfer.MsgIndex()))

	packet, ok := ParsePacket(transfer.Event)
	if !ok {
		logger.Warn("Dropping malformed packet")
		w.metrics.IncOutcome(relayermetrics.OutcomeMalformed)
		return false
	}
	logger = logger.With(zap.Uint64("sequence", packet.Sequence))

	// A zero timeout timestamp also counts as expired. The bridge contract always sets one, so
	// a packet without it is not ours to pay out.
	if packet.TimeoutMillis() < w.now().UnixMilli() {
		logger.Info("Dropping timed out packet", zap.Int64("timeoutMillis", packet.TimeoutMillis()))
		w.metrics.IncOutcome(relayermetrics.OutcomeExpired)
		return false
	}

	query := clients.BuildEventQuery(corroborationTags(packet))
	err := retry.Do(
		func() error {
			w.metrics.IncConfirmationAttempt()
			count, err := w.ledger.CountTxs(ctx, query)
			if err != nil {
				return err
			}
			if count == 0 {
				return errNotYetRelayed
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(w.config.Retries),
		retry.Delay(w.config.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("Packet not confirmed yet",
				zap.Uint("attempt", n+1),
				zap.Uint("maxAttempts", w.config.Retries),
				zap.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Error("Dropping packet not confirmed on intermediate ledger",
			zap.Uint("attempts", w.config.Retries),
			zap.String("srcChannel", packet.SrcChannel),
			zap.String("dstChannel", packet.DstChannel),
			zap.Error(err))
		w.metrics.IncOutcome(relayermetrics.OutcomeUnconfirmedUpstream)
		return false
	}

	w.execution.Enqueue(transfer)
	w.metrics.IncPacketsConfirmed(packet.SrcChannel)
	logger.Info("Packet confirmed", zap.String("srcChannel", packet.SrcChannel), zap.String("dstChannel", packet.DstChannel))
	return true
}

func corroborationTags(packet *ParsedPacket) []clients.QueryTag {
	return []clients.QueryTag{
		{Key: channeltypes.EventTypeRecvPacket + "." + channeltypes.AttributeKeySequence, Value: strconv.FormatUint(packet.Sequence, 10)},
		{Key: channeltypes.EventTypeRecvPacket + "." + channeltypes.AttributeKeySrcChannel, Value: packet.SrcChannel},
		{Key: channeltypes.EventTypeRecvPacket + "." + channeltypes.AttributeKeyDstChannel, Value: packet.DstChannel},
	}
}
