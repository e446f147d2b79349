package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/devblac/multisig-watch/internal/checkpoint"
	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/sink"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// Batch is everything one contract scan produced on the chosen endpoint.
type Batch struct {
	Endpoint string
	Contract evm.WatchedContract
	Range    checkpoint.Range
	Events   []evm.DecodedEvent
}

// DispatchReport summarises one Dispatch call.
type DispatchReport struct {
	Sent    int
	Failed  int
	Deduped int
}

// Dispatcher turns decoded events into notifications, one per transaction.
type Dispatcher struct {
	sender   sink.Sender
	explorer string
	limiter  *rate.Limiter
	dryRun   bool
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewDispatcher builds a dispatcher that waits sendDelay between sends.
func NewDispatcher(sender sink.Sender, explorer string, sendDelay time.Duration, dryRun bool, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sender:   sender,
		explorer: explorer,
		limiter:  pacer(sendDelay),
		dryRun:   dryRun,
		metrics:  m,
		log:      log,
	}
}

// Dispatch delivers every event in batches, in order. A transaction already seen in
// this call is not notified again. Failed sends are logged and dropped; they are not
// retried and do not stop the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, batches []Batch) DispatchReport {
	var report DispatchReport
	seen := map[common.Hash]struct{}{}

	for _, b := range batches {
		for _, ev := range b.Events {
			if _, dup := seen[ev.TxHash]; dup {
				report.Deduped++
				d.metrics.NotificationDeduped()
				continue
			}
			seen[ev.TxHash] = struct{}{}

			n := d.notification(ev)
			if d.dryRun {
				d.log.Info("dry-run notification", "contract", n.Label, "block", n.BlockNumber, "tx", n.TxHash)
				continue
			}

			if err := d.limiter.Wait(ctx); err != nil {
				d.log.Warn("dispatch interrupted", "error", err)
				return report
			}
			if err := d.sender.Send(ctx, n); err != nil {
				report.Failed++
				d.metrics.NotificationFailed()
				d.log.Error("notification failed",
					"contract", n.Label,
					"block", n.BlockNumber,
					"tx", n.TxHash,
					"error", err,
				)
				continue
			}
			report.Sent++
			d.metrics.NotificationSent()
			d.log.Info("notification sent", "contract", n.Label, "block", n.BlockNumber, "tx", n.TxHash)
		}
	}
	return report
}

func (d *Dispatcher) notification(ev evm.DecodedEvent) sink.Notification {
	hash := ev.TxHash.Hex()
	return sink.Notification{
		Contract:    ev.Contract.Address.Hex(),
		Label:       ev.Contract.Label(),
		BlockNumber: ev.BlockNumber,
		TxHash:      hash,
		TxURL:       sink.TxURL(d.explorer, hash),
	}
}

// pacer allows one action immediately and then one per delay.
func pacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
