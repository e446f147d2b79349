package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblac/multisig-watch/internal/checkpoint"
	"github.com/devblac/multisig-watch/internal/consensus"
	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/source/evm"
)

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// CycleRunner is one pass of the pipeline; *Cycle satisfies it.
type CycleRunner interface {
	Run(ctx context.Context) (CycleReport, error)
}

// Scheduler runs cycles one at a time with a fixed pause between them.
type Scheduler struct {
	cycle    CycleRunner
	interval time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	after    func(time.Duration) <-chan time.Time

	seq   atomic.Uint64
	mu    sync.Mutex
	state State
}

// NewScheduler builds a scheduler that waits interval after each cycle finishes.
func NewScheduler(cycle CycleRunner, interval time.Duration, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cycle:    cycle,
		interval: interval,
		metrics:  m,
		log:      log,
		after:    time.After,
	}
}

// State reports whether a cycle is in flight.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick runs exactly one cycle. The cycle is detached from ctx cancellation so a
// shutdown never interrupts it between notify and persist.
func (s *Scheduler) Tick(ctx context.Context) (report CycleReport, err error) {
	id := s.seq.Add(1)
	log := s.log.With("cycle", id)
	start := time.Now()

	s.setState(Running)
	defer s.setState(Idle)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		report.ID = id
		report.Duration = time.Since(start)
		outcome := Outcome(err)
		s.metrics.Cycle(outcome)
		if Skipped(err) {
			log.Warn("cycle skipped", "outcome", outcome, "duration", report.Duration, "error", err)
			return
		}
		if err != nil {
			log.Error("cycle failed", "outcome", outcome, "duration", report.Duration, "error", err)
			return
		}
		log.Info("cycle complete",
			"trusted", report.Trusted,
			"members", report.Members,
			"range", report.Range.String(),
			"events", report.Events,
			"sent", report.Dispatch.Sent,
			"failed", report.Dispatch.Failed,
			"next_block", report.NextBlock,
			"duration", report.Duration,
		)
	}()

	log.Info("cycle start")
	return s.cycle.Run(context.WithoutCancel(ctx))
}

// Run ticks until ctx is cancelled. Cycle errors are logged and never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		_, _ = s.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(s.interval):
		}
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Skipped reports whether err only means this cycle had nothing safe to do: no endpoint
// answered, or the checkpoint is ahead of the trusted height. The next cycle retries.
func Skipped(err error) bool {
	return errors.Is(err, consensus.ErrNoReliableSource) || errors.Is(err, checkpoint.ErrStaleCheckpoint)
}

// Outcome classifies a cycle error for the cycles_total metric.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, consensus.ErrNoReliableSource):
		return metrics.OutcomeNoSource
	case errors.Is(err, checkpoint.ErrStaleCheckpoint):
		return metrics.OutcomeStale
	case errors.Is(err, evm.ErrRetrieval):
		return metrics.OutcomeRetrieval
	case errors.Is(err, ErrNoContracts):
		return metrics.OutcomeNoContract
	default:
		return metrics.OutcomeError
	}
}
