package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/devblac/multisig-watch/internal/checkpoint"
	"github.com/devblac/multisig-watch/internal/config"
	"github.com/devblac/multisig-watch/internal/consensus"
	"github.com/devblac/multisig-watch/internal/logging"
	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"github.com/devblac/multisig-watch/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// ErrNoContracts means the watchlist held no valid contract this cycle.
var ErrNoContracts = errors.New("no valid contracts to watch")

// WatchlistSource supplies endpoints and contracts; *config.Config satisfies it.
type WatchlistSource interface {
	LoadWatchlist() (config.Watchlist, error)
}

// HeightResolver picks the trusted height; *consensus.Resolver satisfies it.
type HeightResolver interface {
	Resolve(ctx context.Context, urls []string) (consensus.TrustedHeightSet, []consensus.Endpoint, error)
}

// retainer drops cached clients for endpoints no longer listed; *evm.Pool satisfies it.
type retainer interface {
	Retain(keep []string)
}

// Deps are the collaborators a Cycle needs.
type Deps struct {
	Watchlist  WatchlistSource
	Resolver   HeightResolver
	Clients    consensus.ClientSource
	Fetcher    *evm.Fetcher
	Store      storage.Store
	Dispatcher *Dispatcher
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// CycleReport describes what one cycle did.
type CycleReport struct {
	ID        uint64
	Trusted   uint64
	Members   int
	Endpoint  string
	Range     checkpoint.Range
	Contracts int
	Events    int
	Dispatch  DispatchReport
	NextBlock uint64
	Saved     bool
	Duration  time.Duration
}

// Cycle runs probe -> decide -> scan -> notify -> persist once per call.
type Cycle struct {
	deps     Deps
	maxDrift uint64
	scanPace *rate.Limiter
	shuffle  func([]consensus.Endpoint)
}

// CycleOption customises a Cycle.
type CycleOption func(*Cycle)

// WithMaxDrift sets how stale a saved cursor may be before the gap is skipped.
func WithMaxDrift(blocks uint64) CycleOption {
	return func(c *Cycle) { c.maxDrift = blocks }
}

// WithScanDelay sets the pause between consecutive contract scans.
func WithScanDelay(d time.Duration) CycleOption {
	return func(c *Cycle) { c.scanPace = pacer(d) }
}

// WithShuffle replaces the endpoint ordering, mainly for tests.
func WithShuffle(fn func([]consensus.Endpoint)) CycleOption {
	return func(c *Cycle) { c.shuffle = fn }
}

// NewCycle wires a cycle.
func NewCycle(deps Deps, opts ...CycleOption) (*Cycle, error) {
	switch {
	case deps.Watchlist == nil:
		return nil, errors.New("cycle: watchlist source is required")
	case deps.Resolver == nil:
		return nil, errors.New("cycle: resolver is required")
	case deps.Clients == nil:
		return nil, errors.New("cycle: client source is required")
	case deps.Fetcher == nil:
		return nil, errors.New("cycle: fetcher is required")
	case deps.Store == nil:
		return nil, errors.New("cycle: checkpoint store is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("cycle: dispatcher is required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	c := &Cycle{
		deps:     deps,
		maxDrift: checkpoint.DefaultMaxDrift,
		scanPace: pacer(time.Second),
		shuffle: func(eps []consensus.Endpoint) {
			rand.Shuffle(len(eps), func(i, j int) { eps[i], eps[j] = eps[j], eps[i] })
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Run executes one full cycle. The checkpoint is written only after every contract was
// scanned on a single endpoint and the resulting events were handed to the dispatcher.
func (c *Cycle) Run(ctx context.Context) (CycleReport, error) {
	log := c.deps.Log
	var report CycleReport

	wl, err := c.deps.Watchlist.LoadWatchlist()
	if err != nil {
		return report, fmt.Errorf("load watchlist: %w", err)
	}
	for _, reason := range wl.Skipped {
		log.Warn("watchlist entry skipped", "reason", reason)
	}
	if p, ok := c.deps.Clients.(retainer); ok {
		p.Retain(wl.Endpoints)
	}
	contracts := c.validContracts(wl.Contracts)
	report.Contracts = len(contracts)

	set, _, err := c.deps.Resolver.Resolve(ctx, wl.Endpoints)
	if err != nil {
		return report, err
	}
	report.Trusted = set.Height
	report.Members = len(set.Members)
	c.deps.Metrics.TrustedHeight(set.Height, len(set.Members))

	saved, hasSaved, err := c.deps.Store.Load(ctx)
	if errors.Is(err, storage.ErrInvalidCheckpoint) {
		log.Warn("stored checkpoint unreadable, starting fresh", "error", err)
		saved, hasSaved, err = storage.Checkpoint{}, false, nil
	}
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	rng, err := checkpoint.Decide(saved.NextBlock, hasSaved, set.Height, c.maxDrift)
	if err != nil {
		return report, err
	}
	if rng.Skipped > 0 {
		log.Warn("checkpoint too far behind, skipping gap",
			"saved", saved.NextBlock,
			"trusted", set.Height,
			"skipped_blocks", rng.Skipped,
		)
	}
	report.Range = rng
	report.NextBlock = saved.NextBlock

	if len(contracts) == 0 {
		return report, ErrNoContracts
	}
	if rng.Empty() {
		log.Info("no new blocks", "next_block", rng.From, "trusted", set.Height)
		return report, nil
	}

	batches, endpoint, scanned, err := c.scanMembers(ctx, set.Members, contracts, rng)
	if err != nil {
		return report, err
	}
	report.Endpoint = endpoint
	report.Range = scanned
	for _, b := range batches {
		report.Events += len(b.Events)
	}

	report.Dispatch = c.deps.Dispatcher.Dispatch(ctx, batches)

	next, write := checkpoint.Advance(saved.NextBlock, hasSaved, scanned.Next())
	if write {
		if err := c.deps.Store.Save(ctx, next); err != nil {
			return report, fmt.Errorf("save checkpoint: %w", err)
		}
		report.Saved = true
	}
	report.NextBlock = next
	c.deps.Metrics.Checkpoint(next)
	return report, nil
}

// scanMembers tries trusted endpoints in random order and returns the batches of the
// first one that scans every contract without error. Partial results from a failing
// endpoint are dropped.
func (c *Cycle) scanMembers(ctx context.Context, members []consensus.Endpoint, contracts []evm.WatchedContract, rng checkpoint.Range) ([]Batch, string, checkpoint.Range, error) {
	order := append([]consensus.Endpoint(nil), members...)
	c.shuffle(order)

	var lastErr error
	for _, m := range order {
		r := rng.Cap(m.Height)
		if r.Empty() {
			c.deps.Log.Debug("endpoint behind scan range", "endpoint", logging.RedactURL(m.URL), "height", m.Height, "from", rng.From)
			continue
		}
		client, err := c.deps.Clients.Get(ctx, m.URL)
		if err != nil {
			lastErr = err
			c.deps.Log.Warn("endpoint unavailable", "endpoint", logging.RedactURL(m.URL), "error", err)
			continue
		}
		batches, err := c.scanEndpoint(ctx, client, m.URL, contracts, r)
		if err != nil {
			lastErr = err
			c.deps.Log.Warn("endpoint scan failed, discarding partial results", "endpoint", logging.RedactURL(m.URL), "error", err)
			continue
		}
		return batches, m.URL, r, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoint covers the scan range")
	}
	return nil, "", rng, fmt.Errorf("%w: %d trusted endpoint(s) tried: %w", evm.ErrRetrieval, len(order), lastErr)
}

func (c *Cycle) scanEndpoint(ctx context.Context, client evm.Client, url string, contracts []evm.WatchedContract, r checkpoint.Range) ([]Batch, error) {
	batches := make([]Batch, 0, len(contracts))
	for _, contract := range contracts {
		if err := c.scanPace.Wait(ctx); err != nil {
			return nil, err
		}
		events, err := c.deps.Fetcher.Fetch(ctx, client, contract, r.From, r.To)
		if err != nil {
			return nil, err
		}
		c.deps.Log.Info("contract scanned",
			"contract", contract.Label(),
			"from", r.From,
			"to", r.To,
			"events", len(events),
		)
		batches = append(batches, Batch{
			Endpoint: url,
			Contract: contract,
			Range:    r,
			Events:   events,
		})
	}
	return batches, nil
}

func (c *Cycle) validContracts(raw []config.Contract) []evm.WatchedContract {
	out := make([]evm.WatchedContract, 0, len(raw))
	seen := map[common.Address]struct{}{}
	for _, rc := range raw {
		wc, err := evm.ParseContract(rc.Address, rc.Alias)
		if err != nil {
			c.deps.Log.Warn("contract skipped", "address", rc.Address, "alias", rc.Alias, "error", err)
			continue
		}
		if _, dup := seen[wc.Address]; dup {
			continue
		}
		seen[wc.Address] = struct{}{}
		out = append(out, wc)
	}
	return out
}
