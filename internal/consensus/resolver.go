// Package consensus picks a trusted chain height from a pool of disagreeing endpoints.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/devblac/multisig-watch/internal/deadline"
	"github.com/devblac/multisig-watch/internal/logging"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultTolerance    = 5
)

// ErrNoReliableSource means no endpoint answered the height probe.
var ErrNoReliableSource = errors.New("no reliable rpc source")

// Endpoint is one probed RPC source. Err is set when the probe failed.
type Endpoint struct {
	URL    string
	Height uint64
	Err    error
}

// OK reports whether the probe succeeded.
func (e Endpoint) OK() bool { return e.Err == nil }

// TrustedHeightSet is the plurality height and the endpoints that agree with it.
type TrustedHeightSet struct {
	Height  uint64
	Members []Endpoint
}

// ClientSource hands out clients by endpoint URL; *evm.Pool satisfies it.
type ClientSource interface {
	Get(ctx context.Context, url string) (evm.Client, error)
}

// Observer receives per-probe outcomes, e.g. for metrics.
type Observer interface {
	ProbeFailed(url string)
}

// Resolver probes endpoints in parallel and votes on the chain height.
type Resolver struct {
	clients   ClientSource
	timeout   time.Duration
	tolerance uint64
	observer  Observer
	log       *slog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTolerance sets how far (exclusive) a member may sit from the trusted height.
func WithTolerance(blocks uint64) Option {
	return func(r *Resolver) {
		if blocks > 0 {
			r.tolerance = blocks
		}
	}
}

// WithObserver reports probe failures.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver builds a resolver over clients.
func NewResolver(clients ClientSource, opts ...Option) *Resolver {
	r := &Resolver{
		clients:   clients,
		timeout:   DefaultProbeTimeout,
		tolerance: DefaultTolerance,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve probes every url and returns the trusted set plus every probe outcome in input
// order. A failed probe only removes that endpoint from the vote.
func (r *Resolver) Resolve(ctx context.Context, urls []string) (TrustedHeightSet, []Endpoint, error) {
	probes := r.Probe(ctx, urls)
	set, err := Vote(probes, r.tolerance)
	if err != nil {
		return TrustedHeightSet{}, probes, err
	}
	r.log.Info("consensus height resolved",
		"height", set.Height,
		"members", len(set.Members),
		"probed", len(probes),
	)
	return set, probes, nil
}

// Probe queries every endpoint's block number concurrently and waits for all of them.
func (r *Resolver) Probe(ctx context.Context, urls []string) []Endpoint {
	out := make([]Endpoint, len(urls))
	var g errgroup.Group
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			out[i] = r.probe(ctx, url)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) probe(ctx context.Context, url string) Endpoint {
	h, err := deadline.Call(ctx, r.timeout, func(ctx context.Context) (uint64, error) {
		c, err := r.clients.Get(ctx, url)
		if err != nil {
			return 0, err
		}
		return c.BlockNumber(ctx)
	})
	if err != nil {
		r.log.Warn("height probe failed", "endpoint", logging.RedactURL(url), "error", err)
		if r.observer != nil {
			r.observer.ProbeFailed(url)
		}
		return Endpoint{URL: url, Err: fmt.Errorf("height %s: %w", logging.RedactURL(url), err)}
	}
	r.log.Debug("height probe", "endpoint", logging.RedactURL(url), "height", h)
	return Endpoint{URL: url, Height: h}
}

// Vote picks the height reported by the most endpoints, breaking ties toward the higher
// height, and collects every successful endpoint strictly within tolerance of it.
func Vote(probes []Endpoint, tolerance uint64) (TrustedHeightSet, error) {
	counts := map[uint64]int{}
	for _, p := range probes {
		if p.OK() {
			counts[p.Height]++
		}
	}
	if len(counts) == 0 {
		return TrustedHeightSet{}, ErrNoReliableSource
	}

	heights := make([]uint64, 0, len(counts))
	for h := range counts {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool {
		if counts[heights[i]] != counts[heights[j]] {
			return counts[heights[i]] > counts[heights[j]]
		}
		return heights[i] > heights[j]
	})
	trusted := heights[0]
	if tolerance == 0 {
		tolerance = 1
	}

	members := make([]Endpoint, 0, len(probes))
	for _, p := range probes {
		if p.OK() && distance(p.Height, trusted) < tolerance {
			members = append(members, p)
		}
	}
	return TrustedHeightSet{Height: trusted, Members: members}, nil
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
