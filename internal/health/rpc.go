package health

import (
	"context"
	"fmt"

	"github.com/devblac/multisig-watch/internal/consensus"
)

// HeightResolver is satisfied by *consensus.Resolver.
type HeightResolver interface {
	Resolve(ctx context.Context, urls []string) (consensus.TrustedHeightSet, []consensus.Endpoint, error)
}

// RPCChecker reports healthy when the configured endpoints still reach a height vote.
type RPCChecker struct {
	endpoints func() ([]string, error)
	resolver  HeightResolver
}

// NewRPCChecker creates a checker over the current endpoint list.
func NewRPCChecker(endpoints func() ([]string, error), resolver HeightResolver) *RPCChecker {
	return &RPCChecker{
		endpoints: endpoints,
		resolver:  resolver,
	}
}

// Ping probes every endpoint once and fails when no trusted height can be formed.
func (c *RPCChecker) Ping(ctx context.Context) error {
	urls, err := c.endpoints()
	if err != nil {
		return fmt.Errorf("endpoints: %w", err)
	}
	set, _, err := c.resolver.Resolve(ctx, urls)
	if err != nil {
		return err
	}
	if len(set.Members) == 0 {
		return consensus.ErrNoReliableSource
	}
	return nil
}
