package evm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/devblac/multisig-watch/internal/logging"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client captures the subset of ethclient used by the resolver and fetcher.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// Dialer opens a Client for an endpoint URL.
type Dialer func(ctx context.Context, url string) (Client, error)

// RPCClient is a thin wrapper over ethclient.Client that satisfies Client.
type RPCClient struct {
	*ethclient.Client
}

// DialRPC builds an RPC client to an EVM node.
func DialRPC(ctx context.Context, rpcURL string) (Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", redactErr(err))
	}
	return &RPCClient{Client: c}, nil
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	h, err := c.Client.BlockNumber(ctx)
	return h, redactErr(err)
}

func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.Client.FilterLogs(ctx, q)
	return logs, redactErr(err)
}

// redactErr strips the endpoint path from transport errors, which quote the full URL.
func redactErr(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = logging.RedactURL(uerr.URL)
	}
	return err
}

// Pool keeps one client per endpoint URL so connections are reused across cycles.
type Pool struct {
	dial Dialer

	mu      sync.Mutex
	clients map[string]Client
}

// NewPool builds an empty pool. A nil dialer uses DialRPC.
func NewPool(dial Dialer) *Pool {
	if dial == nil {
		dial = DialRPC
	}
	return &Pool{dial: dial, clients: map[string]Client{}}
}

// Get returns the cached client for url, dialling it on first use.
func (p *Pool) Get(ctx context.Context, url string) (Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[url]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.dial(ctx, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[url]; ok {
		c.Close()
		return existing, nil
	}
	p.clients[url] = c
	return c, nil
}

// Retain closes and forgets clients whose URL is not in keep.
func (p *Pool) Retain(keep []string) {
	wanted := make(map[string]struct{}, len(keep))
	for _, u := range keep {
		wanted[u] = struct{}{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for u, c := range p.clients {
		if _, ok := wanted[u]; !ok {
			c.Close()
			delete(p.clients, u)
		}
	}
}

// Len reports the number of cached clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close releases every cached client.
func (p *Pool) Close() {
	p.Retain(nil)
}
