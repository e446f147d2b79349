package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/devblac/multisig-watch/internal/deadline"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fetcher retrieves and decodes Safe events for one contract over a block range.
type Fetcher struct {
	decoder *Decoder
	timeout time.Duration
	log     *slog.Logger
}

// NewFetcher builds a fetcher whose log queries are bounded by timeout.
func NewFetcher(decoder *Decoder, timeout time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{decoder: decoder, timeout: timeout, log: log}
}

// Fetch issues one eth_getLogs for contract over [from, to], both inclusive, and returns
// decoded events ordered by block then log index. An empty range (to < from) returns
// nothing without touching the endpoint.
func (f *Fetcher) Fetch(ctx context.Context, client Client, contract WatchedContract, from, to uint64) ([]DecodedEvent, error) {
	if to < from {
		return nil, nil
	}

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract.Address},
	}
	logs, err := deadline.Call(ctx, f.timeout, func(ctx context.Context) ([]types.Log, error) {
		return client.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: contract %s blocks [%d,%d]: %w", ErrRetrieval, contract.Address.Hex(), from, to, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]DecodedEvent, 0, len(logs))
	skipped := 0
	for _, lg := range logs {
		if lg.Removed || lg.Address != contract.Address {
			skipped++
			continue
		}
		tx, ok := f.decoder.Decode(lg)
		if !ok {
			skipped++
			continue
		}
		events = append(events, DecodedEvent{
			Contract:    contract,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
			LogIndex:    lg.Index,
			Tx:          tx,
		})
	}

	f.log.Debug("logs fetched",
		"contract", contract.Address.Hex(),
		"from", from,
		"to", to,
		"raw", len(logs),
		"decoded", len(events),
		"skipped", skipped,
	)
	return events, nil
}
