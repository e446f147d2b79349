package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devblac/multisig-watch/internal/logging"
	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/sink"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventAt(t *testing.T, block uint64, tx string) evm.DecodedEvent {
	t.Helper()
	c, err := evm.ParseContract(treasury, "TreasurySafe")
	require.NoError(t, err)
	return evm.DecodedEvent{Contract: c, BlockNumber: block, TxHash: common.HexToHash(tx)}
}

func TestDispatchDedupesByTxHash(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, "https://escan.live", 0, false, metrics.New(prometheus.NewRegistry()), logging.Discard())

	report := d.Dispatch(context.Background(), []Batch{
		{Events: []evm.DecodedEvent{eventAt(t, 10, "0xaa"), eventAt(t, 10, "0xaa")}},
		{Events: []evm.DecodedEvent{eventAt(t, 11, "0xaa"), eventAt(t, 12, "0xbb")}},
	})

	assert.Equal(t, DispatchReport{Sent: 2, Deduped: 2}, report)
	require.Len(t, s.sent, 2)
	assert.Equal(t, common.HexToHash("0xaa").Hex(), s.sent[0].TxHash)
	assert.Equal(t, common.HexToHash("0xbb").Hex(), s.sent[1].TxHash)
}

func TestDispatchDedupeIsPerCall(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, "https://escan.live", 0, false, nil, logging.Discard())
	batch := []Batch{{Events: []evm.DecodedEvent{eventAt(t, 10, "0xaa")}}}

	d.Dispatch(context.Background(), batch)
	d.Dispatch(context.Background(), batch)
	assert.Equal(t, 2, s.count())
}

func TestDispatchDryRunSendsNothing(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, "https://escan.live", 0, true, nil, logging.Discard())

	report := d.Dispatch(context.Background(), []Batch{
		{Events: []evm.DecodedEvent{eventAt(t, 10, "0xaa")}},
	})
	assert.Zero(t, s.count())
	assert.Zero(t, report.Sent)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	s := &flakySender{failOn: common.HexToHash("0xaa").Hex()}
	d := NewDispatcher(s, "https://escan.live", 0, false, nil, logging.Discard())

	report := d.Dispatch(context.Background(), []Batch{
		{Events: []evm.DecodedEvent{eventAt(t, 10, "0xaa"), eventAt(t, 11, "0xbb")}},
	})
	assert.Equal(t, DispatchReport{Sent: 1, Failed: 1}, report)
	assert.Equal(t, 2, s.calls)
}

func TestDispatchPacesSends(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, "https://escan.live", 40*time.Millisecond, false, nil, logging.Discard())

	start := time.Now()
	d.Dispatch(context.Background(), []Batch{{Events: []evm.DecodedEvent{
		eventAt(t, 10, "0x01"),
		eventAt(t, 10, "0x02"),
		eventAt(t, 10, "0x03"),
	}}})
	assert.Equal(t, 3, s.count())
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestDispatchStopsOnCancel(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, "https://escan.live", time.Hour, false, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := d.Dispatch(ctx, []Batch{{Events: []evm.DecodedEvent{eventAt(t, 10, "0x01")}}})
	assert.Zero(t, report.Sent)
	assert.Zero(t, s.count())
}

type flakySender struct {
	failOn string
	calls  int
	recordingSender
}

func (f *flakySender) Send(ctx context.Context, n sink.Notification) error {
	f.calls++
	if n.TxHash == f.failOn {
		return errors.New("boom")
	}
	return f.recordingSender.Send(ctx, n)
}
