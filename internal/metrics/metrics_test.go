package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Cycle(OutcomeOK)
	m.Cycle(OutcomeOK)
	m.Cycle(OutcomeStale)
	m.ProbeFailed("https://rpc.example.org/v2/secret-key")
	m.NotificationSent()
	m.NotificationFailed()
	m.NotificationDeduped()
	m.TrustedHeight(1234, 3)
	m.Checkpoint(1235)

	if got := testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("ok cycles = %v", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeStale)); got != 1 {
		t.Fatalf("stale cycles = %v", got)
	}
	if got := testutil.ToFloat64(m.probeFailures.WithLabelValues("rpc.example.org")); got != 1 {
		t.Fatalf("probe failures = %v", got)
	}
	if got := testutil.ToFloat64(m.trustedHeight); got != 1234 {
		t.Fatalf("trusted height = %v", got)
	}
	if got := testutil.ToFloat64(m.members); got != 3 {
		t.Fatalf("members = %v", got)
	}
	if got := testutil.ToFloat64(m.checkpoint); got != 1235 {
		t.Fatalf("checkpoint = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Cycle(OutcomeError)
	m.ProbeFailed("x")
	m.NotificationSent()
	m.NotificationFailed()
	m.NotificationDeduped()
	m.TrustedHeight(1, 1)
	m.Checkpoint(1)
}

func TestHostLabel(t *testing.T) {
	cases := map[string]string{
		"https://mainnet.infura.io/v3/abc": "mainnet.infura.io",
		"http://127.0.0.1:8545":            "127.0.0.1:8545",
		"::bad":                            "unknown",
		"":                                 "unknown",
	}
	for in, want := range cases {
		if got := hostLabel(in); got != want {
			t.Errorf("hostLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
