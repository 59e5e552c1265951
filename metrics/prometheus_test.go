package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.StreamStarted()
	m.OpenFailed("failed_open")
	m.OpenFailed("failed_open")
	m.CloseDeferred()
	m.SetPendingCloses(2)
	m.SetActive(true)
	m.SetGain(0.5)

	if v := testutil.ToFloat64(m.StreamsStarted); v != 1 {
		t.Errorf("expected 1 stream started, got %v", v)
	}
	if v := testutil.ToFloat64(m.OpenFailures.WithLabelValues("failed_open")); v != 2 {
		t.Errorf("expected 2 failed opens, got %v", v)
	}
	if v := testutil.ToFloat64(m.DeferredCloses); v != 1 {
		t.Errorf("expected 1 deferred close, got %v", v)
	}
	if v := testutil.ToFloat64(m.PendingCloses); v != 2 {
		t.Errorf("expected 2 pending closes, got %v", v)
	}
	if v := testutil.ToFloat64(m.ActiveStream); v != 1 {
		t.Errorf("expected active stream, got %v", v)
	}
	if v := testutil.ToFloat64(m.Gain); v != 0.5 {
		t.Errorf("expected gain 0.5, got %v", v)
	}

	m.SetActive(false)
	if v := testutil.ToFloat64(m.ActiveStream); v != 0 {
		t.Errorf("expected inactive stream, got %v", v)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.StreamStarted()
	m.OpenFailed("open")
	m.PlaybackStarted()
	m.PlaybackFailed()
	m.CloseDeferred()
	m.SessionRetired()
	m.SetPendingCloses(1)
	m.SetActive(true)
	m.SetGain(1)
}
