package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 网络音频流的 Prometheus 指标。nil 指针上的方法都是空操作。
type Metrics struct {
	// Stream lifecycle
	StreamsStarted   prometheus.Counter
	OpenFailures     *prometheus.CounterVec
	PlaybackStarts   prometheus.Counter
	PlaybackFailures prometheus.Counter

	// Deferred close
	DeferredCloses  prometheus.Counter
	SessionsRetired prometheus.Counter
	PendingCloses   prometheus.Gauge

	ActiveStream prometheus.Gauge
	Gain         prometheus.Gauge
}

// NewMetrics 创建并注册所有指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "xiaozhi_radio_streams_started_total",
			Help: "Total number of stream sessions opened",
		}),
		OpenFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xiaozhi_radio_open_failures_total",
			Help: "Total number of streams that failed to open",
		}, []string{"reason"}),
		PlaybackStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "xiaozhi_radio_playback_starts_total",
			Help: "Total number of streams that reached playback",
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "xiaozhi_radio_playback_failures_total",
			Help: "Total number of refused playback starts on ready streams",
		}),
		DeferredCloses: factory.NewCounter(prometheus.CounterOpts{
			Name: "xiaozhi_radio_deferred_closes_total",
			Help: "Total number of stream closes deferred because the stream was connecting",
		}),
		SessionsRetired: factory.NewCounter(prometheus.CounterOpts{
			Name: "xiaozhi_radio_sessions_retired_total",
			Help: "Total number of deferred sessions closed on a later frame",
		}),
		PendingCloses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xiaozhi_radio_pending_closes",
			Help: "Current number of sessions waiting to be closed",
		}),
		ActiveStream: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xiaozhi_radio_active_stream",
			Help: "1 when a stream session is active",
		}),
		Gain: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xiaozhi_radio_gain",
			Help: "Configured stream gain in [0,1]",
		}),
	}
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsStarted.Inc()
}

func (m *Metrics) OpenFailed(reason string) {
	if m == nil {
		return
	}
	m.OpenFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) PlaybackStarted() {
	if m == nil {
		return
	}
	m.PlaybackStarts.Inc()
}

func (m *Metrics) PlaybackFailed() {
	if m == nil {
		return
	}
	m.PlaybackFailures.Inc()
}

func (m *Metrics) CloseDeferred() {
	if m == nil {
		return
	}
	m.DeferredCloses.Inc()
}

func (m *Metrics) SessionRetired() {
	if m == nil {
		return
	}
	m.SessionsRetired.Inc()
}

func (m *Metrics) SetPendingCloses(n int) {
	if m == nil {
		return
	}
	m.PendingCloses.Set(float64(n))
}

func (m *Metrics) SetActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.ActiveStream.Set(1)
	} else {
		m.ActiveStream.Set(0)
	}
}

func (m *Metrics) SetGain(v float64) {
	if m == nil {
		return
	}
	m.Gain.Set(v)
}
