// ABOUTME: Prometheus metrics for the playback engine
// ABOUTME: Voice lifecycle counters, active voice gauge and tick latency
package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for engine scheduling. A nil *Metrics
// records nothing.
type Metrics struct {
	voicesScheduled  prometheus.Counter
	voicesStopped    *prometheus.CounterVec
	voicesElapsed    prometheus.Counter
	voicesLate       prometheus.Counter
	voicesMissing    prometheus.Counter
	staleCompletions prometheus.Counter
	reconciles       prometheus.Counter
	wraps            prometheus.Counter
	gainRamps        prometheus.Counter
	activeVoices     prometheus.Gauge
	tickDuration     prometheus.Histogram
}

// NewMetrics creates and registers engine metrics
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		voicesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_voices_scheduled_total",
			Help: "Total number of voices scheduled",
		}),
		voicesStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multitrack_voices_stopped_total",
			Help: "Total number of voices stopped before completing",
		}, []string{"reason"}),
		voicesElapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_voices_elapsed_total",
			Help: "Total number of voices dropped because they elapsed before starting",
		}),
		voicesLate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_voices_late_total",
			Help: "Total number of voices started late with drift correction",
		}),
		voicesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_voices_missing_resource_total",
			Help: "Total number of scheduling attempts skipped for a missing buffer or track",
		}),
		staleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_stale_completions_total",
			Help: "Total number of voice completions ignored from superseded epochs",
		}),
		reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_reconciles_total",
			Help: "Total number of reconciliation passes",
		}),
		wraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_wraps_total",
			Help: "Total number of loop or song wrap-arounds",
		}),
		gainRamps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multitrack_gain_ramps_total",
			Help: "Total number of clip gain ramps",
		}),
		activeVoices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multitrack_active_voices",
			Help: "Number of voices currently registered",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "multitrack_tick_duration_seconds",
			Help:    "Time spent in each scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10µs to ~160ms
		}),
	}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.voicesScheduled.Describe(ch)
	m.voicesStopped.Describe(ch)
	m.voicesElapsed.Describe(ch)
	m.voicesLate.Describe(ch)
	m.voicesMissing.Describe(ch)
	m.staleCompletions.Describe(ch)
	m.reconciles.Describe(ch)
	m.wraps.Describe(ch)
	m.gainRamps.Describe(ch)
	m.activeVoices.Describe(ch)
	m.tickDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.voicesScheduled.Collect(ch)
	m.voicesStopped.Collect(ch)
	m.voicesElapsed.Collect(ch)
	m.voicesLate.Collect(ch)
	m.voicesMissing.Collect(ch)
	m.staleCompletions.Collect(ch)
	m.reconciles.Collect(ch)
	m.wraps.Collect(ch)
	m.gainRamps.Collect(ch)
	m.activeVoices.Collect(ch)
	m.tickDuration.Collect(ch)
}

func (m *Metrics) voiceScheduled(active int) {
	if m == nil {
		return
	}
	m.voicesScheduled.Inc()
	m.activeVoices.Set(float64(active))
}

func (m *Metrics) voiceStopped(reason string, active int) {
	if m == nil {
		return
	}
	m.voicesStopped.WithLabelValues(reason).Inc()
	m.activeVoices.Set(float64(active))
}

func (m *Metrics) setActive(active int) {
	if m == nil {
		return
	}
	m.activeVoices.Set(float64(active))
}

func (m *Metrics) voiceElapsed() {
	if m != nil {
		m.voicesElapsed.Inc()
	}
}

func (m *Metrics) voiceLate() {
	if m != nil {
		m.voicesLate.Inc()
	}
}

func (m *Metrics) voiceMissing() {
	if m != nil {
		m.voicesMissing.Inc()
	}
}

func (m *Metrics) staleCompletion() {
	if m != nil {
		m.staleCompletions.Inc()
	}
}

func (m *Metrics) reconciled() {
	if m != nil {
		m.reconciles.Inc()
	}
}

func (m *Metrics) wrapped(laps int) {
	if m != nil {
		m.wraps.Add(float64(laps))
	}
}

func (m *Metrics) gainRamped() {
	if m != nil {
		m.gainRamps.Inc()
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m != nil {
		m.tickDuration.Observe(d.Seconds())
	}
}
