package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives live events from a placement run
type Recorder interface {
	// Tick records one evaluated tick and how long it took
	Tick(active time.Duration)
	// Decision records a tick outcome
	Decision(migrate bool)
	// ForecastFailure records a tick that fell back to keep
	// because no usable forecast was available
	ForecastFailure()
	// Reload records a forecaster rebuild attempt
	Reload(success bool)
	// Migration records a migration attempt and its duration
	Migration(move time.Duration, success bool)
}

var _ Recorder = (*NopRecorder)(nil)

// NopRecorder discards every event
type NopRecorder struct{}

// NewNop returns a recorder that discards every event
func NewNop() *NopRecorder {
	return &NopRecorder{}
}

func (*NopRecorder) Tick(time.Duration) {}
func (*NopRecorder) Decision(bool) {}
func (*NopRecorder) ForecastFailure() {}
func (*NopRecorder) Reload(bool) {}
func (*NopRecorder) Migration(time.Duration, bool) {}

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder exposes events as Prometheus collectors.
// Collectors are registered lazily on first use.
type PrometheusRecorder struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	ticks            prometheus.Counter
	activeSeconds    prometheus.Histogram
	decisions        *prometheus.CounterVec
	forecastFailures prometheus.Counter
	reloads          *prometheus.CounterVec
	migrations       *prometheus.CounterVec
	migrationSeconds prometheus.Histogram
}

// NewPrometheus creates a Prometheus-backed recorder. reg
// defaults to prometheus.DefaultRegisterer and namespace to
// "placement".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if namespace == "" {
		namespace = "placement"
	}

	return &PrometheusRecorder{reg: reg, namespace: namespace}
}

func (recorder *PrometheusRecorder) ensureRegistered() {
	recorder.once.Do(func() {
		recorder.ticks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: recorder.namespace,
			Subsystem: "controller",
			Name:      "ticks_total",
			Help:      "Total evaluated ticks.",
		})
		recorder.activeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: recorder.namespace,
			Subsystem: "controller",
			Name:      "tick_active_seconds",
			Help:      "Time spent forecasting and scoring per tick in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		})
		recorder.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: recorder.namespace,
			Subsystem: "controller",
			Name:      "decisions_total",
			Help:      "Total tick decisions by kind (keep,migrate).",
		}, []string{"decision"})
		recorder.forecastFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: recorder.namespace,
			Subsystem: "controller",
			Name:      "forecast_failures_total",
			Help:      "Total ticks that kept leadership because no forecast was usable.",
		})
		recorder.reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: recorder.namespace,
			Subsystem: "reload",
			Name:      "reloads_total",
			Help:      "Total forecaster rebuild attempts by result (success,failure).",
		}, []string{"result"})
		recorder.migrations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: recorder.namespace,
			Subsystem: "migration",
			Name:      "attempts_total",
			Help:      "Total migration attempts by result (success,failure).",
		}, []string{"result"})
		recorder.migrationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: recorder.namespace,
			Subsystem: "migration",
			Name:      "duration_seconds",
			Help:      "Duration of the copy and transfer steps in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		})

		recorder.reg.MustRegister(
			recorder.ticks,
			recorder.activeSeconds,
			recorder.decisions,
			recorder.forecastFailures,
			recorder.reloads,
			recorder.migrations,
			recorder.migrationSeconds,
		)
	})
}

func (recorder *PrometheusRecorder) Tick(active time.Duration) {
	recorder.ensureRegistered()
	recorder.ticks.Inc()
	recorder.activeSeconds.Observe(active.Seconds())
}

func (recorder *PrometheusRecorder) Decision(migrate bool) {
	recorder.ensureRegistered()

	if migrate {
		recorder.decisions.WithLabelValues("migrate").Inc()
	} else {
		recorder.decisions.WithLabelValues("keep").Inc()
	}
}

func (recorder *PrometheusRecorder) ForecastFailure() {
	recorder.ensureRegistered()
	recorder.forecastFailures.Inc()
}

func (recorder *PrometheusRecorder) Reload(success bool) {
	recorder.ensureRegistered()
	recorder.reloads.WithLabelValues(result(success)).Inc()
}

func (recorder *PrometheusRecorder) Migration(move time.Duration, success bool) {
	recorder.ensureRegistered()
	recorder.migrations.WithLabelValues(result(success)).Inc()
	recorder.migrationSeconds.Observe(move.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
