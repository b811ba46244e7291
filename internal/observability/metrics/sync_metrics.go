package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SyncResultSuccess     = "success"
	SyncResultFailed      = "failed"
	SyncResultRecoverable = "recoverable"
	SyncResultConflict    = "conflict"
)

const (
	StripeOutcomeOK        = "ok"
	StripeOutcomeAuth      = "auth_error"
	StripeOutcomeTransient = "transient_error"
	StripeOutcomeOther     = "error"
)

// SyncMetrics captures sync pipeline health signals.
type SyncMetrics struct {
	syncRuns          *prometheus.CounterVec
	syncDuration      prometheus.Observer
	subscriptionsSeen prometheus.Counter
	stripeRequests    *prometheus.CounterVec
	throttleWait      prometheus.Observer
	countryResolved   *prometheus.CounterVec
	dataWarnings      *prometheus.CounterVec
	snapshotRows      prometheus.Gauge
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	if syncMetrics != nil {
		for _, collector := range []prometheus.Collector{
			syncMetrics.syncRuns,
			syncMetrics.syncDuration.(prometheus.Collector),
			syncMetrics.subscriptionsSeen,
			syncMetrics.stripeRequests,
			syncMetrics.throttleWait.(prometheus.Collector),
			syncMetrics.countryResolved,
			syncMetrics.dataWarnings,
			syncMetrics.snapshotRows,
		} {
			prometheus.DefaultRegisterer.Unregister(collector)
		}
	}
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "subsight"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subsight_sync_runs_total",
		Help:        "Stripe sync runs by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "subsight_sync_duration_seconds",
		Help:        "End-to-end Stripe sync latency per tenant.",
		Buckets:     []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	})
	subscriptionsSeen := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "subsight_sync_subscriptions_total",
		Help:        "Subscriptions processed across sync runs.",
		ConstLabels: constLabels,
	})
	stripeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subsight_stripe_requests_total",
		Help:        "Outbound Stripe API calls by resource and outcome.",
		ConstLabels: constLabels,
	}, []string{"resource", "outcome"})
	throttleWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "subsight_stripe_throttle_wait_seconds",
		Help:        "Time spent waiting on the outbound Stripe rate limiter.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	countryResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subsight_country_resolution_total",
		Help:        "Customer country resolutions by winning source.",
		ConstLabels: constLabels,
	}, []string{"source"})
	dataWarnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subsight_data_warnings_total",
		Help:        "Data integrity warnings observed during sync, by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	snapshotRows := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "subsight_snapshot_rows",
		Help:        "Metric rows written by the most recent snapshot replace.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		syncRuns,
		syncDuration,
		subscriptionsSeen,
		stripeRequests,
		throttleWait,
		countryResolved,
		dataWarnings,
		snapshotRows,
	)

	return &SyncMetrics{
		syncRuns:          syncRuns,
		syncDuration:      syncDuration,
		subscriptionsSeen: subscriptionsSeen,
		stripeRequests:    stripeRequests,
		throttleWait:      throttleWait,
		countryResolved:   countryResolved,
		dataWarnings:      dataWarnings,
		snapshotRows:      snapshotRows,
	}
}

// ObserveSyncRun records the result and duration of one sync run.
func (m *SyncMetrics) ObserveSyncRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

// AddSubscriptions records how many subscriptions a run processed.
func (m *SyncMetrics) AddSubscriptions(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.subscriptionsSeen.Add(float64(count))
}

// RecordStripeRequest counts one outbound Stripe call.
func (m *SyncMetrics) RecordStripeRequest(resource, outcome string) {
	if m == nil {
		return
	}
	m.stripeRequests.WithLabelValues(resource, outcome).Inc()
}

// ObserveThrottleWait records limiter wait time before a Stripe call.
func (m *SyncMetrics) ObserveThrottleWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.throttleWait.Observe(elapsed.Seconds())
}

// RecordCountryResolution counts which resolver source produced the country.
func (m *SyncMetrics) RecordCountryResolution(source string) {
	if m == nil {
		return
	}
	m.countryResolved.WithLabelValues(source).Inc()
}

// RecordDataWarning counts one non-fatal data integrity issue.
func (m *SyncMetrics) RecordDataWarning(kind string) {
	if m == nil {
		return
	}
	m.dataWarnings.WithLabelValues(kind).Inc()
}

// SetSnapshotRows records the size of the latest written snapshot.
func (m *SyncMetrics) SetSnapshotRows(count int) {
	if m == nil {
		return
	}
	m.snapshotRows.Set(float64(count))
}
