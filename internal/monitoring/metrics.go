package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/config"
	"github.com/aak-rpa/henstilling-sync/internal/pipeline"
)

const namespace = "henstilling_sync"

// RunMetrics holds the gauges describing the last sync run. Each sync is a
// short-lived process, so the values are exported through a node-exporter
// textfile or a pushgateway rather than a scrape endpoint.
type RunMetrics struct {
	cfg      config.MonitoringConfig
	registry *prometheus.Registry
	client   *http.Client

	cases       prometheus.Gauge
	skipped     *prometheus.GaugeVec
	records     *prometheus.GaugeVec
	coords      *prometheus.GaugeVec
	duration    prometheus.Gauge
	aborted     prometheus.Gauge
	capped      prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRunMetrics builds the run gauges on a private registry.
func NewRunMetrics(cfg config.MonitoringConfig) *RunMetrics {
	m := &RunMetrics{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	m.cases = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cases",
		Help:      "Cases read from the source in the last run.",
	})
	m.skipped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cases_skipped",
		Help:      "Cases rejected by a gate in the last run.",
	}, []string{"reason"})
	m.records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "records",
		Help:      "Violation records by outcome in the last run.",
	}, []string{"outcome"})
	m.coords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coordinates",
		Help:      "Case coordinates replaced by geocoding in the last run.",
	}, []string{"outcome"})
	m.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duration_seconds",
		Help:      "Wall time of the last run.",
	})
	m.aborted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "aborted",
		Help:      "1 if the last run stopped on an error.",
	})
	m.capped = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capped",
		Help:      "1 if the last run hit the case cap.",
	})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run that finished without error.",
	})

	m.registry.MustRegister(
		m.cases, m.skipped, m.records, m.coords,
		m.duration, m.aborted, m.capped, m.lastSuccess,
	)
	return m
}

// Registry exposes the gatherer, mostly for tests.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// Observe records a finished run. res may be nil.
func (m *RunMetrics) Observe(res *pipeline.RunResult, runErr error, elapsed time.Duration, finished time.Time) {
	if res == nil {
		res = &pipeline.RunResult{}
	}

	m.cases.Set(float64(res.Cases))
	for _, reason := range []pipeline.SkipReason{
		pipeline.SkipMissingCaseID,
		pipeline.SkipOwnerType,
		pipeline.SkipInvalidOwnerID,
		pipeline.SkipNoBillableItems,
	} {
		m.skipped.WithLabelValues(string(reason)).Set(float64(res.Skipped[reason]))
	}
	m.records.WithLabelValues("planned").Set(float64(res.Planned))
	m.records.WithLabelValues("written").Set(float64(res.Written))
	m.records.WithLabelValues("locked").Set(float64(res.Locked))
	m.records.WithLabelValues("write_error").Set(float64(res.WriteErrors))
	m.coords.WithLabelValues("corrected").Set(float64(res.Corrected))
	m.coords.WithLabelValues("geocoded").Set(float64(res.Geocoded))
	m.duration.Set(elapsed.Seconds())
	m.capped.Set(boolGauge(res.Capped))

	if runErr != nil {
		m.aborted.Set(1)
		return
	}
	m.aborted.Set(0)
	m.lastSuccess.Set(float64(finished.Unix()))
}

// Export writes the textfile and pushes to the gateway, whichever are
// configured. Both are attempted; the first failure is returned.
func (m *RunMetrics) Export(ctx context.Context) error {
	var first error

	if m.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(m.cfg.MetricsFile, m.registry); err != nil {
			first = eris.Wrapf(err, "monitoring: write metrics file %s", m.cfg.MetricsFile)
		}
	}

	if m.cfg.PushgatewayURL != "" {
		job := m.cfg.MetricsJob
		if job == "" {
			job = namespace
		}
		err := push.New(m.cfg.PushgatewayURL, job).
			Client(m.client).
			Gatherer(m.registry).
			PushContext(ctx)
		if err != nil && first == nil {
			first = eris.Wrap(err, "monitoring: push metrics")
		}
		if err == nil {
			zap.L().Debug("monitoring: metrics pushed", zap.String("job", job))
		}
	}

	return first
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
