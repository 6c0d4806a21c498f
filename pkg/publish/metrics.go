package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/config"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

var (
	metricRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "compose_publisher",
		Name:      "runs_total",
		Help:      "Number of publish runs started.",
	})
	metricVariantsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "compose_publisher",
		Name:      "variants_published_total",
		Help:      "Number of repository variants processed into the canonical layout.",
	})
	metricVariantsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "compose_publisher",
		Name:      "variants_removed_total",
		Help:      "Number of middle or not-needed variants deleted from result trees.",
	})
	metricFilesSigned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "compose_publisher",
		Name:      "files_signed_total",
		Help:      "Number of files signed and verified during publish runs.",
	})
	metricRunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose_publisher",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of the last publish run.",
	})
)

// pushMetrics delivers run metrics to the configured Pushgateway. The
// publisher is a batch job, so metrics are pushed once at the end of a run
// rather than scraped. Push failures are logged, never fatal: metrics must
// not be able to break a publish.
func pushMetrics(cfg config.MetricsConfig, runID, arch string) {
	if cfg.GatewayURL == "" {
		return
	}
	err := push.New(cfg.GatewayURL, cfg.Job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("run_id", runID).
		Grouping("arch", arch).
		Push()
	if err != nil {
		logging.Warn("publish", "metrics push failed", "gateway", cfg.GatewayURL, "error", err)
		return
	}
	logging.Info("publish", "pushed run metrics", "gateway", cfg.GatewayURL, "run_id", runID)
}
