// Package metrics holds the counters and timers shared across the
// orchestrator, queue, provider, and webhook packages, registered the way
// miner/worker.go registers its own (package-level vars built from
// metrics.NewRegisteredCounter/NewRegisteredTimer against go-ethereum's
// default registry), plus a small set of native Prometheus gauges exposed
// over HTTP for values go-ethereum's registry doesn't model well
// (the number of running queues, a gauge rather than a counter/timer).
package metrics

import (
	"net/http"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	gethprometheus "github.com/ethereum/go-ethereum/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TickDuration times one Queue.tick call (§4.2.1's four ordered
	// steps), per the teacher's habit of timing its own per-block work
	// (txConditionalMinedTimer in miner/worker.go).
	TickDuration = gethmetrics.NewRegisteredTimer("txqueue/tick/duration", nil)

	// BroadcastCount counts every transaction sent to a node, whether a
	// fresh broadcast, a bump, or a replacement.
	BroadcastCount = gethmetrics.NewRegisteredCounter("txqueue/broadcast/count", nil)

	// BroadcastFailureCount counts broadcasts rejected by a node
	// (deterministic failures only; transport retries are invisible here
	// since internal/provider already retries those before returning).
	BroadcastFailureCount = gethmetrics.NewRegisteredCounter("txqueue/broadcast/failures", nil)

	// WebhookDeliveryAttempts and WebhookDeliveryFailures count every
	// attempt the dispatcher makes, including retries off the backoff
	// ladder (§4.8).
	WebhookDeliveryAttempts = gethmetrics.NewRegisteredCounter("webhook/delivery/attempts", nil)
	WebhookDeliveryFailures = gethmetrics.NewRegisteredCounter("webhook/delivery/failures", nil)

	// RateLimitRejections counts every CheckAndReserve call that refused
	// a request, split is left to the caller via labels on the
	// Prometheus side (rateLimitRejectionsVec below) since go-ethereum's
	// metrics package has no first-class label support.
	RateLimitRejections = gethmetrics.NewRegisteredCounter("ratelimit/rejections", nil)
)

// registry is the native Prometheus registry for metrics that need labels
// (scope/operation), which go-ethereum's metrics package doesn't support.
var registry = prometheus.NewRegistry()

var rateLimitRejectionsVec = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rrelayer_ratelimit_rejections_total",
		Help: "Rate limit rejections by scope and operation.",
	},
	[]string{"scope", "operation"},
)

// ActiveQueues is a gauge of currently running per-relayer queues,
// updated by the orchestrator as it starts/stops them.
var ActiveQueues = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rrelayer_active_queues",
	Help: "Number of currently running per-relayer transaction queues.",
})

func init() {
	registry.MustRegister(rateLimitRejectionsVec, ActiveQueues)
}

// RecordRateLimitRejection increments both the go-ethereum counter (for
// parity with every other internal counter) and the labelled Prometheus
// vector (for dashboards that need to break rejections down by scope and
// operation).
func RecordRateLimitRejection(scope, operation string) {
	RateLimitRejections.Inc(1)
	rateLimitRejectionsVec.WithLabelValues(scope, operation).Inc()
}

// Handler exposes both registries over HTTP: go-ethereum's default
// registry via its own Prometheus adapter (metrics/prometheus.Handler,
// the same exporter geth's own --metrics.influxdb/--pprof surface relies
// on upstream), and the native-Prometheus registry via promhttp, served
// on the same path with the native registry's output appended.
func Handler() http.Handler {
	gethHandler := gethprometheus.Handler(gethmetrics.DefaultRegistry)
	promHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gethHandler.ServeHTTP(w, r)
		promHandler.ServeHTTP(w, r)
	})
}
