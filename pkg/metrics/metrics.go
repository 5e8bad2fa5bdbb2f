package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "homefuse_"

const (
	ResultSuccess = "success"
	ResultError   = "error"

	FallbackEmpty     = "empty"
	FallbackSynthetic = "synthetic"
)

var (
	registerOnce sync.Once

	providerFetches      *prometheus.CounterVec
	providerFetchLatency *prometheus.HistogramVec
	providerFailures     *prometheus.CounterVec
	providerDevices      *prometheus.GaugeVec

	commandResults *prometheus.CounterVec

	solarFallbacks *prometheus.CounterVec
)

// Init registers the process metrics. Safe to call more than once; the
// helpers below are no-ops until it runs, so tests need no registration.
func Init() {
	registerOnce.Do(func() {
		providerFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "provider_fetches_total",
				Help: "Total provider device fetches by provider and result",
			},
			[]string{"provider", "result"},
		)
		providerFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "provider_fetch_latency_seconds",
				Help:    "Provider device fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "result"},
		)
		providerFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "provider_failures_total",
				Help: "Total isolated provider failures by provider and failure kind",
			},
			[]string{"provider", "kind"},
		)
		providerDevices = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "provider_devices",
				Help: "Device count contributed by each provider on the last fetch",
			},
			[]string{"provider"},
		)

		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total device command dispatches by result",
			},
			[]string{"result"},
		)

		solarFallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "solar_fallbacks_total",
				Help: "Total telemetry fallbacks served by endpoint and fallback kind",
			},
			[]string{"endpoint", "kind"},
		)

		prometheus.MustRegister(
			providerFetches,
			providerFetchLatency,
			providerFailures,
			providerDevices,
			commandResults,
			solarFallbacks,
		)
	})
}

// ObserveFetch records one provider fetch with its result and duration.
func ObserveFetch(provider, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if providerFetches != nil {
		providerFetches.WithLabelValues(provider, result).Inc()
	}
	if providerFetchLatency != nil {
		providerFetchLatency.WithLabelValues(provider, result).Observe(duration.Seconds())
	}
}

// IncProviderFailure counts one isolated provider failure by taxonomy kind.
func IncProviderFailure(provider, kind string) {
	if kind == "" {
		kind = "other"
	}
	if providerFailures != nil {
		providerFailures.WithLabelValues(provider, kind).Inc()
	}
}

// SetProviderDevices records how many devices a provider contributed.
func SetProviderDevices(provider string, count int) {
	if providerDevices != nil {
		providerDevices.WithLabelValues(provider).Set(float64(count))
	}
}

// IncCommandResult counts one command dispatch result.
func IncCommandResult(result string) {
	if result == "" {
		result = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(result).Inc()
	}
}

// IncSolarFallback counts one fallback response on a telemetry endpoint.
func IncSolarFallback(endpoint, kind string) {
	if solarFallbacks != nil {
		solarFallbacks.WithLabelValues(endpoint, kind).Inc()
	}
}
