package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerCallLatencyMs) }

var providerCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_provider_call_latency_ms",
		Help:    "Provider submission call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
	[]string{"tool", "success"},
)

// ObserveProviderCall starts a latency observation; call the returned func
// with the call outcome.
func ObserveProviderCall(tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		elapsed := float64(time.Since(start).Milliseconds())
		providerCallLatencyMs.WithLabelValues(norm(tool), strconv.FormatBool(success)).Observe(elapsed)
	}
}
