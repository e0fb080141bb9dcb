package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsTerminalTotal, webhooksTotal, reserveRejectedTotal, jobsReapedTotal)
}

var jobsTerminalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_terminal_total",
		Help: "Jobs reaching a terminal state, labeled by status and error kind.",
	},
	[]string{"status", "kind"}, // kind empty for completed
)

var webhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_webhooks_total",
		Help: "Webhook deliveries by outcome.",
	},
	[]string{"outcome"}, // 'completed', 'failed', 'duplicate', 'unknown_job', 'malformed', 'bad_token'
)

var reserveRejectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_balance_reserve_rejected_total",
		Help: "Submissions rejected for insufficient balance.",
	},
)

var jobsReapedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_jobs_reaped_total",
		Help: "Stuck processing jobs failed by the reaper.",
	},
)

func IncJobTerminal(status, kind string) {
	jobsTerminalTotal.WithLabelValues(norm(status), norm(kind)).Inc()
}

func IncWebhook(outcome string) {
	webhooksTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReserveRejected() { reserveRejectedTotal.Inc() }

func AddJobsReaped(n int) { jobsReapedTotal.Add(float64(n)) }
