package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	JobsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoker_jobs_submitted_total",
		Help: "Total number of batch logout jobs submitted, by job type.",
	}, []string{"type"})
	JobsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revoker_jobs_completed_total",
		Help: "Total number of batch logout jobs that completed.",
	})
	JobsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revoker_jobs_failed_total",
		Help: "Total number of batch logout jobs that failed.",
	})
	JobsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revoker_jobs_cancelled_total",
		Help: "Total number of batch logout jobs that were cancelled.",
	})
	TokensRevokedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoker_tokens_revoked_total",
		Help: "Total number of tokens revoked by batch jobs, by token type.",
	}, []string{"token_type"})
	ActiveJobsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "revoker_active_jobs_gauge",
		Help: "Number of batch logout jobs currently processing.",
	})
	FederatedSyncFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revoker_federated_sync_failures_total",
		Help: "Total number of federated logout handshakes that timed out.",
	})
)

// Register registers the engine metrics with the given registry. It should be
// called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics.")
		return
	}
	collectors := []prometheus.Collector{
		JobsSubmittedTotal,
		JobsCompletedTotal,
		JobsFailedTotal,
		JobsCancelledTotal,
		TokensRevokedTotal,
		ActiveJobsGauge,
		FederatedSyncFailuresTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Prometheus metrics registered.")
}
