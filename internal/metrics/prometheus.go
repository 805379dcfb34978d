package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const namespace = "examsso"

var (
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_success_total",
		Help:      "Total number of successful password and SSO logins.",
	})
	LoginFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_failure_total",
		Help:      "Total number of failed logins by reason.",
	}, []string{"method", "reason"})
	RefreshTokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_tokens_issued_total",
		Help:      "Refresh tokens issued, by origin (new_chain or rotation).",
	}, []string{"origin"})
	RotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_rotations_total",
		Help:      "Refresh token rotation attempts by outcome.",
	}, []string{"outcome"})
	ReplayDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_token_replays_total",
		Help:      "Refresh token reuse detections. Each one revoked a chain.",
	})
	SSOCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sso_callbacks_total",
		Help:      "SSO callbacks by provider and outcome.",
	}, []string{"provider", "outcome"})
	ChainsRevokedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chains_revoked_total",
		Help:      "Refresh token chains revoked, by reason.",
	}, []string{"reason"})
	AuditSinkFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_sink_failures_total",
		Help:      "Audit events that could not be delivered to the sink.",
	})
	TokensPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_tokens_purged_total",
		Help:      "Refresh token records deleted by the janitor.",
	})
	JanitorRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "janitor_runs_total",
		Help:      "Janitor purge runs by outcome.",
	}, []string{"outcome"})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := []prometheus.Collector{
		LoginSuccessTotal,
		LoginFailureTotal,
		RefreshTokensIssuedTotal,
		RotationsTotal,
		ReplayDetectedTotal,
		SSOCallbacksTotal,
		ChainsRevokedTotal,
		AuditSinkFailuresTotal,
		TokensPurgedTotal,
		JanitorRunsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register custom metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
