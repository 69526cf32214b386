package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are usable before registration so packages can record events in
// tests without a registry.
var (
	ChallengesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_challenges_issued_total",
		Help: "Total number of captcha challenges issued.",
	})
	ChallengeVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_challenge_verifications_total",
		Help: "Captcha verifications by result.",
	}, []string{"result"})
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Total number of bearer tokens issued, by flow.",
	}, []string{"flow"})
	TokenVerificationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_verification_failures_total",
		Help: "Total number of rejected bearer tokens.",
	})
	LoginSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_success_total",
		Help: "Total number of successful logins, by origin.",
	}, []string{"origin"})
	LoginFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_failure_total",
		Help: "Total number of failed authentication attempts, by reason.",
	}, []string{"reason"})
	IdentitiesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_identities_created_total",
		Help: "Total number of identities created, by origin.",
	}, []string{"origin"})
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultMismatch = "mismatch"
	ResultMissing  = "missing"
)

// InitCustomMetrics registers the custom Prometheus metrics with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"ChallengesIssuedTotal":          ChallengesIssuedTotal,
		"ChallengeVerificationsTotal":    ChallengeVerificationsTotal,
		"TokensIssuedTotal":              TokensIssuedTotal,
		"TokenVerificationFailuresTotal": TokenVerificationFailuresTotal,
		"LoginSuccessTotal":              LoginSuccessTotal,
		"LoginFailureTotal":              LoginFailureTotal,
		"IdentitiesCreatedTotal":         IdentitiesCreatedTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
