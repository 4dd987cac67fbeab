package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"result"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"result"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of refresh tokens issued or rotated.",
		},
		[]string{"flow", "result"},
	)

	TwoFactorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_two_factor_total",
			Help: "Two-factor enrollment steps by outcome.",
		},
		[]string{"step", "result"},
	)

	AccountChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_account_changes_total",
			Help: "Profile, password and email changes by outcome.",
		},
		[]string{"op", "result"},
	)

	AuditWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_audit_write_failures_total",
			Help: "Audit events that could not be persisted.",
		},
		[]string{"action"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_notifications_total",
			Help: "Outbound notifications by kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	TokensPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_tokens_purged_total",
			Help: "Expired security tokens removed by the janitor.",
		},
	)
)

// MustRegister registers every collector on reg with a constant service label.
func MustRegister(reg prometheus.Registerer, serviceName string) {
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, reg).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthRegistrationsTotal,
		AuthLoginsTotal,
		TokensIssuedTotal,
		TwoFactorTotal,
		AccountChangesTotal,
		AuditWriteFailuresTotal,
		NotificationsTotal,
		TokensPurgedTotal,
	)
}
