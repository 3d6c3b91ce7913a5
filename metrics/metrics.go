package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettingsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_settings_saved_total",
			Help: "Total number of admin settings saves",
		},
		[]string{"type"},
	)

	SettingsSideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_settings_side_effect_failures_total",
			Help: "Total number of failed side effects after a successful settings save",
		},
		[]string{"type"},
	)

	SessionDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_session_disconnects_total",
			Help: "Total number of session disconnects issued by account deletion",
		},
		[]string{"outcome"},
	)

	AdminsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokeradmin_admins_deleted_total",
			Help: "Total number of deleted administrator accounts",
		},
	)

	TestMails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_test_mail_total",
			Help: "Total number of test mails attempted",
		},
		[]string{"outcome"},
	)

	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokeradmin_tokens_issued_total",
			Help: "Total number of token pairs issued on behalf of users",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_settings_cache_hits_total",
			Help: "Total number of settings cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_settings_cache_misses_total",
			Help: "Total number of settings cache misses",
		},
		[]string{"backend"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokeradmin_settings_cache_errors_total",
			Help: "Total number of settings cache errors",
		},
		[]string{"backend", "operation"},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brokeradmin_live_sessions",
			Help: "Number of live websocket sessions",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brokeradmin_http_request_duration_seconds",
			Help:    "Time taken to serve admin API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
