// Package metrics exposes auth outcomes as prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finansecure_auth"

// Operation names.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpLogout         = "logout"
	OpLogoutAll      = "logout_all"
	OpChangePassword = "change_password"
	OpValidate       = "validate"
)

// Results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Metrics is safe to use as a nil pointer, every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	operations     *prometheus.CounterVec
	refreshReplays prometheus.Counter
	lockouts       prometheus.Counter
	revoked        prometheus.Counter
	purged         prometheus.Counter
}

// New creates the counters on a private registry together with the go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Auth operations by name and result.",
		}, []string{"op", "result"}),
		refreshReplays: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_token_replays_total",
			Help:      "Refresh attempts with an already revoked refresh token.",
		}),
		lockouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_lockouts_total",
			Help:      "Logins rejected because the username is locked out.",
		}),
		revoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_revoked_total",
			Help:      "Refresh tokens revoked by logout, logout everywhere or replay detection.",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_purged_total",
			Help:      "Expired refresh tokens deleted by the sweeper.",
		}),
	}
}

func (m *Metrics) Operation(op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) RefreshReplay() {
	if m == nil {
		return
	}
	m.refreshReplays.Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) TokensRevoked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.Add(float64(n))
}

func (m *Metrics) TokensPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

// Gatherer is the registry the counters live in.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
