// Package metrics records dashboard activity as Prometheus metrics
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives dashboard events
type Recorder interface {
	// RecordAPIRequest counts a request to the identity API. Transport
	// failures are recorded with status 0.
	RecordAPIRequest(method string, status int)

	// RecordTokenRefresh counts a refresh attempt triggered by a 401
	RecordTokenRefresh(success bool)

	// RecordOAuthCallback counts authorization-code callbacks by outcome
	RecordOAuthCallback(result string)

	// RecordLogin counts sign-in attempts by method and outcome
	RecordLogin(method string, success bool)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors
type Metrics struct {
	APIRequestsTotal    *prometheus.CounterVec
	TokenRefreshTotal   *prometheus.CounterVec
	OAuthCallbacksTotal *prometheus.CounterVec
	LoginAttemptsTotal  *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the Prometheus recorder when enabled and a noop otherwise.
// Collectors are registered once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoop()
	}

	once.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idm_dashboard_api_requests_total",
				Help: "Requests sent to the identity API",
			},
			[]string{"method", "status"},
		),
		TokenRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idm_dashboard_token_refresh_total",
				Help: "Access token refresh attempts after a 401",
			},
			[]string{"result"},
		),
		OAuthCallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idm_dashboard_oauth_callbacks_total",
				Help: "Authorization code callbacks by outcome",
			},
			[]string{"result"},
		),
		LoginAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idm_dashboard_login_attempts_total",
				Help: "Sign-in attempts by method and outcome",
			},
			[]string{"method", "result"},
		),
	}
}

func (m *Metrics) RecordAPIRequest(method string, status int) {
	m.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordTokenRefresh(success bool) {
	m.TokenRefreshTotal.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) RecordOAuthCallback(result string) {
	m.OAuthCallbacksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogin(method string, success bool) {
	m.LoginAttemptsTotal.WithLabelValues(method, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
