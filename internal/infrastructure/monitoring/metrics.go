package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// Metrics manages the Prometheus metrics. It satisfies the token manager's
// metrics sink and the stream decoder's observer.
type Metrics struct {
	TokenAcquisitions *prometheus.CounterVec
	TokenRefreshTime  *prometheus.HistogramVec
	ManagerState      *prometheus.CounterVec
	StreamValues      prometheus.Counter
	StreamErrors      *prometheus.CounterVec
	Requests          *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TokenAcquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelfarm_token_acquisitions_total",
				Help: "Total number of token acquisition attempts per strategy.",
			},
			[]string{"strategy", "result"},
		),
		TokenRefreshTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelfarm_token_refresh_seconds",
				Help:    "Latency of token acquisition attempts.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		ManagerState: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelfarm_token_manager_transitions_total",
				Help: "Total number of token manager state transitions by target state.",
			},
			[]string{"state"},
		),
		StreamValues: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "modelfarm_stream_values_total",
				Help: "Total number of JSON values decoded from response streams.",
			},
		),
		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelfarm_stream_errors_total",
				Help: "Total number of response streams that ended with an error.",
			},
			[]string{"kind"},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelfarm_requests_total",
				Help: "Total number of model farm API requests by path and status.",
			},
			[]string{"path", "status"},
		),
	}
}

// RecordAcquisition records one strategy attempt.
func (m *Metrics) RecordAcquisition(strategy constants.StrategyName, success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.TokenAcquisitions.WithLabelValues(string(strategy), result).Inc()
	m.TokenRefreshTime.WithLabelValues(string(strategy)).Observe(duration.Seconds())
}

// RecordStateChange records the token manager entering state.
func (m *Metrics) RecordStateChange(state constants.ManagerState) {
	m.ManagerState.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) ValueDecoded() {
	m.StreamValues.Inc()
}

// StreamFailed labels the failure with its error code, or "transport" for
// errors raised below the decoder.
func (m *Metrics) StreamFailed(err error) {
	kind := "transport"
	if ce, ok := errors.AsClientError(err); ok {
		kind = string(ce.Code())
	}
	m.StreamErrors.WithLabelValues(kind).Inc()
}

// RecordRequest records an API call. A status of 0 means the request never
// got a response.
func (m *Metrics) RecordRequest(path string, status int) {
	m.Requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}
