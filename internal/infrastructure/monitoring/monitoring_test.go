package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

func TestZapLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newZapLogger(&config.LogConfig{Level: constants.LogLevelDebug}, zapcore.AddSync(&buf))

	ctx := context.WithValue(context.Background(), constants.ContextKeyTraceID, "trace-1")
	log.WithFields(logger.Fields{"component": "test"}).
		Info(ctx, "token acquired", logger.Fields{"strategy": "interactive", "token": "abcdefghijklmnop"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "token acquired", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "interactive", entry["strategy"])
	assert.Equal(t, "abcd***mnop", entry["token"])
	assert.Contains(t, entry, "timestamp")
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newZapLogger(&config.LogConfig{Level: constants.LogLevelWarn}, zapcore.AddSync(&buf))

	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Error(context.Background(), "refresh failed", errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestZapLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newZapLogger(&config.LogConfig{Level: "verbose"}, zapcore.AddSync(&buf))

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestMetrics_Acquisitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAcquisition(constants.StrategyInteractive, true, 10*time.Millisecond)
	m.RecordAcquisition(constants.StrategyDeployment, false, time.Millisecond)
	m.RecordAcquisition(constants.StrategyDeployment, false, time.Millisecond)
	m.RecordStateChange(constants.StateValid)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenAcquisitions.WithLabelValues("interactive", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokenAcquisitions.WithLabelValues("deployment", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ManagerState.WithLabelValues("valid")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.TokenRefreshTime))
}

func TestMetrics_StreamObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ValueDecoded()
	m.ValueDecoded()
	m.StreamFailed(errors.ErrMalformedStream(3, "x"))
	m.StreamFailed(io.ErrUnexpectedEOF)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamValues))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("malformed_stream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("transport")))
}

func TestMetrics_Requests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest("/v1beta/completion", 200)
	m.RecordRequest("/v1beta/completion", 400)

	expected := `
# HELP modelfarm_requests_total Total number of model farm API requests by path and status.
# TYPE modelfarm_requests_total counter
modelfarm_requests_total{path="/v1beta/completion",status="200"} 1
modelfarm_requests_total{path="/v1beta/completion",status="400"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "modelfarm_requests_total"))
}

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(&config.TracingConfig{Enabled: false}, nil)
	require.NoError(t, err)

	ctx, span := tm.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.Empty(t, tm.TraceID(ctx))
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_Enabled(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	tm, err := NewTracingManager(&config.TracingConfig{
		Enabled:        true,
		JaegerEndpoint: collector.URL + "/api/traces",
		ServiceName:    "modelfarm-test",
		SamplingRate:   1.0,
	}, logger.NewNoopLogger())
	require.NoError(t, err)

	ctx, span := tm.Tracer().Start(context.Background(), "refresh")
	assert.Len(t, tm.TraceID(ctx), 32)
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, tm.Shutdown(shutdownCtx))
}
