package monitoring

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// zapLogger adapts *zap.Logger to logger.Logger.
type zapLogger struct {
	base *zap.Logger
}

// NewZapLogger builds the process logger. Output goes to stderr so stdout stays
// free for command results.
func NewZapLogger(cfg *config.LogConfig) (logger.Logger, error) {
	return newZapLogger(cfg, zapcore.Lock(os.Stderr)), nil
}

func newZapLogger(cfg *config.LogConfig, ws zapcore.WriteSyncer) logger.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(enc)
	default:
		encoder = zapcore.NewJSONEncoder(enc)
	}

	core := zapcore.NewCore(encoder, ws, levelOf(cfg.Level))
	return &zapLogger{base: zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)}
}

// levelOf falls back to info for unknown names.
func levelOf(name constants.LogLevel) zapcore.Level {
	level, err := zapcore.ParseLevel(string(name))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...logger.Fields) {
	l.write(ctx, zapcore.DebugLevel, msg, nil, fields)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...logger.Fields) {
	l.write(ctx, zapcore.InfoLevel, msg, nil, fields)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...logger.Fields) {
	l.write(ctx, zapcore.WarnLevel, msg, nil, fields)
}

func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Fields) {
	l.write(ctx, zapcore.ErrorLevel, msg, err, fields)
}

func (l *zapLogger) WithFields(fields logger.Fields) logger.Logger {
	return &zapLogger{base: l.base.With(toZap(fields)...)}
}

func (l *zapLogger) write(ctx context.Context, level zapcore.Level, msg string, err error, fields []logger.Fields) {
	ce := l.base.Check(level, msg)
	if ce == nil {
		return
	}
	zf := contextFields(ctx)
	for _, f := range fields {
		zf = append(zf, toZap(f)...)
	}
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	ce.Write(zf...)
}

// contextFields extracts the request id and the trace id; the trace id comes
// from the context value if set, otherwise from the active span.
func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var zf []zap.Field
	if id, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
		zf = append(zf, zap.String("request_id", id))
	}
	if id, ok := ctx.Value(constants.ContextKeyTraceID).(string); ok {
		zf = append(zf, zap.String("trace_id", id))
	} else if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		zf = append(zf, zap.String("trace_id", sc.TraceID().String()))
	}
	return zf
}

// toZap masks secrets before they reach the encoder.
func toZap(fields logger.Fields) []zap.Field {
	clean := logger.Sanitize(fields)
	zf := make([]zap.Field, 0, len(clean))
	for k, v := range clean {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}
