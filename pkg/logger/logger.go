// Package logger provides the structured logging contract used across the modelfarm client.
// The zap-backed implementation lives in internal/infrastructure/monitoring.
package logger

import (
	"context"
	"strings"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields creates a new logger with additional base fields
	WithFields(fields Fields) Logger
}

// Fields is a set of key-value pairs attached to a log entry
type Fields map[string]interface{}

// sensitiveKeys are masked by Sanitize
var sensitiveKeys = []string{
	"token",
	"preimage",
	"secret",
	"private_key",
	"authorization",
	"password",
}

// Sanitize masks values whose key names a secret. It returns a new map.
func Sanitize(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			if str, ok := value.(string); ok && len(str) > 0 {
				return maskString(str)
			}
			return "***REDACTED***"
		}
	}
	return value
}

// maskString shows the first and last 4 characters of long values
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
