package logger

import "context"

// Noop discards everything. Components default to it when no logger is given.
type Noop struct{}

// NewNoopLogger returns a Logger that discards all output.
func NewNoopLogger() Logger { return Noop{} }

func (Noop) Debug(context.Context, string, ...Fields)        {}
func (Noop) Info(context.Context, string, ...Fields)         {}
func (Noop) Warn(context.Context, string, ...Fields)         {}
func (Noop) Error(context.Context, string, error, ...Fields) {}
func (n Noop) WithFields(Fields) Logger                      { return n }
