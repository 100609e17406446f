package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

const refreshKey = "refresh"

// TokenManager hands out identity tokens, re-acquiring them through an
// ordered list of strategies once the cached token is older than its TTL.
// Concurrent callers share one in-flight acquisition.
type TokenManager struct {
	strategies []Strategy
	ttl        time.Duration
	clock      clock.Clock
	log        logger.Logger
	metrics    Metrics
	tracer     trace.Tracer

	group singleflight.Group

	mu         sync.Mutex
	current    *models.Token
	generation uint64
	state      constants.ManagerState
	lastErr    error
}

// ManagerOption customizes a TokenManager.
type ManagerOption func(*TokenManager)

// WithTTL sets how long bearer tokens are reused.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *TokenManager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) ManagerOption {
	return func(m *TokenManager) { m.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) ManagerOption {
	return func(m *TokenManager) { m.metrics = metrics }
}

// WithTracer sets the tracer used for refresh spans.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *TokenManager) { m.tracer = tracer }
}

// NewTokenManager creates a manager trying strategies in order.
func NewTokenManager(strategies []Strategy, opts ...ManagerOption) *TokenManager {
	m := &TokenManager{
		strategies: strategies,
		ttl:        constants.DefaultTokenTTL,
		clock:      clock.Real(),
		log:        logger.NewNoopLogger(),
		metrics:    noopMetrics{},
		tracer:     noop.NewTracerProvider().Tracer(""),
		state:      constants.StateUnset,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithFields(logger.Fields{"component": "token_manager"})
	return m
}

// GetToken returns a token valid at the time of the call, acquiring a new one
// when the cache is empty or stale.
func (m *TokenManager) GetToken(ctx context.Context) (*models.Token, error) {
	m.mu.Lock()
	if m.current.IsValidAt(m.clock.Now()) {
		token := m.current
		m.mu.Unlock()
		return token, nil
	}
	if m.current != nil {
		m.setStateLocked(constants.StateStale)
	}
	m.mu.Unlock()

	for {
		results := m.group.DoChan(refreshKey, func() (interface{}, error) {
			return m.refresh(ctx)
		})
		select {
		case res := <-results:
			if res.Err == nil {
				return res.Val.(*models.Token), nil
			}
			// The shared refresh ran under another caller's context; a
			// cancellation there must not fail this caller.
			if isContextErr(res.Err) && res.Shared && ctx.Err() == nil {
				continue
			}
			return nil, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AuthorizationHeader returns the Authorization header value for a valid token.
func (m *TokenManager) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := m.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AuthorizationHeader(), nil
}

// Invalidate drops the cached token so the next GetToken re-acquires. An
// in-flight acquisition is detached; its result is not cached.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.group.Forget(refreshKey)
	m.generation++
	if m.current != nil {
		m.current = nil
		m.setStateLocked(constants.StateStale)
	}
}

// State reports the manager's lifecycle state.
func (m *TokenManager) State() constants.ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == constants.StateValid && !m.current.IsValidAt(m.clock.Now()) {
		return constants.StateStale
	}
	return m.state
}

// LastError returns the error of the most recent failed refresh, if the
// manager is in the failed state.
func (m *TokenManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != constants.StateFailed {
		return nil
	}
	return m.lastErr
}

func (m *TokenManager) refresh(ctx context.Context) (*models.Token, error) {
	ctx, span := m.tracer.Start(ctx, "TokenManager.refresh")
	defer span.End()

	m.mu.Lock()
	generation := m.generation
	if m.current.IsValidAt(m.clock.Now()) {
		// Refreshed by a caller that finished just before this one started.
		token := m.current
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	var causes []error
	var instructions string
	for _, strategy := range m.strategies {
		name := strategy.Name()
		start := m.clock.Now()
		token, err := strategy.Acquire(ctx)
		m.metrics.RecordAcquisition(name, err == nil, m.clock.Now().Sub(start))

		if err == nil {
			span.SetAttributes(attribute.String("strategy", string(name)))
			return m.store(ctx, token, generation), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			return nil, ctxErr
		}
		if errors.IsFatal(err) {
			m.log.Error(ctx, "Token strategy misconfigured", err, logger.Fields{"strategy": name})
			m.fail(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "configuration error")
			return nil, err
		}

		if errors.IsFallthrough(err) {
			m.log.Debug(ctx, "Token strategy not applicable", logger.Fields{"strategy": name, "reason": err.Error()})
		} else {
			m.log.Warn(ctx, "Token strategy failed", logger.Fields{"strategy": name, "error": err.Error()})
		}
		if ce, ok := errors.AsClientError(err); ok && ce.Code() == errors.CodePaymentRequired {
			instructions = ce.Error()
		}
		causes = append(causes, fmt.Errorf("%s: %w", name, err))
	}

	err := errors.ErrTokenAcquisitionFailed(causes, instructions)
	m.log.Error(ctx, "No token strategy succeeded", err, logger.Fields{"attempts": len(causes)})
	m.fail(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "acquisition failed")
	return nil, err
}

// store caches token unless the cache changed since the refresh started, in
// which case the newer state wins and token is only returned to its callers.
func (m *TokenManager) store(ctx context.Context, token *models.Token, generation uint64) *models.Token {
	token.AcquiredAt = m.clock.Now()
	if token.TTL == 0 && token.Scheme == constants.SchemeBearer {
		token.TTL = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		m.log.Debug(ctx, "Discarding token from a superseded refresh", logger.Fields{"strategy": token.Strategy})
		return token
	}
	m.generation++
	m.current = token
	m.lastErr = nil
	m.setStateLocked(constants.StateValid)
	m.log.Info(ctx, "Acquired identity token", logger.Fields{
		"strategy": token.Strategy,
		"scheme":   token.Scheme,
		"ttl":      token.TTL.String(),
	})
	return token
}

func (m *TokenManager) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	m.setStateLocked(constants.StateFailed)
}

func (m *TokenManager) setStateLocked(state constants.ManagerState) {
	if m.state == state {
		return
	}
	m.state = state
	m.metrics.RecordStateChange(state)
}
