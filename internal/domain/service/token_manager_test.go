package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/internal/domain/service"
	"github.com/turtacn/modelfarm/internal/domain/service/mocks"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sequenceStrategy returns token-1, token-2, ... and counts calls.
type sequenceStrategy struct {
	name  constants.StrategyName
	calls atomic.Int32
}

func (s *sequenceStrategy) Name() constants.StrategyName { return s.name }

func (s *sequenceStrategy) Acquire(context.Context) (*models.Token, error) {
	n := s.calls.Add(1)
	return models.NewBearerToken(fmt.Sprintf("token-%d", n), s.name), nil
}

// blockingStrategy parks Acquire until release is closed.
type blockingStrategy struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingStrategy) Name() constants.StrategyName { return constants.StrategyDeployment }

func (s *blockingStrategy) Acquire(ctx context.Context) (*models.Token, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	select {
	case <-s.release:
		return models.NewBearerToken("shared", constants.StrategyDeployment), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newMockStrategy(name constants.StrategyName) *mocks.MockStrategy {
	s := &mocks.MockStrategy{}
	s.On("Name").Return(name)
	return s
}

func TestTokenManager_ReusesTokenWithinTTL(t *testing.T) {
	fc := clock.Fake(start)
	strategy := &sequenceStrategy{name: constants.StrategyInteractive}
	m := service.NewTokenManager([]service.Strategy{strategy}, service.WithClock(fc))
	ctx := context.Background()

	assert.Equal(t, constants.StateUnset, m.State())

	first, err := m.GetToken(ctx)
	require.NoError(t, err)
	fc.Advance(constants.DefaultTokenTTL - time.Second)
	second, err := m.GetToken(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), strategy.calls.Load())
	assert.Equal(t, constants.StateValid, m.State())
	assert.Equal(t, constants.DefaultTokenTTL, first.TTL)
	assert.Equal(t, start, first.AcquiredAt)
}

func TestTokenManager_RefreshesAfterTTL(t *testing.T) {
	fc := clock.Fake(start)
	strategy := &sequenceStrategy{name: constants.StrategyInteractive}
	m := service.NewTokenManager([]service.Strategy{strategy}, service.WithClock(fc), service.WithTTL(time.Minute))
	ctx := context.Background()

	first, err := m.GetToken(ctx)
	require.NoError(t, err)

	fc.Advance(time.Minute)
	assert.Equal(t, constants.StateStale, m.State())

	second, err := m.GetToken(ctx)
	require.NoError(t, err)
	third, err := m.GetToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, "token-1", first.Raw)
	assert.Equal(t, "token-2", second.Raw)
	assert.Same(t, second, third)
	assert.Equal(t, int32(2), strategy.calls.Load())
}

func TestTokenManager_L402TokensDoNotExpire(t *testing.T) {
	fc := clock.Fake(start)
	strategy := newMockStrategy(constants.StrategyL402)
	strategy.On("Acquire", mock.Anything).
		Return(models.L402Credential{Token: "mac", Preimage: "pre"}.AsToken(), nil).Once()
	m := service.NewTokenManager([]service.Strategy{strategy}, service.WithClock(fc))

	header, err := m.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "L402 mac:pre", header)

	fc.Advance(30 * 24 * time.Hour)
	_, err = m.GetToken(context.Background())
	require.NoError(t, err)
	strategy.AssertNumberOfCalls(t, "Acquire", 1)
}

func TestTokenManager_FallsThroughMissingEnvironment(t *testing.T) {
	deployment := newMockStrategy(constants.StrategyDeployment)
	deployment.On("Acquire", mock.Anything).Return(nil, errors.ErrMissingEnvironmentVariable(constants.EnvDeployment))
	interactive := newMockStrategy(constants.StrategyInteractive)
	interactive.On("Acquire", mock.Anything).Return(models.NewBearerToken("self-signed", constants.StrategyInteractive), nil)

	m := service.NewTokenManager([]service.Strategy{deployment, interactive})
	token, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "self-signed", token.Raw)
	assert.Equal(t, constants.StrategyInteractive, token.Strategy)
}

func TestTokenManager_ConfigurationErrorAborts(t *testing.T) {
	interactive := newMockStrategy(constants.StrategyInteractive)
	interactive.On("Acquire", mock.Anything).Return(nil, errors.ErrConfiguration("identity assertion public key does not match the private key"))
	l402 := newMockStrategy(constants.StrategyL402)

	m := service.NewTokenManager([]service.Strategy{interactive, l402})
	_, err := m.GetToken(context.Background())
	assert.True(t, errors.HasCode(err, errors.CodeConfiguration))
	l402.AssertNotCalled(t, "Acquire", mock.Anything)
	assert.Equal(t, constants.StateFailed, m.State())
}

func TestTokenManager_Exhaustion(t *testing.T) {
	deployment := newMockStrategy(constants.StrategyDeployment)
	deployment.On("Acquire", mock.Anything).Return(nil, errors.ErrMissingEnvironmentVariable(constants.EnvDeployment))
	l402 := newMockStrategy(constants.StrategyL402)
	l402.On("Acquire", mock.Anything).Return(nil, errors.ErrPaymentRequired("Pay the invoice lnbc1... then set REPLIT_L402_PREIMAGE.")).Once()

	metrics := &mocks.MockMetrics{}
	metrics.On("RecordAcquisition", mock.Anything, false, mock.Anything).Return()
	metrics.On("RecordStateChange", constants.StateFailed).Return().Once()

	m := service.NewTokenManager([]service.Strategy{deployment, l402}, service.WithMetrics(metrics))
	_, err := m.GetToken(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTokenAcquisitionFailed))
	assert.True(t, errors.HasCode(err, errors.CodeMissingEnvironment), "causes stay in the chain")
	assert.Contains(t, err.Error(), "lnbc1")
	assert.Equal(t, constants.StateFailed, m.State())
	assert.Equal(t, err, m.LastError())
	metrics.AssertNumberOfCalls(t, "RecordAcquisition", 2)

	// The next call retries acquisition.
	l402.On("Acquire", mock.Anything).Return(models.L402Credential{Token: "mac", Preimage: "paid"}.AsToken(), nil).Once()
	metrics.On("RecordAcquisition", constants.StrategyL402, true, mock.Anything).Return()
	metrics.On("RecordStateChange", constants.StateValid).Return().Once()

	token, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mac:paid", token.Raw)
	assert.NoError(t, m.LastError())
	metrics.AssertExpectations(t)
}

func TestTokenManager_ConcurrentCallersShareOneAcquisition(t *testing.T) {
	strategy := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{})}
	m := service.NewTokenManager([]service.Strategy{strategy})

	const callers = 16
	tokens := make([]*models.Token, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := m.GetToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}

	<-strategy.entered
	time.Sleep(20 * time.Millisecond)
	close(strategy.release)
	wg.Wait()

	assert.Equal(t, int32(1), strategy.calls.Load())
	for _, token := range tokens {
		assert.Same(t, tokens[0], token)
	}
}

func TestTokenManager_CallerContextBoundsWait(t *testing.T) {
	strategy := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{})}
	m := service.NewTokenManager([]service.Strategy{strategy})

	leaderDone := make(chan error, 1)
	go func() {
		_, err := m.GetToken(context.Background())
		leaderDone <- err
	}()
	<-strategy.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.GetToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(strategy.release)
	assert.NoError(t, <-leaderDone)
	assert.Equal(t, int32(1), strategy.calls.Load())
}

func TestTokenManager_Invalidate(t *testing.T) {
	strategy := &sequenceStrategy{name: constants.StrategyDeployment}
	m := service.NewTokenManager([]service.Strategy{strategy})
	ctx := context.Background()

	first, err := m.GetToken(ctx)
	require.NoError(t, err)

	m.Invalidate()
	assert.Equal(t, constants.StateStale, m.State())

	second, err := m.GetToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Raw, second.Raw)
	assert.Equal(t, "Bearer token-2", second.AuthorizationHeader())
}

func TestTokenManager_InvalidateDuringRefreshDiscardsResult(t *testing.T) {
	strategy := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{})}
	m := service.NewTokenManager([]service.Strategy{strategy})

	done := make(chan *models.Token, 1)
	go func() {
		token, _ := m.GetToken(context.Background())
		done <- token
	}()
	<-strategy.entered
	m.Invalidate()
	close(strategy.release)

	token := <-done
	require.NotNil(t, token)
	assert.Equal(t, "shared", token.Raw, "the superseded caller still gets its token")
	assert.Equal(t, constants.StateUnset, m.State(), "but it is not cached")

	_, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), strategy.calls.Load())
}
