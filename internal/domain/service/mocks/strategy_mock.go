package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
)

type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Name() constants.StrategyName {
	args := m.Called()
	return args.Get(0).(constants.StrategyName)
}

func (m *MockStrategy) Acquire(ctx context.Context) (*models.Token, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Token), args.Error(1)
}

type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Load(ctx context.Context) (models.L402Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.L402Credential), args.Error(1)
}

func (m *MockCredentialStore) Save(ctx context.Context, cred models.L402Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockCredentialStore) Location() string {
	args := m.Called()
	return args.String(0)
}

type MockL402Gateway struct {
	mock.Mock
}

func (m *MockL402Gateway) NewChallenge(ctx context.Context) (*models.L402Challenge, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.L402Challenge), args.Error(1)
}

type MockPaymentPrompter struct {
	mock.Mock
}

func (m *MockPaymentPrompter) ShowInstructions(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockPaymentPrompter) ReadPreimage(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentPrompter) ConfirmPersist(ctx context.Context, location string) (bool, error) {
	args := m.Called(ctx, location)
	return args.Bool(0), args.Error(1)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordAcquisition(strategy constants.StrategyName, success bool, duration time.Duration) {
	m.Called(strategy, success, duration)
}

func (m *MockMetrics) RecordStateChange(state constants.ManagerState) {
	m.Called(state)
}
