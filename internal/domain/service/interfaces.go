// Package service defines the domain services of the modelfarm client and the
// interfaces their collaborators implement.
package service

import (
	"context"
	"time"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
)

//go:generate mockery --name Strategy --output mocks --outpkg mocks
// Strategy acquires tokens in one kind of environment. A strategy whose
// environment is absent returns a MissingEnvironmentVariable error so the
// token manager can try the next one.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() constants.StrategyName

	// Acquire obtains a fresh token. It may block on network I/O and, for the
	// interactive L402 flow, on the user.
	Acquire(ctx context.Context) (*models.Token, error)
}

// CredentialStore persists the L402 credential between runs.
type CredentialStore interface {
	// Load returns the stored credential; a zero credential means nothing is stored.
	Load(ctx context.Context) (models.L402Credential, error)

	// Save replaces the stored credential.
	Save(ctx context.Context, cred models.L402Credential) error

	// Location describes where credentials are kept, for user-facing messages.
	Location() string
}

// CredentialWatcher is implemented by stores that can report external edits.
type CredentialWatcher interface {
	// Watch calls onChange after the stored credential changes until ctx is done.
	Watch(ctx context.Context, onChange func()) error
}

// L402Gateway issues payment challenges.
type L402Gateway interface {
	NewChallenge(ctx context.Context) (*models.L402Challenge, error)
}

// PaymentPrompter is the human side of the L402 flow.
type PaymentPrompter interface {
	// ShowInstructions displays payment or setup instructions.
	ShowInstructions(ctx context.Context, text string) error

	// ReadPreimage blocks until the user enters the payment preimage. An empty
	// result means the user skipped payment for now.
	ReadPreimage(ctx context.Context) (string, error)

	// ConfirmPersist asks whether the credential may be written to location.
	ConfirmPersist(ctx context.Context, location string) (bool, error)
}

// Metrics records token manager activity.
type Metrics interface {
	// RecordAcquisition records one strategy attempt.
	RecordAcquisition(strategy constants.StrategyName, success bool, duration time.Duration)

	// RecordStateChange records the manager entering state.
	RecordStateChange(state constants.ManagerState)
}

type noopMetrics struct{}

func (noopMetrics) RecordAcquisition(constants.StrategyName, bool, time.Duration) {}
func (noopMetrics) RecordStateChange(constants.ManagerState) {}
