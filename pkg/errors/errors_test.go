package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("verify: %w", ErrTokenExpired(time.Unix(100, 0)))

	assert.True(t, HasCode(err, CodeTokenExpired))
	assert.False(t, HasCode(err, CodeAudienceMismatch))
	assert.True(t, IsRetryable(err))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	a := ErrAudienceMismatch("one", []string{"two"})
	b := ErrAudienceMismatch("three", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, ErrInvalidSignature("x")))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsFallthrough(ErrMissingEnvironmentVariable("REPL_ID")))
	assert.False(t, IsFallthrough(ErrConfiguration("bad key")))
	assert.True(t, IsFatal(ErrConfiguration("bad key")))
	assert.False(t, IsRetryable(ErrInvalidSignature("bad")))
	assert.False(t, IsRetryable(ErrUnknownKeyID("dev:9")))
}

func TestTokenAcquisitionFailedCarriesCausesAndInstructions(t *testing.T) {
	causes := []error{
		ErrMissingEnvironmentVariable("REPLIT_DEPLOYMENT"),
		ErrMissingEnvironmentVariable("REPL_IDENTITY_KEY"),
		ErrPaymentRequired("pay lnbc1"),
	}
	err := ErrTokenAcquisitionFailed(causes, "Pay the following lightning invoice: lnbc1")

	assert.True(t, HasCode(err, CodeTokenAcquisitionFailed))
	assert.True(t, HasCode(err, CodePaymentRequired))
	assert.Contains(t, err.Error(), "lnbc1")
	assert.Equal(t, 3, err.Metadata()["attempts"])

	ce, ok := AsClientError(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, CodeTokenAcquisitionFailed, ce.Code())
}

func TestMalformedStreamMetadata(t *testing.T) {
	err := ErrMalformedStream(42, `{"a":`)

	assert.Equal(t, int64(42), err.Metadata()["offset"])
	assert.Contains(t, err.Error(), "byte offset 42")
}
