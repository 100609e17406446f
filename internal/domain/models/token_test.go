package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
)

func TestToken_IsValidAt(t *testing.T) {
	acquired := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ttl  time.Duration
		at   time.Time
		want bool
	}{
		{"fresh", 300 * time.Second, acquired, true},
		{"just before ttl", 300 * time.Second, acquired.Add(299 * time.Second), true},
		{"at ttl", 300 * time.Second, acquired.Add(300 * time.Second), false},
		{"no ttl", 0, acquired.Add(24 * 365 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := models.NewBearerToken("abc", constants.StrategyInteractive)
			token.AcquiredAt = acquired
			token.TTL = tt.ttl
			assert.Equal(t, tt.want, token.IsValidAt(tt.at))
		})
	}

	var missing *models.Token
	assert.False(t, missing.IsValidAt(acquired))
	assert.False(t, (&models.Token{TTL: time.Minute, AcquiredAt: acquired}).IsValidAt(acquired))
}

func TestToken_AuthorizationHeader(t *testing.T) {
	bearer := models.NewBearerToken("abc", constants.StrategyDeployment)
	assert.Equal(t, "Bearer abc", bearer.AuthorizationHeader())
	assert.NotContains(t, bearer.String(), "abc")

	l402 := models.L402Credential{Token: "mac", Preimage: "pre"}.AsToken()
	assert.Equal(t, "L402 mac:pre", l402.AuthorizationHeader())
	assert.True(t, l402.StaleAt().IsZero())
}

func TestL402Credential(t *testing.T) {
	cred, ok := models.ParseLegacyL402(`"mac:pre"`)
	assert.True(t, ok)
	assert.Equal(t, models.L402Credential{Token: "mac", Preimage: "pre"}, cred)
	assert.True(t, cred.Complete())

	_, ok = models.ParseLegacyL402("no-separator")
	assert.False(t, ok)

	pending := models.L402Credential{Token: "mac", Preimage: constants.L402PreimagePlaceholder}
	assert.False(t, pending.Complete())
	assert.False(t, pending.IsZero())
	assert.True(t, models.L402Credential{}.IsZero())
}
