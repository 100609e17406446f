// Package models defines the domain models for the modelfarm client.
// This file contains the Token domain model with its reuse rules.
package models

import (
	"time"

	"github.com/turtacn/modelfarm/pkg/constants"
)

// Token is an acquired credential plus the bookkeeping the token manager needs
// to decide when to re-acquire it. A token is reusable while
// now < AcquiredAt + TTL. A zero TTL never goes stale on its own and is
// replaced only after an explicit invalidation.
type Token struct {
	// Raw is the encoded credential presented to the server.
	Raw string `json:"raw"`

	// Scheme is the Authorization header scheme.
	Scheme constants.TokenScheme `json:"scheme"`

	// Strategy is the acquisition strategy that produced the token.
	Strategy constants.StrategyName `json:"strategy"`

	// AcquiredAt is when the manager received the token.
	AcquiredAt time.Time `json:"acquired_at"`

	// TTL is how long the token is reused from AcquiredAt.
	TTL time.Duration `json:"ttl"`
}

// NewBearerToken creates a bearer token. The TTL and AcquiredAt are stamped by
// the token manager when it caches the token.
func NewBearerToken(raw string, strategy constants.StrategyName) *Token {
	return &Token{
		Raw:      raw,
		Scheme:   constants.SchemeBearer,
		Strategy: strategy,
	}
}

// IsValidAt reports whether the token may still be handed out at now.
func (t *Token) IsValidAt(now time.Time) bool {
	if t == nil || t.Raw == "" {
		return false
	}
	if t.TTL == 0 {
		return true
	}
	return now.Before(t.AcquiredAt.Add(t.TTL))
}

// StaleAt returns the instant the token stops being valid, or the zero time
// for tokens without a TTL.
func (t *Token) StaleAt() time.Time {
	if t.TTL == 0 {
		return time.Time{}
	}
	return t.AcquiredAt.Add(t.TTL)
}

// AuthorizationHeader renders the value of the Authorization header.
func (t *Token) AuthorizationHeader() string {
	return string(t.Scheme) + " " + t.Raw
}

// String never reveals the credential.
func (t *Token) String() string {
	return string(t.Scheme) + " token from " + string(t.Strategy)
}
