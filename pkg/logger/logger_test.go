package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	in := Fields{
		"audience":    "modelfarm@replit.com",
		"l402_token":  "abcdefghijklmnop",
		"preimage":    "short",
		"private_key": 42,
		"strategy":    "interactive",
	}

	out := Sanitize(in)

	assert.Equal(t, "modelfarm@replit.com", out["audience"])
	assert.Equal(t, "abcd***mnop", out["l402_token"])
	assert.Equal(t, "***", out["preimage"])
	assert.Equal(t, "***REDACTED***", out["private_key"])
	assert.Equal(t, "interactive", out["strategy"])
	assert.Equal(t, "abcdefghijklmnop", in["l402_token"], "input must not be modified")
}
