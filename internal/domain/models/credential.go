package models

import (
	"strings"

	"github.com/turtacn/modelfarm/pkg/constants"
)

// L402Credential is a paid Lightning credential: the token issued with the
// challenge and the preimage proving the invoice was paid.
type L402Credential struct {
	Token    string `json:"token"`
	Preimage string `json:"preimage"`
}

// ParseLegacyL402 splits the combined "token:preimage" form at the first colon.
func ParseLegacyL402(value string) (L402Credential, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	token, preimage, ok := strings.Cut(value, ":")
	if !ok || token == "" {
		return L402Credential{}, false
	}
	return L402Credential{Token: token, Preimage: preimage}, true
}

// IsZero reports whether nothing is stored.
func (c L402Credential) IsZero() bool {
	return c.Token == "" && c.Preimage == ""
}

// Complete reports whether the credential can be presented. The placeholder
// written before payment does not count as a preimage.
func (c L402Credential) Complete() bool {
	return c.Token != "" && c.Preimage != "" && c.Preimage != constants.L402PreimagePlaceholder
}

// Encoded renders "token:preimage".
func (c L402Credential) Encoded() string {
	return c.Token + ":" + c.Preimage
}

// AsToken wraps the credential for the token manager.
func (c L402Credential) AsToken() *Token {
	return &Token{
		Raw:      c.Encoded(),
		Scheme:   constants.SchemeL402,
		Strategy: constants.StrategyL402,
	}
}

// L402Challenge is the payment gateway's answer to a credential request.
type L402Challenge struct {
	Token   string `json:"token"`
	Invoice string `json:"invoice"`
}
