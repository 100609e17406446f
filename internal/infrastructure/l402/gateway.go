// Package l402 talks to the L402 payment gateway and to the user paying its
// Lightning invoices.
package l402

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Gateway requests L402 challenges from the payment gateway.
type Gateway struct {
	client *http.Client
	url    string
	log    logger.Logger
}

// NewGateway creates a gateway client for matadorURL.
func NewGateway(matadorURL string, client *http.Client, log logger.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Gateway{
		client: client,
		url:    strings.TrimRight(matadorURL, "/") + constants.NewL402Path,
		log:    log.WithFields(logger.Fields{"component": "l402_gateway"}),
	}
}

// NewChallenge requests a fresh token and invoice.
func (g *Gateway) NewChallenge(ctx context.Context) (*models.L402Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, errors.ErrConfiguration("invalid L402 gateway url").WithCause(err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn(ctx, "L402 gateway unreachable", logger.Fields{"url": g.url, "error": err.Error()})
		return nil, fmt.Errorf("request L402 challenge: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	header := resp.Header.Get(constants.HeaderWWWAuthenticate)
	if header == "" {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, "L402 gateway sent no "+constants.HeaderWWWAuthenticate+" header")
	}
	challenge, err := ParseChallenge(header)
	if err != nil {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, err.Error())
	}
	g.log.Info(ctx, "Received L402 challenge", logger.Fields{"status": resp.StatusCode})
	return challenge, nil
}

// ParseChallenge reads `L402 token="<t>", invoice="<i>"`. Parameters are
// split on commas and then on the first '=', quotes are stripped, and
// "macaroon" is accepted in place of "token".
func ParseChallenge(header string) (*models.L402Challenge, error) {
	params := strings.TrimSpace(header)
	if scheme, rest, ok := strings.Cut(params, " "); ok && !strings.Contains(scheme, "=") {
		params = rest
	}

	challenge := &models.L402Challenge{}
	for _, part := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.ReplaceAll(strings.TrimSpace(value), `"`, "")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "token", "macaroon":
			challenge.Token = value
		case "invoice":
			challenge.Invoice = value
		}
	}
	if challenge.Token == "" || challenge.Invoice == "" {
		return nil, fmt.Errorf("malformed L402 challenge %q", header)
	}
	return challenge, nil
}

// Instructions explains how to pay invoice.
func Instructions(invoice string) string {
	var b strings.Builder
	b.WriteString("*** Missing L402 credential ***\n\n")
	b.WriteString("To use the model farm outside of Replit, pay the following Lightning invoice\n")
	b.WriteString("with any Lightning wallet (for example Alby or Phoenix):\n\n")
	b.WriteString(invoice)
	b.WriteString("\n\nAfter payment, enter the preimage shown by your wallet.\n\n")
	b.WriteString("Note: L402 is a payment protocol for the Lightning Network. Payments settle instantly with low fees.\n")
	return b.String()
}

// PlaceholderInstructions explains how to finish a credential saved without
// a preimage.
func PlaceholderInstructions(token, location string) string {
	var b strings.Builder
	b.WriteString("No preimage was entered. After paying the invoice, replace the placeholder preimage")
	if location != "" {
		b.WriteString(" in ")
		b.WriteString(location)
	}
	b.WriteString(", or run:\n\n")
	fmt.Fprintf(&b, "echo '%s=\"%s\"' >> .env\n", constants.EnvL402Token, token)
	fmt.Fprintf(&b, "echo '%s=\"<preimage>\"' >> .env\n", constants.EnvL402Preimage)
	return b.String()
}
