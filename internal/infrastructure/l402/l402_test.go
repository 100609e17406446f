package l402

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

func TestParseChallenge(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		invoice string
		wantErr bool
	}{
		{"quoted", `L402 token="abc123", invoice="lnbc10n1p"`, "abc123", "lnbc10n1p", false},
		{"macaroon alias", `L402 macaroon="AgEEbHNhdA==", invoice="lnbc1"`, "AgEEbHNhdA==", "lnbc1", false},
		{"unquoted without scheme", `token=abc, invoice=lnbc1`, "abc", "lnbc1", false},
		{"missing invoice", `L402 token="abc"`, "", "", true},
		{"empty", ``, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, err := ParseChallenge(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, challenge.Token)
			assert.Equal(t, tt.invoice, challenge.Invoice)
		})
	}
}

func TestGateway_NewChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/replit"+constants.NewL402Path, r.URL.Path)
		w.Header().Set(constants.HeaderWWWAuthenticate, `L402 token="tok", invoice="lnbc42"`)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	challenge, err := NewGateway(server.URL+"/replit/", server.Client(), nil).NewChallenge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", challenge.Token)
	assert.Equal(t, "lnbc42", challenge.Invoice)
}

func TestGateway_MissingHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewGateway(server.URL, server.Client(), nil).NewChallenge(context.Background())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidResponse))
}

func TestInstructions(t *testing.T) {
	text := Instructions("lnbc42")
	assert.Contains(t, text, "lnbc42")
	assert.Contains(t, text, "preimage")

	text = PlaceholderInstructions("tok", ".env")
	assert.Contains(t, text, `REPLIT_L402_TOKEN="tok"`)
	assert.Contains(t, text, ".env")
}

func TestTerminalPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("  \"beef\"  \n\nn\n"), &out)
	ctx := context.Background()

	require.NoError(t, p.ShowInstructions(ctx, "pay me"))
	preimage, err := p.ReadPreimage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "beef", preimage)

	yes, err := p.ConfirmPersist(ctx, ".env")
	require.NoError(t, err)
	assert.True(t, yes, "empty answer defaults to yes")

	yes, err = p.ConfirmPersist(ctx, ".env")
	require.NoError(t, err)
	assert.False(t, yes)

	assert.Contains(t, out.String(), "pay me")
	assert.Contains(t, out.String(), "Enter preimage: ")
	assert.Contains(t, out.String(), "[Y/n]")
}

func TestTerminalPrompter_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewTerminalPrompter(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.ReadPreimage(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalPrompter_ReadAfterCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewTerminalPrompter(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.ReadPreimage(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() { _, _ = io.WriteString(pw, "cafe\n") }()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	preimage, err := p.ReadPreimage(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "cafe", preimage)
}

func TestTerminalPrompter_EOF(t *testing.T) {
	p := NewTerminalPrompter(strings.NewReader("beef"), io.Discard)
	ctx := context.Background()

	preimage, err := p.ReadPreimage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "beef", preimage)

	_, err = p.ReadPreimage(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
