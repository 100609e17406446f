package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/modelfarm/internal/infrastructure/crypto"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		constants.EnvDeployment,
		constants.EnvIdentityKey,
		constants.EnvIdentity,
		constants.EnvReplID,
		constants.EnvPublicKeys,
		constants.EnvL402Token,
		constants.EnvL402Preimage,
		constants.EnvL402Legacy,
	} {
		t.Setenv(name, "")
	}
	t.Setenv("MODELFARM_L402_DOTENV_PATH", filepath.Join(t.TempDir(), ".env"))
	t.Setenv("MODELFARM_L402_INTERACTIVE", "false")
	t.Setenv("MODELFARM_LOG_LEVEL", string(constants.LogLevelError))
	t.Chdir(t.TempDir())
}

func useIdentity(t *testing.T) *crypto.DevIdentity {
	t.Helper()
	dev, err := crypto.GenerateDevIdentity("cli-repl", "root", time.Now(), 0)
	require.NoError(t, err)
	t.Setenv(constants.EnvIdentityKey, dev.PrivateKey)
	t.Setenv(constants.EnvIdentity, dev.Identity)
	t.Setenv(constants.EnvReplID, dev.ReplID)
	return dev
}

func run(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestIdentityGenerate(t *testing.T) {
	isolateEnv(t)

	out, err := run(t, context.Background(), "", "identity", "generate", "--repl-id", "gen-repl", "--kid", "k1")
	require.NoError(t, err)

	for _, name := range []string{constants.EnvIdentityKey, constants.EnvIdentity, constants.EnvReplID, constants.EnvPublicKeys} {
		assert.Contains(t, out, "export "+name+"=")
	}
	assert.Contains(t, out, "export REPL_ID='gen-repl'")
	assert.Contains(t, out, `"k1"`)
}

func TestTokenAndVerify(t *testing.T) {
	isolateEnv(t)
	dev := useIdentity(t)

	token, err := run(t, context.Background(), "", "token")
	require.NoError(t, err)
	token = strings.TrimSpace(token)
	require.NotEmpty(t, token)

	out, err := run(t, context.Background(), token, "verify", "--pubkeys", dev.PublicKeysJSON())
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "cli-repl", claims["sub"])
	assert.Equal(t, true, claims["chain"])

	_, err = run(t, context.Background(), "", "verify", token, "--pubkeys", dev.PublicKeysJSON(), "--audience", "other")
	assert.True(t, errors.HasCode(err, errors.CodeAudienceMismatch))
}

func TestTokenHeader(t *testing.T) {
	isolateEnv(t)
	useIdentity(t)

	out, err := run(t, context.Background(), "", "token", "--header")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Bearer "))
}

func TestToken_UnpaidInvoice(t *testing.T) {
	isolateEnv(t)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(constants.HeaderWWWAuthenticate, `L402 macaroon="tok", invoice="lnbc42"`)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer gateway.Close()
	t.Setenv("MODELFARM_L402_MATADOR_URL", gateway.URL)

	_, err := run(t, context.Background(), "", "token")
	assert.True(t, errors.HasCode(err, errors.CodeTokenAcquisitionFailed))
	assert.Contains(t, err.Error(), "lnbc42")

	out, err := run(t, context.Background(), "", "l402", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status:   awaiting preimage")
}

func TestVerify_MissingRegistry(t *testing.T) {
	isolateEnv(t)

	_, err := run(t, context.Background(), "", "verify", "a.b.c")
	assert.True(t, errors.IsFallthrough(err))
}

func TestL402SaveAndStatus(t *testing.T) {
	isolateEnv(t)

	out, err := run(t, context.Background(), "", "l402", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status:   none")

	_, err = run(t, context.Background(), "", "l402", "save", "--token", "tok")
	require.NoError(t, err)
	out, err = run(t, context.Background(), "", "l402", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status:   awaiting preimage")

	_, err = run(t, context.Background(), "", "l402", "save", "--token", "tok", "--preimage", "pre")
	require.NoError(t, err)
	out, err = run(t, context.Background(), "", "l402", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status:   ready")

	out, err = run(t, context.Background(), "", "token", "--header")
	require.NoError(t, err)
	assert.Equal(t, "L402 tok:pre\n", out)
}

func TestL402Challenge(t *testing.T) {
	isolateEnv(t)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, constants.NewL402Path, r.URL.Path)
		w.Header().Set(constants.HeaderWWWAuthenticate, `L402 token="tok", invoice="lnbc1"`)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer gateway.Close()
	t.Setenv("MODELFARM_L402_MATADOR_URL", gateway.URL)

	out, err := run(t, context.Background(), "", "l402", "challenge")
	require.NoError(t, err)
	assert.Contains(t, out, "lnbc1")
	assert.Contains(t, out, "token: tok")
}

func TestStream(t *testing.T) {
	isolateEnv(t)
	useIdentity(t)
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"prompt":"hi"}`, string(body))
		_, _ = io.WriteString(w, `{"n":1} {"n":2}`)
	}))
	defer model.Close()
	t.Setenv("MODELFARM_CLIENT_ROOT_URL", model.URL)

	for _, extra := range [][]string{nil, {"--async"}} {
		args := append([]string{"stream", "/v1/stream", "-d", `{"prompt":"hi"}`}, extra...)
		out, err := run(t, context.Background(), "", args...)
		require.NoError(t, err)
		assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", out)
	}

	out, err := run(t, context.Background(), "", "stream", "/v1/stream", "--no-stream", "-d", `{"prompt":"hi"}`)
	require.Error(t, err, "two values are not a single JSON document")
	assert.Empty(t, out)
}

func TestStream_InvalidData(t *testing.T) {
	isolateEnv(t)

	_, err := run(t, context.Background(), "", "stream", "/x", "-d", "{")
	assert.True(t, errors.IsFatal(err))
}

func TestSidecar_StopsOnCancel(t *testing.T) {
	isolateEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := run(t, ctx, "", "sidecar", "--addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "export "+constants.EnvPublicKeys+"=")
}
