package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// SidecarRequest is the body posted to the deployment sidecar.
type SidecarRequest struct {
	Audience string `json:"audience"`
}

// SidecarResponse is the sidecar's answer.
type SidecarResponse struct {
	IdentityToken string `json:"identityToken"`
}

// Deployment fetches tokens from the loopback sidecar available to deployed
// processes. It applies only when REPLIT_DEPLOYMENT is set. Requests carry no
// timeout of their own; the caller's context bounds them.
type Deployment struct {
	client   *http.Client
	url      string
	audience string
	log      logger.Logger
}

// NewDeployment creates the sidecar strategy.
func NewDeployment(sidecarURL, audience string, client *http.Client, log logger.Logger) *Deployment {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Deployment{
		client:   client,
		url:      sidecarURL,
		audience: audience,
		log:      log.WithFields(logger.Fields{"strategy": constants.StrategyDeployment}),
	}
}

func (d *Deployment) Name() constants.StrategyName { return constants.StrategyDeployment }

// Acquire posts the audience to the sidecar.
func (d *Deployment) Acquire(ctx context.Context) (*models.Token, error) {
	if _, ok := lookupEnv(constants.EnvDeployment); !ok {
		return nil, errors.ErrMissingEnvironmentVariable(constants.EnvDeployment)
	}

	body, err := json.Marshal(SidecarRequest{Audience: d.audience})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrConfiguration("invalid sidecar url").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request identity token from sidecar: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sidecar response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, string(payload))
	}

	var out SidecarResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, "sidecar response is not JSON").WithCause(err)
	}
	if out.IdentityToken == "" {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, "sidecar response has no identityToken")
	}

	d.log.Debug(ctx, "Received identity token from sidecar")
	return models.NewBearerToken(out.IdentityToken, constants.StrategyDeployment), nil
}
