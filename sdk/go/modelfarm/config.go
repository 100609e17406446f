package modelfarm

import (
	"context"

	"github.com/turtacn/modelfarm/internal/application"
	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/pkg/jsonstream"
)

// FromConfig builds the identity service described by cfg and a client that
// authenticates through it. Options are applied after the configured ones.
// The caller closes the returned service.
func FromConfig(ctx context.Context, cfg *config.Config, deps application.Dependencies, opts ...Option) (*Client, *application.IdentityService, error) {
	identity, err := application.NewIdentityService(ctx, cfg, deps)
	if err != nil {
		return nil, nil, err
	}

	configured := []Option{
		WithStreamTimeout(cfg.Client.StreamTimeout),
		WithChunkSize(cfg.Client.ChunkSize),
	}
	if deps.HTTPClient != nil {
		configured = append(configured, WithHTTPClient(deps.HTTPClient))
	}
	if deps.Logger != nil {
		configured = append(configured, WithLogger(deps.Logger))
	}
	if deps.Tracer != nil {
		configured = append(configured, WithTracer(deps.Tracer))
	}
	if obs, ok := deps.Metrics.(jsonstream.Observer); ok {
		configured = append(configured, WithObserver(obs))
	}
	if rec, ok := deps.Metrics.(RequestRecorder); ok {
		configured = append(configured, WithRequestRecorder(rec))
	}

	client, err := NewClient(cfg.Client.RootURL, identity.Manager, append(configured, opts...)...)
	if err != nil {
		_ = identity.Close()
		return nil, nil, err
	}
	return client, identity, nil
}
