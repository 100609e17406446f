// Package application assembles the identity token manager from configuration.
package application

import (
	"context"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/internal/domain/service"
	"github.com/turtacn/modelfarm/internal/infrastructure/l402"
	"github.com/turtacn/modelfarm/internal/infrastructure/persistence/dotenv"
	"github.com/turtacn/modelfarm/internal/infrastructure/persistence/redis"
	"github.com/turtacn/modelfarm/internal/infrastructure/persistence/vault"
	"github.com/turtacn/modelfarm/internal/infrastructure/strategy"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Dependencies are the collaborators the identity service is built with. Zero
// values select the defaults.
type Dependencies struct {
	Logger     logger.Logger
	Metrics    service.Metrics
	Tracer     trace.Tracer
	Clock      clock.Clock
	HTTPClient *http.Client

	// Prompter overrides the terminal prompter used when l402.interactive is set.
	Prompter service.PaymentPrompter

	// Store overrides the store selected by l402.store.
	Store service.CredentialStore
}

// IdentityService owns the token manager and the resources behind it.
type IdentityService struct {
	Manager *service.TokenManager
	Store   service.CredentialStore

	cfg     *config.Config
	log     logger.Logger
	closers []io.Closer
}

// NewIdentityService builds the strategy chain (deployment, interactive, then
// L402 when enabled) and the token manager over it.
func NewIdentityService(ctx context.Context, cfg *config.Config, deps Dependencies) (*IdentityService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	s := &IdentityService{cfg: cfg, log: deps.Logger}

	strategies := []service.Strategy{
		strategy.NewDeployment(cfg.Identity.SidecarURL, cfg.Identity.Audience, deps.HTTPClient, deps.Logger),
		strategy.NewInteractive(cfg.Identity.Audience, cfg.Identity.SignedTokenLifetime, deps.Clock, deps.Logger),
	}

	if cfg.L402.Enabled {
		store := deps.Store
		if store == nil {
			var err error
			store, err = s.openStore(ctx)
			if err != nil {
				return nil, err
			}
		}
		s.Store = store

		opts := strategy.L402Options{
			Store:       store,
			Preimage:    cfg.L402.Preimage,
			AutoPersist: cfg.L402.AutoPersist,
			Prompter:    deps.Prompter,
			Logger:      deps.Logger,
		}
		if cfg.L402.MatadorURL != "" {
			opts.Gateway = l402.NewGateway(cfg.L402.MatadorURL, deps.HTTPClient, deps.Logger)
		}
		if opts.Prompter == nil && cfg.L402.Interactive {
			opts.Prompter = l402.NewTerminalPrompter(os.Stdin, os.Stderr)
		}
		strategies = append(strategies, strategy.NewL402(opts))
	}

	managerOpts := []service.ManagerOption{
		service.WithTTL(cfg.Identity.TokenTTL),
		service.WithClock(deps.Clock),
		service.WithLogger(deps.Logger),
	}
	if deps.Metrics != nil {
		managerOpts = append(managerOpts, service.WithMetrics(deps.Metrics))
	}
	if deps.Tracer != nil {
		managerOpts = append(managerOpts, service.WithTracer(deps.Tracer))
	}
	s.Manager = service.NewTokenManager(strategies, managerOpts...)

	if cfg.L402.Watch {
		if err := s.watch(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *IdentityService) openStore(ctx context.Context) (service.CredentialStore, error) {
	switch s.cfg.L402.Store {
	case config.StoreRedis:
		client, err := redis.Connect(ctx, s.cfg.Redis, s.log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client)
		return redis.NewCredentialStore(client, s.cfg.Redis.KeyPrefix), nil
	case config.StoreVault:
		client, err := vault.NewClient(s.cfg.Vault)
		if err != nil {
			return nil, err
		}
		return vault.NewCredentialStore(client, s.cfg.Vault.MountPath, s.cfg.Vault.SecretPath, s.log), nil
	default:
		return dotenv.NewStore(s.cfg.L402.DotenvPath, s.log), nil
	}
}

// watch invalidates the cached token whenever the store reports a change.
func (s *IdentityService) watch(ctx context.Context) error {
	watcher, ok := s.Store.(service.CredentialWatcher)
	if !ok {
		s.log.Warn(ctx, "Credential store does not support watching", logger.Fields{"store": s.cfg.L402.Store})
		return nil
	}
	if err := watcher.Watch(ctx, s.Manager.Invalidate); err != nil {
		return errors.ErrConfiguration("failed to watch credential store").WithCause(err)
	}
	return nil
}

// Close releases store connections.
func (s *IdentityService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
