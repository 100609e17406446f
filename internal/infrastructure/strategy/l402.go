package strategy

import (
	"context"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/internal/domain/service"
	"github.com/turtacn/modelfarm/internal/infrastructure/l402"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// L402Options configures the L402 strategy.
type L402Options struct {
	// Store persists credentials between runs. Optional.
	Store service.CredentialStore

	// Gateway issues new challenges.
	Gateway service.L402Gateway

	// Prompter interacts with the user. Without one, the strategy never blocks
	// and reports PaymentRequired instead.
	Prompter service.PaymentPrompter

	// Preimage completes a stored token whose invoice was paid after it was
	// saved. It never answers a freshly fetched challenge, since a preimage
	// only proves payment of its own invoice.
	Preimage string

	// AutoPersist saves new credentials without asking.
	AutoPersist bool

	Logger logger.Logger
}

// L402 presents a paid Lightning credential, negotiating a new one with the
// payment gateway when none is stored.
type L402 struct {
	opts L402Options
	log  logger.Logger
}

// NewL402 creates the payment strategy.
func NewL402(opts L402Options) *L402 {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &L402{opts: opts, log: log.WithFields(logger.Fields{"strategy": constants.StrategyL402})}
}

func (s *L402) Name() constants.StrategyName { return constants.StrategyL402 }

// Acquire returns the stored credential, or runs the payment flow.
func (s *L402) Acquire(ctx context.Context) (*models.Token, error) {
	stored := s.stored(ctx)
	if stored.Complete() {
		return stored.AsToken(), nil
	}

	if stored.Token != "" {
		// A token saved before its invoice was paid.
		if s.opts.Preimage == "" {
			return nil, errors.ErrPaymentRequired(l402.PlaceholderInstructions(stored.Token, s.location()))
		}
		stored.Preimage = s.opts.Preimage
		if err := s.save(ctx, stored); err != nil {
			s.log.Warn(ctx, "Failed to persist completed L402 credential", logger.Fields{"error": err.Error()})
		}
		return stored.AsToken(), nil
	}

	if s.opts.Gateway == nil {
		return nil, errors.ErrMissingEnvironmentVariable(constants.EnvL402Token)
	}
	challenge, err := s.opts.Gateway.NewChallenge(ctx)
	if err != nil {
		return nil, err
	}
	instructions := l402.Instructions(challenge.Invoice)

	var preimage string
	if s.opts.Prompter != nil {
		if err := s.opts.Prompter.ShowInstructions(ctx, instructions); err != nil {
			return nil, err
		}
		if preimage, err = s.opts.Prompter.ReadPreimage(ctx); err != nil {
			return nil, err
		}
	}

	cred := models.L402Credential{Token: challenge.Token, Preimage: preimage}
	if preimage == "" {
		cred.Preimage = constants.L402PreimagePlaceholder
	}
	if err := s.save(ctx, cred); err != nil {
		s.log.Warn(ctx, "Failed to persist L402 credential", logger.Fields{"error": err.Error()})
	}

	if preimage == "" {
		followup := l402.PlaceholderInstructions(challenge.Token, s.location())
		if s.opts.Prompter != nil {
			_ = s.opts.Prompter.ShowInstructions(ctx, followup)
		}
		return nil, errors.ErrPaymentRequired(instructions + "\n" + followup)
	}
	return cred.AsToken(), nil
}

// stored looks in the store, then REPLIT_L402_TOKEN/REPLIT_L402_PREIMAGE,
// then the legacy REPLIT_L402. A pending credential is kept only if nothing
// complete is found.
func (s *L402) stored(ctx context.Context) models.L402Credential {
	var pending models.L402Credential
	consider := func(cred models.L402Credential) bool {
		if cred.Complete() {
			pending = cred
			return true
		}
		if pending.Token == "" && cred.Token != "" {
			pending = cred
		}
		return false
	}

	if s.opts.Store != nil {
		cred, err := s.opts.Store.Load(ctx)
		if err != nil {
			s.log.Warn(ctx, "Failed to load stored L402 credential", logger.Fields{"error": err.Error()})
		} else if consider(cred) {
			return pending
		}
	}

	token, _ := lookupEnv(constants.EnvL402Token)
	preimage, _ := lookupEnv(constants.EnvL402Preimage)
	if consider(models.L402Credential{Token: token, Preimage: preimage}) {
		return pending
	}

	if legacy, ok := lookupEnv(constants.EnvL402Legacy); ok {
		if cred, ok := models.ParseLegacyL402(legacy); ok {
			consider(cred)
		}
	}
	return pending
}

// save persists cred, asking first unless AutoPersist is set.
func (s *L402) save(ctx context.Context, cred models.L402Credential) error {
	if s.opts.Store == nil {
		return nil
	}
	if !s.opts.AutoPersist && s.opts.Prompter != nil {
		ok, err := s.opts.Prompter.ConfirmPersist(ctx, s.location())
		if err != nil {
			return err
		}
		if !ok {
			s.log.Info(ctx, "L402 credential not persisted", logger.Fields{"location": s.location()})
			return nil
		}
	}
	if err := s.opts.Store.Save(ctx, cred); err != nil {
		return err
	}
	s.log.Info(ctx, "Persisted L402 credential", logger.Fields{"location": s.location()})
	return nil
}

func (s *L402) location() string {
	if s.opts.Store == nil {
		return ""
	}
	return s.opts.Store.Location()
}
