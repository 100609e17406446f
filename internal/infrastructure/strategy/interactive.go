package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/internal/infrastructure/crypto"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Interactive self-signs tokens with the identity material of an interactive
// session: REPL_IDENTITY_KEY, REPL_IDENTITY and REPL_ID.
type Interactive struct {
	audience string
	lifetime time.Duration
	clock    clock.Clock
	log      logger.Logger

	mu        sync.Mutex
	material  [3]string
	authority *crypto.SigningAuthority
}

// NewInteractive creates the self-signing strategy.
func NewInteractive(audience string, lifetime time.Duration, clk clock.Clock, log logger.Logger) *Interactive {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Interactive{
		audience: audience,
		lifetime: lifetime,
		clock:    clk,
		log:      log.WithFields(logger.Fields{"strategy": constants.StrategyInteractive}),
	}
}

func (s *Interactive) Name() constants.StrategyName { return constants.StrategyInteractive }

// Acquire signs a token for the configured audience. Inconsistent identity
// material is a ConfigurationError, which stops the strategy chain.
func (s *Interactive) Acquire(ctx context.Context) (*models.Token, error) {
	values, err := requireEnv(constants.EnvIdentityKey, constants.EnvIdentity, constants.EnvReplID)
	if err != nil {
		return nil, err
	}

	authority, err := s.authorityFor([3]string{values[0], values[1], values[2]})
	if err != nil {
		s.log.Error(ctx, "Identity material rejected", err)
		return nil, err
	}
	raw, err := authority.Sign(s.audience)
	if err != nil {
		return nil, err
	}
	return models.NewBearerToken(raw, constants.StrategyInteractive), nil
}

// authorityFor reuses the authority while the environment is unchanged.
func (s *Interactive) authorityFor(material [3]string) (*crypto.SigningAuthority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authority != nil && s.material == material {
		return s.authority, nil
	}
	authority, err := crypto.NewSigningAuthority(material[0], material[1], material[2],
		crypto.WithLifetime(s.lifetime),
		crypto.WithClock(s.clock),
	)
	if err != nil {
		return nil, err
	}
	s.material = material
	s.authority = authority
	return authority, nil
}
