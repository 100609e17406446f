// Package constants defines system-wide constants for the modelfarm client.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Scheme Constants
// ================================================================================

// TokenScheme is the Authorization header scheme a credential is presented with
type TokenScheme string

const (
	// SchemeBearer is used for deployment and interactive identity tokens
	SchemeBearer TokenScheme = "Bearer"

	// SchemeL402 is used for payment-backed credentials ("L402 <token>:<preimage>")
	SchemeL402 TokenScheme = "L402"
)

// ================================================================================
// Acquisition Strategy Constants
// ================================================================================

// StrategyName identifies a token acquisition strategy
type StrategyName string

const (
	// StrategyDeployment requests tokens from the loopback sidecar
	StrategyDeployment StrategyName = "deployment"

	// StrategyInteractive self-signs tokens with environment-supplied identity material
	StrategyInteractive StrategyName = "interactive"

	// StrategyL402 presents a paid Lightning credential
	StrategyL402 StrategyName = "l402"
)

// ManagerState is the lifecycle state of the identity token manager
type ManagerState string

const (
	// StateUnset means no token has been acquired yet
	StateUnset ManagerState = "unset"

	// StateValid means the cached token is within its TTL
	StateValid ManagerState = "valid"

	// StateStale means the cached token is past its TTL and is being refreshed
	StateStale ManagerState = "stale"

	// StateFailed means the last refresh exhausted every strategy
	StateFailed ManagerState = "failed"
)

// ================================================================================
// Environment Variable Constants
// ================================================================================

const (
	// EnvDeployment marks a deployed process; its presence selects the sidecar strategy
	EnvDeployment = "REPLIT_DEPLOYMENT"

	// EnvIdentityKey holds the marshaled Ed25519 private key
	EnvIdentityKey = "REPL_IDENTITY_KEY"

	// EnvIdentity holds the identity assertion signed by a higher authority
	EnvIdentity = "REPL_IDENTITY"

	// EnvReplID holds this process's identity
	EnvReplID = "REPL_ID"

	// EnvPublicKeys holds a JSON object mapping key ids to base64 Ed25519 public keys
	EnvPublicKeys = "REPL_PUBKEYS"

	// EnvL402Token holds the persisted L402 token
	EnvL402Token = "REPLIT_L402_TOKEN"

	// EnvL402Preimage holds the persisted L402 payment preimage
	EnvL402Preimage = "REPLIT_L402_PREIMAGE"

	// EnvL402Legacy is the older combined "token:preimage" form
	EnvL402Legacy = "REPLIT_L402"
)

// ================================================================================
// Endpoint Defaults
// ================================================================================

const (
	// DefaultRootURL is the model farm API endpoint
	DefaultRootURL = "https://production-modelfarm.replit.com"

	// DefaultMatadorURL is the L402 payment gateway
	DefaultMatadorURL = "https://matador-replit.kody.repl.co/replit"

	// DefaultAudience is the audience identity tokens are scoped to
	DefaultAudience = "modelfarm@replit.com"

	// DefaultSidecarURL is the loopback identity token endpoint available in deployments
	DefaultSidecarURL = "http://localhost:1105/getIdentityToken"

	// NewL402Path is appended to the matador URL to request a challenge
	NewL402Path = "/new-L402"

	// SidecarTokenPath is the route served by the sidecar emulator
	SidecarTokenPath = "/getIdentityToken"
)

// ================================================================================
// Lifetime Constants
// ================================================================================

const (
	// DefaultTokenTTL is how long an acquired identity token is reused before re-acquiring
	DefaultTokenTTL = 300 * time.Second

	// DefaultSignedTokenLifetime is the exp-iat span of self-signed tokens
	DefaultSignedTokenLifetime = 1 * time.Hour

	// DefaultStreamTimeout bounds a whole streaming API call
	DefaultStreamTimeout = 15 * time.Second

	// PublicKeyCacheTTL is how long decoded registry keys are memoized
	PublicKeyCacheTTL = 1 * time.Hour

	// PublicKeyCacheCleanup is the purge interval of the key cache
	PublicKeyCacheCleanup = 10 * time.Minute
)

// ================================================================================
// Stream Decoding Constants
// ================================================================================

const (
	// DefaultChunkSize is the read size used against response bodies
	DefaultChunkSize = 128

	// CompactThreshold is the minimum consumed prefix before the decode buffer is compacted
	CompactThreshold = 4096

	// MalformedExcerptLimit bounds the buffer excerpt attached to stream errors
	MalformedExcerptLimit = 256
)

// ================================================================================
// L402 Constants
// ================================================================================

const (
	// L402PreimagePlaceholder is persisted when the user skips entering a preimage
	L402PreimagePlaceholder = "replace_me_with_preimage_after_paying_this_invoice"

	// HeaderWWWAuthenticate carries the L402 challenge
	HeaderWWWAuthenticate = "WWW-Authenticate"
)

// ================================================================================
// Token Format Constants
// ================================================================================

const (
	// TokenVersion is the version tag carried in the token header
	TokenVersion = "v1"

	// HeaderKeyVersion is the header field holding the version tag
	HeaderKeyVersion = "ver"

	// HeaderKeyKeyID is the header field holding the key identifier
	HeaderKeyKeyID = "kid"

	// HeaderKeyIdentity is the header field embedding the identity assertion
	HeaderKeyIdentity = "ida"

	// PrivateKeyPrefix prefixes PASERK-style v2 secret keys
	PrivateKeyPrefix = "k2.secret."
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"
)

// HeaderRequestID is sent with every API call
const HeaderRequestID = "X-Request-ID"
