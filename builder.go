package pairmint

import (
	"errors"

	"github.com/pairmint/pairmint/jwt"
	"github.com/pairmint/pairmint/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine from a Config and its runtime dependencies.
// Configure it during initialization; a Builder is single-use and not safe
// for concurrent mutation.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	resolver  IdentityResolver
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is copied, so
// later mutation of cfg by the caller has no effect on the built Engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the refresh-token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityResolver sets the lookup used to confirm an owner still
// exists before a rotation mints a successor pair.
func (b *Builder) WithIdentityResolver(r IdentityResolver) *Builder {
	b.resolver = r
	return b
}

// WithAuditSink sets the destination for audit events. Leaving it unset
// with auditing enabled falls back to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles rotation latency bucketing. Has no effect
// unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if b.resolver == nil {
		return nil, errors.New("identity resolver required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		jwtManager: jm,
		store:      refresh.NewStore(b.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.RetainAfterExpiry),
		resolver:   b.resolver,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
