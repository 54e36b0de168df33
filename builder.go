package goSession

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moneysab/goSession/jwt"
	"github.com/moneysab/goSession/permission"
	"github.com/moneysab/goSession/storage"
)

// Builder assembles a Session from its collaborators. A Builder is single use.
type Builder struct {
	config Config

	api       AuthAPI
	backend   storage.Backend
	decoder   TokenDecoder
	logger    hclog.Logger
	auditSink AuditSink
	catalog   permission.Catalog
	roles     *permission.RoleManager
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAuthAPI sets the authentication API client. Required.
func (b *Builder) WithAuthAPI(api AuthAPI) *Builder {
	b.api = api
	return b
}

// WithStorage sets where the token and profile are persisted. Defaults to an
// in-memory backend.
func (b *Builder) WithStorage(backend storage.Backend) *Builder {
	b.backend = backend
	return b
}

// WithDecoder sets the token decoder. Defaults to an unverified JWT decoder;
// pass a *jwt.Manager with keys to verify signatures client side.
func (b *Builder) WithDecoder(d TokenDecoder) *Builder {
	b.decoder = d
	return b
}

// WithLogger sets the logger. Defaults to a null logger.
func (b *Builder) WithLogger(l hclog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPermissionCatalog sets the role to permission catalog. Defaults to
// permission.DefaultCatalog.
func (b *Builder) WithPermissionCatalog(c permission.Catalog) *Builder {
	b.catalog = c
	return b
}

// WithRoleManager sets an already built role manager and takes precedence
// over WithPermissionCatalog.
func (b *Builder) WithRoleManager(rm *permission.RoleManager) *Builder {
	b.roles = rm
	return b
}

// WithClock overrides the wall clock used for expiry math.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Session in StateUnknown.
// Call Init on it to restore any persisted session.
func (b *Builder) Build() (*Session, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.api == nil {
		return nil, ErrNoAuthAPI
	}

	log := b.logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("session")
	for _, w := range cfg.Lint() {
		log.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	backend := b.backend
	if backend == nil {
		backend = storage.NewMemory()
	}
	decoder := b.decoder
	if decoder == nil {
		decoder = jwt.NewDecoder()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLE MANAGER --------
	roles := b.roles
	if roles == nil {
		catalog := b.catalog
		if catalog == nil {
			catalog = permission.DefaultCatalog()
		}
		rm, err := catalog.Build()
		if err != nil {
			return nil, err
		}
		roles = rm
	}

	s := &Session{
		cfg:     cfg,
		api:     b.api,
		store:   backend,
		tokens:  newTokenStore(cfg, backend, decoder, now, log.Named("tokens")),
		roles:   roles,
		log:     log,
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink, now),
		now:     now,
		state:   StateUnknown,
		subs:    newBroadcaster(),
	}

	b.built = true

	return s, nil
}
