package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of a Session. Obtain a populated value with
// DefaultConfig and override fields before passing it to Builder.WithConfig.
type Config struct {
	// StrictAuthMode enables expiry checks and role gates. Turning it off is a
	// development bypass: tokens never expire locally and role requirements
	// always pass. Validate refuses it in production.
	StrictAuthMode bool
	// Environment names the deployment ("development", "staging", "production").
	Environment string

	Token   TokenConfig
	Refresh RefreshConfig
	Storage StorageConfig
	Routes  RoutesConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls local token inspection.
type TokenConfig struct {
	// ExpiryWindow is the horizon under which a token counts as about to expire.
	ExpiryWindow time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh coordinator.
type RefreshConfig struct {
	// Periodic starts an unconditional refresh loop after login.
	Periodic bool
	// Interval is the period of that loop.
	Interval time.Duration
	// Timeout bounds each refresh network call, including periodic ones.
	Timeout time.Duration
	// SignOutTimeout bounds the server-side revocation call in SignOut.
	SignOutTimeout time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the persisted keys.
type StorageConfig struct {
	TokenKey string
	UserKey  string
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the redirect targets used by the authorization gate.
type RoutesConfig struct {
	LoginPath      string
	LandingPath    string
	ReturnURLParam string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production-safe defaults: strict mode on, a five
// minute expiry window and a four minute periodic refresh.
func DefaultConfig() Config {
	return Config{
		StrictAuthMode: true,
		Environment:    "production",
		Token: TokenConfig{
			ExpiryWindow: 5 * time.Minute,
		},
		Refresh: RefreshConfig{
			Periodic:       true,
			Interval:       4 * time.Minute,
			Timeout:        30 * time.Second,
			SignOutTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			TokenKey: "accessToken",
			UserKey:  "user",
		},
		Routes: RoutesConfig{
			LoginPath:      "/login",
			LandingPath:    "/dashboard/default",
			ReturnURLParam: "returnUrl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if !c.StrictAuthMode && strings.EqualFold(strings.TrimSpace(c.Environment), "production") {
		return errors.New("StrictAuthMode cannot be disabled in production")
	}

	if c.Token.ExpiryWindow <= 0 {
		return errors.New("Token ExpiryWindow must be > 0")
	}

	if c.Refresh.Periodic && c.Refresh.Interval <= 0 {
		return errors.New("Refresh Interval must be > 0 when Periodic is true")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.SignOutTimeout <= 0 {
		return errors.New("Refresh SignOutTimeout must be > 0")
	}

	if strings.TrimSpace(c.Storage.TokenKey) == "" || strings.TrimSpace(c.Storage.UserKey) == "" {
		return errors.New("Storage keys must be non-empty")
	}
	if c.Storage.TokenKey == c.Storage.UserKey {
		return errors.New("Storage TokenKey and UserKey must differ")
	}

	for name, p := range map[string]string{"LoginPath": c.Routes.LoginPath, "LandingPath": c.Routes.LandingPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Routes %s must be an absolute path", name)
		}
		if _, err := url.Parse(p); err != nil {
			return fmt.Errorf("Routes %s: %w", name, err)
		}
	}
	if strings.TrimSpace(c.Routes.ReturnURLParam) == "" {
		return errors.New("Routes ReturnURLParam must be non-empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration smell.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint returns warnings for settings that are valid but likely unintended.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	if !c.StrictAuthMode {
		ws = append(ws, LintWarning{
			Code:    "strict_mode_disabled",
			Message: "token expiry and role checks are bypassed",
		})
	}
	if c.Refresh.Periodic && c.Refresh.Interval >= c.Token.ExpiryWindow {
		ws = append(ws, LintWarning{
			Code:    "refresh_interval_exceeds_window",
			Message: "periodic refresh runs less often than the expiry window; tokens may lapse between ticks",
		})
	}
	if !c.Refresh.Periodic {
		ws = append(ws, LintWarning{
			Code:    "periodic_refresh_disabled",
			Message: "tokens are only refreshed on demand",
		})
	}
	if !c.Audit.Enabled {
		ws = append(ws, LintWarning{
			Code:    "audit_disabled",
			Message: "session events are not audited",
		})
	}
	return ws
}
