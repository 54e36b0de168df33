package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goSession "github.com/moneysab/goSession"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "GOSESSION_"

// File is the on-disk configuration.
type File struct {
	API     APISection     `koanf:"api"`
	Session SessionSection `koanf:"session"`
	Refresh RefreshSection `koanf:"refresh"`
	Routes  RoutesSection  `koanf:"routes"`
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`
	Audit   AuditSection   `koanf:"audit"`
	Metrics MetricsSection `koanf:"metrics"`
}

type APISection struct {
	BaseURL string        `koanf:"baseurl"`
	Timeout time.Duration `koanf:"timeout"`
	Retries int           `koanf:"retries"`
}

type SessionSection struct {
	Strict      bool          `koanf:"strict"`
	Environment string        `koanf:"environment"`
	Window      time.Duration `koanf:"window"`
}

type RefreshSection struct {
	Periodic bool          `koanf:"periodic"`
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
	SignOut  time.Duration `koanf:"signout"`
}

type RoutesSection struct {
	Login   string `koanf:"login"`
	Landing string `koanf:"landing"`
}

// StorageSection selects and configures the token backend.
type StorageSection struct {
	// Driver is one of memory, redis or badger.
	Driver string `koanf:"driver"`
	// Dir is the badger directory.
	Dir string `koanf:"dir"`
	// Prefix namespaces redis keys.
	Prefix string        `koanf:"prefix"`
	TTL    time.Duration `koanf:"ttl"`
	Redis  RedisSection  `koanf:"redis"`
	// Passphrase, when set, encrypts stored values. Prefer the environment
	// over the file for it.
	Passphrase string `koanf:"passphrase"`
}

type RedisSection struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LogSection struct {
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

type AuditSection struct {
	Enabled bool `koanf:"enabled"`
}

type MetricsSection struct {
	Enabled bool `koanf:"enabled"`
	Latency bool `koanf:"latency"`
	// Listen, when set, serves /metrics on this address.
	Listen string `koanf:"listen"`
}

// Default returns the configuration used for keys absent from every source.
func Default() File {
	sc := goSession.DefaultConfig()
	return File{
		API: APISection{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
			Retries: 2,
		},
		Session: SessionSection{
			Strict:      sc.StrictAuthMode,
			Environment: sc.Environment,
			Window:      sc.Token.ExpiryWindow,
		},
		Refresh: RefreshSection{
			Periodic: sc.Refresh.Periodic,
			Interval: sc.Refresh.Interval,
			Timeout:  sc.Refresh.Timeout,
			SignOut:  sc.Refresh.SignOutTimeout,
		},
		Routes: RoutesSection{
			Login:   sc.Routes.LoginPath,
			Landing: sc.Routes.LandingPath,
		},
		Storage: StorageSection{
			Driver: DriverMemory,
			Prefix: "gosession",
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
	}
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// WithEnvPrefix overrides DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// WithFile reads path before the environment. A missing path is an error.
func WithFile(path string) Option {
	return func(l *loader) {
		l.filePath = path
	}
}

// Load merges defaults, the optional file and the environment.
func Load(opts ...Option) (File, error) {
	l := &loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return File{}, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	transform := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := l.k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
		return File{}, fmt.Errorf("load env: %w", err)
	}

	f := Default()
	if err := l.k.Unmarshal("", &f); err != nil {
		return File{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return f, nil
}

// SessionConfig maps f onto a validated goSession.Config.
func (f File) SessionConfig() (goSession.Config, error) {
	cfg := goSession.DefaultConfig()
	cfg.StrictAuthMode = f.Session.Strict
	cfg.Environment = f.Session.Environment
	cfg.Token.ExpiryWindow = f.Session.Window
	cfg.Refresh.Periodic = f.Refresh.Periodic
	cfg.Refresh.Interval = f.Refresh.Interval
	cfg.Refresh.Timeout = f.Refresh.Timeout
	cfg.Refresh.SignOutTimeout = f.Refresh.SignOut
	cfg.Routes.LoginPath = f.Routes.Login
	cfg.Routes.LandingPath = f.Routes.Landing
	cfg.Audit.Enabled = f.Audit.Enabled
	cfg.Metrics.Enabled = f.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = f.Metrics.Latency

	if err := cfg.Validate(); err != nil {
		return goSession.Config{}, err
	}
	return cfg, nil
}
