package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/storage"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gosession.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	f, err := Load(WithEnvPrefix("GOSESSION_TEST_DEFAULTS_"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if f.API != want.API || f.Refresh != want.Refresh || f.Storage.Driver != DriverMemory {
		t.Fatalf("unexpected defaults: %+v", f)
	}

	cfg, err := f.SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if cfg.Token.ExpiryWindow != goSession.DefaultConfig().Token.ExpiryWindow {
		t.Fatalf("expected default window, got %v", cfg.Token.ExpiryWindow)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
api:
  baseurl: https://settlement.example
  retries: 1
session:
  strict: true
  window: 2m
refresh:
  interval: 90s
routes:
  landing: /invoices
`)
	t.Setenv("GOSESSION_REFRESH_INTERVAL", "45s")
	t.Setenv("GOSESSION_STORAGE_DRIVER", "badger")

	f, err := Load(WithFile(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.API.BaseURL != "https://settlement.example" || f.API.Retries != 1 {
		t.Fatalf("file values not applied: %+v", f.API)
	}
	if f.Refresh.Interval != 45*time.Second {
		t.Fatalf("env should win over file, got %v", f.Refresh.Interval)
	}
	if f.Refresh.Timeout != Default().Refresh.Timeout {
		t.Fatalf("absent key should keep default, got %v", f.Refresh.Timeout)
	}
	if f.Storage.Driver != DriverBadger {
		t.Fatalf("expected badger driver, got %q", f.Storage.Driver)
	}

	cfg, err := f.SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if !cfg.StrictAuthMode || cfg.Token.ExpiryWindow != 2*time.Minute || cfg.Routes.LandingPath != "/invoices" {
		t.Fatalf("unexpected session config: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(WithFile(filepath.Join(t.TempDir(), "absent.yaml"))); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSessionConfigValidates(t *testing.T) {
	f := Default()
	f.Refresh.Timeout = 0
	if _, err := f.SessionConfig(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("gosession", LogSection{Level: "bogus", Format: "json"}, &buf)
	log.Debug("hidden")
	log.Info("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("unknown level should fall back to info: %s", out)
	}
	if !strings.Contains(out, `"@message":"shown"`) {
		t.Fatalf("expected json output, got %s", out)
	}
}

func TestOpenStorageMemory(t *testing.T) {
	backend, closer, err := OpenStorage(context.Background(), StorageSection{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()
	if _, ok := backend.(*storage.Memory); !ok {
		t.Fatalf("expected memory backend, got %T", backend)
	}
}

func TestOpenStorageRedisSealed(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	backend, closer, err := OpenStorage(ctx, StorageSection{
		Driver:     DriverRedis,
		Prefix:     "bo",
		Redis:      RedisSection{Addr: mr.Addr()},
		Passphrase: "correct horse battery staple",
	}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()

	if err := backend.Set(ctx, "token", "tok1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := mr.Get("bo:token")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if raw == "" || strings.Contains(raw, "tok1") {
		t.Fatalf("expected sealed value in redis, got %q", raw)
	}
	got, ok, err := backend.Get(ctx, "token")
	if err != nil || !ok || got != "tok1" {
		t.Fatalf("roundtrip: %q %v %v", got, ok, err)
	}
}

func TestOpenStorageRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := OpenStorage(context.Background(), StorageSection{
		Driver: DriverRedis,
		Redis:  RedisSection{Addr: addr},
	}, nil)
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenStorageBadger(t *testing.T) {
	ctx := context.Background()
	s := StorageSection{Driver: DriverBadger, Dir: t.TempDir()}

	backend, closer, err := OpenStorage(ctx, s, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := backend.Set(ctx, "user", `{"id":"u1"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backend, closer, err = OpenStorage(ctx, s, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closer.Close()
	got, ok, err := backend.Get(ctx, "user")
	if err != nil || !ok || got != `{"id":"u1"}` {
		t.Fatalf("value should survive reopen: %q %v %v", got, ok, err)
	}
}

func TestOpenStorageRejects(t *testing.T) {
	ctx := context.Background()
	if _, _, err := OpenStorage(ctx, StorageSection{Driver: "etcd"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, _, err := OpenStorage(ctx, StorageSection{Driver: DriverBadger}, nil); err == nil {
		t.Fatalf("expected missing dir error")
	}
}
