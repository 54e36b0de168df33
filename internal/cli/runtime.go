package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/client"
	"github.com/moneysab/goSession/config"
	"github.com/urfave/cli/v2"
)

var errNotLoggedIn = errors.New("not logged in, run gosession login")

// runtime is everything one command needs.
type runtime struct {
	file    config.File
	log     hclog.Logger
	session *goSession.Session
	// data carries the session bearer and refreshes on 401.
	data   *client.Client
	closer io.Closer
}

func open(c *cli.Context) (*runtime, error) {
	var opts []config.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithFile(path))
	}
	file, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if v := c.String("api"); v != "" {
		file.API.BaseURL = v
	}
	if v := c.String("log-level"); v != "" {
		file.Log.Level = v
	}
	if file.Storage.Driver == "" || file.Storage.Driver == config.DriverMemory {
		file.Storage.Driver = config.DriverBadger
		file.Storage.Dir = c.String("state-dir")
	}
	if file.Storage.Driver == config.DriverBadger {
		if err := os.MkdirAll(file.Storage.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("state dir: %w", err)
		}
	}

	cfg, err := file.SessionConfig()
	if err != nil {
		return nil, err
	}
	// One command per process; nothing would observe a background loop.
	cfg.Refresh.Periodic = false

	log := config.NewLogger("gosession", file.Log, c.App.ErrWriter)

	backend, closer, err := config.OpenStorage(c.Context, file.Storage, log)
	if err != nil {
		return nil, err
	}

	authClient, err := client.New(client.Options{
		BaseURL: file.API.BaseURL,
		Timeout: file.API.Timeout,
		Retries: file.API.Retries,
		Logger:  log,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	b := goSession.New().
		WithConfig(cfg).
		WithAuthAPI(client.NewAuthAPI(authClient)).
		WithStorage(backend).
		WithLogger(log)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goSession.NewLoggerSink(log.Named("audit")))
	}
	s, err := b.Build()
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	data, err := client.New(client.Options{
		BaseURL:   file.API.BaseURL,
		Timeout:   file.API.Timeout,
		Retries:   file.API.Retries,
		Transport: client.ForSession(s, nil),
		Logger:    log,
	})
	if err != nil {
		s.Close()
		_ = closer.Close()
		return nil, err
	}

	return &runtime{file: file, log: log, session: s, data: data, closer: closer}, nil
}

// restore runs Init and fails when no usable session remains.
func (r *runtime) restore(ctx context.Context) error {
	if err := r.session.Init(ctx); err != nil {
		return err
	}
	if !r.session.IsAuthenticated(ctx) {
		return errNotLoggedIn
	}
	return nil
}

func (r *runtime) Close() {
	r.session.Close()
	if err := r.closer.Close(); err != nil {
		r.log.Warn("close storage", "error", err)
	}
}

// withRuntime opens a runtime around fn.
func withRuntime(fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := open(c)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}
