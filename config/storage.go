package config

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/moneysab/goSession/storage"
	"github.com/redis/go-redis/v9"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenStorage opens the backend selected by s, wrapped in storage.Sealed when
// a passphrase is set. The returned Closer releases the underlying client.
func OpenStorage(ctx context.Context, s StorageSection, log hclog.Logger) (storage.Backend, io.Closer, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	var (
		backend storage.Backend
		closer  io.Closer = closerFunc(func() error { return nil })
	)
	switch s.Driver {
	case "", DriverMemory:
		backend = storage.NewMemory()
	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("%w: redis %s: %w", storage.ErrUnavailable, s.Redis.Addr, err)
		}
		backend = storage.NewRedis(rdb, s.Prefix, s.TTL)
		closer = rdb
	case DriverBadger:
		if s.Dir == "" {
			return nil, nil, fmt.Errorf("storage: badger driver requires dir")
		}
		db, err := storage.OpenBadger(storage.BadgerOptions{Dir: s.Dir, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		backend = db
		closer = db
	default:
		return nil, nil, fmt.Errorf("storage: unknown driver %q", s.Driver)
	}

	if s.Passphrase != "" {
		sealed, err := storage.NewSealed(backend, []byte(s.Passphrase), storage.DefaultKDFParams())
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		backend = sealed
	}
	log.Debug("storage opened", "driver", s.Driver, "sealed", s.Passphrase != "")
	return backend, closer, nil
}
