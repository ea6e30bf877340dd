// Package store provides the key/value backends that hold the client's
// persisted state: the reauthentication credential and per-user chat lists.
// The pebble backend keeps state on local disk, the redis backend lets
// several client instances share it, and the memory backend is used for
// ephemeral runs and tests.
package store

import (
	"context"
	"fmt"
)

// Backend is a string key/value store. Get reports whether the key exists.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Kind names a backend implementation.
type Kind string

const (
	KindPebble Kind = "pebble"
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind      Kind
	Dir       string // pebble data directory
	RedisAddr string
	RedisDB   int
	Prefix    string // redis key prefix
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindPebble, "":
		p, err := OpenPebble(opts.Dir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindRedis:
		r, err := OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.Prefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Kind)
	}
}
