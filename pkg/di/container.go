package di

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/internal/storefs"
	"github.com/goliatone/go-method-cache/internal/storemem"
	"github.com/goliatone/go-method-cache/internal/storesql"
	"github.com/goliatone/go-method-cache/methodcache"
)

// Container provides dependency injection for the memoization engine. It
// owns singleton instances of the codec, the store chain, and the call
// registry, and provides factory helpers for wrapping methods.
type Container struct {
	config   cache.Config
	codec    cache.Codec
	store    cache.Store
	registry *methodcache.Registry
	db       *bun.DB // non-nil for the sql backend; closed by Close
}

// NewContainer builds the store chain described by the configuration: the
// persistent backend (file or sql), optionally fronted by the in-memory
// tier, plus a fresh registry.
func NewContainer(cfg cache.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		persistent cache.Store
		db         *bun.DB
	)
	switch cfg.Backend {
	case cache.BackendFile:
		persistent = storefs.NewOS(cfg.Dir)
	case cache.BackendSQL:
		var err error
		db, err = storesql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqlStore := storesql.New(db)
		if err := sqlStore.Init(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		persistent = sqlStore
	default:
		return nil, fmt.Errorf("di: unsupported backend %q", cfg.Backend)
	}

	store := persistent
	if cfg.Memory != nil {
		store = storemem.New(*cfg.Memory, persistent)
	}

	return &Container{
		config:   cfg,
		codec:    cache.NewMsgpackCodec(),
		store:    store,
		registry: methodcache.NewRegistry(),
		db:       db,
	}, nil
}

// NewContainerWithDefaults creates a container using default configuration.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig())
}

// Store returns the assembled store chain.
func (c *Container) Store() cache.Store {
	return c.store
}

// Codec returns the singleton codec instance.
func (c *Container) Codec() cache.Codec {
	return c.codec
}

// Registry returns the container's call registry.
func (c *Container) Registry() *methodcache.Registry {
	return c.registry
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases backend resources. File-backed containers close nothing.
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// NewCachedMethod wraps instance.method through the container's store,
// codec, and registry.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewCachedMethod[Rows](container, runner,
// "Query", queryFn).
func NewCachedMethod[T any](c *Container, instance any, method string, fn methodcache.Func[T], opts ...methodcache.Option) (*methodcache.CachedMethod[T], error) {
	opts = append([]methodcache.Option{methodcache.WithCodec(c.codec)}, opts...)
	return methodcache.Wrap(c.registry, instance, method, fn, c.store, opts...)
}
