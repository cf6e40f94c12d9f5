package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backend selects the persistent store implementation.
const (
	BackendFile = "file"
	BackendSQL  = "sql"
)

// Config exposes cache configuration options for consumers of the engine.
// Store construction from a Config happens in pkg/di; this package only
// defines and validates the shape.
type Config struct {
	// Backend is the persistent store kind: BackendFile or BackendSQL.
	Backend string

	// Dir is the root directory of the file backend.
	Dir string

	// Driver is the SQL driver name for the sql backend: "sqlite3" or
	// "postgres".
	Driver string

	// DSN is the SQL data source for the sql backend.
	DSN string

	// Memory optionally layers an in-memory read tier in front of the
	// persistent store. The persistent store remains the source of truth;
	// the tier only accelerates repeat hits and may expire independently.
	Memory *MemoryConfig
}

// MemoryConfig mirrors the options of the underlying sturdyc client.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
}

// DefaultConfig returns a Config populated with sensible defaults: a file
// backend rooted at .methodcache with a memory tier in front.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Dir:     ".methodcache",
		Memory:  DefaultMemoryConfig(),
	}
}

// DefaultMemoryConfig returns the default front-tier settings.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendSQL)),
		validation.Field(&c.Dir, validation.Required.When(c.Backend == BackendFile)),
		validation.Field(&c.Driver,
			validation.Required.When(c.Backend == BackendSQL),
			validation.When(c.Backend == BackendSQL, validation.In("sqlite3", "postgres"))),
		validation.Field(&c.DSN, validation.Required.When(c.Backend == BackendSQL)),
	)
	if err != nil {
		return err
	}
	if c.Memory != nil {
		return c.Memory.Validate()
	}
	return nil
}

// Validate checks the memory tier settings.
func (m MemoryConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&m.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&m.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&m.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
	)
}
