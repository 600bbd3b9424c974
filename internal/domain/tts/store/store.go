package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"mochimon-server-go/internal/domain/tts/inter"
)

// Driver identifiers supported by the TTS cache metadata store.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config describes the metadata store selection parameters.
type Config struct {
	Driver string
	// CacheTTL enables the in-process read-through cache when positive.
	CacheTTL time.Duration
	// ExpireAtHorizon lets drivers with native expiry drop entries once
	// their cache horizon passes. Only set when the horizon is enforced.
	ExpireAtHorizon bool
	Redis           *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a metadata store based on the provided configuration.
func New(cfg Config, deps Dependencies) (inter.MetadataStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	var (
		s   inter.MetadataStore
		err error
	)
	switch driver {
	case DriverMemory:
		s = NewMemory()
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		s, err = NewSQLite(deps.SQLiteDB)
	case DriverRedis:
		s, err = NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported tts store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL > 0 {
		s = NewCached(s, cfg.CacheTTL)
	}
	return s, nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", inter.ErrEntryNotFound, key)
}
