package cache

import "time"

// Config holds the cache sizing read from the environment.
type Config struct {
	Dir              string        `env:"CACHE_DIR" envDefault:".cache/subledger"`
	MemoryMaxEntries int           `env:"CACHE_MEMORY_MAX_ENTRIES" envDefault:"1000"`
	DiskMaxEntries   int           `env:"CACHE_DISK_MAX_ENTRIES" envDefault:"10000"`
	DefaultTTL       time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"5m"`
	SweepInterval    time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m"`
}
