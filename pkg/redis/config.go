package redis

import "time"

// Config for the optional shared cache tier. An empty REDIS_URL disables it.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                                // e.g. "redis://:password@localhost:6379/0"
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"subledger:"` // prepended to every cache key
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a connection URL was configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
