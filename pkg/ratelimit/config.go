package ratelimit

import "time"

// Config sizes the process-wide guard.
type Config struct {
	MaxConcurrentRequests int           `env:"GUARD_MAX_CONCURRENT_REQUESTS" envDefault:"100"`
	AdmissionWindow       time.Duration `env:"GUARD_ADMISSION_WINDOW" envDefault:"1s"`
	ConnectionPoolSize    int           `env:"GUARD_CONNECTION_POOL_SIZE" envDefault:"20"`
	MaxLoginAttempts      int           `env:"GUARD_MAX_LOGIN_ATTEMPTS" envDefault:"3"`
	BlockTime             time.Duration `env:"GUARD_BLOCK_TIME" envDefault:"30m"`
	CleanupInterval       time.Duration `env:"GUARD_CLEANUP_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns the values used when no environment is loaded.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 100,
		AdmissionWindow:       time.Second,
		ConnectionPoolSize:    20,
		MaxLoginAttempts:      3,
		BlockTime:             30 * time.Minute,
		CleanupInterval:       time.Minute,
	}
}
