package provisioning

import "time"

// Config holds the panel connection settings. An empty URL disables the
// panel client; callers fall back to the in-process MemoryProvisioner.
type Config struct {
	URL                     string        `env:"PANEL_URL"`
	Username                string        `env:"PANEL_USERNAME"`
	Password                string        `env:"PANEL_PASSWORD"`
	RequestTimeout          time.Duration `env:"PANEL_REQUEST_TIMEOUT" envDefault:"15s"`
	ReadRetries             int           `env:"PANEL_READ_RETRIES" envDefault:"3"`
	RetryInterval           time.Duration `env:"PANEL_RETRY_INTERVAL" envDefault:"500ms"`
	CircuitFailureThreshold int           `env:"PANEL_CIRCUIT_FAILURES" envDefault:"5"`
	CircuitRecoveryTimeout  time.Duration `env:"PANEL_CIRCUIT_RECOVERY" envDefault:"30s"`
	InboundsCacheTTL        time.Duration `env:"PANEL_INBOUNDS_CACHE_TTL" envDefault:"5m"`
}

// Enabled reports whether a panel URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}
