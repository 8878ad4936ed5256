package jobs

import "time"

const gib = 1 << 30

// Config holds schedules and thresholds of the background jobs.
type Config struct {
	NotificationInterval time.Duration `env:"JOBS_NOTIFICATION_INTERVAL" envDefault:"1h"`
	NotificationBackoff  time.Duration `env:"JOBS_NOTIFICATION_BACKOFF" envDefault:"5m"`
	ReminderWindow       time.Duration `env:"JOBS_REMINDER_WINDOW" envDefault:"72h"`
	LowQuotaFloor        int64         `env:"JOBS_LOW_QUOTA_BYTES" envDefault:"5368709120"`
	LowQuotaFraction     float64       `env:"JOBS_LOW_QUOTA_FRACTION" envDefault:"0"`

	CleanupInterval  time.Duration `env:"JOBS_CLEANUP_INTERVAL" envDefault:"24h"`
	CleanupBackoff   time.Duration `env:"JOBS_CLEANUP_BACKOFF" envDefault:"1h"`
	Retention        time.Duration `env:"JOBS_SERVICE_RETENTION" envDefault:"720h"`
	LogRetention     time.Duration `env:"JOBS_LOG_RETENTION" envDefault:"2160h"`
	BackupRetention  time.Duration `env:"JOBS_BACKUP_RETENTION" envDefault:"720h"`
	BackupKeep       int           `env:"JOBS_BACKUP_KEEP" envDefault:"10"`
	ProvisionTimeout time.Duration `env:"JOBS_PROVISION_TIMEOUT" envDefault:"30s"`

	HealthInterval    time.Duration `env:"JOBS_HEALTH_INTERVAL" envDefault:"5m"`
	HealthBackoff     time.Duration `env:"JOBS_HEALTH_BACKOFF" envDefault:"1m"`
	ResourceThreshold float64       `env:"JOBS_RESOURCE_THRESHOLD" envDefault:"90"`
	DiskPath          string        `env:"JOBS_DISK_PATH" envDefault:"/"`

	BackupInterval time.Duration `env:"JOBS_BACKUP_INTERVAL" envDefault:"24h"`
	BackupBackoff  time.Duration `env:"JOBS_BACKUP_BACKOFF" envDefault:"1h"`

	IterationTimeout time.Duration `env:"JOBS_ITERATION_TIMEOUT" envDefault:"10m"`
}

// DefaultConfig returns the configuration used when nothing is set in the
// environment.
func DefaultConfig() Config {
	return Config{
		NotificationInterval: time.Hour,
		NotificationBackoff:  5 * time.Minute,
		ReminderWindow:       72 * time.Hour,
		LowQuotaFloor:        5 * gib,
		CleanupInterval:      24 * time.Hour,
		CleanupBackoff:       time.Hour,
		Retention:            30 * 24 * time.Hour,
		LogRetention:         90 * 24 * time.Hour,
		BackupRetention:      30 * 24 * time.Hour,
		BackupKeep:           10,
		ProvisionTimeout:     30 * time.Second,
		HealthInterval:       5 * time.Minute,
		HealthBackoff:        time.Minute,
		ResourceThreshold:    90,
		DiskPath:             "/",
		BackupInterval:       24 * time.Hour,
		BackupBackoff:        time.Hour,
		IterationTimeout:     10 * time.Minute,
	}
}
