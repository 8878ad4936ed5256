package file

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures the artifact storage backend.
type Config struct {
	Driver        string        `env:"BACKUP_STORAGE" envDefault:"local"`
	LocalDir      string        `env:"BACKUP_DIR" envDefault:"backups"`
	UploadTimeout time.Duration `env:"BACKUP_UPLOAD_TIMEOUT" envDefault:"5m"`

	S3Bucket         string `env:"BACKUP_S3_BUCKET"`
	S3Region         string `env:"BACKUP_S3_REGION"`
	S3AccessKeyID    string `env:"BACKUP_S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"BACKUP_S3_SECRET_KEY"`
	S3Endpoint       string `env:"BACKUP_S3_ENDPOINT"`
	S3Prefix         string `env:"BACKUP_S3_PREFIX"`
	S3ForcePathStyle bool   `env:"BACKUP_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// New builds the storage selected by cfg.Driver ("local" or "s3").
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(ctx, S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			AccessKeyID:    cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretKey,
			Endpoint:       cfg.S3Endpoint,
			Prefix:         cfg.S3Prefix,
			ForcePathStyle: cfg.S3ForcePathStyle,
		}, WithS3UploadTimeout(cfg.UploadTimeout))
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
