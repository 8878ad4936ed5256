package api

import "time"

// Config holds HTTP API settings. An empty AdminToken disables every admin
// route.
type Config struct {
	AdminToken   string        `env:"API_ADMIN_TOKEN"`
	MaxBodyBytes int64         `env:"API_MAX_BODY_BYTES" envDefault:"1048576"`
	ReportWindow time.Duration `env:"API_REPORT_WINDOW" envDefault:"720h"`
	ReadyTimeout time.Duration `env:"API_READY_TIMEOUT" envDefault:"3s"`
}
