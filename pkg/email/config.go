package email

// Config holds email service configuration.
// The Postmark tokens are optional; without them New falls back to a
// DevSender writing messages to DevDir.
type Config struct {
	PostmarkServerToken  string   `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string   `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string   `env:"SENDER_EMAIL"`
	SupportEmail         string   `env:"SUPPORT_EMAIL"`
	DevDir               string   `env:"EMAIL_DEV_DIR" envDefault:".emails"`
	AlertRecipients      []string `env:"ALERT_EMAILS" envSeparator:","`
}

// PostmarkEnabled reports whether both Postmark tokens are set.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

// New returns a Postmark sender when it is configured and a DevSender
// otherwise.
func New(cfg Config, opts ...PostmarkOption) (EmailSender, error) {
	if cfg.PostmarkEnabled() {
		return NewPostmarkClient(cfg, opts...)
	}
	return NewDevSender(cfg.DevDir), nil
}
