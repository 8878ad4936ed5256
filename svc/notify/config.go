package notify

import "time"

// Config configures outbound notifications.
type Config struct {
	BotToken     string        `env:"TELEGRAM_BOT_TOKEN"`
	APIURL       string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	Timeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	AdminChatIDs []int64       `env:"NOTIFY_ADMIN_CHAT_IDS" envSeparator:","`
	Language     string        `env:"NOTIFY_LANGUAGE" envDefault:"en"`
	Currency     string        `env:"NOTIFY_CURRENCY" envDefault:"Toman"`
}

// Enabled reports whether a bot token is configured.
func (c Config) Enabled() bool {
	return c.BotToken != ""
}
