package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

// Notifier delivers a text message to a chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Broadcast sends text to every chat and returns how many deliveries
// succeeded. Failures do not stop the remaining deliveries; they are
// joined into the returned error.
func Broadcast(ctx context.Context, n Notifier, chatIDs []int64, text string) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, id := range chatIDs {
		if err := n.SendMessage(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// LogNotifier writes messages to the log instead of delivering them.
// Used when no bot token is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l.With(logger.Component("notify"))}
}

func (n *LogNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	n.logger.InfoContext(ctx, "notification", logger.ChatID(chatID), slog.String("text", text))
	return nil
}
