package notify

import "errors"

var (
	ErrMissingToken = errors.New("bot token is required")
	ErrInvalidChat  = errors.New("invalid chat id")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrDelivery     = errors.New("message delivery failed")
	ErrRateLimited  = errors.New("bot api rate limit")
	ErrChatBlocked  = errors.New("chat unavailable")
)
