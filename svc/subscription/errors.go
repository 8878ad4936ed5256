package subscription

import (
	"errors"

	"github.com/dmitrymomot/subledger/svc/ledger"
)

var (
	ErrInvalidRange  = errors.New("report range end must be after start")
	ErrInvalidUsage  = errors.New("usage must not be negative")
	ErrInvalidChatID = errors.New("chat id is required")

	ErrEmptyMessage        = errors.New("message text is required")
	ErrNotifierUnavailable = errors.New("no notifier configured")
)

// User-facing messages. They never include internal error details.
const (
	MsgInsufficientFunds = "insufficient balance"
	MsgNotFound          = "not found"
	MsgTemporary         = "temporary error, please retry"
	MsgInvalidDiscount   = "discount code is not valid"
	MsgAlreadyProcessed  = "this request was already processed"
	MsgInvalidAmount     = "amount must be positive"
	MsgInvalidRequest    = "invalid request"
)

// UserMessage maps an engine error to a message safe to show to the user.
// Insufficient funds, missing entities and temporary failures always map
// to distinct messages.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return MsgInsufficientFunds
	case errors.Is(err, ledger.ErrCodeNotFound),
		errors.Is(err, ledger.ErrCodeInactive),
		errors.Is(err, ledger.ErrInvalidDiscount):
		return MsgInvalidDiscount
	case errors.Is(err, ledger.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, ledger.ErrInvalidState):
		return MsgAlreadyProcessed
	case errors.Is(err, ledger.ErrInvalidAmount):
		return MsgInvalidAmount
	case errors.Is(err, ledger.ErrDuplicateCode),
		errors.Is(err, ledger.ErrInvalidService),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidUsage),
		errors.Is(err, ErrInvalidChatID),
		errors.Is(err, ErrEmptyMessage):
		return MsgInvalidRequest
	default:
		// provisioning and store failures, and anything unexpected
		return MsgTemporary
	}
}
