package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/ratelimit"
	"github.com/dmitrymomot/subledger/svc/backup"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/provisioning"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

// Response is the JSON envelope of every API answer.
type Response struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// classify maps an error to its status code and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidParam):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrRateLimited), errors.Is(err, ratelimit.ErrLockedOut):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, ledger.ErrCodeNotFound),
		errors.Is(err, ledger.ErrCodeInactive),
		errors.Is(err, ledger.ErrInvalidDiscount):
		return http.StatusUnprocessableEntity, "invalid_discount"
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, provisioning.ErrInboundNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrDuplicateCode),
		errors.Is(err, ledger.ErrUserExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidService),
		errors.Is(err, subscription.ErrInvalidRange),
		errors.Is(err, subscription.ErrInvalidUsage),
		errors.Is(err, subscription.ErrInvalidChatID),
		errors.Is(err, subscription.ErrEmptyMessage),
		errors.Is(err, backup.ErrInvalidKind):
		return http.StatusUnprocessableEntity, "invalid_request"
	case errors.Is(err, ledger.ErrProvisioningFailed),
		errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, provisioning.ErrPanelBusy),
		errors.Is(err, provisioning.ErrCircuitOpen),
		errors.Is(err, provisioning.ErrTemporaryFailure),
		errors.Is(err, provisioning.ErrTimeout),
		errors.Is(err, subscription.ErrNotifierUnavailable),
		errors.Is(err, backup.ErrExportFailed):
		return http.StatusServiceUnavailable, "temporarily_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func message(status int, err error) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return subscription.MsgInvalidRequest
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusTooManyRequests:
		return "too many requests, slow down"
	}
	return subscription.UserMessage(err)
}

// fail writes the error response. Expected outcomes are not logged;
// server side failures are logged at error level.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, Response{Error: &ErrorDetail{Code: code, Message: message(status, err)}})
}
