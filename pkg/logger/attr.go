package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ChatID records the external chat identifier of a user under the key "chat_id".
func ChatID(id int64) slog.Attr {
	return slog.Int64("chat_id", id)
}

// ServiceID records a catalog service identifier under the key "service_id".
// If id is nil, it returns an empty Attr.
func ServiceID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("service_id", id)
}

// UserServiceID records an issued subscription identifier under the key "user_service_id".
// If id is nil, it returns an empty Attr.
func UserServiceID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_service_id", id)
}

// TransactionID records a ledger transaction identifier under the key "transaction_id".
// If id is nil, it returns an empty Attr.
func TransactionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("transaction_id", id)
}

// Handle records an external provisioning handle under the key "handle".
func Handle(h string) slog.Attr {
	if h == "" {
		return slog.Attr{}
	}
	return slog.String("handle", h)
}

// Amount records a monetary amount under the key "amount".
// Values implementing fmt.Stringer (decimal amounts) are logged as strings.
func Amount(v any) slog.Attr {
	if s, ok := v.(interface{ String() string }); ok {
		return slog.String("amount", s.String())
	}
	return slog.Any("amount", v)
}

// Job records the background job name under the key "job".
func Job(name string) slog.Attr {
	return slog.String("job", name)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
