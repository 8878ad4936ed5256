package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// endpoint handles a request whose JSON body was decoded into req. It
// returns the status and the payload of a successful answer.
type endpoint[R any] func(r *http.Request, req R) (int, any, error)

// noBody marks endpoints that do not read a request body.
type noBody struct{}

func handle[R any](a *API, fn endpoint[R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		if _, skip := any(req).(noBody); !skip {
			if err := decodeJSON(r, &req); err != nil {
				a.fail(w, r, err)
				return
			}
		}

		status, data, err := fn(r, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if data == nil {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, Response{Data: data})
	}
}

// decodeJSON strictly decodes an application/json body into v.
func decodeJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: expected application/json", ErrUnsupportedMediaType)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return errors.Join(ErrInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return nil
}

func chatIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "chatID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: chat id %q", ErrInvalidParam, raw)
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q", ErrInvalidParam, name, raw)
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidParam, name, raw)
	}
	return n, nil
}

// intQuery parses a non-negative integer query value, returning def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidParam, name, raw)
	}
	return n, nil
}

// timeQuery parses an RFC 3339 query value, returning def when absent.
func timeQuery(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", ErrInvalidParam, name)
	}
	return t, nil
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q", ErrInvalidParam, field, raw)
	}
	return id, nil
}
