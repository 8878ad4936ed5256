package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/ratelimit"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type requestIDKey struct{}

type clientIPKey struct{}

// RequestIDFromContext returns the identifier assigned by the request id
// middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDExtractor adds the request id to every log record written with
// a request context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := RequestIDFromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}

// requestID keeps a well formed incoming X-Request-ID and replaces anything
// else with a fresh uuid.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// clientIP resolves the caller address from proxy headers, falling back to
// the connection address.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, resolveIP(r))))
	})
}

func resolveIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for candidate := range strings.SplitSeq(fwd, ",") {
			if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

func clientIPFrom(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return resolveIP(r)
}

// byClientIP keys rate limiting by the resolved caller address.
func byClientIP(r *http.Request) string {
	return "ip:" + clientIPFrom(r)
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("client_ip", clientIPFrom(r)),
			logger.Duration(time.Since(start)),
		)
	})
}

// adminOnly checks the bearer token. Callers failing too often are locked
// out for the configured block time, even with the right token.
func (a *API) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "admin:" + clientIPFrom(r)
		var lockout *ratelimit.Lockout
		if a.guard != nil {
			lockout = a.guard.Lockout()
		}

		if lockout != nil {
			if err := lockout.Check(key); err != nil {
				a.fail(w, r, err)
				return
			}
		}

		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || a.cfg.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.AdminToken)) != 1 {
			a.logger.WarnContext(r.Context(), "admin authentication failed", slog.String("client_ip", clientIPFrom(r)))
			if lockout != nil {
				if err := lockout.Fail(key); err != nil {
					a.fail(w, r, err)
					return
				}
			}
			a.fail(w, r, ErrUnauthorized)
			return
		}

		if lockout != nil {
			lockout.Succeed(key)
		}
		next.ServeHTTP(w, r)
	})
}

// admit applies the per-user admission window to chatID.
func (a *API) admit(ctx context.Context, chatID int64) error {
	if a.guard != nil && !a.guard.Admit(ctx, chatID) {
		return ErrRateLimited
	}
	return nil
}
