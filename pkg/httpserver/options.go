package httpserver

import (
	"log/slog"
	"net"
	"time"
)

// Option configures the HTTP server. Zero and negative values are ignored
// so options can be fed straight from configuration.
type Option func(*config)

// WithAddr sets the address the server listens on.
func WithAddr(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.addr = addr
		}
	}
}

// WithListener serves on an existing listener instead of opening Addr.
func WithListener(l net.Listener) Option {
	return func(c *config) { c.listener = l }
}

// WithReadTimeout sets the maximum duration for reading the entire request.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithWriteTimeout sets the maximum duration before timing out writes of the response.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithIdleTimeout sets how long keep-alive connections wait for the next request.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithShutdownTimeout sets the time allowed for graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStartHook registers a callback that runs once the listener is bound.
func WithStartHook(h func(addr net.Addr)) Option {
	return func(c *config) {
		if h != nil {
			c.startHooks = append(c.startHooks, h)
		}
	}
}

// WithStopHook registers a callback that runs after the server shut down.
func WithStopHook(h func()) Option {
	return func(c *config) {
		if h != nil {
			c.stopHooks = append(c.stopHooks, h)
		}
	}
}
