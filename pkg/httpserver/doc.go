// Package httpserver runs the HTTP surface of the service with graceful
// shutdown and probe handlers.
//
// Server listens on the configured address (or a listener given with
// WithListener), serves until the context passed to Run is cancelled and
// then shuts down within the shutdown timeout:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Signal handling is left to the caller, typically through
// signal.NotifyContext.
//
// LivenessHandler and ReadinessHandler back the /healthz and /readyz
// endpoints. Readiness runs named checks and reports the failed ones in a
// JSON body with status 503.
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
