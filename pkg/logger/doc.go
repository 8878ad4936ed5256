// Package logger builds *slog.Logger instances for the subledger binary and
// its background jobs.
//
// New takes functional options: output format, level, static attributes and
// ContextExtractor callbacks that pull values (environment, request id) out
// of a context.Context on every record. WithEnvironment applies the preset
// used by cmd/subledger: readable text at debug level in development, JSON at
// info level in staging and production.
//
// Attribute helpers (ChatID, TransactionID, Job, Amount, ...) keep key names
// consistent across the engine, the jobs and the HTTP surface:
//
//	log := logger.New(logger.WithEnvironment("production", "subledger"))
//	log.InfoContext(ctx, "purchase completed",
//		logger.ChatID(user.ChatID),
//		logger.UserServiceID(us.ID),
//		logger.Amount(price),
//	)
package logger
