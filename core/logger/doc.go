// Package logger provides structured logging built on log/slog.
//
// New builds a logger from functional options; WithConfig applies the
// LOG_* environment settings:
//
//	log := logger.New(
//		logger.WithConfig(cfg),
//		logger.WithContextExtractor(middleware.RequestIDExtractor),
//	)
//
// Context extractors add request-scoped attributes to every *Context call,
// so handlers logging with log.InfoContext(ctx, ...) get the request id for free.
//
// # Attributes
//
// Helpers return an empty slog.Attr for zero values, which slog drops:
//
//	log.Error("store write failed", logger.Error(err), logger.Channel(id))
//	log.Debug("store round trip", logger.Elapsed(start))
//	log.Warn("protocol error", logger.ClientIP(ip), logger.CloseCode(4013))
//
// Components that accept a logger default to Discard when none is supplied.
package logger
