// Package middleware provides bunrouter middleware for the push server
// listeners.
//
//   - RequestID assigns an X-Request-ID to every request and stores it in
//     the request context (see RequestIDExtractor for logging).
//   - ClientIP resolves the client address once per request.
//   - BodyLimit answers 413 to bodies over the configured payload limit.
//   - Logging logs every completed request with its status and duration.
//
// Usage:
//
//	router := bunrouter.New(bunrouter.Use(
//		middleware.RequestID(),
//		middleware.ClientIP(),
//		middleware.Logging(log),
//	))
package middleware
