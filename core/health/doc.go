// Package health provides bunrouter handlers for service health monitoring.
//
// Handlers:
//   - Liveness: process is running (no dependency checks)
//   - Readiness: all dependencies are available
//
// Usage:
//
//	r.GET("/health/live", health.Liveness)
//	r.GET("/health/ready", health.Readiness(logger, redis.Healthcheck(client)))
//
// Dependency checks must follow func(context.Context) error signature.
package health
