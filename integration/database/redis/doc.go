// Package redis connects to the Redis server that backs the push server:
// the message log, the cluster bus, presence keys and shared statistics.
//
// Connect validates the URL, retries PING with exponential backoff and
// returns a ready client:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Healthcheck returns a probe suitable for the readiness endpoint.
//
// Both redis:// and rediss:// (TLS) URLs are accepted. Errors can be checked
// with errors.Is against ErrFailedToParseRedisConnString, ErrRedisNotReady,
// ErrEmptyConnectionURL and ErrHealthcheckFailed.
package redis
