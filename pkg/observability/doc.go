// Package observability provides structured logging, Prometheus metrics,
// and health checks for the quillhub permission service.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("permission resolved")
//
// Request-scoped loggers travel through context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	observability.FromContext(ctx).Warn("cache tier unavailable")
//
// # Metrics
//
// Metrics registers every collector on a caller-supplied registry so tests
// can use an isolated one. Cache counters are labelled by tier ("l1",
// "l2"), store counters by operation, invalidation counters by scope and
// origin ("local" for same-process purges, "bus" for purges applied from
// invalidation events).
//
// # Health
//
// HealthChecker probes the permission store and Redis. The store is a
// hard dependency (unhealthy on failure); Redis outages only degrade the
// process because both cache tiers fail open.
package observability
