// Package middleware provides HTTP middleware for request IDs,
// structured request logging and Prometheus metrics.
package middleware
