// Package ratelimit provides per-key request rate limiting for the HTTP API.
package ratelimit

import "context"

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow reports whether the request for key is within its budget.
	Allow(ctx context.Context, key string) (bool, error)
	// Close releases resources held by the limiter.
	Close()
}

// NoopLimiter allows every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Close()                                      {}
