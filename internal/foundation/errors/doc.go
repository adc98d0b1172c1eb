// Package errors provides foundational, type-safe error primitives used across ibeventd.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, connection, script, bind, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, fixed delay, user action)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - CLI adapter for exit-code mapping and presentation
//
// Example usage:
//
//	err := errors.ConnectionError("gateway unreachable").
//		WithContext("host", cfg.Host).
//		WithContext("attempts", attempts).
//		Build()
package errors
