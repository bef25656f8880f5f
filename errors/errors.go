package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable indicates that an upstream model provider errored
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAllProvidersFailed indicates that every configured provider in a chain errored
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
