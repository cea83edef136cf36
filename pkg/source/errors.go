package source

import (
	"fmt"
)

// Class represents a classification of fetch errors.
type Class string

const (
	// ClassClient represents 4xx client errors. Not retried.
	ClassClient Class = "client"

	// ClassServer represents 5xx server errors.
	ClassServer Class = "server"

	// ClassRateLimit represents 429 responses from the upstream.
	ClassRateLimit Class = "rate_limit"

	// ClassNetwork represents network/timeout errors.
	ClassNetwork Class = "network"
)

// FetchError represents a failed data-source request with its
// classification.
type FetchError struct {
	StatusCode int
	Class      Class
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error fetching source (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error fetching source (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the retry policy should retry this error.
// Client errors are permanent; everything else is worth another attempt.
func (e *FetchError) Transient() bool {
	return e.Class != ClassClient
}

// classify categorizes a response status or transport error.
func classify(statusCode int, err error) Class {
	if err != nil {
		return ClassNetwork
	}
	switch {
	case statusCode == 429:
		return ClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ClassClient
	case statusCode >= 500:
		return ClassServer
	default:
		return ""
	}
}
