package llm

import (
	"fmt"
	"net/http"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error may succeed on retry. This includes
// server errors (5xx) and network errors (StatusCode 0 indicates no HTTP
// response was received). Rate limiting (429) is reported separately via
// IsRateLimited so callers can apply an extended delay.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsRateLimited returns true if the provider rejected the call for quota or
// rate reasons.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsAuthFailure returns true if the call failed due to invalid or missing
// credentials. Retrying an auth failure can never succeed.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MalformedResponseError indicates the provider answered but the payload
// violated the analysis JSON contract.
type MalformedResponseError struct {
	// Provider is the name of the LLM provider.
	Provider string
	// Detail describes what was wrong with the payload.
	Detail string
	// Cause is the underlying parse or validation error.
	Cause error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed analysis response: %s", e.Provider, e.Detail)
}

// Unwrap returns the underlying cause error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}
