// Package transport implements the HTTP client for the backend collaborator.
package transport

import "fmt"

// NetworkError means the transport itself failed; no HTTP status exists.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Status is always 0 for a NetworkError.
func (e *NetworkError) StatusCode() int { return 0 }

// RequestError is a non-2xx response, or a 2xx envelope with success=false.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d %s): %s", e.Status, e.Code, e.Message)
}

func (e *RequestError) StatusCode() int { return e.Status }

// ParseError means the response body could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response body: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AuthError is a 401/403. The client attempts one credential refresh before
// surfacing it; a surfaced AuthError means the session is no longer valid.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d %s): %s", e.Status, e.Code, e.Message)
}

func (e *AuthError) StatusCode() int { return e.Status }

// ValidationError rejects a mutation before any network call is made.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid mutation arguments: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
