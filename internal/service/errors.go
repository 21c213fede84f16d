package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork means both network paths and all retries were exhausted.
	ErrNetwork = errors.New("network error")
	// ErrAuth means the credential was rejected.
	ErrAuth = errors.New("authentication failed")
	// ErrRateLimited is returned for HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrMissingCredential means the API key needed for resource links is not configured.
	ErrMissingCredential = errors.New("api key not configured")
	// ErrInsufficientPermission is returned when the API key lacks access (HTTP 401).
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrMalformedResponse means the response body did not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")

	ErrMissingTMDBID    = errors.New("missing tmdb id")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrEmptyURL         = errors.New("empty transfer url")

	// ErrNoResources signals that no resource type in the priority order
	// produced a usable result. It is a normal outcome, not a fault.
	ErrNoResources = errors.New("no resources found")
)

// StatusError is an unexpected HTTP status from an upstream service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, body)
}

// LoginError is returned when the transfer system refuses a login
type LoginError struct {
	Reason string
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cms login failed: %s: %v", e.Reason, e.Err)
	}
	return "cms login failed: " + e.Reason
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
