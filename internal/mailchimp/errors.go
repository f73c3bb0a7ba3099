package mailchimp

import (
	"errors"
	"fmt"
)

// ErrInvalidKeyFormat is returned when an API key carries no datacenter
// suffix and the account host cannot be resolved.
var ErrInvalidKeyFormat = errors.New("mailchimp: API key has no datacenter suffix")

// ErrorKind classifies gateway failures for the caller's retry policy.
type ErrorKind string

const (
	// KindConnectivity covers DNS, TLS, timeout and other transport
	// failures. Retryable.
	KindConnectivity ErrorKind = "connectivity"
	// KindClient covers 4xx responses. Terminal, except the documented
	// "Member Exists" case.
	KindClient ErrorKind = "client"
	// KindServer covers 5xx responses. Retryable.
	KindServer ErrorKind = "server"
)

// APIError is the classified failure of one gateway call. The gateway
// never retries; callers decide based on Kind.
type APIError struct {
	Kind   ErrorKind
	Status int
	Title  string
	Detail string
	cause  error
}

func (e *APIError) Error() string {
	if e.Kind == KindConnectivity {
		return fmt.Sprintf("mailchimp: connectivity error: %v", e.cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("mailchimp: API error (status %d): %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("mailchimp: API error (status %d)", e.Status)
}

func (e *APIError) Unwrap() error { return e.cause }

// Retryable reports whether the failure is worth another attempt on a
// later cycle.
func (e *APIError) Retryable() bool {
	return e.Kind == KindConnectivity || e.Kind == KindServer
}

// IsMemberExists reports whether err is the 400 "Member Exists"
// response. Callers treat it as success: the contact is already on the
// list, which is the state the upsert was after.
func IsMemberExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == KindClient && apiErr.Title == "Member Exists"
}
