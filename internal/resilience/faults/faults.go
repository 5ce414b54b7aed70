// Package faults defines the closed error taxonomy used at every external
// collaborator boundary: Transient failures are retried, Permanent failures
// are recorded and skipped, Critical failures abort the whole run.
// Errors that no boundary has mapped explicitly classify as Critical, so an
// unexpected failure is surfaced instead of silently retried.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind is the failure classification.
type Kind int

const (
	// KindTransient marks retryable failures: network timeouts, 5xx
	// responses, rate-limit rejections.
	KindTransient Kind = iota

	// KindPermanent marks non-retryable failures scoped to one item or
	// source: most 4xx responses, malformed upstream payloads.
	KindPermanent

	// KindCritical marks failures that abort the entire run: missing
	// credentials, invalid configuration, anything unclassified.
	KindCritical
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "critical"
	}
}

// Error is a classified failure from an external service boundary.
type Error struct {
	Kind    Kind
	Service string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Service, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure of the named service.
func Transient(service string, err error) *Error {
	return &Error{Kind: KindTransient, Service: service, Err: err}
}

// Permanent wraps err as a non-retryable, source-scoped failure.
func Permanent(service string, err error) *Error {
	return &Error{Kind: KindPermanent, Service: service, Err: err}
}

// Critical wraps err as a run-aborting failure.
func Critical(service string, err error) *Error {
	return &Error{Kind: KindCritical, Service: service, Err: err}
}

// HTTPError carries an upstream HTTP status for classification.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Classify maps an arbitrary error into the taxonomy.
//
// Mapping rules, in order:
//   - an already-classified *Error keeps its kind
//   - context cancellation / deadline expiry is Permanent (the run is
//     being abandoned, further retries are pointless)
//   - network timeouts and connection-level syscall errors are Transient
//   - HTTP 429/408/5xx are Transient; all other 4xx are Permanent
//     (a rejected credential fails that source, not the run; Critical is
//     reserved for credentials that are absent before any request is made)
//   - anything else is Critical (fail safe, never silently swallowed)
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindTransient
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout,
			httpErr.StatusCode >= 500 && httpErr.StatusCode < 600:
			return KindTransient
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return KindPermanent
		}
	}

	return KindCritical
}

// IsTransient reports whether err classifies as retryable.
func IsTransient(err error) bool { return err != nil && Classify(err) == KindTransient }

// IsPermanent reports whether err classifies as a skip-and-continue failure.
func IsPermanent(err error) bool { return err != nil && Classify(err) == KindPermanent }

// IsCritical reports whether err classifies as run-aborting.
func IsCritical(err error) bool { return err != nil && Classify(err) == KindCritical }

// FromHTTPStatus builds a classified error for an upstream HTTP response.
func FromHTTPStatus(service string, status int, message string) *Error {
	httpErr := &HTTPError{StatusCode: status, Message: message}
	return &Error{Kind: Classify(httpErr), Service: service, Err: httpErr}
}
