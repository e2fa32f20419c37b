package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed chat call.
type Kind string

const (
	KindConnectivity   Kind = "connectivity"
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindOther          Kind = "other"
)

// Error is a classified transport failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Remediation returns the text shown to the user for this failure.
func (e *Error) Remediation(dev bool) string {
	if e.Kind == KindOther {
		return "Sorry, something went wrong. " + e.Error()
	}
	return Remediation(e.Kind, dev)
}

// Classify builds an Error from a status code (0 when no response was
// received), a message and the underlying cause.
func Classify(status int, message string, cause error) *Error {
	return &Error{
		Kind:    kindOf(status, message, cause),
		Status:  status,
		Message: message,
		Err:     cause,
	}
}

func kindOf(status int, message string, cause error) Kind {
	lower := strings.ToLower(message)
	switch {
	// Cause checks come first: a client error message embeds the URL,
	// whose port may contain "401" or "429".
	case status == 0 && isTimeout(cause):
		// The server may be up but slow; it is not a reachability problem.
		return KindOther
	case status == 0 && isNetworkError(cause):
		return KindConnectivity
	case status == http.StatusUnauthorized,
		strings.Contains(lower, "401"),
		strings.Contains(lower, "authentication"):
		return KindAuthentication
	case status == http.StatusTooManyRequests,
		strings.Contains(lower, "429"),
		strings.Contains(lower, "rate limit"):
		return KindRateLimit
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"):
		return KindConnectivity
	default:
		return KindOther
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &netErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

// Remediation returns the user-facing advice for a failure kind.
func Remediation(kind Kind, dev bool) string {
	const prefix = "Sorry, something went wrong. "
	switch kind {
	case KindConnectivity:
		if dev {
			return prefix + "⚠️ Cannot reach the server.\n\n✅ Fix:\n" +
				"1. Open a terminal\n2. Go to the project folder\n3. Run: go run ./cmd/server\n4. Reload this page"
		}
		return prefix + "⚠️ Connection error. Please reload the page."
	case KindAuthentication:
		return prefix + "🔑 Authentication error. Check ANTHROPIC_API_KEY on the server."
	case KindRateLimit:
		return prefix + "⏱️ Request limit exceeded. Please wait a moment."
	default:
		return prefix + "Please try again."
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func httpStatusMessage(status int) string {
	return fmt.Sprintf("HTTP Error %d: %s", status, http.StatusText(status))
}
