package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the closed taxonomy every gateway failure maps into. Callers react
// to the kind, never to raw transport errors.
type Kind string

// Failure kinds.
const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection_error"
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindUpstream   Kind = "upstream_error"
)

// Error is the tagged failure returned by every client operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream: %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream: %s: %s: %s", e.Op, e.Kind, e.Message)
}

// Retryable reports whether the caller may retry the operation. Only
// timeouts and connection failures qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnection
}

// AsError unwraps err into a gateway *Error when possible.
func AsError(err error) (*Error, bool) {
	var ue *Error
	ok := errors.As(err, &ue)
	return ue, ok
}

// classifyTransport maps a transport-level failure. Deadline expiry becomes
// Timeout; everything else that prevented a response is Connection.
func classifyTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Message: "upstream did not respond within deadline"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Message: "upstream did not respond within deadline"}
	}
	return &Error{Kind: KindConnection, Op: op, Message: err.Error()}
}

// classifyStatus maps a non-2xx response, preserving the upstream message.
func classifyStatus(op string, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: status, Message: message}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindBadRequest, Op: op, Status: status, Message: message}
	default:
		return &Error{Kind: KindUpstream, Op: op, Status: status, Message: message}
	}
}
