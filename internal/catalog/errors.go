package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Kind classifies adapter failures for retry decisions, metrics labels,
// and search error records.
type Kind string

const (
	// KindConnection covers DNS, TCP, TLS, and remote-fault HTTP statuses.
	KindConnection Kind = "connection"
	// KindTimeout covers cancellation by any of the request, system, or
	// global deadlines.
	KindTimeout Kind = "timeout"
	// KindAuth covers missing or rejected credentials.
	KindAuth Kind = "auth"
	// KindRateLimit covers HTTP 429 and equivalent upstream signals.
	KindRateLimit Kind = "rate_limit"
	// KindParse covers malformed bodies and missing structural markers.
	KindParse Kind = "parse"
	// KindUnknown is the catch-all; the cause is preserved.
	KindUnknown Kind = "unknown"
)

// Error is the classified failure every adapter raises. SystemID and
// Protocol give the coordinator enough context to build an error record
// without re-deriving it.
type Error struct {
	Kind     Kind
	Op       string
	SystemID string
	Protocol domain.Protocol
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s [%s]: %v", e.SystemID, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err. Unwrapped context
// cancellations count as timeouts; anything else unclassified is
// KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether err's class is worth another attempt.
// Connection, timeout, and unknown errors are transient; auth,
// rate-limit, and parse errors will not improve on retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// Classify wraps a raw error with adapter identity, mapping transport
// failures to their kinds. Existing *Error values pass through
// unchanged so concrete adapters keep their own classification.
func Classify(err error, systemID string, protocol domain.Protocol, op string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: rawKind(err), Op: op, SystemID: systemID, Protocol: protocol, Err: err}
}

func rawKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnection
	}
	return KindUnknown
}
