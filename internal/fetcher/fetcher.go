package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RemoteSource retrieves the raw rate documents. Implementations never retry; the next
// scheduled cycle is the retry.
type RemoteSource interface {
	// FetchRates returns the current rate table document.
	FetchRates(ctx context.Context) ([]byte, error)
	// FetchAsOf returns the publication timestamp of the current table and its raw text.
	FetchAsOf(ctx context.Context) (time.Time, string, error)
	// FetchDated returns the rate table published for date (YYYY-MM-DD).
	FetchDated(ctx context.Context, date string) ([]byte, error)
}

// Kind classifies a fetch failure.
type Kind int

const (
	Timeout Kind = iota + 1
	Unreachable
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Unreachable:
		return "unreachable"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every RemoteSource call.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, or 0 when err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func transportError(op string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: Timeout, Op: op, Err: err}
	}
	return &Error{Kind: Unreachable, Op: op, Err: err}
}
