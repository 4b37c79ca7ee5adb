package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
)

var errNotConfigured = errors.New("gateway: client not configured")

// ReadKind partitions ledger read failures for the fallback policy upstream.
type ReadKind int

const (
	// ReadTimeout covers deadline expiry; treated like any other fetch
	// failure by callers.
	ReadTimeout ReadKind = iota
	// ReadUnavailable covers transport and node errors.
	ReadUnavailable
	// ReadReverted covers calls a contract rejected.
	ReadReverted
	// ReadNotFound covers missing blocks, transactions, or contracts.
	ReadNotFound
)

// String implements fmt.Stringer.
func (k ReadKind) String() string {
	switch k {
	case ReadTimeout:
		return "timeout"
	case ReadUnavailable:
		return "unavailable"
	case ReadReverted:
		return "reverted"
	case ReadNotFound:
		return "not_found"
	}
	return fmt.Sprintf("read_kind(%d)", int(k))
}

// ReadError is the typed outcome of every failed ledger read. Aggregation
// code downstream never sees raw RPC errors; fallback decisions key off
// Kind in one place.
type ReadError struct {
	Kind ReadKind
	Op   string
	Err  error
}

// Error implements error.
func (e *ReadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("gateway: %s read failed (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ReadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsReadError extracts a ReadError from an error chain.
func AsReadError(err error) (*ReadError, bool) {
	var readErr *ReadError
	if errors.As(err, &readErr) {
		return readErr, true
	}
	return nil, false
}

// read runs fn under the call timeout and converts any failure into a
// ReadError. This is the single safe-read combinator for the whole gateway.
func (c *Client) read(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := fn(callCtx); err != nil {
		return &ReadError{Kind: classifyReadErr(err), Op: op, Err: err}
	}
	return nil
}

func classifyReadErr(err error) ReadKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReadTimeout
	case errorsIsNotFound(err):
		return ReadNotFound
	case strings.Contains(err.Error(), "execution reverted"):
		return ReadReverted
	default:
		return ReadUnavailable
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
