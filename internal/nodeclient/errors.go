package nodeclient

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnreachable = errors.New("node: host unreachable or transport failure")
	ErrTimeout     = errors.New("node: request timed out")
	ErrConflict    = errors.New("node: operation conflicts with node state")
	ErrNodeError   = errors.New("node: internal error (5xx)")
	ErrBadResponse = errors.New("node: invalid response format or malformed data")
)

// NodeError is a rich error type that wraps the sentinel errors with context.
type NodeError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *NodeError) Error() string {
	msg := fmt.Sprintf("nodeclient: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NodeError) Unwrap() error {
	return e.Sentinel
}
