// Package gridctlerr defines the tagged error kinds surfaced by the core
// control plane, so callers can branch on failure mode without string
// matching.
package gridctlerr

import (
	"errors"
	"fmt"
)

// Kind tags the category of a core operation failure.
type Kind int

const (
	// Internal marks an invariant violation. The operation is aborted and
	// state is left consistent because mutations only apply after
	// validation.
	Internal Kind = iota
	// NotFound marks a referenced node or edge that does not exist.
	NotFound
	// InvalidArgument marks a malformed request: negative capacity, a
	// missing required field, an unknown algorithm name.
	InvalidArgument
	// Conflict marks a duplicate node id or duplicate edge.
	Conflict
	// Unavailable marks a persistence sink failure. Never propagated to the
	// caller of a core operation; logged and counted instead.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can use errors.As
// to recover it through any amount of fmt.Errorf wrapping.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged Error for op with the given kind and message.
func New(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// Wrap tags an existing error with a kind, preserving it for errors.Is/As.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal if err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
