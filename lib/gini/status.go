// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import (
	"errors"
	"fmt"
)

// Status classifies the errors returned by this package. The zero
// value means unclassified; every error the package produces carries
// one of the four defined classes.
type Status int

const (
	// StatusInval: the caller supplied invalid or out-of-range
	// arguments, or the input bytes are not well formed per the GINI
	// format (missing header terminator, short metadata block,
	// out-of-order block index).
	StatusInval Status = iota + 1

	// StatusNoMem: an allocation failed, typically because growing
	// the output buffer would exceed its configured limit.
	StatusNoMem

	// StatusLogic: a state-machine transition was invoked in the
	// wrong state, such as starting an image that is already started.
	StatusLogic

	// StatusSystem: the codec failed, either because a destination
	// buffer was too small for the full result or because a
	// compressed stream is corrupt or truncated.
	StatusSystem
)

// String returns the conventional name of the status.
func (s Status) String() string {
	switch s {
	case StatusInval:
		return "invalid argument"
	case StatusNoMem:
		return "out of memory"
	case StatusLogic:
		return "logic error"
	case StatusSystem:
		return "system failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StatusError is the error type returned by every fallible operation
// in this package. It carries the error class inline with the
// contextual message, so callers switch on [StatusOf] rather than
// matching message text.
type StatusError struct {
	Status Status
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// statusErrorf builds a *StatusError with fmt.Errorf semantics.
// Errors are classified where they originate; layers above add
// context with plain fmt.Errorf("...: %w", err) so the class set
// here stays visible through the chain.
func statusErrorf(status Status, format string, args ...any) error {
	return &StatusError{Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf returns the class of an error produced by this package,
// or zero for nil and foreign errors. Wrapping with fmt.Errorf
// preserves the class.
func StatusOf(err error) Status {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
