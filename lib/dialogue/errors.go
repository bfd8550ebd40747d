// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a caller references an unknown
// or expired dialogue id. Fatal for that call, not for the process.
var ErrSessionNotFound = errors.New("dialogue: session not found")

// ValidationKind classifies why user input was not accepted for the
// current state.
type ValidationKind string

const (
	// KindOutOfRange marks a temperature outside the accepted range.
	KindOutOfRange ValidationKind = "out_of_range"

	// KindNoNumberFound marks temperature input with no number in it.
	KindNoNumberFound ValidationKind = "no_number_found"

	// KindUnrecognizedTime marks time-of-day input that matched no
	// known bucket.
	KindUnrecognizedTime ValidationKind = "unrecognized_time_expression"

	// KindRejected marks input caught by the denylist, or an empty
	// problem description.
	KindRejected ValidationKind = "rejected"
)

// ValidationError reports unusable input. It is internal to the turn
// loop: the engine converts it to a re-prompt and never surfaces it
// as a hard failure.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dialogue: invalid input (%s): %s", e.Kind, e.Message)
}

// AsValidationError unwraps err to a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}

// PersistenceError reports a ticket write failure. It is the one
// error class a caller sees as an explicit mid-conversation failure;
// the session is preserved so the next turn retries assembly.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("dialogue: persisting ticket: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
