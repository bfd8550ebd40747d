// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status values for a ticket's lifecycle. The dialogue engine only
// ever produces StatusNew; the other states exist for downstream
// editors (support staff tooling).
const (
	StatusNew        = "new"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// DeviceTypeThermostat is the fixed device type tag for every ticket
// this assistant produces. Other assistants in the product line carry
// their own tag.
const DeviceTypeThermostat = "smart_thermostat"

// IDPrefix starts every ticket identifier.
const IDPrefix = "ticket_"

// Ticket is the persisted support ticket record. Immutable after
// creation; ownership transfers to the ticket store on save.
//
// The JSON field names are the external contract — downstream
// support tooling parses this exact shape.
type Ticket struct {
	// TicketID is the unique identifier, format
	// "ticket_<YYYYMMDD>_<HHMMSS>" with a "_<n>" suffix when two
	// tickets are created within the same wall second.
	TicketID string `json:"ticket_id"`

	// Status is the lifecycle state: "new", "in_progress", or
	// "resolved".
	Status string `json:"status"`

	// CreatedAt is the creation timestamp, RFC 3339 / ISO-8601.
	CreatedAt string `json:"created_at"`

	// ProblemDetails holds the facts collected during the dialogue.
	ProblemDetails ProblemDetails `json:"problem_details"`

	// DialogHistory is a value copy of the conversation turns at
	// assembly time, in conversation order.
	DialogHistory []DialogTurn `json:"dialog_history"`

	// DeviceInfo identifies the device class and whether the
	// collected facts indicate a fault.
	DeviceInfo DeviceInfo `json:"device_info"`
}

// ProblemDetails is the structured fact set from the conversation.
type ProblemDetails struct {
	// CurrentTemp is the reported room temperature in °C.
	CurrentTemp float64 `json:"current_temp"`

	// DesiredTemp is the setpoint the user wants, in °C.
	DesiredTemp float64 `json:"desired_temp"`

	// TimeOfDay is the reported time bucket: "morning", "afternoon",
	// "evening", or "night".
	TimeOfDay string `json:"time_of_day"`

	// Duration is how long the fault has persisted:
	// "less_than_hour", "more_than_hour", or "unknown".
	Duration string `json:"duration"`
}

// DialogTurn is one conversation turn as recorded on the ticket.
type DialogTurn struct {
	// Step is the dialogue state that processed the input.
	Step string `json:"step"`

	// UserInput is the raw user text.
	UserInput string `json:"user_input"`

	// Timestamp is when the turn was processed, RFC 3339.
	Timestamp string `json:"timestamp"`
}

// DeviceInfo tags the ticket with its device class.
type DeviceInfo struct {
	// Type is the device class, DeviceTypeThermostat for this
	// assistant.
	Type string `json:"type"`

	// ErrorState is true when the collected facts indicate a real
	// fault (temperature gap above threshold, or a fault persisting
	// longer than an hour).
	ErrorState bool `json:"error_state"`
}

// validStatuses for Validate.
var validStatuses = map[string]bool{
	StatusNew:        true,
	StatusInProgress: true,
	StatusResolved:   true,
}

var validTimeOfDay = map[string]bool{
	"morning":   true,
	"afternoon": true,
	"evening":   true,
	"night":     true,
}

var validDuration = map[string]bool{
	"less_than_hour": true,
	"more_than_hour": true,
	"unknown":        true,
}

// Validate checks schema-level invariants. Returns all violations
// joined, not just the first, so callers can log a complete picture.
func (t *Ticket) Validate() error {
	var problems []error

	if !strings.HasPrefix(t.TicketID, IDPrefix) {
		problems = append(problems, fmt.Errorf("ticket_id %q does not start with %q", t.TicketID, IDPrefix))
	}
	if !validStatuses[t.Status] {
		problems = append(problems, fmt.Errorf("status %q is not one of new, in_progress, resolved", t.Status))
	}
	if _, err := time.Parse(time.RFC3339, t.CreatedAt); err != nil {
		problems = append(problems, fmt.Errorf("created_at %q is not RFC 3339: %w", t.CreatedAt, err))
	}
	if !validTimeOfDay[t.ProblemDetails.TimeOfDay] {
		problems = append(problems, fmt.Errorf("time_of_day %q is not a recognized bucket", t.ProblemDetails.TimeOfDay))
	}
	if !validDuration[t.ProblemDetails.Duration] {
		problems = append(problems, fmt.Errorf("duration %q is not a recognized bucket", t.ProblemDetails.Duration))
	}
	if t.DeviceInfo.Type == "" {
		problems = append(problems, errors.New("device_info.type is empty"))
	}
	for index, turn := range t.DialogHistory {
		if turn.Step == "" {
			problems = append(problems, fmt.Errorf("dialog_history[%d] has an empty step", index))
		}
		if _, err := time.Parse(time.RFC3339, turn.Timestamp); err != nil {
			problems = append(problems, fmt.Errorf("dialog_history[%d] timestamp %q is not RFC 3339", index, turn.Timestamp))
		}
	}

	return errors.Join(problems...)
}

// FormatID produces the timestamp-seeded ticket identifier. sequence
// disambiguates tickets created within the same wall second: pass 0
// for the first ticket of a second, and 2, 3, ... for subsequent
// ones (the counter suffix starts at 2 so the common case carries no
// suffix).
func FormatID(createdAt time.Time, sequence int) string {
	id := IDPrefix + createdAt.UTC().Format("20060102_150405")
	if sequence >= 2 {
		id = fmt.Sprintf("%s_%d", id, sequence)
	}
	return id
}
