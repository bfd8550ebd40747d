// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func validTicket() Ticket {
	return Ticket{
		TicketID:  "ticket_20260320_123456",
		Status:    StatusNew,
		CreatedAt: "2026-03-20T12:34:56Z",
		ProblemDetails: ProblemDetails{
			CurrentTemp: 24.0,
			DesiredTemp: 22.0,
			TimeOfDay:   "afternoon",
			Duration:    "more_than_hour",
		},
		DialogHistory: []DialogTurn{
			{Step: "welcome", UserInput: "not working", Timestamp: "2026-03-20T12:30:00Z"},
			{Step: "current_temp", UserInput: "24", Timestamp: "2026-03-20T12:30:30Z"},
		},
		DeviceInfo: DeviceInfo{Type: DeviceTypeThermostat, ErrorState: true},
	}
}

func TestValidateAcceptsCompleteTicket(t *testing.T) {
	ticket := validTicket()
	if err := ticket.Validate(); err != nil {
		t.Fatalf("Validate on complete ticket: %v", err)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	ticket := validTicket()
	ticket.TicketID = "tkt-wrong"
	ticket.Status = "open"
	ticket.ProblemDetails.TimeOfDay = "noonish"

	err := ticket.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid ticket")
	}
	message := err.Error()
	for _, fragment := range []string{"ticket_id", "status", "time_of_day"} {
		if !strings.Contains(message, fragment) {
			t.Fatalf("joined error %q missing %q", message, fragment)
		}
	}
}

func TestValidateRejectsBadTimestamps(t *testing.T) {
	ticket := validTicket()
	ticket.CreatedAt = "20th March"
	if err := ticket.Validate(); err == nil {
		t.Fatal("Validate accepted a non-RFC3339 created_at")
	}

	ticket = validTicket()
	ticket.DialogHistory[0].Timestamp = "yesterday"
	if err := ticket.Validate(); err == nil {
		t.Fatal("Validate accepted a non-RFC3339 history timestamp")
	}
}

func TestFormatID(t *testing.T) {
	createdAt := time.Date(2026, 3, 20, 12, 34, 56, 0, time.UTC)

	if got := FormatID(createdAt, 0); got != "ticket_20260320_123456" {
		t.Fatalf("FormatID sequence 0 = %q", got)
	}
	if got := FormatID(createdAt, 2); got != "ticket_20260320_123456_2" {
		t.Fatalf("FormatID sequence 2 = %q", got)
	}
	if got := FormatID(createdAt, 3); got != "ticket_20260320_123456_3" {
		t.Fatalf("FormatID sequence 3 = %q", got)
	}
}

func TestFormatIDUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)
	local := time.Date(2026, 3, 20, 14, 0, 0, 0, zone)
	if got := FormatID(local, 0); got != "ticket_20260320_120000" {
		t.Fatalf("FormatID in UTC+2 = %q, want UTC rendering", got)
	}
}

func TestExternalJSONShape(t *testing.T) {
	data, err := json.Marshal(validTicket())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	// Field-exact external representation.
	for _, key := range []string{"ticket_id", "status", "created_at", "problem_details", "dialog_history", "device_info"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("serialized ticket missing top-level key %q", key)
		}
	}

	problem := decoded["problem_details"].(map[string]any)
	for _, key := range []string{"current_temp", "desired_temp", "time_of_day", "duration"} {
		if _, ok := problem[key]; !ok {
			t.Fatalf("problem_details missing key %q", key)
		}
	}

	history := decoded["dialog_history"].([]any)
	first := history[0].(map[string]any)
	for _, key := range []string{"step", "user_input", "timestamp"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("dialog_history entry missing key %q", key)
		}
	}

	device := decoded["device_info"].(map[string]any)
	for _, key := range []string{"type", "error_state"} {
		if _, ok := device[key]; !ok {
			t.Fatalf("device_info missing key %q", key)
		}
	}
}
