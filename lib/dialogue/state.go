// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

// State identifies a position in the conversation machine. The string
// values appear in history records and in the persisted ticket's
// dialog_history, so they are storage constants.
type State string

const (
	StateWelcome       State = "welcome"
	StateCurrentTemp   State = "current_temp"
	StateDesiredTemp   State = "desired_temp"
	StateTimeOfDay     State = "time_of_day"
	StateDurationCheck State = "duration_check"
	StateCreateTicket  State = "create_ticket"
	StateWaitHour      State = "wait_hour"
	StateTicketCreated State = "ticket_created"
	StateEnd           State = "end_conversation"
)

// Terminal reports whether the state accepts no further input.
func (s State) Terminal() bool {
	return s == StateTicketCreated || s == StateEnd
}

// TimeOfDay is a recognized time bucket.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
)

// Duration is how long the problem has persisted. Ambiguous input
// resolves to DurationUnknown rather than failing: duration does not
// gate ticket eligibility as strictly as the temperatures do.
type Duration string

const (
	DurationLessThanHour Duration = "less_than_hour"
	DurationMoreThanHour Duration = "more_than_hour"
	DurationUnknown      Duration = "unknown"
)
