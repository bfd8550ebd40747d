// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/hearthware/hearth/lib/schema/ticket"
)

// Facts are the values collected over a conversation. Nil pointer or
// empty string means not yet collected.
type Facts struct {
	CurrentTemp *float64
	DesiredTemp *float64
	TimeOfDay   TimeOfDay
	Duration    Duration
}

func (f Facts) clone() Facts {
	copied := f
	if f.CurrentTemp != nil {
		value := *f.CurrentTemp
		copied.CurrentTemp = &value
	}
	if f.DesiredTemp != nil {
		value := *f.DesiredTemp
		copied.DesiredTemp = &value
	}
	return copied
}

// Turn is one history record: the state the machine was in when the
// input arrived, the raw input, and its normalized reading (empty for
// invalid input).
type Turn struct {
	Step       State
	UserInput  string
	Normalized string
	Timestamp  time.Time
}

// Session is one conversation. The engine owns all mutation; the gate
// channel serializes turns so at most one is in flight.
type Session struct {
	ID    string
	Topic string

	State State
	Facts Facts
	Turns []Turn

	// Retries counts consecutive validation failures in the current
	// state. Reset on success.
	Retries int

	// PersistFailures counts consecutive ticket write failures in
	// create_ticket.
	PersistFailures int

	// EndReason is set when the machine force-transitions to
	// end_conversation.
	EndReason string

	// Ticket is the persisted ticket, once assembly succeeded.
	Ticket *ticket.Ticket

	// Pending is a ticket assembled but not yet durably saved.
	// Retried by the next turn so a save failure does not mint a new
	// identifier.
	Pending *ticket.Ticket

	// LastActive is the commit time of the most recent turn, for
	// idle reaping.
	LastActive time.Time

	// gate serializes turns. Capacity 1; holding the token means a
	// turn (or the reaper) owns the session. Waiters are served in
	// FIFO order by the runtime's channel queue.
	gate chan struct{}

	// mu guards the committed fields against readers that do not hold
	// the gate (status queries, the reaper's idle scan). Writers hold
	// both the gate and mu; gate-holding readers need neither.
	mu sync.Mutex
}

func newSession(id, topic string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Topic:      topic,
		State:      StateWelcome,
		LastActive: now,
		gate:       make(chan struct{}, 1),
	}
}

// acquire takes the turn gate, blocking until it is free or ctx is
// done.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire takes the gate without blocking. Used by the reaper so
// it never collides with an in-flight turn.
func (s *Session) tryAcquire() bool {
	select {
	case s.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() {
	<-s.gate
}

// snapshot returns a scratch copy of the mutable conversation state.
// A turn works on the scratch and commits it back only on success, so
// failure or cancellation leaves the session untouched.
func (s *Session) snapshot() *Session {
	scratch := &Session{
		ID:              s.ID,
		Topic:           s.Topic,
		State:           s.State,
		Facts:           s.Facts.clone(),
		Turns:           append([]Turn(nil), s.Turns...),
		Retries:         s.Retries,
		PersistFailures: s.PersistFailures,
		EndReason:       s.EndReason,
		Ticket:          s.Ticket,
		Pending:         s.Pending,
		LastActive:      s.LastActive,
	}
	return scratch
}

// commit applies the scratch back to the session. Caller holds the
// gate.
func (s *Session) commit(scratch *Session, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = scratch.State
	s.Facts = scratch.Facts
	s.Turns = scratch.Turns
	s.Retries = scratch.Retries
	s.PersistFailures = scratch.PersistFailures
	s.EndReason = scratch.EndReason
	s.Ticket = scratch.Ticket
	s.Pending = scratch.Pending
	s.LastActive = now
}

// observe returns the committed state and ticket without taking the
// gate, so status queries never wait behind an in-flight turn. The
// ticket pointer is safe to share: tickets are immutable once
// assembled.
func (s *Session) observe() (State, *ticket.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State, s.Ticket
}

// lastActive returns the committed activity timestamp without the
// gate. Used by the idle scan.
func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastActive
}

// forceEnd transitions the session to end_conversation outside the
// scratch/commit path. Caller holds the gate.
func (s *Session) forceEnd(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndReason = reason
	s.State = StateEnd
}

// appendTurn records one executed turn on the scratch.
func (s *Session) appendTurn(state State, raw, normalized string, now time.Time) {
	s.Turns = append(s.Turns, Turn{
		Step:       state,
		UserInput:  raw,
		Normalized: normalized,
		Timestamp:  now,
	})
}

// History converts the session turns into the ticket's dialog_history
// representation (a value copy).
func (s *Session) History() []ticket.DialogTurn {
	history := make([]ticket.DialogTurn, len(s.Turns))
	for i, turn := range s.Turns {
		history[i] = ticket.DialogTurn{
			Step:      string(turn.Step),
			UserInput: turn.UserInput,
			Timestamp: turn.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return history
}
