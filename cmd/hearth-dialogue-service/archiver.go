// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthware/hearth/lib/archive"
	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/codec"
	"github.com/hearthware/hearth/lib/dialogue"
	"github.com/hearthware/hearth/lib/service"
	"github.com/hearthware/hearth/lib/ticketstore"
)

// archiveQueueSize bounds how many ended sessions can wait for
// archival before new ones are dropped. The ticket itself is already
// durable by the time a session ends; only the sealed transcript is
// at stake.
const archiveQueueSize = 128

// archiveMaxBackoff caps the retry backoff for a failing transcript
// write.
const archiveMaxBackoff = 30 * time.Second

// transcriptRecord is the plaintext transcript layout sealed into the
// archive. CBOR-encoded with deterministic field order so the same
// session always seals to the same plaintext.
type transcriptRecord struct {
	DialogueID string           `cbor:"dialogue_id"`
	Topic      string           `cbor:"topic"`
	State      string           `cbor:"state"`
	EndReason  string           `cbor:"end_reason,omitempty"`
	TicketID   string           `cbor:"ticket_id,omitempty"`
	EndedAt    string           `cbor:"ended_at"`
	Turns      []transcriptTurn `cbor:"turns"`
}

type transcriptTurn struct {
	Step       string `cbor:"step"`
	UserInput  string `cbor:"user_input"`
	Normalized string `cbor:"normalized,omitempty"`
	Timestamp  string `cbor:"timestamp"`
}

// archiver seals ended conversations and writes them to the ticket
// store, off the turn path. Enqueueing never blocks a turn: when the
// queue is full the transcript is dropped with an error log.
type archiver struct {
	store  *ticketstore.Store
	sealer *archive.Sealer
	clock  clock.Clock
	logger *slog.Logger

	queue chan dialogue.Session
	done  chan struct{}
}

func newArchiver(store *ticketstore.Store, sealer *archive.Sealer, clk clock.Clock, logger *slog.Logger) *archiver {
	return &archiver{
		store:  store,
		sealer: sealer,
		clock:  clk,
		logger: logger,
		queue:  make(chan dialogue.Session, archiveQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands an ended session to the archiver. Safe to call from
// the engine's OnSessionEnd hook.
func (a *archiver) enqueue(ended dialogue.Session) {
	select {
	case a.queue <- ended:
	default:
		a.logger.Error("archive queue full, transcript dropped",
			"dialogue_id", ended.ID,
		)
	}
}

// run drains the queue until close() is called. ctx bounds the retry
// loop for each write; after ctx is cancelled each remaining
// transcript still gets one write attempt so a graceful shutdown does
// not lose the backlog.
func (a *archiver) run(ctx context.Context) {
	defer close(a.done)
	for ended := range a.queue {
		if err := a.archive(ctx, &ended); err != nil {
			a.logger.Error("transcript archival failed",
				"dialogue_id", ended.ID,
				"error", err,
			)
		}
	}
}

// close stops accepting sessions and waits for the backlog to flush.
func (a *archiver) close() {
	close(a.queue)
	<-a.done
}

func (a *archiver) archive(ctx context.Context, ended *dialogue.Session) error {
	record := buildTranscript(ended)

	plaintext, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	sealed, err := a.sealer.Seal(ended.ID, plaintext)
	if err != nil {
		return fmt.Errorf("sealing transcript: %w", err)
	}

	archivedAt := a.clock.Now()
	err = service.RunRetry(ctx, a.clock, a.logger, "transcript write", archiveMaxBackoff,
		func(ctx context.Context) error {
			return a.store.SaveTranscript(ctx, ended.ID, record.TicketID, sealed, archivedAt)
		})
	if err == nil {
		a.logger.Info("transcript archived",
			"dialogue_id", ended.ID,
			"turns", len(record.Turns),
			"sealed_bytes", len(sealed.Blob),
		)
		return nil
	}

	// Shutdown path: the retry loop returned ctx.Err(). One direct
	// attempt with a short deadline before giving up on this entry.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if flushErr := a.store.SaveTranscript(flushCtx, ended.ID, record.TicketID, sealed, archivedAt); flushErr != nil {
		return flushErr
	}
	return nil
}

// buildTranscript flattens a session snapshot into the sealed record.
func buildTranscript(ended *dialogue.Session) transcriptRecord {
	record := transcriptRecord{
		DialogueID: ended.ID,
		Topic:      ended.Topic,
		State:      string(ended.State),
		EndReason:  ended.EndReason,
		EndedAt:    ended.LastActive.UTC().Format(time.RFC3339),
	}
	if ended.Ticket != nil {
		record.TicketID = ended.Ticket.TicketID
	}
	record.Turns = make([]transcriptTurn, 0, len(ended.Turns))
	for _, turn := range ended.Turns {
		record.Turns = append(record.Turns, transcriptTurn{
			Step:       string(turn.Step),
			UserInput:  turn.UserInput,
			Normalized: turn.Normalized,
			Timestamp:  turn.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return record
}
