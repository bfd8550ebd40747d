// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearthware/hearth/lib/archive"
	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/codec"
	"github.com/hearthware/hearth/lib/dialogue"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/hearthware/hearth/lib/secret"
	"github.com/hearthware/hearth/lib/testutil"
	"github.com/hearthware/hearth/lib/ticketstore"
)

func newTestSealer(t *testing.T) *archive.Sealer {
	t.Helper()
	raw := make([]byte, archive.KeySize)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	key, err := secret.NewFromBytes(raw)
	if err != nil {
		t.Fatalf("storing key: %v", err)
	}
	sealer, err := archive.NewSealer(key, archive.CompressionZstd)
	if err != nil {
		t.Fatalf("building sealer: %v", err)
	}
	t.Cleanup(func() { sealer.Close() })
	return sealer
}

func TestArchiverSealsEndedSession(t *testing.T) {
	directory := testutil.SocketDir(t)
	clk := clock.Fake(serviceEpoch)

	store, err := ticketstore.Open(ticketstore.Config{
		Path: filepath.Join(directory, "hearth.db"),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sealer := newTestSealer(t)

	// The ticket must already be durable when the session ends; the
	// transcript references it.
	stored := &ticket.Ticket{
		TicketID:  "ticket_20260829_150000",
		Status:    ticket.StatusNew,
		CreatedAt: serviceEpoch.Format(time.RFC3339),
		ProblemDetails: ticket.ProblemDetails{
			CurrentTemp: 18,
			DesiredTemp: 22.5,
			TimeOfDay:   "morning",
			Duration:    "more_than_hour",
		},
		DeviceInfo: ticket.DeviceInfo{
			Type:       ticket.DeviceTypeThermostat,
			ErrorState: true,
		},
	}
	if _, err := store.SaveTicket(context.Background(), stored); err != nil {
		t.Fatalf("saving ticket: %v", err)
	}

	arch := newArchiver(store, sealer, clk, slog.New(slog.DiscardHandler))
	go arch.run(context.Background())

	ended := dialogue.Session{
		ID:     "dlg_0011223344556677",
		Topic:  "thermostat not working",
		State:  dialogue.StateTicketCreated,
		Ticket: stored,
		Turns: []dialogue.Turn{
			{Step: dialogue.StateWelcome, UserInput: "it reads wrong", Timestamp: serviceEpoch},
			{Step: dialogue.StateCurrentTemp, UserInput: "18", Normalized: "18", Timestamp: serviceEpoch},
		},
		LastActive: serviceEpoch,
	}
	arch.enqueue(ended)
	arch.close()

	sealed, ticketID, err := store.GetTranscript(context.Background(), ended.ID)
	if err != nil {
		t.Fatalf("fetching transcript: %v", err)
	}
	if ticketID != stored.TicketID {
		t.Errorf("transcript ticket = %q, want %q", ticketID, stored.TicketID)
	}

	plaintext, err := sealer.Open(ended.ID, sealed)
	if err != nil {
		t.Fatalf("opening sealed transcript: %v", err)
	}

	var record transcriptRecord
	if err := codec.Unmarshal(plaintext, &record); err != nil {
		t.Fatalf("decoding transcript: %v", err)
	}
	if record.DialogueID != ended.ID {
		t.Errorf("dialogue id = %q", record.DialogueID)
	}
	if record.State != string(dialogue.StateTicketCreated) {
		t.Errorf("state = %q", record.State)
	}
	if len(record.Turns) != 2 {
		t.Fatalf("transcript has %d turns, want 2", len(record.Turns))
	}
	if record.Turns[1].Normalized != "18" {
		t.Errorf("turn normalization = %q", record.Turns[1].Normalized)
	}
}

func TestArchiverSurvivesTicketlessSession(t *testing.T) {
	directory := testutil.SocketDir(t)
	clk := clock.Fake(serviceEpoch)

	store, err := ticketstore.Open(ticketstore.Config{
		Path: filepath.Join(directory, "hearth.db"),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sealer := newTestSealer(t)
	arch := newArchiver(store, sealer, clk, slog.New(slog.DiscardHandler))
	go arch.run(context.Background())

	// A reaped session has no ticket; the transcript's ticket
	// reference is null.
	arch.enqueue(dialogue.Session{
		ID:        "dlg_8899aabbccddeeff",
		Topic:     "too cold",
		State:     dialogue.StateEnd,
		EndReason: "idle_timeout",
		Turns: []dialogue.Turn{
			{Step: dialogue.StateWelcome, UserInput: "too cold", Timestamp: serviceEpoch},
		},
		LastActive: serviceEpoch,
	})
	arch.close()

	sealed, ticketID, err := store.GetTranscript(context.Background(), "dlg_8899aabbccddeeff")
	if err != nil {
		t.Fatalf("fetching transcript: %v", err)
	}
	if ticketID != "" {
		t.Errorf("ticketless transcript has ticket %q", ticketID)
	}

	plaintext, err := sealer.Open("dlg_8899aabbccddeeff", sealed)
	if err != nil {
		t.Fatalf("opening sealed transcript: %v", err)
	}
	var record transcriptRecord
	if err := codec.Unmarshal(plaintext, &record); err != nil {
		t.Fatalf("decoding transcript: %v", err)
	}
	if record.EndReason != "idle_timeout" {
		t.Errorf("end reason = %q", record.EndReason)
	}
}
