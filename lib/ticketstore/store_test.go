// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketstore_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearthware/hearth/lib/archive"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/hearthware/hearth/lib/secret"
	"github.com/hearthware/hearth/lib/ticketstore"
)

func openTestStore(t *testing.T) *ticketstore.Store {
	t.Helper()
	store, err := ticketstore.Open(ticketstore.Config{
		Path: filepath.Join(t.TempDir(), "tickets.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func testTicket(id string) *ticket.Ticket {
	return &ticket.Ticket{
		TicketID:  id,
		Status:    ticket.StatusNew,
		CreatedAt: "2026-08-29T14:00:00Z",
		ProblemDetails: ticket.ProblemDetails{
			CurrentTemp: 24.0,
			DesiredTemp: 22.0,
			TimeOfDay:   "afternoon",
			Duration:    "more_than_hour",
		},
		DialogHistory: []ticket.DialogTurn{
			{Step: "welcome", UserInput: "not working", Timestamp: "2026-08-29T13:58:00Z"},
			{Step: "current_temp", UserInput: "24", Timestamp: "2026-08-29T13:59:00Z"},
		},
		DeviceInfo: ticket.DeviceInfo{
			Type:       ticket.DeviceTypeThermostat,
			ErrorState: true,
		},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	original := testTicket("ticket_20260829_140000")
	id, err := store.SaveTicket(ctx, original)
	if err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}
	if id != original.TicketID {
		t.Errorf("returned id %q, want %q", id, original.TicketID)
	}

	loaded, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.ProblemDetails != original.ProblemDetails {
		t.Errorf("problem details = %+v, want %+v", loaded.ProblemDetails, original.ProblemDetails)
	}
	if len(loaded.DialogHistory) != 2 || loaded.DialogHistory[0].UserInput != "not working" {
		t.Errorf("dialog history = %+v", loaded.DialogHistory)
	}
	if !loaded.DeviceInfo.ErrorState {
		t.Error("error_state lost in round trip")
	}
}

func TestSaveDuplicateIDFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveTicket(ctx, testTicket("ticket_20260829_140000")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := store.SaveTicket(ctx, testTicket("ticket_20260829_140000")); err == nil {
		t.Fatal("expected error for duplicate ticket_id")
	}
}

func TestSaveInvalidTicketFails(t *testing.T) {
	store := openTestStore(t)

	bad := testTicket("ticket_20260829_140000")
	bad.Status = "escalated"
	if _, err := store.SaveTicket(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "ticket_nope"); !errors.Is(err, ticketstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrderAndFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := testTicket("ticket_20260829_130000")
	older.CreatedAt = "2026-08-29T13:00:00Z"
	newer := testTicket("ticket_20260829_150000")
	newer.CreatedAt = "2026-08-29T15:00:00Z"
	for _, entry := range []*ticket.Ticket{older, newer} {
		if _, err := store.SaveTicket(ctx, entry); err != nil {
			t.Fatalf("SaveTicket(%s): %v", entry.TicketID, err)
		}
	}
	if err := store.SetStatus(ctx, older.TicketID, ticket.StatusResolved); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].TicketID != newer.TicketID {
		t.Errorf("List order wrong: %v", ids(all))
	}

	resolved, err := store.List(ctx, ticket.StatusResolved, 0)
	if err != nil {
		t.Fatalf("List(resolved): %v", err)
	}
	if len(resolved) != 1 || resolved[0].TicketID != older.TicketID {
		t.Errorf("resolved filter returned %v", ids(resolved))
	}
	if resolved[0].Status != ticket.StatusResolved {
		t.Errorf("payload status = %q, want resolved", resolved[0].Status)
	}

	limited, err := store.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("List(limit 1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d results", len(limited))
	}

	if _, err := store.List(ctx, "escalated", 0); err == nil {
		t.Error("expected error for unknown status filter")
	}
}

func TestCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if count, err := store.Count(ctx); err != nil || count != 0 {
		t.Fatalf("empty Count = %d, %v", count, err)
	}
	if _, err := store.SaveTicket(ctx, testTicket("ticket_20260829_140000")); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}
	if count, err := store.Count(ctx); err != nil || count != 1 {
		t.Errorf("Count = %d, %v, want 1", count, err)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	saved := testTicket("ticket_20260829_140000")
	if _, err := store.SaveTicket(ctx, saved); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}

	key := bytes.Repeat([]byte{0x11}, archive.KeySize)
	buffer, err := secret.NewFromBytes(bytes.Clone(key))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	sealer, err := archive.NewSealer(buffer, archive.CompressionZstd)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	defer sealer.Close()

	transcript := []byte("bot: hello\nuser: not working\nbot: hello\nuser: not working\n")
	sealed, err := sealer.Seal("dlg_abc", transcript)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	archivedAt := time.Date(2026, 8, 29, 14, 5, 0, 0, time.UTC)
	if err := store.SaveTranscript(ctx, "dlg_abc", saved.TicketID, sealed, archivedAt); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	loaded, ticketID, err := store.GetTranscript(ctx, "dlg_abc")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if ticketID != saved.TicketID {
		t.Errorf("ticket id = %q, want %q", ticketID, saved.TicketID)
	}
	opened, err := sealer.Open("dlg_abc", loaded)
	if err != nil {
		t.Fatalf("Open sealed transcript from store: %v", err)
	}
	if !bytes.Equal(opened, transcript) {
		t.Error("transcript did not survive the store round trip")
	}
}

func TestTranscriptWithoutTicket(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sealed := &archive.Sealed{
		Blob:        []byte("opaque"),
		Compression: archive.CompressionNone,
		PlainSize:   6,
	}
	if err := store.SaveTranscript(ctx, "dlg_noticket", "", sealed, time.Now()); err != nil {
		t.Fatalf("SaveTranscript without ticket: %v", err)
	}

	_, ticketID, err := store.GetTranscript(ctx, "dlg_noticket")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if ticketID != "" {
		t.Errorf("ticket id = %q, want empty", ticketID)
	}
}

func TestGetTranscriptUnknownIsNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.GetTranscript(context.Background(), "dlg_missing"); !errors.Is(err, ticketstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func ids(tickets []*ticket.Ticket) []string {
	result := make([]string, len(tickets))
	for i, entry := range tickets {
		result[i] = entry.TicketID
	}
	return result
}
