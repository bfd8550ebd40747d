// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/dialogue"
	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/service"
	"github.com/hearthware/hearth/lib/testutil"
	"github.com/hearthware/hearth/lib/ticketstore"
)

var serviceEpoch = time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

// newTestService wires a full service (real engine, real sqlite
// store, no LLM) behind a unix socket and returns a connected client.
func newTestService(t *testing.T) (*service.Client, *DialogueService) {
	t.Helper()

	directory := testutil.SocketDir(t)
	clk := clock.Fake(serviceEpoch)

	store, err := ticketstore.Open(ticketstore.Config{
		Path: filepath.Join(directory, "hearth.db"),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index := retrieval.NewIndex([]retrieval.Article{
		{
			ID:    "kb-aaaa00000000",
			Title: "Thermostat reads the wrong temperature",
			Body:  "A thermostat that reads several degrees off usually has a sensor fault.",
			Tags:  []string{"sensor", "temperature"},
		},
		{
			ID:    "kb-bbbb00000000",
			Title: "Setpoint changes take time",
			Body:  "After changing the setpoint, rooms can take up to an hour to settle.",
			Tags:  []string{"setpoint"},
		},
	})

	engine, err := dialogue.NewEngine(dialogue.Config{
		Clock:     clk,
		Retriever: index,
		Sink:      store,
	})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	ds := &DialogueService{
		engine:    engine,
		store:     store,
		index:     index,
		clock:     clk,
		logger:    slog.New(slog.DiscardHandler),
		startedAt: clk.Now(),
	}

	socketPath := filepath.Join(directory, "dialogue.sock")
	server := service.NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	ds.registerActions(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Serve to drain"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	return service.NewClient(socketPath), ds
}

func startConversation(t *testing.T, client *service.Client) string {
	t.Helper()
	var started dialogueStartResponse
	err := client.Call(context.Background(), "dialogue/start",
		map[string]any{"topic": "thermostat not working"}, &started)
	if err != nil {
		t.Fatalf("dialogue/start: %v", err)
	}
	if started.DialogueID == "" {
		t.Fatal("dialogue/start returned empty dialogue id")
	}
	if started.Reply == "" {
		t.Fatal("dialogue/start returned empty greeting")
	}
	return started.DialogueID
}

func sendTurn(t *testing.T, client *service.Client, dialogueID, text string) dialogueTurnResponse {
	t.Helper()
	var response dialogueTurnResponse
	err := client.Call(context.Background(), "dialogue/turn",
		map[string]any{"dialogue_id": dialogueID, "text": text}, &response)
	if err != nil {
		t.Fatalf("dialogue/turn %q: %v", text, err)
	}
	return response
}

func TestStatusAction(t *testing.T) {
	client, _ := newTestService(t)

	var status statusResponse
	if err := client.Call(context.Background(), "status", nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.UptimeSeconds < 0 {
		t.Errorf("negative uptime %f", status.UptimeSeconds)
	}
}

func TestConversationToTicketOverSocket(t *testing.T) {
	client, _ := newTestService(t)
	dialogueID := startConversation(t, client)

	turn := sendTurn(t, client, dialogueID, "it reads the wrong temperature")
	if turn.State != string(dialogue.StateCurrentTemp) {
		t.Fatalf("after welcome turn, state = %s", turn.State)
	}

	sendTurn(t, client, dialogueID, "18")
	sendTurn(t, client, dialogueID, "22.5")
	turn = sendTurn(t, client, dialogueID, "this morning")
	if turn.State != string(dialogue.StateDurationCheck) {
		t.Fatalf("after time turn, state = %s", turn.State)
	}

	turn = sendTurn(t, client, dialogueID, "more than an hour")
	if !turn.Done {
		t.Fatal("ticket turn should end the conversation")
	}
	if turn.State != string(dialogue.StateTicketCreated) {
		t.Errorf("final state = %s", turn.State)
	}
	if turn.TicketID == "" {
		t.Fatal("ticket turn returned no ticket id")
	}
	if !strings.Contains(turn.Reply, turn.TicketID) {
		t.Errorf("reply %q does not announce ticket %s", turn.Reply, turn.TicketID)
	}

	// The ticket is durable: fetch it back through the store-facing
	// action.
	var fetched ticketGetResponse
	err := client.Call(context.Background(), "ticket/get",
		map[string]any{"ticket_id": turn.TicketID}, &fetched)
	if err != nil {
		t.Fatalf("ticket/get: %v", err)
	}
	if fetched.Ticket == nil {
		t.Fatal("ticket/get returned nil ticket")
	}
	details := fetched.Ticket.ProblemDetails
	if details.CurrentTemp != 18 || details.DesiredTemp != 22.5 {
		t.Errorf("ticket temps = %g/%g", details.CurrentTemp, details.DesiredTemp)
	}
	if !fetched.Ticket.DeviceInfo.ErrorState {
		t.Error("gap of 4.5 degrees should set error_state")
	}

	// And through the dialogue-facing action, which serves archived
	// sessions.
	var byDialogue dialogueTicketResponse
	err = client.Call(context.Background(), "dialogue/ticket",
		map[string]any{"dialogue_id": dialogueID}, &byDialogue)
	if err != nil {
		t.Fatalf("dialogue/ticket: %v", err)
	}
	if !byDialogue.Created || byDialogue.Ticket == nil {
		t.Fatal("dialogue/ticket did not return the created ticket")
	}
	if byDialogue.Ticket.TicketID != turn.TicketID {
		t.Errorf("dialogue/ticket id = %s, want %s", byDialogue.Ticket.TicketID, turn.TicketID)
	}
}

func TestTurnOnEndedConversationFails(t *testing.T) {
	client, _ := newTestService(t)
	dialogueID := startConversation(t, client)

	sendTurn(t, client, dialogueID, "not cooling")
	sendTurn(t, client, dialogueID, "20")
	sendTurn(t, client, dialogueID, "21")
	sendTurn(t, client, dialogueID, "now")
	turn := sendTurn(t, client, dialogueID, "just started")
	if turn.State != string(dialogue.StateWaitHour) {
		t.Fatalf("small gap + short duration should wait, state = %s", turn.State)
	}

	turn = sendTurn(t, client, dialogueID, "ok thanks")
	if !turn.Done || turn.State != string(dialogue.StateEnd) {
		t.Fatalf("wait_hour turn should end, done=%v state=%s", turn.Done, turn.State)
	}

	err := client.Call(context.Background(), "dialogue/turn",
		map[string]any{"dialogue_id": dialogueID, "text": "hello?"}, nil)
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("turn on ended conversation: got %v, want ServiceError", err)
	}
}

func TestTurnUnknownDialogue(t *testing.T) {
	client, _ := newTestService(t)

	err := client.Call(context.Background(), "dialogue/turn",
		map[string]any{"dialogue_id": "dlg_ffffffffffffffff", "text": "hi"}, nil)
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("got %v, want ServiceError", err)
	}
}

func TestTicketListOverSocket(t *testing.T) {
	client, _ := newTestService(t)

	for range 2 {
		dialogueID := startConversation(t, client)
		sendTurn(t, client, dialogueID, "heater stuck")
		sendTurn(t, client, dialogueID, "15")
		sendTurn(t, client, dialogueID, "25")
		sendTurn(t, client, dialogueID, "evening")
		sendTurn(t, client, dialogueID, "all day")
	}

	var listed ticketListResponse
	if err := client.Call(context.Background(), "ticket/list", nil, &listed); err != nil {
		t.Fatalf("ticket/list: %v", err)
	}
	if len(listed.Tickets) != 2 {
		t.Fatalf("listed %d tickets, want 2", len(listed.Tickets))
	}

	var limited ticketListResponse
	err := client.Call(context.Background(), "ticket/list",
		map[string]any{"limit": 1}, &limited)
	if err != nil {
		t.Fatalf("ticket/list limit: %v", err)
	}
	if len(limited.Tickets) != 1 {
		t.Fatalf("limited list returned %d tickets", len(limited.Tickets))
	}
}

func TestKBSearchOverSocket(t *testing.T) {
	client, _ := newTestService(t)

	var found kbSearchResponse
	err := client.Call(context.Background(), "kb/search",
		map[string]any{"query": "setpoint settle time"}, &found)
	if err != nil {
		t.Fatalf("kb/search: %v", err)
	}
	if len(found.Results) == 0 {
		t.Fatal("kb/search returned no results")
	}
	if found.Results[0].ID != "kb-bbbb00000000" {
		t.Errorf("top hit = %s, want the setpoint article", found.Results[0].ID)
	}
	if found.Results[0].Snippet == "" {
		t.Error("result has no snippet")
	}

	err = client.Call(context.Background(), "kb/search", map[string]any{"query": ""}, nil)
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("empty query: got %v, want ServiceError", err)
	}
}

func TestSnippetNeverSplitsRune(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
	}{
		{name: "short body unchanged", body: "sensor fault", wantLen: len("sensor fault")},
		{name: "ascii cut at limit", body: strings.Repeat("a", 300), wantLen: snippetLength},
		// "x" shifts the degree signs so the byte limit lands on the
		// second byte of a two-byte rune.
		{name: "two byte rune at boundary", body: "x" + strings.Repeat("°", 120), wantLen: snippetLength - 1},
		{name: "three byte rune at boundary", body: "x" + strings.Repeat("…", 80), wantLen: snippetLength - 2},
		{name: "rune starts at boundary", body: strings.Repeat("°", 121), wantLen: snippetLength},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := snippet(test.body)
			if !utf8.ValidString(got) {
				t.Errorf("snippet is not valid UTF-8: %q", got)
			}
			if len(got) != test.wantLen {
				t.Errorf("len = %d, want %d", len(got), test.wantLen)
			}
			if !strings.HasPrefix(test.body, got) {
				t.Errorf("snippet %q is not a prefix of the body", got)
			}
		})
	}
}

func TestInfoAction(t *testing.T) {
	client, _ := newTestService(t)
	startConversation(t, client)

	var info infoResponse
	if err := client.Call(context.Background(), "info", nil, &info); err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.ActiveSessions != 1 {
		t.Errorf("active sessions = %d, want 1", info.ActiveSessions)
	}
	if info.KBArticles != 2 {
		t.Errorf("kb articles = %d, want 2", info.KBArticles)
	}
	if info.StoredTickets != 0 {
		t.Errorf("stored tickets = %d, want 0", info.StoredTickets)
	}
}
