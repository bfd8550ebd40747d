// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/codec"
	"github.com/hearthware/hearth/lib/dialogue"
	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/hearthware/hearth/lib/service"
	"github.com/hearthware/hearth/lib/ticketstore"
)

// DialogueService is the socket-facing state of the dialogue service.
type DialogueService struct {
	engine    *dialogue.Engine
	store     *ticketstore.Store
	index     *retrieval.Index
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

// registerActions registers all socket API actions on the server.
func (ds *DialogueService) registerActions(server *service.SocketServer) {
	server.Handle("status", ds.handleStatus)
	server.Handle("info", ds.handleInfo)
	server.Handle("dialogue/start", ds.handleDialogueStart)
	server.Handle("dialogue/turn", ds.handleDialogueTurn)
	server.Handle("dialogue/ticket", ds.handleDialogueTicket)
	server.Handle("ticket/list", ds.handleTicketList)
	server.Handle("ticket/get", ds.handleTicketGet)
	server.Handle("kb/search", ds.handleKBSearch)
}

// statusResponse is the response to the "status" action.
type statusResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`
}

// handleStatus is a pure liveness check.
func (ds *DialogueService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	uptime := ds.clock.Now().Sub(ds.startedAt)
	return statusResponse{
		UptimeSeconds: uptime.Seconds(),
	}, nil
}

// infoResponse is the response to the "info" action.
type infoResponse struct {
	UptimeSeconds    float64 `cbor:"uptime_seconds"`
	ActiveSessions   int     `cbor:"active_sessions"`
	ArchivedSessions int     `cbor:"archived_sessions"`
	StoredTickets    int     `cbor:"stored_tickets"`
	KBArticles       int     `cbor:"kb_articles"`
}

func (ds *DialogueService) handleInfo(ctx context.Context, raw []byte) (any, error) {
	tickets, err := ds.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting tickets: %w", err)
	}

	articles := 0
	if ds.index != nil {
		articles = ds.index.Len()
	}

	sessions := ds.engine.Sessions()
	return infoResponse{
		UptimeSeconds:    ds.clock.Now().Sub(ds.startedAt).Seconds(),
		ActiveSessions:   sessions.ActiveCount(),
		ArchivedSessions: sessions.ArchivedCount(),
		StoredTickets:    tickets,
		KBArticles:       articles,
	}, nil
}

// dialogueStartRequest opens a new conversation.
type dialogueStartRequest struct {
	// Topic is the user's opening problem statement, e.g. "my
	// thermostat is not working". May be empty.
	Topic string `cbor:"topic"`
}

type dialogueStartResponse struct {
	DialogueID string `cbor:"dialogue_id"`
	Reply      string `cbor:"reply"`
	State      string `cbor:"state"`
}

func (ds *DialogueService) handleDialogueStart(ctx context.Context, raw []byte) (any, error) {
	var request dialogueStartRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	dialogueID, greeting, err := ds.engine.StartDialogue(ctx, request.Topic)
	if err != nil {
		return nil, err
	}
	return dialogueStartResponse{
		DialogueID: dialogueID,
		Reply:      greeting,
		State:      string(dialogue.StateWelcome),
	}, nil
}

// dialogueTurnRequest applies one user input to a conversation.
type dialogueTurnRequest struct {
	DialogueID string `cbor:"dialogue_id"`
	Text       string `cbor:"text"`
}

type dialogueTurnResponse struct {
	Reply string `cbor:"reply"`

	// State is the conversation state after the turn.
	State string `cbor:"state"`

	// Done is true when the conversation has ended; further turns
	// will fail.
	Done bool `cbor:"done"`

	// TicketID is set once the conversation produced a ticket.
	TicketID string `cbor:"ticket_id,omitempty"`
}

func (ds *DialogueService) handleDialogueTurn(ctx context.Context, raw []byte) (any, error) {
	var request dialogueTurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.DialogueID == "" {
		return nil, fmt.Errorf("dialogue_id is required")
	}

	reply, err := ds.engine.ProcessTurn(ctx, request.DialogueID, request.Text)
	if err != nil {
		return nil, err
	}

	response := dialogueTurnResponse{Reply: reply}
	if status, err := ds.engine.Status(request.DialogueID); err == nil {
		response.State = string(status.State)
		response.Done = status.Done
		if status.Ticket != nil {
			response.TicketID = status.Ticket.TicketID
		}
	}
	return response, nil
}

// dialogueTicketRequest fetches the ticket a conversation produced.
type dialogueTicketRequest struct {
	DialogueID string `cbor:"dialogue_id"`
}

type dialogueTicketResponse struct {
	// Created is false when the conversation exists but has not
	// produced a ticket.
	Created bool `cbor:"created"`

	Ticket *ticket.Ticket `cbor:"ticket,omitempty"`
}

func (ds *DialogueService) handleDialogueTicket(ctx context.Context, raw []byte) (any, error) {
	var request dialogueTicketRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.DialogueID == "" {
		return nil, fmt.Errorf("dialogue_id is required")
	}

	stored, created, err := ds.engine.GetTicket(request.DialogueID)
	if err != nil {
		return nil, err
	}
	return dialogueTicketResponse{
		Created: created,
		Ticket:  stored,
	}, nil
}

// ticketListRequest lists stored tickets.
type ticketListRequest struct {
	// Status filters by ticket status; empty lists all.
	Status string `cbor:"status,omitempty"`

	// Limit caps the result count; 0 means the server default (50).
	Limit int `cbor:"limit,omitempty"`
}

type ticketListResponse struct {
	Tickets []*ticket.Ticket `cbor:"tickets"`
}

// defaultListLimit caps unbounded ticket/list requests.
const defaultListLimit = 50

func (ds *DialogueService) handleTicketList(ctx context.Context, raw []byte) (any, error) {
	var request ticketListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Limit <= 0 {
		request.Limit = defaultListLimit
	}

	tickets, err := ds.store.List(ctx, request.Status, request.Limit)
	if err != nil {
		return nil, err
	}
	return ticketListResponse{Tickets: tickets}, nil
}

// ticketGetRequest fetches one stored ticket.
type ticketGetRequest struct {
	TicketID string `cbor:"ticket_id"`
}

type ticketGetResponse struct {
	Ticket *ticket.Ticket `cbor:"ticket"`
}

func (ds *DialogueService) handleTicketGet(ctx context.Context, raw []byte) (any, error) {
	var request ticketGetRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.TicketID == "" {
		return nil, fmt.Errorf("ticket_id is required")
	}

	stored, err := ds.store.Get(ctx, request.TicketID)
	if err != nil {
		return nil, err
	}
	return ticketGetResponse{Ticket: stored}, nil
}

// kbSearchRequest queries the retrieval index directly. Used by the
// CLI's "kb search" and by operators tuning the knowledge base.
type kbSearchRequest struct {
	Query string `cbor:"query"`

	// K is how many articles to return; 0 means the retrieval
	// default.
	K int `cbor:"k,omitempty"`
}

type kbSearchResponse struct {
	Results []kbSearchResult `cbor:"results"`
}

type kbSearchResult struct {
	ID    string   `cbor:"id"`
	Title string   `cbor:"title"`
	Tags  []string `cbor:"tags,omitempty"`
	Score float64  `cbor:"score"`

	// Snippet is the leading fragment of the article body.
	Snippet string `cbor:"snippet"`
}

// snippetLength bounds the body fragment returned per search result.
const snippetLength = 240

func (ds *DialogueService) handleKBSearch(ctx context.Context, raw []byte) (any, error) {
	if ds.index == nil {
		return nil, fmt.Errorf("no knowledge base configured")
	}

	var request kbSearchRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if request.K <= 0 {
		request.K = retrieval.DefaultLimit
	}

	scored, err := ds.index.Search(ctx, request.Query, request.K)
	if err != nil {
		return nil, err
	}

	results := make([]kbSearchResult, 0, len(scored))
	for _, hit := range scored {
		results = append(results, kbSearchResult{
			ID:      hit.Article.ID,
			Title:   hit.Article.Title,
			Tags:    hit.Article.Tags,
			Score:   hit.Score,
			Snippet: snippet(hit.Article.Body),
		})
	}
	return kbSearchResponse{Results: results}, nil
}

// snippet truncates an article body to snippetLength bytes without
// splitting a UTF-8 sequence.
func snippet(body string) string {
	if len(body) <= snippetLength {
		return body
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
