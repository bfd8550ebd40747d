// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/llm"
	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/schema/ticket"
)

// TicketSink is the durable storage the engine hands finished tickets
// to. A failed save is a PersistenceError: the session is preserved
// and the next turn retries.
type TicketSink interface {
	// SaveTicket persists the ticket and returns its identifier
	// (the ticket's own TicketID; the return value confirms what was
	// stored).
	SaveTicket(ctx context.Context, t *ticket.Ticket) (string, error)
}

// Config wires the engine's collaborators and tuning knobs. Sink is
// required; Retriever and Generator are optional — without them every
// reply is canned text.
type Config struct {
	// GapThreshold is the temperature gap (degrees) at or above which
	// duration_check routes to ticket creation. Default 2.0.
	GapThreshold float64

	// MaxRetries is the number of consecutive validation failures in
	// one state (or consecutive persistence failures) that force the
	// conversation to end. Default 3.
	MaxRetries int

	// RetrievalK is how many articles to request per grounded reply.
	// Default retrieval.DefaultLimit.
	RetrievalK int

	// IdleTimeout reclaims sessions with no activity for this long.
	// Default 30 minutes.
	IdleTimeout time.Duration

	// ReapInterval is how often the reaper scans. Default 1 minute.
	ReapInterval time.Duration

	// Generation settings, used only when Generator is set.
	GenerationModel     string
	GenerationMaxTokens int
	GenerationAttempts  int           // default 3
	GenerationBackoff   time.Duration // default 1s, between attempts

	// Denylist terms rejected before any input parsing.
	Denylist []string

	Clock     clock.Clock
	Logger    *slog.Logger
	Retriever retrieval.Retriever
	Generator llm.Provider
	Sink      TicketSink

	// OnSessionEnd is called with a snapshot of every session that
	// reaches a terminal state or is reaped, after it is archived.
	// Called outside the session gate; must not call back into the
	// engine for the same session.
	OnSessionEnd func(ended Session)
}

// Engine runs concurrent thermostat support conversations.
type Engine struct {
	gapThreshold float64
	maxRetries   int
	retrievalK   int
	idleTimeout  time.Duration
	reapInterval time.Duration

	generationModel     string
	generationMaxTokens int
	generationAttempts  int
	generationBackoff   time.Duration

	clock        clock.Clock
	logger       *slog.Logger
	retriever    retrieval.Retriever
	generator    llm.Provider
	sink         TicketSink
	onSessionEnd func(Session)

	normalizer *Normalizer
	store      *Store

	// Ticket ID allocation: tickets created in the same wall second
	// get a monotonic suffix.
	idMu      sync.Mutex
	lastStamp string
	lastSeq   int
}

// NewEngine validates the config and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("dialogue: Config.Sink is required")
	}

	engine := &Engine{
		gapThreshold:        cfg.GapThreshold,
		maxRetries:          cfg.MaxRetries,
		retrievalK:          cfg.RetrievalK,
		idleTimeout:         cfg.IdleTimeout,
		reapInterval:        cfg.ReapInterval,
		generationModel:     cfg.GenerationModel,
		generationMaxTokens: cfg.GenerationMaxTokens,
		generationAttempts:  cfg.GenerationAttempts,
		generationBackoff:   cfg.GenerationBackoff,
		clock:               cfg.Clock,
		logger:              cfg.Logger,
		retriever:           cfg.Retriever,
		generator:           cfg.Generator,
		sink:                cfg.Sink,
		onSessionEnd:        cfg.OnSessionEnd,
		normalizer:          NewNormalizer(cfg.Denylist),
		store:               NewStore(),
	}

	if engine.gapThreshold <= 0 {
		engine.gapThreshold = 2.0
	}
	if engine.maxRetries <= 0 {
		engine.maxRetries = 3
	}
	if engine.retrievalK <= 0 {
		engine.retrievalK = retrieval.DefaultLimit
	}
	if engine.idleTimeout <= 0 {
		engine.idleTimeout = 30 * time.Minute
	}
	if engine.reapInterval <= 0 {
		engine.reapInterval = time.Minute
	}
	if engine.generationAttempts <= 0 {
		engine.generationAttempts = 3
	}
	if engine.generationBackoff <= 0 {
		engine.generationBackoff = time.Second
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.New(slog.DiscardHandler)
	}
	return engine, nil
}

// Sessions exposes the session store for transport-layer status
// reporting.
func (e *Engine) Sessions() *Store {
	return e.store
}

// StartDialogue opens a new conversation about topic and returns its
// id and the greeting. The greeting is retrieval-grounded and
// generated when collaborators are configured, canned otherwise.
func (e *Engine) StartDialogue(ctx context.Context, topic string) (dialogueID, greeting string, err error) {
	session := newSession(newDialogueID(), topic, e.clock.Now())
	greeting = e.phrase(ctx, session, topic, cannedGreeting)
	e.store.Insert(session)

	e.logger.Info("dialogue started",
		"dialogue_id", session.ID,
		"topic", topic,
	)
	return session.ID, greeting, nil
}

// ProcessTurn applies one user input to the session. Turns for the
// same session are serialized in submission order; a cancelled or
// failed turn leaves the session exactly as it was (persistence
// failures commit only their retry bookkeeping). A PersistenceError
// on a still-live session comes back with a reply telling the user
// how to retry.
func (e *Engine) ProcessTurn(ctx context.Context, dialogueID, userText string) (string, error) {
	session, archived := e.store.Lookup(dialogueID)
	if session == nil || archived {
		return "", ErrSessionNotFound
	}

	if err := session.acquire(ctx); err != nil {
		return "", err
	}
	defer session.release()

	// The session may have reached a terminal state (or been reaped)
	// while this turn waited for the gate.
	if session.State.Terminal() {
		return "", ErrSessionNotFound
	}

	now := e.clock.Now()
	scratch := session.snapshot()

	reply, turnErr := e.applyTurn(ctx, scratch, userText, now)

	var persist *PersistenceError
	if errors.As(turnErr, &persist) {
		// The failed save keeps the session alive for retry: commit
		// the scratch (facts, history, failure counter) and surface
		// the error. While retry is still possible the reply tells
		// the user how to trigger it.
		session.commit(scratch, now)
		if session.State.Terminal() {
			e.finish(session)
			return "", turnErr
		}
		return replyPersistFailed, turnErr
	}
	if turnErr != nil {
		return "", turnErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	session.commit(scratch, now)
	if session.State.Terminal() {
		e.finish(session)
	}
	return reply, nil
}

// GetTicket returns the session's ticket if one was created. Absence
// is not an error; an unknown dialogue id is ErrSessionNotFound.
// Safe to call while a turn for the same session is in flight.
func (e *Engine) GetTicket(dialogueID string) (*ticket.Ticket, bool, error) {
	session, _ := e.store.Lookup(dialogueID)
	if session == nil {
		return nil, false, ErrSessionNotFound
	}
	_, stored := session.observe()
	if stored == nil {
		return nil, false, nil
	}
	return stored, true, nil
}

// Status is the committed public view of a conversation, for
// transport-layer reporting.
type Status struct {
	// State the conversation is in after its last committed turn.
	State State

	// Done is true once the conversation reached a terminal state;
	// further turns fail.
	Done bool

	// Ticket is the persisted ticket, or nil.
	Ticket *ticket.Ticket
}

// Status reports a conversation's committed state, live or archived.
// Unlike ProcessTurn it never waits on the session gate, so it is
// safe to poll while a turn is in flight.
func (e *Engine) Status(dialogueID string) (Status, error) {
	session, _ := e.store.Lookup(dialogueID)
	if session == nil {
		return Status{}, ErrSessionNotFound
	}
	state, stored := session.observe()
	return Status{State: state, Done: state.Terminal(), Ticket: stored}, nil
}

// applyTurn runs one turn against the scratch session. Exactly one
// history record is appended for every executed turn, including
// re-prompts.
func (e *Engine) applyTurn(ctx context.Context, scratch *Session, raw string, now time.Time) (string, error) {
	switch scratch.State {
	case StateWelcome, StateCurrentTemp, StateDesiredTemp, StateTimeOfDay:
		return e.collectFact(ctx, scratch, raw, now)

	case StateDurationCheck:
		return e.routeDuration(ctx, scratch, raw, now)

	case StateCreateTicket:
		// Retrying a failed ticket save. Any input triggers the
		// retry; the input itself is recorded but not parsed.
		scratch.appendTurn(StateCreateTicket, raw, "", now)
		return e.createTicket(ctx, scratch, now, "")

	case StateWaitHour:
		scratch.appendTurn(StateWaitHour, raw, "", now)
		scratch.State = StateEnd
		return replyGoodbye, nil

	default:
		return "", ErrSessionNotFound
	}
}

// collectFact handles the linear data-collection states.
func (e *Engine) collectFact(ctx context.Context, scratch *Session, raw string, now time.Time) (string, error) {
	value, err := e.normalizer.Normalize(scratch.State, raw, now)
	if validation, ok := AsValidationError(err); ok {
		return e.rejectInput(scratch, raw, validation, now), nil
	}
	if err != nil {
		return "", err
	}

	scratch.appendTurn(scratch.State, raw, value.Normalized(scratch.State), now)
	scratch.Retries = 0

	switch scratch.State {
	case StateWelcome:
		scratch.State = StateCurrentTemp
		return e.phrase(ctx, scratch, value.Text, cannedAcknowledge), nil

	case StateCurrentTemp:
		temp := value.Temperature
		scratch.Facts.CurrentTemp = &temp
		scratch.State = StateDesiredTemp
		return promptDesiredTemp, nil

	case StateDesiredTemp:
		temp := value.Temperature
		scratch.Facts.DesiredTemp = &temp
		scratch.State = StateTimeOfDay
		return promptTimeOfDay, nil

	default: // StateTimeOfDay
		scratch.Facts.TimeOfDay = value.TimeOfDay
		scratch.State = StateDurationCheck
		return promptDuration, nil
	}
}

// rejectInput records a validation failure: state unchanged, retry
// counter up, forced end after too many consecutive failures.
func (e *Engine) rejectInput(scratch *Session, raw string, validation *ValidationError, now time.Time) string {
	scratch.appendTurn(scratch.State, raw, "", now)
	scratch.Retries++

	if scratch.Retries >= e.maxRetries {
		scratch.EndReason = fmt.Sprintf("%d consecutive invalid inputs in %s",
			scratch.Retries, scratch.State)
		scratch.State = StateEnd
		return replyForcedEnd
	}
	return rePrompt(scratch.State, validation.Kind)
}

// routeDuration resolves the duration bucket and branches: ticket
// creation when the gap or the duration says the fault is real,
// wait-an-hour advice otherwise.
func (e *Engine) routeDuration(ctx context.Context, scratch *Session, raw string, now time.Time) (string, error) {
	value, err := e.normalizer.Normalize(StateDurationCheck, raw, now)
	if validation, ok := AsValidationError(err); ok {
		// Only the denylist can fail here; duration itself always
		// resolves.
		return e.rejectInput(scratch, raw, validation, now), nil
	}
	if err != nil {
		return "", err
	}

	scratch.appendTurn(StateDurationCheck, raw, value.Normalized(StateDurationCheck), now)
	scratch.Retries = 0
	scratch.Facts.Duration = value.Duration

	gap := temperatureGap(scratch.Facts)
	if gap >= e.gapThreshold || value.Duration == DurationMoreThanHour {
		explanation := e.phrase(ctx, scratch, raw, cannedTicketExplanation)
		return e.createTicket(ctx, scratch, now, explanation)
	}

	explanation := e.phrase(ctx, scratch, raw, cannedWaitExplanation)
	scratch.State = StateWaitHour
	return explanation + "\n\n" + replyWaitAdvice, nil
}

// createTicket assembles (or reuses a previously assembled) ticket
// and hands it to the sink. On save failure the scratch stays in
// create_ticket with the assembled ticket pending, so the next turn
// retries without minting a new id; too many consecutive failures
// force the conversation to end.
func (e *Engine) createTicket(ctx context.Context, scratch *Session, now time.Time, explanation string) (string, error) {
	pending := scratch.Pending
	if pending == nil {
		pending = e.assemble(scratch, now)
		scratch.Pending = pending
	}

	if _, err := e.sink.SaveTicket(ctx, pending); err != nil {
		scratch.State = StateCreateTicket
		scratch.PersistFailures++
		e.logger.Warn("ticket save failed",
			"dialogue_id", scratch.ID,
			"ticket_id", pending.TicketID,
			"failures", scratch.PersistFailures,
			"error", err,
		)
		if scratch.PersistFailures >= e.maxRetries {
			scratch.EndReason = fmt.Sprintf("%d consecutive ticket save failures", scratch.PersistFailures)
			scratch.State = StateEnd
		}
		return "", &PersistenceError{Err: err}
	}

	scratch.Ticket = pending
	scratch.Pending = nil
	scratch.PersistFailures = 0
	scratch.State = StateTicketCreated

	e.logger.Info("ticket created",
		"dialogue_id", scratch.ID,
		"ticket_id", pending.TicketID,
		"error_state", pending.DeviceInfo.ErrorState,
	)

	announcement := replyTicketCreated(pending.TicketID)
	if explanation == "" {
		return announcement, nil
	}
	return explanation + "\n\n" + announcement, nil
}

// assemble builds the ticket record from the collected facts. Only
// called with current_temp, desired_temp, and time_of_day present;
// duration may be unknown.
func (e *Engine) assemble(scratch *Session, now time.Time) *ticket.Ticket {
	duration := scratch.Facts.Duration
	if duration == "" {
		duration = DurationUnknown
	}

	gap := temperatureGap(scratch.Facts)
	errorState := gap > e.gapThreshold || duration == DurationMoreThanHour

	return &ticket.Ticket{
		TicketID:  e.nextTicketID(now),
		Status:    ticket.StatusNew,
		CreatedAt: now.UTC().Format(time.RFC3339),
		ProblemDetails: ticket.ProblemDetails{
			CurrentTemp: *scratch.Facts.CurrentTemp,
			DesiredTemp: *scratch.Facts.DesiredTemp,
			TimeOfDay:   string(scratch.Facts.TimeOfDay),
			Duration:    string(duration),
		},
		DialogHistory: scratch.History(),
		DeviceInfo: ticket.DeviceInfo{
			Type:       ticket.DeviceTypeThermostat,
			ErrorState: errorState,
		},
	}
}

// nextTicketID allocates a timestamp-seeded identifier, giving
// tickets in the same wall second distinct monotonic suffixes.
func (e *Engine) nextTicketID(now time.Time) string {
	stamp := now.UTC().Format("20060102_150405")

	e.idMu.Lock()
	defer e.idMu.Unlock()
	if stamp == e.lastStamp {
		if e.lastSeq == 0 {
			e.lastSeq = 2
		} else {
			e.lastSeq++
		}
	} else {
		e.lastStamp = stamp
		e.lastSeq = 0
	}
	return ticket.FormatID(now, e.lastSeq)
}

// phrase produces a grounded free-form reply: one retrieval call for
// context (failure degrades to none), then one generation call with
// bounded retries (failure falls back to the canned text). Never
// fails the turn.
func (e *Engine) phrase(ctx context.Context, scratch *Session, latest, fallback string) string {
	if e.generator == nil {
		return fallback
	}

	var grounding []retrieval.ScoredArticle
	if e.retriever != nil {
		results, err := e.retriever.Search(ctx, e.groundingQuery(scratch, latest), e.retrievalK)
		if err != nil {
			e.logger.Warn("retrieval failed, continuing without context",
				"dialogue_id", scratch.ID,
				"error", err,
			)
		} else {
			grounding = results
		}
	}

	request := llm.Request{
		Model:     e.generationModel,
		MaxTokens: e.generationMaxTokens,
		System:    e.systemPrompt(scratch, grounding, fallback),
		Messages:  e.conversation(scratch, latest),
	}

	for attempt := 1; ; attempt++ {
		response, err := e.generator.Complete(ctx, request)
		if err == nil {
			if text := strings.TrimSpace(response.Text); text != "" {
				return text
			}
			err = fmt.Errorf("empty completion")
		}

		e.logger.Warn("generation failed",
			"dialogue_id", scratch.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt >= e.generationAttempts || ctx.Err() != nil {
			return fallback
		}
		select {
		case <-e.clock.After(e.generationBackoff):
		case <-ctx.Done():
			return fallback
		}
	}
}

// groundingQuery combines the collected facts with the latest user
// text for retrieval.
func (e *Engine) groundingQuery(scratch *Session, latest string) string {
	var parts []string
	if scratch.Topic != "" {
		parts = append(parts, scratch.Topic)
	}
	if scratch.Facts.TimeOfDay != "" {
		parts = append(parts, string(scratch.Facts.TimeOfDay))
	}
	if scratch.Facts.Duration != "" && scratch.Facts.Duration != DurationUnknown {
		parts = append(parts, strings.ReplaceAll(string(scratch.Facts.Duration), "_", " "))
	}
	if latest != "" {
		parts = append(parts, latest)
	}
	return strings.Join(parts, " ")
}

// systemPrompt frames the generation call: role, retrieved context,
// and the canned text whose meaning the reply must carry.
func (e *Engine) systemPrompt(scratch *Session, grounding []retrieval.ScoredArticle, fallback string) string {
	var builder strings.Builder
	builder.WriteString("You are a support assistant for a smart thermostat. ")
	builder.WriteString("Reply in at most three sentences and end with the same question or ")
	builder.WriteString("instruction as this reference reply:\n\n")
	builder.WriteString(fallback)

	if len(grounding) > 0 {
		builder.WriteString("\n\nRelevant support articles:\n")
		for _, hit := range grounding {
			builder.WriteString("\n## ")
			builder.WriteString(hit.Article.Title)
			builder.WriteString("\n")
			builder.WriteString(hit.Article.Body)
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// conversation converts the recent turn history into generation
// messages, ending with the latest user text.
func (e *Engine) conversation(scratch *Session, latest string) []llm.Message {
	// The last few turns are enough context; the facts travel in the
	// system prompt.
	const maxTurns = 6
	turns := scratch.Turns
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var messages []llm.Message
	for _, turn := range turns {
		if turn.UserInput != "" {
			messages = append(messages, llm.UserMessage(turn.UserInput))
		}
	}
	if latest != "" && (len(messages) == 0 || messages[len(messages)-1].Content != latest) {
		messages = append(messages, llm.UserMessage(latest))
	}
	if len(messages) == 0 {
		messages = append(messages, llm.UserMessage("Hello"))
	}
	return messages
}

// finish archives a terminal session and notifies the end hook with a
// snapshot.
func (e *Engine) finish(session *Session) {
	e.store.Archive(session)
	e.logger.Info("dialogue ended",
		"dialogue_id", session.ID,
		"state", session.State,
		"reason", session.EndReason,
		"turns", len(session.Turns),
	)
	if e.onSessionEnd != nil {
		e.onSessionEnd(*session.snapshot())
	}
}

// RunReaper periodically reclaims idle sessions until ctx is done.
func (e *Engine) RunReaper(ctx context.Context) {
	ticker := e.clock.NewTicker(e.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Reap(e.clock.Now())
		}
	}
}

// Reap archives active sessions idle past the timeout. Sessions with
// a turn in flight are skipped; they will be caught on a later scan.
// Returns the number of sessions reclaimed.
func (e *Engine) Reap(now time.Time) int {
	cutoff := now.Add(-e.idleTimeout)
	var reaped int
	for _, session := range e.store.Idle(cutoff) {
		if !session.tryAcquire() {
			continue
		}
		if !session.State.Terminal() && session.LastActive.Before(cutoff) {
			session.forceEnd("idle_timeout")
			e.finish(session)
			reaped++
		}
		session.release()
	}
	return reaped
}

// temperatureGap is the absolute difference between the current and
// desired temperatures. Zero when either is missing.
func temperatureGap(facts Facts) float64 {
	if facts.CurrentTemp == nil || facts.DesiredTemp == nil {
		return 0
	}
	gap := *facts.CurrentTemp - *facts.DesiredTemp
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// newDialogueID mints a random dialogue identifier.
func newDialogueID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("dialogue: reading random bytes: " + err.Error())
	}
	return "dlg_" + hex.EncodeToString(buf[:])
}
