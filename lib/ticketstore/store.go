// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hearthware/hearth/lib/archive"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/hearthware/hearth/lib/sqlitepool"
)

// ErrNotFound is returned when a lookup references no stored record.
var ErrNotFound = errors.New("ticketstore: not found")

// schema creates the tables on first connection. payload is the full
// external JSON document; the scalar columns exist for querying.
const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id    TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	current_temp REAL NOT NULL,
	desired_temp REAL NOT NULL,
	time_of_day  TEXT NOT NULL,
	duration     TEXT NOT NULL,
	error_state  INTEGER NOT NULL,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tickets_by_status ON tickets (status, created_at);

CREATE TABLE IF NOT EXISTS transcripts (
	dialogue_id TEXT PRIMARY KEY,
	ticket_id   TEXT REFERENCES tickets (ticket_id),
	sealed      BLOB NOT NULL,
	compression TEXT NOT NULL,
	plain_size  INTEGER NOT NULL,
	archived_at TEXT NOT NULL
);
`

// Config holds the parameters for opening a ticket store.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize passes through to the connection pool.
	PoolSize int

	// Logger receives store lifecycle messages. Nil means discard.
	Logger *slog.Logger
}

// Store is the SQLite-backed ticket and transcript store. Safe for
// concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (creating if needed) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ticketstore: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// SaveTicket validates and inserts a ticket. A duplicate ticket_id is
// an error: the engine never reuses an id for a different ticket, so
// a collision means a real bug upstream. Returns the stored id.
//
// SaveTicket is the dialogue engine's persistence sink.
func (s *Store) SaveTicket(ctx context.Context, t *ticket.Ticket) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("ticketstore: invalid ticket %s: %w", t.TicketID, err)
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("ticketstore: encoding ticket %s: %w", t.TicketID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO tickets
			(ticket_id, status, created_at, current_temp, desired_temp,
			 time_of_day, duration, error_state, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				t.TicketID, t.Status, t.CreatedAt,
				t.ProblemDetails.CurrentTemp, t.ProblemDetails.DesiredTemp,
				t.ProblemDetails.TimeOfDay, t.ProblemDetails.Duration,
				boolToInt(t.DeviceInfo.ErrorState), string(payload),
			},
		})
	if err != nil {
		return "", fmt.Errorf("ticketstore: inserting ticket %s: %w", t.TicketID, err)
	}

	s.logger.Info("ticket saved",
		"ticket_id", t.TicketID,
		"error_state", t.DeviceInfo.ErrorState,
	)
	return t.TicketID, nil
}

// Get returns the stored ticket, or ErrNotFound.
func (s *Store) Get(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var payload string
	err = sqlitex.Execute(conn,
		"SELECT payload FROM tickets WHERE ticket_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{ticketID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				payload = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ticketstore: reading ticket %s: %w", ticketID, err)
	}
	if payload == "" {
		return nil, fmt.Errorf("ticketstore: ticket %s: %w", ticketID, ErrNotFound)
	}

	var t ticket.Ticket
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("ticketstore: decoding ticket %s: %w", ticketID, err)
	}
	return &t, nil
}

// List returns tickets newest-first, optionally filtered by status.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, status string, limit int) ([]*ticket.Ticket, error) {
	if status != "" && !isValidStatus(status) {
		return nil, fmt.Errorf("ticketstore: unknown status filter %q", status)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := "SELECT payload FROM tickets"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, ticket_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var tickets []*ticket.Ticket
	var decodeErr error
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var t ticket.Ticket
			if err := json.Unmarshal([]byte(stmt.ColumnText(0)), &t); err != nil {
				decodeErr = err
				return err
			}
			tickets = append(tickets, &t)
			return nil
		},
	})
	if err != nil {
		if decodeErr != nil {
			return nil, fmt.Errorf("ticketstore: decoding listed ticket: %w", decodeErr)
		}
		return nil, fmt.Errorf("ticketstore: listing tickets: %w", err)
	}
	return tickets, nil
}

// SetStatus moves a ticket through its lifecycle (support tooling,
// not the dialogue engine). ErrNotFound for an unknown id.
func (s *Store) SetStatus(ctx context.Context, ticketID, status string) error {
	if !isValidStatus(status) {
		return fmt.Errorf("ticketstore: unknown status %q", status)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	// The payload is authoritative; keep it in step with the column.
	current, err := s.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	current.Status = status
	payload, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("ticketstore: encoding ticket %s: %w", ticketID, err)
	}

	err = sqlitex.Execute(conn,
		"UPDATE tickets SET status = ?, payload = ? WHERE ticket_id = ?",
		&sqlitex.ExecOptions{Args: []any{status, string(payload), ticketID}})
	if err != nil {
		return fmt.Errorf("ticketstore: updating ticket %s: %w", ticketID, err)
	}
	return nil
}

// Count returns the number of stored tickets.
func (s *Store) Count(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM tickets", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ticketstore: counting tickets: %w", err)
	}
	return count, nil
}

// SaveTranscript stores a sealed conversation transcript. ticketID
// may be empty for conversations that produced no ticket. Replaces
// any earlier transcript for the same dialogue.
func (s *Store) SaveTranscript(ctx context.Context, dialogueID, ticketID string, sealed *archive.Sealed, archivedAt time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var ticketRef any
	if ticketID != "" {
		ticketRef = ticketID
	}

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO transcripts
			(dialogue_id, ticket_id, sealed, compression, plain_size, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				dialogueID, ticketRef, sealed.Blob,
				sealed.Compression.String(), sealed.PlainSize,
				archivedAt.UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return fmt.Errorf("ticketstore: inserting transcript %s: %w", dialogueID, err)
	}
	return nil
}

// GetTranscript returns the sealed transcript for a dialogue and the
// ticket it produced (empty when none). ErrNotFound for an unknown
// dialogue.
func (s *Store) GetTranscript(ctx context.Context, dialogueID string) (*archive.Sealed, string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, "", err
	}
	defer s.pool.Put(conn)

	var sealed *archive.Sealed
	var ticketID string
	var parseErr error
	err = sqlitex.Execute(conn, `
		SELECT ticket_id, sealed, compression, plain_size
		FROM transcripts WHERE dialogue_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{dialogueID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				compression, err := archive.ParseCompressionTag(stmt.ColumnText(2))
				if err != nil {
					parseErr = err
					return err
				}
				blob := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, blob)
				sealed = &archive.Sealed{
					Blob:        blob,
					Compression: compression,
					PlainSize:   stmt.ColumnInt(3),
				}
				ticketID = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		if parseErr != nil {
			return nil, "", fmt.Errorf("ticketstore: transcript %s: %w", dialogueID, parseErr)
		}
		return nil, "", fmt.Errorf("ticketstore: reading transcript %s: %w", dialogueID, err)
	}
	if sealed == nil {
		return nil, "", fmt.Errorf("ticketstore: transcript %s: %w", dialogueID, ErrNotFound)
	}
	return sealed, ticketID, nil
}

func isValidStatus(status string) bool {
	switch status {
	case ticket.StatusNew, ticket.StatusInProgress, ticket.StatusResolved:
		return true
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
