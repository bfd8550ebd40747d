// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"context"

	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/schema/ticket"
)

// Snapshot is one consistent view of the browsable data.
type Snapshot struct {
	// Tickets newest-first, as stored.
	Tickets []*ticket.Ticket

	// Articles in knowledge-base manifest order.
	Articles []retrieval.Article
}

// Source provides snapshots to the viewer. Load is called once at
// startup and again on the reload key.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// StaticSource is a Source over fixed data. Used by tests and by
// one-shot invocations that already hold the data.
type StaticSource struct {
	Snapshot Snapshot
}

func (s *StaticSource) Load(ctx context.Context) (*Snapshot, error) {
	return &s.Snapshot, nil
}
