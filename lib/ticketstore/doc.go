// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticketstore persists support tickets and sealed
// conversation transcripts in SQLite.
//
// Tickets are stored twice over: hot columns (status, creation time,
// the collected facts, error state) for querying, plus the full
// external JSON document as the authoritative payload. Transcripts
// are opaque sealed blobs from lib/archive, keyed by dialogue id with
// an optional foreign key to the ticket the conversation produced.
//
// The store implements the dialogue engine's persistence sink; a
// failed save surfaces as an error the engine converts to a
// PersistenceError and retries.
package ticketstore
