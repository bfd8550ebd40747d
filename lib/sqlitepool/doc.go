// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the Hearth-standard SQLite connection
// pool. The ticket store and the transcript archive both keep their
// state in a single SQLite file; this package wraps
// zombiezen.com/go/sqlite with the pragmas that make that safe under
// a concurrent dialogue service: WAL journal mode, NORMAL synchronous,
// a busy timeout for write contention, and enforced foreign keys
// (transcripts reference tickets).
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are not safe for concurrent use — each goroutine
// holds its own connection for the duration of its work. Transactions
// use sqlitex.ImmediateTransaction; there is no query builder and no
// ORM, services write SQL directly.
package sqlitepool
