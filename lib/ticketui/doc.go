// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticketui implements the terminal user interface for
// browsing Hearth support tickets and knowledge-base articles. Built
// on bubbletea (Elm architecture), it provides a split-pane view: a
// filterable ticket list on the left and a rendered detail pane on
// the right, with a second tab for the knowledge base.
//
// The [Source] interface decouples the TUI from the data backend: the
// viewer binary wraps the sqlite ticket store and the on-disk
// knowledge base; tests use an in-memory source.
//
// Data flow:
//
//	[sqlite ticket store / kb directory]
//	        | (Source interface)
//	    [Model] <- bubbletea event loop
//	        |
//	  [terminal output]
package ticketui
