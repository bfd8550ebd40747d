// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package dialogue implements the thermostat support conversation
// engine: a fixed state machine that walks a customer from a problem
// description to either a support ticket or wait-and-see advice.
//
// The engine owns the session store and serializes turns per session
// with a capacity-1 gate channel; turns for different sessions run
// fully in parallel. Every turn is all-or-nothing: it mutates a
// scratch copy of the session and commits only on success, so a
// cancelled or failed turn leaves the session exactly as it was.
//
// Two collaborators surround the machine. A [retrieval.Retriever]
// supplies knowledge-base context for the free-form replies (the
// greeting and branch explanations); an [llm.Provider] phrases them.
// Both are optional at every turn: retrieval failure degrades to no
// context, generation failure falls back to canned text after bounded
// retries, and neither ever aborts a conversation. The one hard
// failure a caller sees mid-conversation is [PersistenceError] from
// the ticket sink, which preserves the session so the next turn
// retries assembly.
package dialogue
