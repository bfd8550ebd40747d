// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieval ranks knowledge-base articles by relevance to a
// natural-language query. The dialogue engine uses it to ground
// generated replies in product documentation.
//
// The in-process implementation is an Okapi BM25 index built once
// over the loaded article corpus and immutable thereafter. The
// Retriever interface keeps the engine decoupled from the index so a
// remote vector-search service can substitute without touching the
// dialogue code.
package retrieval
