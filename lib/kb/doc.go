// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package kb loads the support knowledge base from disk.
//
// A knowledge-base directory contains a manifest.jsonc naming the
// article files in ranking-tiebreak order, plus markdown articles
// with YAML front matter (title, tags). The loader assigns each
// article a BLAKE3 content-derived identifier, so an article's ID
// changes exactly when its text does.
//
// The manifest may also carry the profanity denylist consulted by
// the dialogue input normalizer.
package kb
