// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import "context"

// DefaultLimit is the result count used when callers have no reason
// to choose otherwise. Three articles keeps grounding prompts short.
const DefaultLimit = 3

// Article is one knowledge-base document.
type Article struct {
	// ID is the stable article identifier (content-derived, assigned
	// by the knowledge-base loader).
	ID string

	// Title is the article headline. Weighted above body text during
	// ranking.
	Title string

	// Body is the full article text (markdown).
	Body string

	// Tags are free-form topic labels from the article front matter.
	Tags []string
}

// ScoredArticle is a search hit: the article plus its relevance score.
type ScoredArticle struct {
	Article Article

	// Score is the BM25 relevance score. Higher is more relevant;
	// the scale depends on the corpus and is not bounded.
	Score float64
}

// Retriever supplies grounding context for a query. Implementations
// must order results by descending relevance, break score ties by
// corpus insertion order, and return an empty slice (not an error)
// when nothing matches.
type Retriever interface {
	// Search returns up to k articles relevant to query. k <= 0 is
	// a caller bug and fails fast.
	Search(ctx context.Context, query string, k int) ([]ScoredArticle, error)
}
