// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// BM25 parameters (Okapi variant, standard values).
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

// Field weights: a query term matching the title or a tag ranks the
// article higher than the same term buried in the body.
const (
	titleWeight = 3
	tagWeight   = 2
	bodyWeight  = 1
)

// tokenPattern splits text into alphanumeric runs.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Index is a BM25 (Okapi) index over articles. The index is built at
// construction time and is immutable thereafter; it is safe for
// concurrent read access. Index implements [Retriever].
type Index struct {
	// articles in corpus insertion order. Position is the tiebreak
	// for equal scores.
	articles []Article

	// termFrequencies[i][term] is the term frequency in the weighted
	// composite document for article i.
	termFrequencies []map[string]int

	// lengths[i] is the total weighted token count for article i.
	lengths []int

	// averageLength is the mean of lengths.
	averageLength float64

	// idf[term] is the precomputed inverse document frequency for
	// each term in the corpus.
	idf map[string]float64
}

// NewIndex builds a BM25 index from the given articles. Construction
// is O(total tokens) and sub-millisecond for a typical knowledge base
// of a few hundred articles.
func NewIndex(articles []Article) *Index {
	index := &Index{
		articles:        articles,
		termFrequencies: make([]map[string]int, len(articles)),
		lengths:         make([]int, len(articles)),
		idf:             make(map[string]float64),
	}

	// Track how many articles contain each term (for IDF).
	documentFrequency := make(map[string]int)

	var totalLength int

	for i, article := range articles {
		tokens := compositeTokens(article)
		index.lengths[i] = len(tokens)
		totalLength += len(tokens)

		termFrequency := make(map[string]int)
		seen := make(map[string]bool)
		for _, token := range tokens {
			termFrequency[token]++
			if !seen[token] {
				seen[token] = true
				documentFrequency[token]++
			}
		}
		index.termFrequencies[i] = termFrequency
	}

	if len(articles) > 0 {
		index.averageLength = float64(totalLength) / float64(len(articles))
	}

	// Precompute IDF. Terms appearing in every article get a small
	// positive score (epsilon) rather than zero, so they still
	// contribute a little to ranking.
	articleCount := float64(len(articles))
	for term, frequency := range documentFrequency {
		idf := math.Log(1 + (articleCount-float64(frequency)+0.5)/(float64(frequency)+0.5))
		if idf < 0 {
			idf = paramEpsilon
		}
		index.idf[term] = idf
	}

	return index
}

// Search returns up to k articles ranked by BM25 relevance to the
// query, ties broken by corpus insertion order. An empty result is
// success: the caller generates from conversation context alone.
func (index *Index) Search(ctx context.Context, query string, k int) ([]ScoredArticle, error) {
	if k <= 0 {
		return nil, fmt.Errorf("retrieval: result count must be positive, got %d", k)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return []ScoredArticle{}, nil
	}

	type scored struct {
		position int
		score    float64
	}
	var hits []scored

	for i := range index.articles {
		score := index.score(i, queryTokens)
		if score > 0 {
			hits = append(hits, scored{position: i, score: score})
		}
	}

	// Descending score; insertion order breaks ties (stable contract
	// for downstream prompt assembly).
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]ScoredArticle, len(hits))
	for i, hit := range hits {
		results[i] = ScoredArticle{
			Article: index.articles[hit.position],
			Score:   hit.score,
		}
	}
	return results, nil
}

// Len returns the number of indexed articles.
func (index *Index) Len() int { return len(index.articles) }

// score computes the BM25 score for one article against the query
// tokens.
func (index *Index) score(position int, queryTokens []string) float64 {
	termFrequency := index.termFrequencies[position]
	length := float64(index.lengths[position])

	var score float64
	for _, token := range queryTokens {
		idf, exists := index.idf[token]
		if !exists {
			continue
		}

		frequency := float64(termFrequency[token])
		if frequency == 0 {
			continue
		}

		// BM25 term score:
		// IDF * (tf * (k1 + 1)) / (tf + k1 * (1 - b + b * dl/avgdl))
		numerator := frequency * (paramK1 + 1)
		denominator := frequency + paramK1*(1-paramB+paramB*length/index.averageLength)
		score += idf * numerator / denominator
	}

	return score
}

// compositeTokens builds the weighted token sequence for an article
// by repeating each field's tokens according to its weight. A simple
// alternative to per-field BM25 that works well for small corpora.
func compositeTokens(article Article) []string {
	var tokens []string

	appendWeighted := func(text string, weight int) {
		fieldTokens := Tokenize(text)
		for i := 0; i < weight; i++ {
			tokens = append(tokens, fieldTokens...)
		}
	}

	appendWeighted(article.Title, titleWeight)
	appendWeighted(strings.Join(article.Tags, " "), tagWeight)
	appendWeighted(article.Body, bodyWeight)

	return tokens
}

// Tokenize splits text into lowercase alphanumeric tokens, discarding
// tokens shorter than 2 characters ("a", "I", and similar noise).
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	matches := tokenPattern.FindAllString(lower, -1)

	tokens := matches[:0]
	for _, match := range matches {
		if len(match) >= 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}
