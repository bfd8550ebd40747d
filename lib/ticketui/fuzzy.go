// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult holds the outcome of a fuzzy match: a relevance score
// (higher is better, 0 means no match) and the rune positions in the
// text that matched the pattern, for highlight rendering.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// FuzzyMatch runs fzf's FuzzyMatchV2 algorithm against text.
// Matching is case-insensitive: both sides are lowercased, so the
// returned positions index into the original text unchanged (rune
// counts are preserved by lowercasing). The slab may be nil; passing
// a reused slab avoids per-call allocations in tight loops.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 || text == "" {
		return FuzzyResult{}
	}

	chars := util.ToChars([]byte(strings.ToLower(text)))
	lowered := []rune(strings.ToLower(string(pattern)))

	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Score <= 0 {
		return FuzzyResult{}
	}

	var matched []int
	if positions != nil {
		matched = *positions
	}
	return FuzzyResult{Score: result.Score, Positions: matched}
}
