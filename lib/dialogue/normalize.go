// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Accepted temperature range in degrees Celsius, inclusive on both
// ends. Values a domestic thermostat can plausibly read or be set to.
const (
	MinTemperature = 10.0
	MaxTemperature = 35.0
)

// Value is the normalized reading of one user input. Only the field
// relevant to the state that produced it is set.
type Value struct {
	Temperature float64
	TimeOfDay   TimeOfDay
	Duration    Duration

	// Text is the trimmed raw input, kept for the welcome state
	// where the problem description itself is the value.
	Text string
}

// Normalized renders the value for a history record.
func (v Value) Normalized(state State) string {
	switch state {
	case StateCurrentTemp, StateDesiredTemp:
		return strconv.FormatFloat(v.Temperature, 'g', -1, 64)
	case StateTimeOfDay:
		return string(v.TimeOfDay)
	case StateDurationCheck:
		return string(v.Duration)
	default:
		return v.Text
	}
}

// Normalizer turns raw user text into typed values for the state
// machine. Pure: decisions are deterministic given the same input,
// denylist, and wall-clock instant.
type Normalizer struct {
	// denylist terms, lowercase. Matched whole-word,
	// case-insensitive, before any parsing.
	denylist []string
}

// NewNormalizer builds a normalizer with the given denylist terms.
// Terms are case-folded; empty terms are dropped.
func NewNormalizer(denylist []string) *Normalizer {
	normalizer := &Normalizer{}
	for _, term := range denylist {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalizer.denylist = append(normalizer.denylist, term)
		}
	}
	return normalizer
}

// numberPattern matches the first number in free text: optional
// minus, decimal point tolerated. Unit words around it are ignored.
var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Normalize validates raw input against the expectations of state.
// The now instant resolves relative time expressions ("now"). Returns
// a *ValidationError for unusable input; duration states never fail.
func (n *Normalizer) Normalize(state State, raw string, now time.Time) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	// Denylist first, before any parsing.
	if term, hit := n.denylistHit(lower); hit {
		return Value{}, &ValidationError{
			Kind:    KindRejected,
			Message: fmt.Sprintf("input contains a blocked term (%q)", term),
		}
	}

	switch state {
	case StateWelcome:
		if trimmed == "" {
			return Value{}, &ValidationError{
				Kind:    KindRejected,
				Message: "empty problem description",
			}
		}
		return Value{Text: trimmed}, nil

	case StateCurrentTemp, StateDesiredTemp:
		return n.normalizeTemperature(trimmed)

	case StateTimeOfDay:
		return n.normalizeTimeOfDay(lower, now)

	case StateDurationCheck:
		return Value{Duration: n.normalizeDuration(lower), Text: trimmed}, nil

	default:
		// wait_hour accepts anything; terminal states never reach
		// the normalizer.
		return Value{Text: trimmed}, nil
	}
}

func (n *Normalizer) normalizeTemperature(trimmed string) (Value, error) {
	match := numberPattern.FindString(trimmed)
	if match == "" {
		return Value{}, &ValidationError{
			Kind:    KindNoNumberFound,
			Message: fmt.Sprintf("no temperature found in %q", trimmed),
		}
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return Value{}, &ValidationError{
			Kind:    KindNoNumberFound,
			Message: fmt.Sprintf("unparseable number %q", match),
		}
	}
	if value < MinTemperature || value > MaxTemperature {
		return Value{}, &ValidationError{
			Kind: KindOutOfRange,
			Message: fmt.Sprintf("%g is outside the accepted %g-%g degree range",
				value, MinTemperature, MaxTemperature),
		}
	}
	return Value{Temperature: value}, nil
}

// timeKeywords maps token matches to buckets. Checked in token form
// so "afternoon" never matches a stray "noon" substring rule.
var timeKeywords = map[string]TimeOfDay{
	"morning":   TimeMorning,
	"afternoon": TimeAfternoon,
	"evening":   TimeEvening,
	"night":     TimeNight,
	"noon":      TimeAfternoon,
	"midnight":  TimeNight,
}

func (n *Normalizer) normalizeTimeOfDay(lower string, now time.Time) (Value, error) {
	tokens := splitWords(lower)
	for _, token := range tokens {
		if bucket, ok := timeKeywords[token]; ok {
			return Value{TimeOfDay: bucket}, nil
		}
		if token == "now" || token == "currently" || token == "today" {
			return Value{TimeOfDay: BucketForHour(now.Hour())}, nil
		}
	}
	return Value{}, &ValidationError{
		Kind:    KindUnrecognizedTime,
		Message: fmt.Sprintf("no time of day recognized in %q", lower),
	}
}

// BucketForHour maps a wall-clock hour to its time bucket:
// morning 05-11, afternoon 12-16, evening 17-21, night 22-04.
func BucketForHour(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour <= 11:
		return TimeMorning
	case hour >= 12 && hour <= 16:
		return TimeAfternoon
	case hour >= 17 && hour <= 21:
		return TimeEvening
	default:
		return TimeNight
	}
}

// normalizeDuration maps free text to a duration bucket. Ambiguous
// input (empty included) defaults to unknown, never an error. The
// less-than checks run first: "less than an hour" must not match the
// bare "hour" rule.
func (n *Normalizer) normalizeDuration(lower string) Duration {
	switch {
	case strings.Contains(lower, "less than"),
		strings.Contains(lower, "minute"),
		strings.Contains(lower, "just now"),
		strings.Contains(lower, "just started"),
		strings.Contains(lower, "recently"):
		return DurationLessThanHour

	case strings.Contains(lower, "more than"),
		strings.Contains(lower, "over an hour"),
		strings.Contains(lower, "hour"),
		strings.Contains(lower, "all day"),
		strings.Contains(lower, "all night"),
		strings.Contains(lower, "days"),
		strings.Contains(lower, "long time"):
		return DurationMoreThanHour

	default:
		return DurationUnknown
	}
}

// denylistHit reports whether any denylist term appears as a whole
// word in the lowercased input.
func (n *Normalizer) denylistHit(lower string) (string, bool) {
	if len(n.denylist) == 0 {
		return "", false
	}
	tokens := splitWords(lower)
	for _, term := range n.denylist {
		for _, token := range tokens {
			if token == term {
				return term, true
			}
		}
	}
	return "", false
}

// splitWords breaks text on anything that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
}
