// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"
)

// listEntry is one row of the left pane, independent of which tab is
// active.
type listEntry struct {
	// ID is the ticket id or article id.
	ID string

	// Label is the display line and the fuzzy-match target.
	Label string

	// Status is empty for articles.
	Status string

	// Fault marks tickets whose facts indicate a real defect.
	Fault bool

	// Index into the snapshot's backing slice.
	Index int
}

// scoredEntry pairs an entry with its fuzzy score for sorting.
type scoredEntry struct {
	entry     listEntry
	score     int
	positions []int
}

// filterEntries applies the fuzzy filter. An empty pattern returns
// all entries in their original order with zero scores; otherwise
// only matching entries, best score first (original order as the
// tiebreak, via stable sort).
func filterEntries(entries []listEntry, pattern string, slab *util.Slab) []scoredEntry {
	if pattern == "" {
		scored := make([]scoredEntry, len(entries))
		for index, entry := range entries {
			scored[index] = scoredEntry{entry: entry}
		}
		return scored
	}

	runes := []rune(pattern)
	var scored []scoredEntry
	for _, entry := range entries {
		result := FuzzyMatch(entry.Label, runes, slab)
		if result.Score <= 0 {
			continue
		}
		scored = append(scored, scoredEntry{
			entry:     entry,
			score:     result.Score,
			positions: result.Positions,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored
}

// renderList draws the visible window of the list pane.
func (model Model) renderList(entries []scoredEntry, width, height int) string {
	if len(entries) == 0 {
		empty := model.newStyle().Foreground(model.theme.FaintText).Render("  nothing to show")
		return empty + strings.Repeat("\n", max(0, height-1))
	}

	// Scroll the window so the cursor stays visible.
	top := 0
	if model.cursor >= height {
		top = model.cursor - height + 1
	}

	var lines []string
	for row := top; row < len(entries) && row < top+height; row++ {
		lines = append(lines, model.renderListRow(entries[row], row == model.cursor, width))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderListRow(scored scoredEntry, selected bool, width int) string {
	entry := scored.entry

	marker := "  "
	if entry.Fault {
		marker = model.newStyle().Foreground(model.theme.FaultForeground).Render("! ")
	}

	label := highlightMatches(entry.Label, scored.positions, model.newStyle().
		Foreground(model.theme.MatchForeground).Bold(true))

	line := marker + label
	if entry.Status != "" {
		status := model.newStyle().Foreground(model.theme.StatusColor(entry.Status)).
			Render(" [" + entry.Status + "]")
		line += status
	}

	line = ansi.Truncate(line, width, "…")
	if selected {
		pad := width - ansi.StringWidth(line)
		if pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		return model.newStyle().
			Background(model.theme.SelectedBackground).
			Foreground(model.theme.SelectedForeground).
			Render(ansi.Strip(line))
	}
	return line
}

// highlightMatches styles the matched rune positions of label.
func highlightMatches(label string, positions []int, style lipgloss.Style) string {
	if len(positions) == 0 {
		return label
	}
	matched := make(map[int]bool, len(positions))
	for _, position := range positions {
		matched[position] = true
	}

	var builder strings.Builder
	for index, r := range []rune(label) {
		if matched[index] {
			builder.WriteString(style.Render(string(r)))
		} else {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// ticketEntries flattens the snapshot's tickets into list rows.
func ticketEntries(snapshot *Snapshot) []listEntry {
	entries := make([]listEntry, 0, len(snapshot.Tickets))
	for index, stored := range snapshot.Tickets {
		label := fmt.Sprintf("%s  %g → %g °C", stored.TicketID,
			stored.ProblemDetails.CurrentTemp, stored.ProblemDetails.DesiredTemp)
		entries = append(entries, listEntry{
			ID:     stored.TicketID,
			Label:  label,
			Status: stored.Status,
			Fault:  stored.DeviceInfo.ErrorState,
			Index:  index,
		})
	}
	return entries
}

// articleEntries flattens the snapshot's knowledge base into list rows.
func articleEntries(snapshot *Snapshot) []listEntry {
	entries := make([]listEntry, 0, len(snapshot.Articles))
	for index, article := range snapshot.Articles {
		label := article.Title
		if len(article.Tags) > 0 {
			label += "  (" + strings.Join(article.Tags, ", ") + ")"
		}
		entries = append(entries, listEntry{
			ID:    article.ID,
			Label: label,
			Index: index,
		})
	}
	return entries
}
