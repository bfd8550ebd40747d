// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"
	"github.com/muesli/termenv"
)

// Tab identifies which data view is active.
type Tab int

const (
	// TabTickets shows stored support tickets.
	TabTickets Tab = iota
	// TabKB shows knowledge-base articles.
	TabKB
)

// loadTimeout bounds a snapshot load triggered from the UI.
const loadTimeout = 10 * time.Second

// snapshotMsg delivers a (re)loaded snapshot through the bubbletea
// message loop.
type snapshotMsg struct {
	snapshot *Snapshot
	err      error
}

// Model is the bubbletea model for the viewer.
type Model struct {
	source Source
	theme  Theme

	snapshot *Snapshot
	loadErr  error

	tab    Tab
	cursor int

	filter    textinput.Model
	filtering bool

	detail viewport.Model

	width  int
	height int

	slab *util.Slab

	lipRenderer *lipgloss.Renderer
}

// NewModel builds the viewer model. The snapshot is loaded by Init.
func NewModel(source Source) Model {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter"

	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	return Model{
		source:      source,
		theme:       DefaultTheme,
		filter:      filter,
		detail:      viewport.New(0, 0),
		slab:        util.MakeSlab(100*1024, 2048),
		lipRenderer: lipRenderer,
	}
}

func (model Model) newStyle() lipgloss.Style {
	return model.lipRenderer.NewStyle()
}

// Init loads the first snapshot.
func (model Model) Init() tea.Cmd {
	return model.loadCmd()
}

func (model Model) loadCmd() tea.Cmd {
	source := model.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		snapshot, err := source.Load(ctx)
		return snapshotMsg{snapshot: snapshot, err: err}
	}
}

// entries returns the active tab's rows after filtering.
func (model Model) entries() []scoredEntry {
	if model.snapshot == nil {
		return nil
	}
	var rows []listEntry
	switch model.tab {
	case TabTickets:
		rows = ticketEntries(model.snapshot)
	default:
		rows = articleEntries(model.snapshot)
	}
	return filterEntries(rows, model.filter.Value(), model.slab)
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		model.width = msg.Width
		model.height = msg.Height
		model.layout()
		model.refreshDetail()
		return model, nil

	case snapshotMsg:
		model.snapshot = msg.snapshot
		model.loadErr = msg.err
		if model.cursor >= len(model.entries()) {
			model.cursor = 0
		}
		model.refreshDetail()
		return model, nil

	case tea.KeyMsg:
		if model.filtering {
			return model.updateFilter(msg)
		}
		return model.updateKeys(msg)
	}

	return model, nil
}

// updateFilter routes keystrokes to the filter input.
func (model Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		model.filtering = false
		model.filter.Blur()
		model.filter.SetValue("")
		model.cursor = 0
		model.refreshDetail()
		return model, nil
	case "enter":
		model.filtering = false
		model.filter.Blur()
		return model, nil
	}

	var cmd tea.Cmd
	model.filter, cmd = model.filter.Update(msg)
	model.cursor = 0
	model.refreshDetail()
	return model, cmd
}

func (model Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := model.entries()

	switch msg.String() {
	case "q", "ctrl+c":
		return model, tea.Quit

	case "tab":
		if model.tab == TabTickets {
			model.tab = TabKB
		} else {
			model.tab = TabTickets
		}
		model.cursor = 0
		model.filter.SetValue("")
		model.refreshDetail()

	case "/":
		model.filtering = true
		return model, model.filter.Focus()

	case "r":
		return model, model.loadCmd()

	case "j", "down":
		if model.cursor < len(entries)-1 {
			model.cursor++
			model.refreshDetail()
		}

	case "k", "up":
		if model.cursor > 0 {
			model.cursor--
			model.refreshDetail()
		}

	case "g", "home":
		model.cursor = 0
		model.refreshDetail()

	case "G", "end":
		if len(entries) > 0 {
			model.cursor = len(entries) - 1
			model.refreshDetail()
		}

	case "pgdown", "ctrl+d", "J":
		model.detail.HalfViewDown()

	case "pgup", "ctrl+u", "K":
		model.detail.HalfViewUp()
	}

	return model, nil
}

// layout recomputes pane sizes from the window size.
func (model *Model) layout() {
	listWidth := model.listWidth()
	model.detail.Width = max(10, model.width-listWidth-3)
	model.detail.Height = max(1, model.height-3)
	model.filter.Width = max(10, listWidth-4)
}

func (model Model) listWidth() int {
	width := model.width * 2 / 5
	if width < 24 {
		width = 24
	}
	return width
}

func (model Model) bodyHeight() int {
	return max(1, model.height-3)
}

// refreshDetail re-renders the detail pane for the entry under the
// cursor.
func (model *Model) refreshDetail() {
	entries := model.entries()
	if model.snapshot == nil || len(entries) == 0 || model.cursor >= len(entries) {
		model.detail.SetContent("")
		return
	}

	entry := entries[model.cursor].entry
	var markdown string
	switch model.tab {
	case TabTickets:
		markdown = ticketMarkdown(model.snapshot.Tickets[entry.Index])
	default:
		markdown = articleMarkdown(model.snapshot.Articles[entry.Index])
	}

	width := model.detail.Width
	if width <= 0 {
		width = 72
	}
	model.detail.SetContent(RenderMarkdown(markdown, model.theme, width))
	model.detail.GotoTop()
}

func (model Model) View() string {
	if model.loadErr != nil {
		return model.newStyle().Foreground(model.theme.FaultForeground).
			Render(fmt.Sprintf("load failed: %v", model.loadErr)) +
			"\n\npress r to retry, q to quit\n"
	}
	if model.snapshot == nil {
		return "loading…\n"
	}

	header := model.renderHeader()
	entries := model.entries()

	listWidth := model.listWidth()
	list := model.renderList(entries, listWidth, model.bodyHeight())

	detailStyle := model.newStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(model.theme.BorderColor).
		PaddingLeft(1)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		model.newStyle().Width(listWidth).Render(list),
		detailStyle.Render(model.detail.View()),
	)

	return header + "\n" + body + "\n" + model.renderFooter()
}

func (model Model) renderHeader() string {
	active := model.newStyle().Foreground(model.theme.HeaderForeground).Bold(true)
	inactive := model.newStyle().Foreground(model.theme.FaintText)

	tickets := inactive.Render("tickets")
	kb := inactive.Render("knowledge base")
	if model.tab == TabTickets {
		tickets = active.Render("tickets")
	} else {
		kb = active.Render("knowledge base")
	}

	counts := ""
	if model.snapshot != nil {
		counts = model.newStyle().Foreground(model.theme.FaintText).
			Render(fmt.Sprintf("  %d tickets · %d articles",
				len(model.snapshot.Tickets), len(model.snapshot.Articles)))
	}
	return " " + tickets + "  " + kb + counts
}

func (model Model) renderFooter() string {
	if model.filtering {
		return " " + model.filter.View()
	}

	help := "j/k move · tab switch · / filter · J/K scroll · r reload · q quit"
	line := model.newStyle().Foreground(model.theme.HelpText).Render(help)
	if value := model.filter.Value(); value != "" {
		line += model.newStyle().Foreground(model.theme.MatchForeground).
			Render("   filter: " + value)
	}
	return " " + line
}
