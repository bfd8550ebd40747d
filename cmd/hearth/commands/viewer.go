// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/hearthware/hearth/lib/config"
	"github.com/hearthware/hearth/lib/kb"
	"github.com/hearthware/hearth/lib/ticketstore"
	"github.com/hearthware/hearth/lib/ticketui"
)

// viewerCommand returns the "viewer" subcommand that launches the
// interactive ticket viewer TUI. The same UI ships as the standalone
// hearth-viewer binary.
func viewerCommand() *cli.Command {
	defaults := config.Default()
	var dbPath string
	var kbDir string

	return &cli.Command{
		Name:    "viewer",
		Summary: "interactive ticket and knowledge-base viewer",
		Description: `Launch an interactive terminal UI for browsing support tickets
and knowledge-base articles.

The viewer opens the ticket database and knowledge-base directory
directly, so it works with a stopped dialogue service. Press r
inside the viewer to pick up rows written by a running service.`,
		Usage: "hearth viewer [flags]",
		Examples: []cli.Example{
			{
				Description: "Open the viewer with the default database",
				Command:     "hearth viewer",
			},
			{
				Description: "Point at a development database",
				Command:     "hearth viewer --db /tmp/hearth-dev/tickets.db --kb ./kb",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("viewer", pflag.ContinueOnError)
			flagSet.StringVar(&dbPath, "db", defaults.Service.DBPath, "path to the ticket database")
			flagSet.StringVar(&kbDir, "kb", defaults.Service.KBDir, "knowledge-base directory")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			store, err := ticketstore.Open(ticketstore.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("cannot open ticket database %s: %w", dbPath, err)
			}
			defer store.Close()

			model := ticketui.NewModel(&viewerSource{store: store, kbDir: kbDir})
			program := tea.NewProgram(model, tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}

// viewerSource loads a snapshot straight from the database and the
// knowledge-base directory. A missing KB directory leaves the article
// pane empty.
type viewerSource struct {
	store *ticketstore.Store
	kbDir string
}

func (s *viewerSource) Load(ctx context.Context) (*ticketui.Snapshot, error) {
	tickets, err := s.store.List(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	snapshot := &ticketui.Snapshot{Tickets: tickets}
	if s.kbDir != "" {
		knowledge, err := kb.Load(s.kbDir)
		if err == nil {
			snapshot.Articles = knowledge.Articles
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return snapshot, nil
}
