// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// hearth-viewer is a standalone TUI for browsing support tickets and
// knowledge-base articles. The same UI is mounted as `hearth viewer`;
// this binary exists for hosts that install the viewer without the
// full CLI.
//
// The viewer opens the ticket database and knowledge-base directory
// directly, so it works with a stopped dialogue service. Press r inside
// the viewer to pick up rows written by a running service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/hearthware/hearth/lib/config"
	"github.com/hearthware/hearth/lib/kb"
	"github.com/hearthware/hearth/lib/ticketstore"
	"github.com/hearthware/hearth/lib/ticketui"
	"github.com/hearthware/hearth/lib/version"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.Default()

	var dbPath string
	var kbDir string

	flagSet := pflag.NewFlagSet("hearth-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&dbPath, "db", defaults.Service.DBPath, "path to the ticket database")
	flagSet.StringVar(&kbDir, "kb", defaults.Service.KBDir, "knowledge-base directory (empty article pane if missing)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("hearth-viewer " + version.Full())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	store, err := ticketstore.Open(ticketstore.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("cannot open ticket database %s: %w", dbPath, err)
	}
	defer store.Close()

	source := &localSource{store: store, kbDir: kbDir}

	model := ticketui.NewModel(source)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// localSource loads a snapshot straight from the database and the
// knowledge-base directory. A missing KB directory is not an error:
// the article pane is simply empty.
type localSource struct {
	store *ticketstore.Store
	kbDir string
}

func (s *localSource) Load(ctx context.Context) (*ticketui.Snapshot, error) {
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

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Hearth ticket viewer — interactive terminal UI for browsing support
tickets and knowledge-base articles.

Keys: j/k move, tab switch pane, / filter, J/K scroll detail,
r reload, q quit.

Usage:
  hearth-viewer [flags]

Examples:
  # Open the viewer with the default database and knowledge base
  hearth viewer

  # Point at a development database
  hearth viewer --db /tmp/hearth-dev/tickets.db --kb ./kb

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
