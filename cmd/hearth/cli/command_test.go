// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "hearth",
		Subcommands: []*Command{
			{
				Name: "status",
				Run: func(args []string) error {
					called = "status"
					return nil
				},
			},
			{
				Name: "dialogue",
				Run: func(args []string) error {
					called = "dialogue"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"dialogue"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "dialogue" {
		t.Errorf("dispatched to %q, want %q", called, "dialogue")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "hearth",
		Subcommands: []*Command{
			{
				Name: "ticket",
				Subcommands: []*Command{
					{
						Name: "show",
						Run: func(args []string) error {
							called = "ticket show"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"ticket", "show", "ticket_20260829_150000"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "ticket show" {
		t.Errorf("dispatched to %q, want %q", called, "ticket show")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "ticket_20260829_150000" {
		t.Errorf("args = %v, want the ticket id", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string

	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(args []string) error {
			return nil
		},
	}

	if err := command.Execute([]string{"--socket", "/custom.sock"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socket = %q, want /custom.sock", socketPath)
	}
}

func TestCommand_Execute_UnknownSubcommandSuggests(t *testing.T) {
	root := &Command{
		Name: "hearth",
		Subcommands: []*Command{
			{Name: "dialogue", Run: func([]string) error { return nil }},
			{Name: "ticket", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"dialouge"})
	if err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "dialogue"`) {
		t.Errorf("error %q does not suggest dialogue", err.Error())
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.String("status", "", "status filter")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--stauts", "new"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "--status") {
		t.Errorf("error %q does not suggest --status", err.Error())
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "hearth",
		Subcommands: []*Command{
			{Name: "status", Summary: "service health", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute(nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Fatalf("Execute() = %v, want subcommand-required error", err)
	}
}

func TestCommand_PrintHelp_ListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "hearth",
		Summary: "smart thermostat support assistant",
		Subcommands: []*Command{
			{Name: "dialogue", Summary: "run support conversations"},
			{Name: "ticket", Summary: "inspect stored tickets"},
		},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	help := buffer.String()

	for _, want := range []string{"dialogue", "run support conversations", "ticket", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}
