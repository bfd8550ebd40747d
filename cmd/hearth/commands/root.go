// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/hearthware/hearth/lib/version"
)

// Root builds the full hearth command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "hearth",
		Summary: "smart thermostat support assistant",
		Description: "hearth is the operator CLI for the Hearth dialogue service.\n" +
			"It runs support conversations, inspects the tickets they produce,\n" +
			"and queries the knowledge base.",
		Subcommands: []*cli.Command{
			dialogueCommand(),
			ticketCommand(),
			kbCommand(),
			viewerCommand(),
			statusCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func(args []string) error {
			fmt.Println("hearth " + version.Full())
			return nil
		},
	}
}
