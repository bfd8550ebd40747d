// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Wire shapes of the dialogue actions. These mirror the service's
// response structs field for field.
type startResponse struct {
	DialogueID string `cbor:"dialogue_id"`
	Reply      string `cbor:"reply"`
	State      string `cbor:"state"`
}

type turnResponse struct {
	Reply    string `cbor:"reply"`
	State    string `cbor:"state"`
	Done     bool   `cbor:"done"`
	TicketID string `cbor:"ticket_id"`
}

type dialogueTicketResponse struct {
	Created bool           `cbor:"created"`
	Ticket  *ticket.Ticket `cbor:"ticket"`
}

func dialogueCommand() *cli.Command {
	return &cli.Command{
		Name:    "dialogue",
		Summary: "run support conversations",
		Subcommands: []*cli.Command{
			dialogueStartCommand(),
			dialogueTurnCommand(),
			dialogueTicketCommand(),
		},
	}
}

func dialogueStartCommand() *cli.Command {
	var socketPath *string

	return &cli.Command{
		Name:    "start",
		Summary: "start an interactive support conversation",
		Usage:   "hearth dialogue start [topic...]",
		Description: "Starts a conversation with the dialogue service and runs it\n" +
			"interactively: replies are printed, your answers are read from stdin,\n" +
			"until the conversation ends (ticket created or wait advice given).",
		Examples: []cli.Example{
			{
				Description: "start a conversation about a thermostat fault",
				Command:     "hearth dialogue start my thermostat reads the wrong temperature",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			return runInteractiveDialogue(*socketPath, strings.Join(args, " "))
		},
	}
}

func runInteractiveDialogue(socketFlag, topic string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := connect(socketFlag)

	var started startResponse
	err := client.Call(ctx, "dialogue/start", map[string]any{"topic": topic}, &started)
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("conversation %s\n\n", started.DialogueID)
	}
	printReply(started.Reply)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("you> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			// stdin closed before the conversation ended; the idle
			// reaper will reclaim the session.
			return nil
		}

		var turn turnResponse
		err := client.Call(ctx, "dialogue/turn",
			map[string]any{"dialogue_id": started.DialogueID, "text": scanner.Text()}, &turn)
		if err != nil {
			return err
		}

		fmt.Println()
		printReply(turn.Reply)

		if turn.Done {
			if turn.TicketID != "" && interactive {
				fmt.Printf("\nview the ticket with: hearth ticket show %s\n", turn.TicketID)
			}
			return nil
		}
	}
}

// printReply writes a service reply, wrapped to the terminal width
// when stdout is a terminal.
func printReply(reply string) {
	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	if width > 8 {
		reply = wrapText(reply, width-2)
	}
	fmt.Println(reply)
}

// wrapText re-wraps text to the given width, preserving paragraph
// breaks (blank lines).
func wrapText(text string, width int) string {
	paragraphs := strings.Split(text, "\n\n")
	for i, paragraph := range paragraphs {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		var lines []string
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line += " " + word
		}
		lines = append(lines, line)
		paragraphs[i] = strings.Join(lines, "\n")
	}
	return strings.Join(paragraphs, "\n\n")
}

func dialogueTurnCommand() *cli.Command {
	var socketPath *string
	var dialogueID *string
	var asJSON *bool

	return &cli.Command{
		Name:    "turn",
		Summary: "send one input to an existing conversation",
		Usage:   "hearth dialogue turn --id <dialogue-id> <text...>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("turn", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			dialogueID = flagSet.String("id", "", "dialogue identifier (required)")
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if *dialogueID == "" {
				return fmt.Errorf("--id is required")
			}
			if len(args) == 0 {
				return fmt.Errorf("input text is required")
			}

			client := connect(*socketPath)
			var turn turnResponse
			err := client.Call(context.Background(), "dialogue/turn",
				map[string]any{"dialogue_id": *dialogueID, "text": strings.Join(args, " ")}, &turn)
			if err != nil {
				return err
			}

			if *asJSON {
				return cli.WriteJSON(map[string]any{
					"reply":     turn.Reply,
					"state":     turn.State,
					"done":      turn.Done,
					"ticket_id": turn.TicketID,
				})
			}
			fmt.Println(turn.Reply)
			return nil
		},
	}
}

func dialogueTicketCommand() *cli.Command {
	var socketPath *string
	var asJSON *bool

	return &cli.Command{
		Name:    "ticket",
		Summary: "show the ticket a conversation produced",
		Usage:   "hearth dialogue ticket <dialogue-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ticket", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one dialogue id is required")
			}

			client := connect(*socketPath)
			var response dialogueTicketResponse
			err := client.Call(context.Background(), "dialogue/ticket",
				map[string]any{"dialogue_id": args[0]}, &response)
			if err != nil {
				return err
			}

			if !response.Created {
				fmt.Println("no ticket was created for this conversation")
				return &cli.ExitError{Code: 1}
			}
			if *asJSON {
				return cli.WriteJSON(response.Ticket)
			}
			printTicket(response.Ticket)
			return nil
		},
	}
}
