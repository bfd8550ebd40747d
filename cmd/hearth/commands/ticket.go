// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/hearthware/hearth/lib/schema/ticket"
	"github.com/spf13/pflag"
)

type ticketListResponse struct {
	Tickets []*ticket.Ticket `cbor:"tickets"`
}

type ticketGetResponse struct {
	Ticket *ticket.Ticket `cbor:"ticket"`
}

func ticketCommand() *cli.Command {
	return &cli.Command{
		Name:    "ticket",
		Summary: "inspect stored support tickets",
		Subcommands: []*cli.Command{
			ticketListCommand(),
			ticketShowCommand(),
		},
	}
}

func ticketListCommand() *cli.Command {
	var socketPath *string
	var status *string
	var limit *int
	var asJSON *bool

	return &cli.Command{
		Name:    "list",
		Summary: "list stored tickets, newest first",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			status = flagSet.String("status", "", "filter by status (new, in_progress, resolved)")
			limit = flagSet.Int("limit", 20, "maximum tickets to list")
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "list unresolved tickets", Command: "hearth ticket list --status new"},
		},
		Run: func(args []string) error {
			client := connect(*socketPath)

			fields := map[string]any{"limit": *limit}
			if *status != "" {
				fields["status"] = *status
			}

			var response ticketListResponse
			if err := client.Call(context.Background(), "ticket/list", fields, &response); err != nil {
				return err
			}

			if *asJSON {
				return cli.WriteJSON(response.Tickets)
			}

			if len(response.Tickets) == 0 {
				fmt.Println("no tickets")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TICKET\tSTATUS\tCREATED\tTEMPS\tFAULT")
			for _, stored := range response.Tickets {
				fault := ""
				if stored.DeviceInfo.ErrorState {
					fault = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%g → %g\t%s\n",
					stored.TicketID, stored.Status, stored.CreatedAt,
					stored.ProblemDetails.CurrentTemp, stored.ProblemDetails.DesiredTemp,
					fault)
			}
			return tw.Flush()
		},
	}
}

func ticketShowCommand() *cli.Command {
	var socketPath *string
	var asJSON *bool

	return &cli.Command{
		Name:    "show",
		Summary: "show one ticket in full",
		Usage:   "hearth ticket show <ticket-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one ticket id is required")
			}

			client := connect(*socketPath)
			var response ticketGetResponse
			err := client.Call(context.Background(), "ticket/get",
				map[string]any{"ticket_id": args[0]}, &response)
			if err != nil {
				return err
			}

			if *asJSON {
				return cli.WriteJSON(response.Ticket)
			}
			printTicket(response.Ticket)
			return nil
		},
	}
}

// printTicket renders a ticket as readable text.
func printTicket(stored *ticket.Ticket) {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ticket\t%s\n", stored.TicketID)
	fmt.Fprintf(tw, "status\t%s\n", stored.Status)
	fmt.Fprintf(tw, "created\t%s\n", stored.CreatedAt)
	fmt.Fprintf(tw, "device\t%s\n", stored.DeviceInfo.Type)
	fmt.Fprintf(tw, "fault indicated\t%v\n", stored.DeviceInfo.ErrorState)
	fmt.Fprintf(tw, "current temp\t%g °C\n", stored.ProblemDetails.CurrentTemp)
	fmt.Fprintf(tw, "desired temp\t%g °C\n", stored.ProblemDetails.DesiredTemp)
	fmt.Fprintf(tw, "time of day\t%s\n", stored.ProblemDetails.TimeOfDay)
	fmt.Fprintf(tw, "duration\t%s\n", stored.ProblemDetails.Duration)
	tw.Flush()

	if len(stored.DialogHistory) > 0 {
		fmt.Println("\nconversation:")
		for _, turn := range stored.DialogHistory {
			fmt.Printf("  [%s] %s: %q\n", turn.Timestamp, turn.Step, turn.UserInput)
		}
	}
}
