// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/spf13/pflag"
)

type infoResponse struct {
	UptimeSeconds    float64 `cbor:"uptime_seconds"`
	ActiveSessions   int     `cbor:"active_sessions"`
	ArchivedSessions int     `cbor:"archived_sessions"`
	StoredTickets    int     `cbor:"stored_tickets"`
	KBArticles       int     `cbor:"kb_articles"`
}

func statusCommand() *cli.Command {
	var socketPath *string
	var asJSON *bool

	return &cli.Command{
		Name:    "status",
		Summary: "show dialogue service health",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			client := connect(*socketPath)

			var info infoResponse
			if err := client.Call(context.Background(), "info", nil, &info); err != nil {
				return err
			}

			if *asJSON {
				return cli.WriteJSON(map[string]any{
					"uptime_seconds":    info.UptimeSeconds,
					"active_sessions":   info.ActiveSessions,
					"archived_sessions": info.ArchivedSessions,
					"stored_tickets":    info.StoredTickets,
					"kb_articles":       info.KBArticles,
				})
			}

			uptime := time.Duration(info.UptimeSeconds * float64(time.Second)).Round(time.Second)
			fmt.Printf("up %s\n", uptime)
			fmt.Printf("active conversations: %d (%d ended)\n", info.ActiveSessions, info.ArchivedSessions)
			fmt.Printf("stored tickets: %d\n", info.StoredTickets)
			fmt.Printf("knowledge-base articles: %d\n", info.KBArticles)
			return nil
		},
	}
}
