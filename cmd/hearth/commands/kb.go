// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hearthware/hearth/cmd/hearth/cli"
	"github.com/spf13/pflag"
)

type kbSearchResponse struct {
	Results []kbSearchResult `cbor:"results"`
}

type kbSearchResult struct {
	ID      string   `cbor:"id"`
	Title   string   `cbor:"title"`
	Tags    []string `cbor:"tags"`
	Score   float64  `cbor:"score"`
	Snippet string   `cbor:"snippet"`
}

func kbCommand() *cli.Command {
	return &cli.Command{
		Name:    "kb",
		Summary: "query the knowledge base",
		Subcommands: []*cli.Command{
			kbSearchCommand(),
		},
	}
}

func kbSearchCommand() *cli.Command {
	var socketPath *string
	var k *int
	var asJSON *bool

	return &cli.Command{
		Name:    "search",
		Summary: "search knowledge-base articles",
		Usage:   "hearth kb search <query...>",
		Examples: []cli.Example{
			{Description: "find articles about setpoint lag", Command: "hearth kb search setpoint takes too long"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("search", pflag.ContinueOnError)
			socketPath = addSocketFlag(flagSet)
			k = flagSet.Int("k", 3, "number of results")
			asJSON = flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("a search query is required")
			}

			client := connect(*socketPath)
			var response kbSearchResponse
			err := client.Call(context.Background(), "kb/search",
				map[string]any{"query": strings.Join(args, " "), "k": *k}, &response)
			if err != nil {
				return err
			}

			if *asJSON {
				return cli.WriteJSON(response.Results)
			}

			if len(response.Results) == 0 {
				fmt.Println("no matching articles")
				return nil
			}
			for _, result := range response.Results {
				fmt.Printf("%s  %s (score %.2f)\n", result.ID, result.Title, result.Score)
				if len(result.Tags) > 0 {
					fmt.Printf("    tags: %s\n", strings.Join(result.Tags, ", "))
				}
				fmt.Printf("    %s\n", result.Snippet)
			}
			return nil
		},
	}
}
