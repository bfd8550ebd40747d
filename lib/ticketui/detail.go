// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"fmt"
	"strings"

	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/schema/ticket"
)

// ticketMarkdown composes a markdown document for a ticket. Rendering
// goes through the same markdown pipeline as knowledge-base articles
// so both detail views share typography.
func ticketMarkdown(stored *ticket.Ticket) string {
	var doc strings.Builder

	fmt.Fprintf(&doc, "# %s\n\n", stored.TicketID)
	fmt.Fprintf(&doc, "**Status:** %s  \n", stored.Status)
	fmt.Fprintf(&doc, "**Created:** %s  \n", stored.CreatedAt)
	fmt.Fprintf(&doc, "**Device:** %s\n\n", stored.DeviceInfo.Type)

	if stored.DeviceInfo.ErrorState {
		doc.WriteString("The collected facts indicate a real fault.\n\n")
	} else {
		doc.WriteString("The collected facts do not indicate a fault.\n\n")
	}

	doc.WriteString("## Problem\n\n")
	fmt.Fprintf(&doc, "- current temperature: %g °C\n", stored.ProblemDetails.CurrentTemp)
	fmt.Fprintf(&doc, "- desired temperature: %g °C\n", stored.ProblemDetails.DesiredTemp)
	fmt.Fprintf(&doc, "- noticed: %s\n", stored.ProblemDetails.TimeOfDay)
	fmt.Fprintf(&doc, "- ongoing for: %s\n", strings.ReplaceAll(stored.ProblemDetails.Duration, "_", " "))

	if len(stored.DialogHistory) > 0 {
		doc.WriteString("\n## Conversation\n\n")
		for _, turn := range stored.DialogHistory {
			fmt.Fprintf(&doc, "> **%s**: %q\n\n", turn.Step, turn.UserInput)
		}
	}

	return doc.String()
}

// articleMarkdown composes the markdown document for a knowledge-base
// article: title heading, tag line, then the article body verbatim
// (it is already markdown).
func articleMarkdown(article retrieval.Article) string {
	var doc strings.Builder
	fmt.Fprintf(&doc, "# %s\n\n", article.Title)
	if len(article.Tags) > 0 {
		fmt.Fprintf(&doc, "*%s*\n\n", strings.Join(article.Tags, ", "))
	}
	doc.WriteString(article.Body)
	return doc.String()
}
