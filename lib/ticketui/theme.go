// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hearthware/hearth/lib/schema/ticket"
)

// Theme defines the color palette for the viewer. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Status colors.
	StatusNew        lipgloss.Color
	StatusInProgress lipgloss.Color
	StatusResolved   lipgloss.Color

	// Fault marker for tickets whose facts indicate a real defect.
	FaultForeground lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Filter match highlighting.
	MatchForeground lipgloss.Color
}

// StatusColor returns the color for a ticket status. Unknown values
// get FaintText.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case ticket.StatusNew:
		return theme.StatusNew
	case ticket.StatusInProgress:
		return theme.StatusInProgress
	case ticket.StatusResolved:
		return theme.StatusResolved
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusNew:        lipgloss.Color("114"),
	StatusInProgress: lipgloss.Color("214"),
	StatusResolved:   lipgloss.Color("245"),

	FaultForeground: lipgloss.Color("203"),

	HeaderForeground: lipgloss.Color("81"),
	BorderColor:      lipgloss.Color("238"),
	HelpText:         lipgloss.Color("243"),

	MatchForeground: lipgloss.Color("220"),
}
