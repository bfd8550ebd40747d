// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"
)

func TestRootTreeShape(t *testing.T) {
	root := Root()

	want := map[string][]string{
		"dialogue": {"start", "turn", "ticket"},
		"ticket":   {"list", "show"},
		"kb":       {"search"},
		"viewer":   nil,
		"status":   nil,
		"version":  nil,
	}

	for name, subNames := range want {
		var found bool
		for _, sub := range root.Subcommands {
			if sub.Name != name {
				continue
			}
			found = true
			for _, subName := range subNames {
				var nested bool
				for _, leaf := range sub.Subcommands {
					if leaf.Name == subName {
						nested = true
					}
				}
				if !nested {
					t.Errorf("command %q is missing subcommand %q", name, subName)
				}
			}
		}
		if !found {
			t.Errorf("root is missing command %q", name)
		}
	}
}

func TestResolveSocketPrecedence(t *testing.T) {
	t.Setenv(socketEnvVar, "/env/hearth.sock")

	if got := resolveSocket("/flag/hearth.sock"); got != "/flag/hearth.sock" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := resolveSocket(""); got != "/env/hearth.sock" {
		t.Errorf("env should win over default, got %q", got)
	}

	t.Setenv(socketEnvVar, "")
	if got := resolveSocket(""); got == "" {
		t.Error("default socket path is empty")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{
			name:  "short line untouched",
			input: "hello there",
			width: 40,
			want:  "hello there",
		},
		{
			name:  "wraps at width",
			input: "one two three four five",
			width: 9,
			want:  "one two\nthree\nfour five",
		},
		{
			name:  "preserves paragraph breaks",
			input: "first paragraph\n\nsecond paragraph",
			width: 40,
			want:  "first paragraph\n\nsecond paragraph",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := wrapText(test.input, test.width)
			if got != test.want {
				t.Errorf("wrapText(%q, %d) = %q, want %q", test.input, test.width, got, test.want)
			}
		})
	}
}

func TestTicketListCommandRejectsMissingService(t *testing.T) {
	t.Setenv(socketEnvVar, "/nonexistent/hearth.sock")

	err := Root().Execute([]string{"ticket", "list"})
	if err == nil {
		t.Fatal("expected a connection error with no service running")
	}
	if !strings.Contains(err.Error(), "hearth.sock") {
		t.Errorf("error %q does not mention the socket path", err.Error())
	}
}
