// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Hearth is the unified CLI for a Hearth deployment. It provides
// subcommands for running support conversations (dialogue), ticket
// inspection (ticket), knowledge-base queries (kb), and service
// health (status).
package main
