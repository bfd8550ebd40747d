// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the hearth CLI.
//
// It provides the [Command] tree with dispatch, help rendering, typo
// suggestions for unknown commands and flags, and shared output
// helpers (--json mode, exit codes). Command definitions live in the
// commands package; this package knows nothing about the dialogue
// service.
package cli
