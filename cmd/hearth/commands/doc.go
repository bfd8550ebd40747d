// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the hearth CLI command tree. Each command
// talks to a running hearth-dialogue-service over its unix socket.
package commands
