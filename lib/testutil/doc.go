// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Hearth packages:
// channel operations with timeout safety valves, unique identifier
// generation, and short-path temporary directories for Unix sockets.
package testutil
