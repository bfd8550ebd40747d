// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Hearth dialogue service configuration.
//
// Configuration is a single YAML file passed via --config (or the
// HEARTH_CONFIG environment variable). There are no fallbacks or
// automatic discovery — deterministic, auditable configuration with
// no hidden overrides. Values support ${VAR} and ${VAR:-default}
// environment expansion before parsing.
package config
