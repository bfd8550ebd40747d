// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"

	"github.com/hearthware/hearth/lib/config"
	"github.com/hearthware/hearth/lib/service"
	"github.com/spf13/pflag"
)

// socketEnvVar overrides the default socket path without a flag.
const socketEnvVar = "HEARTH_SOCKET"

// addSocketFlag registers the shared --socket flag and returns the
// destination. The empty default is resolved by resolveSocket at run
// time so the env var is read after flag parsing.
func addSocketFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("socket", "", "dialogue service socket path (default $HEARTH_SOCKET or "+
		config.Default().Service.SocketPath+")")
}

// resolveSocket picks the socket path: flag, then environment, then
// the built-in default.
func resolveSocket(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(socketEnvVar); env != "" {
		return env
	}
	return config.Default().Service.SocketPath
}

// connect builds a client for the resolved socket path.
func connect(flagValue string) *service.Client {
	return service.NewClient(resolveSocket(flagValue))
}
