// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket defines the support ticket schema: the structured
// record the dialogue engine assembles from a completed diagnostic
// conversation and hands to the ticket store.
package ticket
