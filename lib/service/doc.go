// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the CBOR-over-unix-socket protocol the
// dialogue service speaks and the client the CLI uses.
//
// Each connection carries exactly one request-response cycle: the
// client writes one CBOR map with an "action" field, the server
// routes it to the registered handler and writes back a [Response]
// envelope ({ok, error, data}), then the connection closes. CBOR is
// self-delimiting, so no framing protocol is needed; size caps and
// deadlines bound misbehaving peers.
//
// The package also provides [RunRetry], the exponential-backoff
// helper the service's transcript archiver uses for durable work that
// must survive transient storage failures.
package service
