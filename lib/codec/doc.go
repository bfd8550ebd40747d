// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes Hearth's CBOR configuration.
//
// All wire traffic between the Hearth binaries — the dialogue
// service's socket protocol, archived transcript records in the
// ticket store — uses CBOR with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encodings, no
// indefinite-length items. The same logical value always encodes to
// identical bytes, which keeps content hashes and stored blobs
// stable across encoder runs.
//
// Consumers import only this package, never fxamacker/cbor directly,
// so encoder options stay consistent everywhere.
package codec
