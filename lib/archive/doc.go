// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive seals conversation transcripts for storage at rest.
//
// A finished dialogue's transcript is compressed (zstd by default,
// lz4 for latency-sensitive deployments), then encrypted with
// XChaCha20-Poly1305 under a per-dialogue key derived from the
// deployment master key via HKDF-SHA256. The dialogue identifier is
// bound into the additional authenticated data, so a sealed blob
// cannot be swapped between dialogues without failing authentication.
//
// The master key lives in a secret.Buffer (mmap-backed, mlock'd,
// zeroed on close) for the lifetime of the [Sealer]. Per-dialogue keys
// are derived fresh for every Seal/Open call and closed immediately;
// HKDF derivation is microseconds, not worth caching.
package archive
