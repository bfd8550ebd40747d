// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic client for Large Language
// Model APIs.
//
// The primary abstraction is [Provider]: blocking completion of a
// [Request] into a [Response]. Provider implementations translate
// between the common types in this package and each vendor's wire
// format; API errors surface as typed [*ProviderError] values so
// callers can branch on rate limiting and overload.
//
// The dialogue engine treats every Provider failure as recoverable —
// bounded retry with backoff, then a canned fallback reply — so
// nothing in this package retries internally.
//
// Current provider implementations:
//   - [Anthropic]: Claude models via the Messages API (/v1/messages)
package llm
