// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// Production code injects Real(); tests inject Fake(initial) and drive
// time forward with Advance. Everything in Hearth that waits on time —
// the idle-session reaper, generation retry backoff, the transcript
// flush loop — takes a Clock instead of calling the time package
// directly, so tests never sleep.
//
// FakeClock fires pending timers deterministically in deadline order
// during Advance, and WaitForTimers closes the race between a
// goroutine registering a timer and the test advancing the clock.
package clock
