// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backoff implements exponential backoff with jitter for the
// catalog loader's offline-mode manifest-fetch retries, matching the
// role of BackoffThrottle in the original implementation's
// CatalogManager.
package backoff

import (
	"math/rand"
	"time"

	"github.com/latticefs/latticefs/lib/clock"
)

// Throttle computes successive retry delays with exponential growth
// and full jitter, bounded by a configurable maximum. Not safe for
// concurrent use by multiple goroutines; each caller that needs
// independent backoff state should own its own Throttle.
type Throttle struct {
	clock clock.Clock

	initial time.Duration
	max     time.Duration

	attempt int
}

// New returns a Throttle starting at initial and never exceeding max.
// clk is injected so tests can drive retry timing deterministically
// with clock.Fake.
func New(clk clock.Clock, initial, max time.Duration) *Throttle {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Throttle{clock: clk, initial: initial, max: max}
}

// Reset clears accumulated attempt state. Call after a successful
// fetch so the next failure starts from the initial delay again.
func (t *Throttle) Reset() {
	t.attempt = 0
}

// NextDelay returns the delay before the next retry and advances the
// internal attempt counter. The delay grows exponentially with the
// attempt count and is jittered uniformly in [0, computed-delay) (full
// jitter), which avoids synchronized retry storms across clients.
func (t *Throttle) NextDelay() time.Duration {
	delay := t.initial << t.attempt
	if delay <= 0 || delay > t.max {
		delay = t.max
	}
	t.attempt++

	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

// Sleep blocks for NextDelay using the injected clock.
func (t *Throttle) Sleep() {
	t.clock.Sleep(t.NextDelay())
}
