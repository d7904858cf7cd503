// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"testing"
	"time"

	"github.com/latticefs/latticefs/lib/clock"
)

func TestNextDelayBoundedByMax(t *testing.T) {
	th := New(clock.Fake(time.Unix(0, 0)), 100*time.Millisecond, time.Second)

	for i := 0; i < 20; i++ {
		d := th.NextDelay()
		if d < 0 || d > time.Second {
			t.Fatalf("NextDelay() = %v, want within [0, 1s]", d)
		}
	}
}

func TestResetRestartsFromInitial(t *testing.T) {
	th := New(clock.Fake(time.Unix(0, 0)), 10*time.Millisecond, time.Minute)

	for i := 0; i < 10; i++ {
		th.NextDelay()
	}
	th.Reset()

	// After reset, the first delay must again be drawn from
	// [0, initial), not from the grown window.
	d := th.NextDelay()
	if d >= 10*time.Millisecond {
		t.Errorf("NextDelay() after Reset = %v, want < initial (10ms)", d)
	}
}

func TestSleepUsesInjectedClock(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	th := New(fake, time.Second, time.Second)

	done := make(chan struct{})
	go func() {
		th.Sleep()
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep did not return after clock advanced")
	}
}
