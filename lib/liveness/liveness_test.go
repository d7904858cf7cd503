// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMarkCheckClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "running.example-repo")

	if _, ok, err := Check(path); err != nil || ok {
		t.Fatalf("Check before Mark: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := Mark(path); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	state, ok, err := Check(path)
	if err != nil || !ok {
		t.Fatalf("Check after Mark: ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	if state.PID != os.Getpid() {
		t.Errorf("State.PID = %d, want %d", state.PID, os.Getpid())
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := Check(path); err != nil || ok {
		t.Fatalf("Check after Clear: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	// Clear is idempotent.
	if err := Clear(path); err != nil {
		t.Fatalf("Clear (second call): %v", err)
	}
}

func TestMarkIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "running.example-repo")
	if err := Mark(path); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}
