// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness implements the cache's process-liveness marker file:
// <root>/running.<repo>, named in the cache directory layout. The
// marker is written when a cache manager starts serving read-write
// traffic and removed as the final step of the read-only drain, so any
// external process can tell, just by checking for the file's existence,
// whether a writer is (or recently was) actively maintaining the cache.
//
// The file is written atomically (temporary file, fsync, rename,
// fsync parent directory) so a concurrent reader never observes a
// partial write -- the same pattern the wider ecosystem uses for
// crash-safe state files.
package liveness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State records who is holding the liveness marker.
type State struct {
	// PID is the process ID of the cache manager instance that wrote
	// the marker.
	PID int `json:"pid"`

	// Started is when the marker was written.
	Started time.Time `json:"started"`
}

// Mark atomically writes a liveness marker at path recording the
// current process's PID. Called when a cache manager begins serving
// read-write traffic.
func Mark(path string) error {
	state := State{
		PID:     os.Getpid(),
		Started: time.Now(),
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling liveness state: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary liveness file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary liveness file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary liveness file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary liveness file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming liveness file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Check reports whether a liveness marker exists at path and, if so,
// returns its parsed State.
func Check(path string) (State, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("parsing liveness file %s: %w", path, err)
	}
	return state, true, nil
}

// Clear removes the liveness marker at path. Idempotent: returns nil
// when the file does not exist. Called as step 4 of the read-only
// drain.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing liveness file: %w", err)
	}
	return nil
}
