// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for latticefs
// command-line binaries. It centralizes the one legitimate raw I/O
// pattern that exists before or after the structured logger: fatal
// error reporting to stderr when the logger may not be initialized
// yet, followed by process exit.
package process
