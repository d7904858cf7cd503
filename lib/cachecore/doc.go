// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachecore implements the content-addressed local object
// store: a transactional cache manager exposing file-descriptor
// semantics over a POSIX directory tree.
//
// [Manager] is the abstract contract every backend implements.
// [PosixManager] is the concrete, and currently only, implementation:
// a directory tree sharded into 256 hash-prefix subdirectories, a
// staging subdirectory for in-progress transactions, and a quarantine
// subdirectory for forensic copies of size-mismatched downloads.
//
// Writing is transactional: [PosixManager.StartTxn] returns a
// [Transaction] value; bytes accumulate through [PosixManager.Write]
// into a 4 KiB buffer, flushed to a staging file on the backing
// filesystem; [PosixManager.CommitTxn] verifies the size contract,
// notifies the quota collaborator, and atomically renames the staging
// file into its canonical hash-derived path. A descriptor returned by
// [PosixManager.Open] before an object is evicted remains readable
// after eviction, for as long as it stays open -- this falls directly
// out of POSIX unlink semantics: removing a directory entry does not
// invalidate file descriptors that reference the underlying inode.
package cachecore
