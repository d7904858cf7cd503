// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachecore

import (
	"errors"
	"os"

	"github.com/latticefs/latticefs/lib/objecthash"
)

// SizeUnknown is the sentinel expected-size value meaning "the
// transaction's final size is not known in advance" (e.g. a nested
// catalog whose size field was never populated).
const SizeUnknown int64 = -1

// ObjectType drives the quota handoff at commit time.
type ObjectType int

const (
	// Regular objects are inserted into normal eviction order.
	Regular ObjectType = iota
	// Catalog objects imply Pinned: excluded from eviction until
	// explicitly unpinned.
	Catalog
	// Pinned objects are excluded from eviction until explicitly
	// unpinned.
	Pinned
	// Volatile objects are inserted with higher eviction priority:
	// evicted before Regular entries.
	Volatile
)

func (t ObjectType) String() string {
	switch t {
	case Regular:
		return "regular"
	case Catalog:
		return "catalog"
	case Pinned:
		return "pinned"
	case Volatile:
		return "volatile"
	default:
		return "unknown"
	}
}

// Sentinel errors mirroring the contract-level error taxonomy: Absent,
// Transient I/O, Space, and Read-only. Callers use errors.Is against
// these, never a raw errno value.
var (
	// ErrNotFound: no such object in cache.
	ErrNotFound = errors.New("cachecore: object not found")
	// ErrIO: integrity or transport fault; safe to retry.
	ErrIO = errors.New("cachecore: I/O fault")
	// ErrNoSpace: quota cannot accommodate the object or its pin.
	ErrNoSpace = errors.New("cachecore: insufficient space")
	// ErrReadOnly: write attempted after the drain transition.
	ErrReadOnly = errors.New("cachecore: cache is read-only")
	// ErrTxnFailed: a prior Write on this transaction already failed
	// the size contract; only Reset or AbortTxn are valid now.
	ErrTxnFailed = errors.New("cachecore: transaction already failed, call Reset or AbortTxn")
)

// Descriptor is an opaque, POSIX-backed handle returned by Open,
// OpenFromTxn, or Dup. Once returned, reads through it succeed for the
// object's original content until Close, even if the underlying entry
// is deleted, evicted, or the cache drains to read-only in the
// meantime -- the guarantee POSIX itself gives an open file descriptor
// after its directory entry is unlinked.
type Descriptor struct {
	file *os.File
}

// Manager is the abstract, transactional, content-addressed object
// store. Implementations may back it with a POSIX directory
// ([PosixManager]) or another storage medium; callers depend only on
// this interface so alternate backends can be swapped in without
// touching the Fetcher or catalog loader.
type Manager interface {
	// Open succeeds with a read-only descriptor iff an object with
	// that hash is committed. Returns ErrNotFound when absent.
	Open(hash objecthash.Hash) (*Descriptor, error)

	// GetSize returns the descriptor's underlying object size.
	GetSize(d *Descriptor) (int64, error)

	// Pread reads up to len(buf) bytes at offset. Partial reads are
	// permitted; a short read at EOF returns a smaller count with a
	// nil error.
	Pread(d *Descriptor, buf []byte, offset int64) (int, error)

	// Dup returns an independent descriptor referencing the same
	// underlying object. Closing one does not affect the other.
	Dup(d *Descriptor) (*Descriptor, error)

	// Close releases a descriptor.
	Close(d *Descriptor) error

	// StartTxn begins a transaction for hash. expectedSize may be
	// SizeUnknown. Returns ErrReadOnly in read-only mode, ErrNoSpace
	// if expectedSize exceeds the quota collaborator's max file size.
	StartTxn(hash objecthash.Hash, expectedSize int64) (*Transaction, error)

	// CtrlTxn records description and type. Callable any time between
	// StartTxn and the terminal call; idempotent in its observable
	// state.
	CtrlTxn(txn *Transaction, description string, objectType ObjectType)

	// Write appends buf to the transaction's staging file, buffering
	// small writes. Returns ErrNoSpace (and fails the transaction
	// until Reset/AbortTxn) if expected size would be exceeded.
	Write(txn *Transaction, buf []byte) (int, error)

	// Reset rewinds the staging file to empty, clearing any failed
	// state and invalidating descriptors from a prior OpenFromTxn.
	Reset(txn *Transaction) error

	// OpenFromTxn flushes pending buffered bytes and returns a
	// read-only descriptor on the staging file, to read back
	// in-progress writes before commit.
	OpenFromTxn(txn *Transaction) (*Descriptor, error)

	// AbortTxn closes the staging descriptor, unlinks the staging
	// file, and destroys the transaction. Never leaves staging files
	// behind even on error.
	AbortTxn(txn *Transaction) error

	// CommitTxn flushes, verifies the size contract, performs the
	// quota handoff, and renames staging to canonical.
	CommitTxn(txn *Transaction) error

	// Open2Mem performs Open+GetSize+Pread+Close in one call.
	Open2Mem(hash objecthash.Hash) ([]byte, error)

	// CommitFromMem performs StartTxn+CtrlTxn+Write+CommitTxn for a
	// small, fully in-memory object (e.g. a certificate).
	CommitFromMem(hash objecthash.Hash, data []byte, description string) error

	// TearDown2ReadOnly transitions the cache to read-only: see
	// PosixManager.TearDown2ReadOnly for the exact protocol.
	TearDown2ReadOnly()
}
