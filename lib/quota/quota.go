// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota declares the quota collaborator consumed by the cache
// manager and fetcher: the external eviction/LRU policy that decides
// how much space objects are allowed to occupy, and is notified of
// inserts, pins, touches, and removals so it can make that decision.
// This package implements only the interface and a no-op reference
// implementation; the eviction policy itself is out of scope.
package quota

import "github.com/latticefs/latticefs/lib/objecthash"

// Manager is the quota collaborator interface. A nil Manager is never
// passed to the cache core; when no quota management is configured,
// [NewNoop] supplies a trivially-successful implementation.
type Manager interface {
	// GetMaxFileSize returns the largest single object size the quota
	// subsystem will ever accommodate, or a negative value when there
	// is no cap.
	GetMaxFileSize() int64

	// GetCapacity returns the total space budget in bytes, or a
	// negative value when capacity is unknown/unbounded.
	GetCapacity() int64

	// Cleanup evicts entries (in the policy's own order, typically
	// LRU with Volatile preferred) until the cache occupies at most
	// targetBytes. Returns an error only on a hard failure to make progress;
	// declining to free enough space is reported via a subsequent
	// failed StartTxn/CommitTxn, not via this call.
	Cleanup(targetBytes int64) error

	// Insert registers a newly committed Regular object.
	Insert(hash objecthash.Hash, size int64, description string) error

	// InsertVolatile registers a newly committed Volatile object,
	// marked preferred-to-evict.
	InsertVolatile(hash objecthash.Hash, size int64, description string) error

	// Pin registers hash as exempt from eviction until Unpin. Returns
	// false when the policy refuses the pin (e.g. insufficient
	// capacity reserved for pinned content); a false return must not
	// be treated as a hard error by the caller, only as cause to
	// abort the transaction with ErrNoSpace.
	Pin(hash objecthash.Hash, size int64, description string, isCatalog bool) bool

	// Touch records an access, influencing eviction order.
	Touch(hash objecthash.Hash) error

	// Remove unregisters hash, e.g. after a failed commit that had
	// already been granted a pin.
	Remove(hash objecthash.Hash) error

	// Unpin releases a previously granted pin, making hash eligible
	// for normal eviction again.
	Unpin(hash objecthash.Hash) error
}

// noop is the reference Manager used when no quota management is
// configured: every mutating call succeeds trivially, GetMaxFileSize
// and GetCapacity report "unbounded".
type noop struct{}

// NewNoop returns a Manager that imposes no limits and tracks no
// state. This is the default quota collaborator.
func NewNoop() Manager { return noop{} }

func (noop) GetMaxFileSize() int64 { return -1 }
func (noop) GetCapacity() int64    { return -1 }
func (noop) Cleanup(int64) error   { return nil }

func (noop) Insert(objecthash.Hash, int64, string) error         { return nil }
func (noop) InsertVolatile(objecthash.Hash, int64, string) error { return nil }
func (noop) Pin(objecthash.Hash, int64, string, bool) bool       { return true }
func (noop) Touch(objecthash.Hash) error                        { return nil }
func (noop) Remove(objecthash.Hash) error                        { return nil }
func (noop) Unpin(objecthash.Hash) error                         { return nil }

var _ Manager = noop{}
