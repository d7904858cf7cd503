// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch implements the request coalescer: it guarantees
// at-most-one in-flight download per content hash and hands the
// outcome to every concurrent caller waiting on that hash, using golang.org/x/sync/singleflight in place of the
// per-thread pipe/waiter-list design this component is traditionally
// built with.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/latticefs/latticefs/lib/cachecore"
	"github.com/latticefs/latticefs/lib/objecthash"
)

// Coalescer deduplicates concurrent fetches of the same object: if a
// download for a given hash is already in flight, a second caller
// waits for it to finish rather than starting a redundant download.
// Both the original caller (the owner) and every waiter receive the
// identical error the owner's download produced, or, on success, a
// descriptor of their own opened on the committed object.
type Coalescer struct {
	cache  cachecore.Manager
	source Source
	logger *slog.Logger
	group  singleflight.Group
}

// Source is the subset of fetchsource.Source the coalescer depends
// on, named locally so this package does not import fetchsource
// directly -- callers inject whichever Source implementation they
// construct.
type Source interface {
	Fetch(ctx context.Context, path string, hash objecthash.Hash, dest io.Writer) (int64, error)
}

// New creates a Coalescer backed by cache for storage and source for
// cache-miss downloads. A nil logger falls back to slog.Default().
func New(cache cachecore.Manager, source Source, logger *slog.Logger) *Coalescer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer{cache: cache, source: source, logger: logger}
}

// Fetch returns a descriptor for hash, downloading it from path if
// not already cached. Concurrent calls for the same hash coalesce
// into a single download; every caller (owner and waiters alike)
// receives the owner's result once it becomes available.
func (c *Coalescer) Fetch(ctx context.Context, path string, hash objecthash.Hash, description string, objectType cachecore.ObjectType) (*cachecore.Descriptor, error) {
	if d, err := c.cache.Open(hash); err == nil {
		return d, nil
	}

	result, err, shared := c.group.Do(hash.String(), func() (any, error) {
		return c.fetchOwner(ctx, path, hash, description, objectType)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetch coalesced", "hash", hash.String(), "shared", shared)

	// Every caller -- owner and waiters -- opens its own descriptor
	// from the now-committed object, rather than sharing one
	// descriptor value across goroutines: Dup would work equally
	// well, but a fresh Open keeps descriptor lifetime independent
	// per caller with no shared-ownership bookkeeping.
	return c.cache.Open(result.(objecthash.Hash))
}

// fetchOwner performs the actual download-and-commit sequence once
// per coalesced group. It is only ever invoked by singleflight for
// the first caller to register a given hash.
func (c *Coalescer) fetchOwner(ctx context.Context, path string, hash objecthash.Hash, description string, objectType cachecore.ObjectType) (any, error) {
	if _, err := c.cache.Open(hash); err == nil {
		// Another fetcher (a different coalescer instance, or a
		// prior process) committed the object between our initial
		// Open check and acquiring ownership of this singleflight
		// group key. Nothing to do.
		return hash, nil
	}

	txn, err := c.cache.StartTxn(hash, cachecore.SizeUnknown)
	if err != nil {
		return nil, fmt.Errorf("fetch: starting transaction for %s: %w", hash, err)
	}
	c.cache.CtrlTxn(txn, description, objectType)

	written, err := c.source.Fetch(ctx, path, hash, txnWriter{c: c.cache, txn: txn})
	if err != nil {
		c.cache.AbortTxn(txn)
		return nil, fmt.Errorf("fetch: downloading %s: %w: %w", hash, cachecore.ErrIO, err)
	}

	c.logger.Debug("fetch downloaded", "hash", hash.String(), "bytes", written, "path", path)

	if err := c.cache.CommitTxn(txn); err != nil {
		return nil, fmt.Errorf("fetch: committing %s: %w", hash, err)
	}
	return hash, nil
}

// txnWriter adapts cachecore.Manager.Write to io.Writer so a Source
// can stream directly into an in-progress transaction.
type txnWriter struct {
	c   cachecore.Manager
	txn *cachecore.Transaction
}

func (w txnWriter) Write(p []byte) (int, error) {
	return w.c.Write(w.txn, p)
}
