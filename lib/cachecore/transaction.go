// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachecore

import (
	"os"

	"github.com/latticefs/latticefs/lib/objecthash"
)

// transactionBufferSize is the in-transaction write buffer: large
// writes are copied into it in batches, flushing to the staging file
// once full.
const transactionBufferSize = 4096

// Transaction carries the per-write state of one in-progress cache
// insert. Between a successful StartTxn and one of CommitTxn/AbortTxn,
// exactly one staging file exists at StagingPath and stagingFile is
// open for writing; after either terminal call the value must not be
// reused.
type Transaction struct {
	// Hash is the target content hash.
	Hash objecthash.Hash

	// FinalPath is the canonical in-cache path the staging file is
	// renamed to on commit.
	FinalPath string

	// StagingPath is the unique temporary file path under txn/.
	StagingPath string

	// ExpectedSize is the declared final size, or SizeUnknown.
	ExpectedSize int64

	// Size is the accumulated byte count written so far (including
	// buffered, not-yet-flushed bytes).
	Size int64

	// Type drives the quota handoff at commit time.
	Type ObjectType

	// Description is a human-readable label (typically the path that
	// corresponds to this object), passed to the quota collaborator.
	Description string

	stagingFile *os.File
	buffer      [transactionBufferSize]byte
	bufPos      int

	// failed is set when a Write call would have exceeded
	// ExpectedSize. Once set, only Reset or AbortTxn are valid.
	failed bool

	// done is set once CommitTxn or AbortTxn has run to completion;
	// reusing the value after that point is a caller error.
	done bool
}
