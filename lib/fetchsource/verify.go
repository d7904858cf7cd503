// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetchsource

import (
	"io"

	"github.com/zeebo/blake3"

	"github.com/latticefs/latticefs/lib/objecthash"
)

// verifyingWriter forwards every write to an underlying io.Writer
// while also feeding the bytes into a running hash, so the transfer's
// digest is known the instant the body is exhausted -- no second pass
// over the data is needed.
type verifyingWriter struct {
	dest  io.Writer
	inner *blake3.Hasher
}

func newVerifyingWriter(dest io.Writer) *verifyingWriter {
	return &verifyingWriter{dest: dest, inner: objecthash.NewObjectHasher()}
}

func (w *verifyingWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	if n > 0 {
		w.inner.Write(p[:n])
	}
	return n, err
}

// Sum returns the content hash of every byte written so far.
func (w *verifyingWriter) Sum() objecthash.Hash {
	var digest [objecthash.Size]byte
	copy(digest[:], w.inner.Sum(nil))
	return objecthash.Hash{Digest: digest}
}
