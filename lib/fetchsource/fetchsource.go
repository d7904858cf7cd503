// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetchsource implements the Download collaborator consumed by
// the fetcher: it retrieves an object's bytes from a remote mirror,
// decompressing a zstd-encoded body on the fly, and verifies the
// result against the expected content hash as the last byte is
// written.
package fetchsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/latticefs/latticefs/lib/objecthash"
)

// ErrHashMismatch is returned when a download completes but its
// verified digest does not match the hash it was requested under.
var ErrHashMismatch = errors.New("fetchsource: downloaded content does not match requested hash")

// ErrAllMirrorsFailed is returned when every configured mirror host
// refused or failed the request.
var ErrAllMirrorsFailed = errors.New("fetchsource: all mirrors failed")

// Source is the Download collaborator contract: retrieve the object
// named by hash from path (the repository-relative object URL suffix,
// e.g. "data/ab/cdef...") and write its verified, decompressed bytes
// to dest. The returned size is the decompressed byte count actually
// written.
type Source interface {
	Fetch(ctx context.Context, path string, hash objecthash.Hash, dest io.Writer) (int64, error)
}

// clientTimeout bounds a single mirror attempt; multi-mirror probing
// relies on this rather than an overall deadline so one bad host
// cannot starve the others.
const clientTimeout = 30 * time.Second

// HTTPSource fetches objects over HTTP(S) from a configurable,
// ordered list of mirror hosts, probed in order until one succeeds.
type HTTPSource struct {
	httpClient *http.Client
	mirrors    []string
}

// NewHTTPSource creates a Source that probes mirrors in the given
// order. At least one mirror is required.
func NewHTTPSource(mirrors []string) (*HTTPSource, error) {
	if len(mirrors) == 0 {
		return nil, fmt.Errorf("fetchsource: at least one mirror is required")
	}
	return &HTTPSource{
		httpClient: &http.Client{Timeout: clientTimeout},
		mirrors:    mirrors,
	}, nil
}

// Fetch probes each mirror in order, returning the first successful,
// hash-verified transfer. A mirror that returns a non-2xx status or a
// transport error is skipped; a mirror whose body fails hash
// verification is also skipped, since a different mirror may be
// serving stale or corrupt content.
func (s *HTTPSource) Fetch(ctx context.Context, path string, hash objecthash.Hash, dest io.Writer) (int64, error) {
	var lastErr error
	for _, mirror := range s.mirrors {
		written, err := s.fetchFromMirror(ctx, mirror, path, hash, dest)
		if err == nil {
			return written, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: last error: %v", ErrAllMirrorsFailed, lastErr)
	}
	return 0, ErrAllMirrorsFailed
}

func (s *HTTPSource) fetchFromMirror(ctx context.Context, mirror, path string, hash objecthash.Hash, dest io.Writer) (int64, error) {
	url := mirror + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("fetchsource: creating request for %s: %w", url, err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetchsource: requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetchsource: %s returned status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "zstd" {
		decoder, err := zstd.NewReader(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("fetchsource: creating zstd decoder for %s: %w", url, err)
		}
		defer decoder.Close()
		body = decoder
	}

	verifier := newVerifyingWriter(dest)
	written, err := io.Copy(verifier, body)
	if err != nil {
		return written, fmt.Errorf("fetchsource: streaming body from %s: %w", url, err)
	}

	if got := verifier.Sum(); got.Digest != hash.Digest {
		return written, fmt.Errorf("%w: got %s, want %s", ErrHashMismatch, got, hash)
	}
	return written, nil
}
