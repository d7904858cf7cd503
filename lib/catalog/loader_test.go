// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/latticefs/latticefs/lib/cachecore"
	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/fetch"
	"github.com/latticefs/latticefs/lib/manifest"
	"github.com/latticefs/latticefs/lib/objecthash"
	"github.com/latticefs/latticefs/lib/quota"
)

// stubManifestSource serves a fixed manifest byte string, or a
// configured error to force the offline-fallback path.
type stubManifestSource struct {
	bytes []byte
	err   error
}

func (s stubManifestSource) FetchManifest(ctx context.Context, repository string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bytes, nil
}

// stubVerifier treats its input bytes as already being the catalog
// bytes to hash, sidestepping any real signature format: the test
// only needs VerifyManifest to deterministically name a root catalog
// hash derived from what stubManifestSource served.
type stubVerifier struct {
	catalogBytes []byte
	err          error
}

func (v stubVerifier) VerifyManifest(data []byte) (manifest.Ensemble, error) {
	if v.err != nil {
		return manifest.Ensemble{}, v.err
	}
	return manifest.Ensemble{RootCatalogHash: objecthash.HashCatalog(v.catalogBytes)}, nil
}

// stubSource serves the root catalog bytes for any requested hash,
// for the fetch.Coalescer wired into the Loader under test.
type stubSource struct {
	data []byte
}

func (s stubSource) Fetch(ctx context.Context, path string, hash objecthash.Hash, dest io.Writer) (int64, error) {
	n, err := dest.Write(s.data)
	return int64(n), err
}

func newCache(t *testing.T, q quota.Manager) *cachecore.PosixManager {
	t.Helper()
	m, err := cachecore.NewPosixManager(cachecore.PosixConfig{
		Root:       t.TempDir(),
		Repository: "catalog.test",
		Clock:      clock.Real(),
		Quota:      q,
	})
	if err != nil {
		t.Fatalf("NewPosixManager: %v", err)
	}
	return m
}

func newLoader(t *testing.T, cache *cachecore.PosixManager, manifestSrc ManifestSource, verifier manifest.SignatureVerifier, catalogBytes []byte) *Loader {
	t.Helper()
	c := fetch.New(cache, stubSource{data: catalogBytes}, nil)
	return New(Config{
		Cache:          cache,
		Coalescer:      c,
		Verifier:       verifier,
		ManifestSource: manifestSrc,
		Clock:          clock.Real(),
		Root:           cache.Root(),
		Repository:     "catalog.test",
	})
}

// scenario: cache miss, single fetcher -- the manifest names a root
// catalog not yet present locally.
func TestLoadNewFetchesAndPinsRootCatalog(t *testing.T) {
	catalogBytes := []byte("root catalog v1")
	cache := newCache(t, nil)
	loader := newLoader(t, cache, stubManifestSource{bytes: []byte("manifest-v1")}, stubVerifier{catalogBytes: catalogBytes}, catalogBytes)

	result, hash, offline, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result != LoadNew {
		t.Fatalf("Load result = %v, want LoadNew", result)
	}
	if offline {
		t.Fatal("Load offline = true, want false for a freshly verified catalog")
	}
	if !hash.Equal(objecthash.HashCatalog(catalogBytes)) {
		t.Fatalf("Load hash = %s, want the hash of the served catalog bytes", hash)
	}
	if stats := loader.Stats(); stats.CertificateHits != 1 || stats.CertificateMisses != 0 || stats.Offline {
		t.Fatalf("Stats = %+v, want 1 hit / 0 miss / offline=false", stats)
	}

	gotBytes, err := cache.Open2Mem(hash)
	if err != nil {
		t.Fatalf("Open2Mem: %v", err)
	}
	if string(gotBytes) != string(catalogBytes) {
		t.Fatalf("cached catalog bytes = %q, want %q", gotBytes, catalogBytes)
	}
}

// scenario: cache hit -- a second Load against an already-pinned,
// checksum-recorded catalog must not re-download.
func TestLoadUpToDateSkipsRefetch(t *testing.T) {
	catalogBytes := []byte("root catalog v1")
	cache := newCache(t, nil)
	loader := newLoader(t, cache, stubManifestSource{bytes: []byte("manifest-v1")}, stubVerifier{catalogBytes: catalogBytes}, catalogBytes)

	if _, _, _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("first Load: %v", err)
	}

	// Swap in a source that would fail the test if ever invoked
	// again: the second Load must recognize the cached checksum
	// already matches the manifest's hash and return without
	// calling the Fetcher.
	loader.coalescer = fetch.New(cache, failingSource{t: t}, nil)

	result, hash, offline, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if result != LoadUp2Date {
		t.Fatalf("second Load result = %v, want LoadUp2Date", result)
	}
	if offline {
		t.Fatal("second Load offline = true, want false for a cryptographically verified match")
	}
	if !hash.Equal(objecthash.HashCatalog(catalogBytes)) {
		t.Fatalf("second Load hash = %s, want %s", hash, objecthash.HashCatalog(catalogBytes))
	}
}

type failingSource struct{ t *testing.T }

func (s failingSource) Fetch(ctx context.Context, path string, hash objecthash.Hash, dest io.Writer) (int64, error) {
	s.t.Fatal("Fetch invoked on an up-to-date catalog load")
	return 0, nil
}

// scenario: quota pin failure during a new catalog load.
func TestLoadNoSpaceWhenQuotaRefusesPin(t *testing.T) {
	catalogBytes := []byte("root catalog too big")
	cache := newCache(t, refusingQuota{})
	loader := newLoader(t, cache, stubManifestSource{bytes: []byte("manifest-v1")}, stubVerifier{catalogBytes: catalogBytes}, catalogBytes)

	result, _, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("Load: want error when quota refuses the pin")
	}
	if !errors.Is(err, cachecore.ErrNoSpace) {
		t.Fatalf("Load error = %v, want wrapping cachecore.ErrNoSpace", err)
	}
	if result != LoadNoSpace {
		t.Fatalf("Load result = %v, want LoadNoSpace", result)
	}
}

// scenario: manifest unreachable, no cached catalog to fall back to.
func TestLoadFailsWithNoManifestAndNoCache(t *testing.T) {
	cache := newCache(t, nil)
	loader := newLoader(t, cache, stubManifestSource{err: errors.New("origin unreachable")}, stubVerifier{}, nil)

	result, _, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("Load: want error with no manifest and no cached checksum")
	}
	if result != LoadFail {
		t.Fatalf("Load result = %v, want LoadFail", result)
	}
}

// offline mode: manifest unreachable, but a previously cached catalog
// (and its checksum sidecar) is still valid -- Load falls back to it
// rather than failing.
func TestLoadFallsBackToCacheWhenManifestUnreachable(t *testing.T) {
	catalogBytes := []byte("root catalog v1")
	cache := newCache(t, nil)
	onlineSource := stubManifestSource{bytes: []byte("manifest-v1")}
	verifier := stubVerifier{catalogBytes: catalogBytes}
	loader := newLoader(t, cache, onlineSource, verifier, catalogBytes)

	if _, _, offline, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("first (online) Load: %v", err)
	} else if offline {
		t.Fatal("first (online) Load offline = true, want false")
	}

	loader.manifestSource = stubManifestSource{err: errors.New("origin unreachable")}
	loader.throttle.Reset()

	result, hash, offline, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("offline Load: %v", err)
	}
	if result != LoadUp2Date {
		t.Fatalf("offline Load result = %v, want LoadUp2Date", result)
	}
	if !offline {
		t.Fatal("offline Load offline = false, want true when the manifest is unreachable")
	}
	if !hash.Equal(objecthash.HashCatalog(catalogBytes)) {
		t.Fatalf("offline Load hash = %s, want %s", hash, objecthash.HashCatalog(catalogBytes))
	}
	if stats := loader.Stats(); !stats.Offline {
		t.Fatalf("Stats = %+v, want Offline=true after falling back to the cache", stats)
	}
}

// refusingQuota always declines Pin, exercising the quota-pin-failure
// scenario without needing a real capacity-tracking policy.
type refusingQuota struct{}

func (refusingQuota) GetMaxFileSize() int64 { return -1 }
func (refusingQuota) GetCapacity() int64    { return -1 }
func (refusingQuota) Cleanup(int64) error   { return nil }

func (refusingQuota) Insert(objecthash.Hash, int64, string) error         { return nil }
func (refusingQuota) InsertVolatile(objecthash.Hash, int64, string) error { return nil }
func (refusingQuota) Pin(objecthash.Hash, int64, string, bool) bool       { return false }
func (refusingQuota) Touch(objecthash.Hash) error                        { return nil }
func (refusingQuota) Remove(objecthash.Hash) error                       { return nil }
func (refusingQuota) Unpin(objecthash.Hash) error                       { return nil }
