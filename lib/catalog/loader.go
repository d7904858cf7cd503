// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the glue that loads a signed root
// catalog: it fetches and verifies the manifest ensemble, compares the
// catalog hash it names against the locally persisted checksum, pulls
// the catalog itself through the Fetcher when the two disagree, and
// pins the result. It is the one component that drives all of
// lib/cachecore, lib/fetch and lib/manifest together, mirroring the
// role CatalogManager::LoadCatalog/LoadCatalogCas plays in the
// original implementation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/latticefs/latticefs/lib/backoff"
	"github.com/latticefs/latticefs/lib/cachecore"
	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/fetch"
	"github.com/latticefs/latticefs/lib/manifest"
	"github.com/latticefs/latticefs/lib/objecthash"
)

// LoadResult mirrors the original implementation's catalog::LoadError
// enum, trimmed to the outcomes this Go port actually distinguishes.
type LoadResult int

const (
	// LoadFail: the catalog could not be loaded, from cache or
	// remote, and no cached copy could stand in for it.
	LoadFail LoadResult = iota
	// LoadNew: a new root catalog was fetched and pinned.
	LoadNew
	// LoadUp2Date: the cached catalog already matches the manifest
	// (or the manifest was unreachable and the cached copy was used
	// as an offline fallback).
	LoadUp2Date
	// LoadNoSpace: the quota collaborator refused to accommodate the
	// new catalog.
	LoadNoSpace
)

func (r LoadResult) String() string {
	switch r {
	case LoadNew:
		return "new"
	case LoadUp2Date:
		return "up-to-date"
	case LoadNoSpace:
		return "no-space"
	default:
		return "fail"
	}
}

// ManifestSource retrieves the raw, signed manifest bytes for a
// repository. Unlike the Download collaborator (fetchsource.Source),
// a manifest is not itself content-addressed -- its authenticity comes
// from the embedded signature, not a hash the caller already knows --
// so it is fetched by repository name rather than by hash.
type ManifestSource interface {
	FetchManifest(ctx context.Context, repository string) ([]byte, error)
}

// Stats reports the certificate hit/miss counters named
// (n_certificate_hits_, n_certificate_misses_) on the original
// implementation's CatalogManager, plus whether the most recent Load
// served a cached catalog because the manifest was unreachable
// (offline_mode_ on the original's CacheManager).
type Stats struct {
	CertificateHits   int64
	CertificateMisses int64
	Offline           bool
}

// Config collects a Loader's collaborators.
type Config struct {
	Cache          cachecore.Manager
	Coalescer      *fetch.Coalescer
	Verifier       manifest.SignatureVerifier
	ManifestSource ManifestSource
	Clock          clock.Clock
	Logger         *slog.Logger

	// Root is the cache directory the checksum sidecar is written
	// under; Repository names it (cvmfschecksum.<Repository>).
	Root       string
	Repository string

	// Backoff throttles retries after a failed manifest fetch. A nil
	// value gets backoff.New's defaults.
	Backoff *backoff.Throttle
}

// Loader loads and pins root catalogs for one repository.
type Loader struct {
	cache          cachecore.Manager
	coalescer      *fetch.Coalescer
	verifier       manifest.SignatureVerifier
	manifestSource ManifestSource
	clock          clock.Clock
	logger         *slog.Logger

	root       string
	repository string

	throttle *backoff.Throttle

	certHits   atomic.Int64
	certMisses atomic.Int64
	offline    atomic.Bool
}

// New constructs a Loader from cfg.
func New(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	throttle := cfg.Backoff
	if throttle == nil {
		throttle = backoff.New(clk, 0, 0)
	}
	return &Loader{
		cache:          cfg.Cache,
		coalescer:      cfg.Coalescer,
		verifier:       cfg.Verifier,
		manifestSource: cfg.ManifestSource,
		clock:          clk,
		logger:         logger,
		root:           cfg.Root,
		repository:     cfg.Repository,
		throttle:       throttle,
	}
}

// Stats returns a snapshot of the certificate hit/miss counters and
// the offline flag set by the most recently completed Load.
func (l *Loader) Stats() Stats {
	return Stats{
		CertificateHits:   l.certHits.Load(),
		CertificateMisses: l.certMisses.Load(),
		Offline:           l.offline.Load(),
	}
}

func (l *Loader) checksumPath() string {
	return filepath.Join(l.root, "cvmfschecksum."+l.repository)
}

// offlineMarkerPath names the sentinel file that records whether the
// most recent Load had to fall back to a cached root catalog. Unlike
// the checksum sidecar, losing this file to a crash mid-write is
// harmless -- a caller who can't read it just sees no offline marker
// -- so it is written directly rather than through the checksum
// file's fsync-and-rename sequence.
func (l *Loader) offlineMarkerPath() string {
	return filepath.Join(l.root, "offline."+l.repository)
}

func (l *Loader) setOffline(offline bool) {
	l.offline.Store(offline)
	if offline {
		os.WriteFile(l.offlineMarkerPath(), nil, 0o644)
		return
	}
	os.Remove(l.offlineMarkerPath())
}

// IsOffline reports whether the most recently completed Load against
// root/repository fell back to a cached root catalog, by checking for
// the marker Loader.Load leaves behind. It lets a separate process --
// an operator CLI, not the long-running cache manager itself -- tell
// a cryptographically fresh root catalog apart from one served stale
// because the origin was unreachable.
func IsOffline(root, repository string) bool {
	_, err := os.Stat(filepath.Join(root, "offline."+repository))
	return err == nil
}

// Load resolves the current root catalog for the repository: it reads
// the locally cached checksum, fetches and verifies the remote
// manifest, and -- unless the cached hash already matches -- pulls the
// new root catalog through the Fetcher and persists the updated
// checksum. On a manifest-fetch failure it falls back to the cached
// hash, matching the original's offline-mode behavior, rather than
// failing outright as long as a previously cached catalog is still
// present. The returned offline flag distinguishes that fallback from
// a genuinely verified up-to-date catalog, mirroring the original's
// offline_mode_ accessor on CacheManager.
func (l *Loader) Load(ctx context.Context) (LoadResult, objecthash.Hash, bool, error) {
	cachedHash, haveCached := l.readCachedHash()

	manifestBytes, err := l.manifestSource.FetchManifest(ctx, l.repository)
	if err != nil {
		l.throttle.Sleep()
		if haveCached {
			l.logger.Warn("manifest unreachable, using cached root catalog", "repository", l.repository, "error", err)
			l.setOffline(true)
			return LoadUp2Date, cachedHash, true, nil
		}
		return LoadFail, objecthash.Hash{}, false, fmt.Errorf("catalog: fetching manifest for %s: %w", l.repository, err)
	}
	l.throttle.Reset()
	l.setOffline(false)

	ensemble, err := l.verifier.VerifyManifest(manifestBytes)
	if err != nil {
		l.certMisses.Add(1)
		return LoadFail, objecthash.Hash{}, false, fmt.Errorf("catalog: verifying manifest for %s: %w", l.repository, err)
	}
	l.certHits.Add(1)

	if haveCached && ensemble.RootCatalogHash.Equal(cachedHash) {
		l.logger.Debug("root catalog up to date", "repository", l.repository, "hash", cachedHash.String())
		return LoadUp2Date, cachedHash, false, nil
	}

	descriptor, err := l.coalescer.Fetch(
		ctx,
		"data/"+ensemble.RootCatalogHash.RelativePath()+ensemble.RootCatalogHash.Suffix.String(),
		ensemble.RootCatalogHash,
		"root catalog for "+l.repository,
		cachecore.Catalog,
	)
	if err != nil {
		if errors.Is(err, cachecore.ErrNoSpace) {
			return LoadNoSpace, objecthash.Hash{}, false, fmt.Errorf("catalog: pinning root catalog for %s: %w", l.repository, err)
		}
		return LoadFail, objecthash.Hash{}, false, fmt.Errorf("catalog: loading root catalog for %s: %w", l.repository, err)
	}
	l.cache.Close(descriptor)

	if err := l.storeCertificate(ensemble); err != nil {
		l.logger.Warn("failed to store certificate", "repository", l.repository, "error", err)
	}

	if err := ensemble.ExportChecksum(l.root, l.repository, l.clock); err != nil {
		l.logger.Warn("failed to persist checksum", "repository", l.repository, "error", err)
	}

	l.logger.Info("loaded new root catalog", "repository", l.repository, "hash", ensemble.RootCatalogHash.String())
	return LoadNew, ensemble.RootCatalogHash, false, nil
}

// readCachedHash reads the local checksum sidecar and confirms the
// catalog it names is still actually present in the cache -- a
// checksum hint surviving an eviction of its own catalog is treated as
// absent, matching the original's "found checksum hint without
// catalog" check.
func (l *Loader) readCachedHash() (objecthash.Hash, bool) {
	hash, _, err := manifest.ParseChecksumFile(l.checksumPath())
	if err != nil {
		return objecthash.Hash{}, false
	}
	d, err := l.cache.Open(hash.WithSuffix(objecthash.SuffixCatalog))
	if err != nil {
		return objecthash.Hash{}, false
	}
	l.cache.Close(d)
	return hash.WithSuffix(objecthash.SuffixCatalog), true
}

func (l *Loader) storeCertificate(ensemble manifest.Ensemble) error {
	if len(ensemble.CertificateBytes) == 0 {
		return nil
	}
	if err := l.cache.CommitFromMem(ensemble.CertificateHash, ensemble.CertificateBytes, "certificate for "+l.repository); err != nil {
		return fmt.Errorf("catalog: storing certificate: %w", err)
	}
	return nil
}
