// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the Signature collaborator consumed by
// the catalog loader and the in-memory ensemble it produces: the root
// catalog hash and signing certificate recovered from a verified
// manifest, plus the on-disk "last known good" checksum sidecar.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/objecthash"
)

// Ensemble is the result of successfully verifying a manifest's
// signature: the root catalog it names, and the certificate that
// signed it.
type Ensemble struct {
	RootCatalogHash  objecthash.Hash
	CertificateHash  objecthash.Hash
	CertificateBytes []byte
}

// SignatureVerifier is the consumed collaborator interface: given raw
// manifest bytes, it either recovers and authenticates an [Ensemble]
// or reports why it could not. Cryptographic signature verification
// itself is out of scope here; this package only defines and consumes
// the contract.
type SignatureVerifier interface {
	VerifyManifest(data []byte) (Ensemble, error)
}

// ExportChecksum atomically writes the "last known good" checksum
// sidecar for repository under dir, in the exact plain-text format
// "<hex-hash>T<unix-ts>\n". The file is never partially visible: it is
// written to a temp file in dir, fsynced, and renamed into place, then
// the containing directory is fsynced so the rename itself survives a
// crash.
func (e Ensemble) ExportChecksum(dir, repository string, clk clock.Clock) error {
	if clk == nil {
		clk = clock.Real()
	}
	line := fmt.Sprintf("%sT%d\n", e.RootCatalogHash.Hex(), clk.Now().Unix())

	final := filepath.Join(dir, "cvmfschecksum."+repository)
	tmp, err := os.CreateTemp(dir, "checksum-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: creating checksum temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: writing checksum: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: syncing checksum file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: closing checksum file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: renaming checksum file: %w", err)
	}

	dirHandle, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("manifest: opening %s to fsync: %w", dir, err)
	}
	defer dirHandle.Close()
	if err := dirHandle.Sync(); err != nil {
		return fmt.Errorf("manifest: syncing %s: %w", dir, err)
	}
	return nil
}

// ParseChecksumFile reads and parses a checksum sidecar written by
// ExportChecksum. It returns the root catalog hash and the embedded
// timestamp.
func ParseChecksumFile(path string) (objecthash.Hash, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return objecthash.Hash{}, time.Time{}, fmt.Errorf("manifest: reading checksum file: %w", err)
	}
	return ParseChecksumLine(string(data))
}

// ParseChecksumLine parses the "<hex-hash>T<unix-ts>" format. A
// trailing newline, if present, is ignored.
func ParseChecksumLine(line string) (objecthash.Hash, time.Time, error) {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}

	sep := -1
	for i, c := range line {
		if c == 'T' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return objecthash.Hash{}, time.Time{}, fmt.Errorf("manifest: malformed checksum line %q: missing 'T' separator", line)
	}

	hash, err := objecthash.ParseHex(line[:sep])
	if err != nil {
		return objecthash.Hash{}, time.Time{}, fmt.Errorf("manifest: malformed checksum line %q: %w", line, err)
	}

	var unixTS int64
	if _, err := fmt.Sscanf(line[sep+1:], "%d", &unixTS); err != nil {
		return objecthash.Hash{}, time.Time{}, fmt.Errorf("manifest: malformed checksum line %q: bad timestamp: %w", line, err)
	}

	return hash, time.Unix(unixTS, 0), nil
}
