// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/objecthash"
)

func TestExportChecksumRoundTrip(t *testing.T) {
	dir := t.TempDir()
	hash := objecthash.HashCatalog([]byte("root catalog bytes"))
	ens := Ensemble{RootCatalogHash: hash}

	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	if err := ens.ExportChecksum(dir, "example.repo", fake); err != nil {
		t.Fatalf("ExportChecksum: %v", err)
	}

	path := filepath.Join(dir, "cvmfschecksum.example.repo")
	gotHash, gotTS, err := ParseChecksumFile(path)
	if err != nil {
		t.Fatalf("ParseChecksumFile: %v", err)
	}
	if gotHash.Digest != hash.Digest {
		t.Fatalf("parsed hash = %s, want %s", gotHash, hash)
	}
	if !gotTS.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("parsed timestamp = %v, want %v", gotTS, time.Unix(1_700_000_000, 0))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp checksum file left behind: %s", e.Name())
		}
	}
}

func TestParseChecksumLineRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-hash-at-all",
		"0123T not-a-number",
	}
	for _, c := range cases {
		if _, _, err := ParseChecksumLine(c); err == nil {
			t.Errorf("ParseChecksumLine(%q): want error, got nil", c)
		}
	}
}

func TestCertificateSidecarRoundTrip(t *testing.T) {
	hash := objecthash.HashObject([]byte("certificate DER bytes")).WithSuffix(objecthash.SuffixCertificate)

	encoded, err := EncodeCertificateSidecar(hash, "aa:bb:cc")
	if err != nil {
		t.Fatalf("EncodeCertificateSidecar: %v", err)
	}

	gotHash, gotFingerprint, err := DecodeCertificateSidecar(encoded)
	if err != nil {
		t.Fatalf("DecodeCertificateSidecar: %v", err)
	}
	if !gotHash.Equal(hash) {
		t.Fatalf("decoded hash = %s, want %s", gotHash, hash)
	}
	if gotFingerprint != "aa:bb:cc" {
		t.Fatalf("decoded fingerprint = %q, want %q", gotFingerprint, "aa:bb:cc")
	}
}
