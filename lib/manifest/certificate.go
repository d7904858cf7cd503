// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"

	"github.com/latticefs/latticefs/lib/codec"
	"github.com/latticefs/latticefs/lib/objecthash"
)

// certificateSidecar is the CBOR-encoded metadata cached alongside a
// certificate's raw bytes in the object store, tagged with
// objecthash.SuffixCertificate. It carries just enough information for
// the catalog loader to report hit/miss provenance without re-parsing
// the X.509 bytes.
type certificateSidecar struct {
	Hash        objecthash.Hash `cbor:"hash"`
	Fingerprint string          `cbor:"fingerprint,omitempty"`
}

// EncodeCertificateSidecar serializes a certificate's metadata for
// storage as a small CBOR object next to the certificate bytes
// themselves.
func EncodeCertificateSidecar(hash objecthash.Hash, fingerprint string) ([]byte, error) {
	data, err := codec.Marshal(certificateSidecar{Hash: hash, Fingerprint: fingerprint})
	if err != nil {
		return nil, fmt.Errorf("manifest: encoding certificate sidecar: %w", err)
	}
	return data, nil
}

// DecodeCertificateSidecar parses a sidecar previously produced by
// EncodeCertificateSidecar. The hash is encoded as its hex digest,
// which carries no suffix, so the decoded hash is tagged with
// objecthash.SuffixCertificate.
func DecodeCertificateSidecar(data []byte) (hash objecthash.Hash, fingerprint string, err error) {
	var sidecar certificateSidecar
	if err := codec.Unmarshal(data, &sidecar); err != nil {
		return objecthash.Hash{}, "", fmt.Errorf("manifest: decoding certificate sidecar: %w", err)
	}
	return sidecar.Hash.WithSuffix(objecthash.SuffixCertificate), sidecar.Fingerprint, nil
}
