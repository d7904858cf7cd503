// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objecthash implements the content hash used to name and
// locate objects in the cache: a fixed-width BLAKE3 digest plus an
// optional one-byte suffix discriminating payload kind (regular data,
// catalog, certificate, partial chunk). Path derivation spreads
// committed objects over 256 top-level prefix directories.
package objecthash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Suffix discriminates payload kind. It participates in equality but
// never in path derivation: two hashes with the same digest and
// different suffixes name the same on-disk object.
type Suffix byte

const (
	// SuffixNone marks ordinary regular-file content.
	SuffixNone Suffix = 0
	// SuffixCatalog marks a signed catalog object.
	SuffixCatalog Suffix = 'C'
	// SuffixCertificate marks a cached X.509 certificate.
	SuffixCertificate Suffix = 'X'
	// SuffixPartial marks a partial (chunk) object.
	SuffixPartial Suffix = 'P'
)

func (s Suffix) String() string {
	if s == SuffixNone {
		return ""
	}
	return string(rune(s))
}

// Hash is a content hash: a 32-byte BLAKE3 digest plus a discriminating
// suffix. The zero Hash is not a valid digest of anything and is used
// as a "no hash" sentinel by callers that need one.
type Hash struct {
	Digest [Size]byte
	Suffix Suffix
}

// domainKey is a 32-byte BLAKE3 key derived from an ASCII label,
// zero-padded. Keyed hashing with distinct per-domain keys ensures a
// digest computed in one domain (e.g. manifest bytes) can never
// collide with a digest computed in another (e.g. object bytes) even
// if the underlying bytes happen to match.
type domainKey [32]byte

func newDomainKey(label string) domainKey {
	if len(label) > 32 {
		panic("objecthash: domain label longer than 32 bytes: " + label)
	}
	var key domainKey
	copy(key[:], label)
	return key
}

var (
	objectDomain   = newDomainKey("latticefs.object.v1")
	manifestDomain = newDomainKey("latticefs.manifest.v1")
)

func keyedHash(key domainKey, data []byte) [Size]byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only possible if the key is the wrong length, which
		// newDomainKey guarantees never happens.
		panic("objecthash: keyed hasher construction failed: " + err.Error())
	}
	hasher.Write(data)
	var digest [Size]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// HashObject computes the content hash of a regular object's
// (post-decompression) bytes.
func HashObject(data []byte) Hash {
	return Hash{Digest: keyedHash(objectDomain, data), Suffix: SuffixNone}
}

// NewObjectHasher returns a streaming hasher keyed for the object
// domain, for callers that verify a digest incrementally as bytes
// arrive (e.g. a download in progress) rather than all at once via
// HashObject.
func NewObjectHasher() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(objectDomain[:])
	if err != nil {
		panic("objecthash: keyed hasher construction failed: " + err.Error())
	}
	return hasher
}

// HashCatalog computes the content hash of a catalog object's bytes,
// tagged with [SuffixCatalog].
func HashCatalog(data []byte) Hash {
	h := HashObject(data)
	h.Suffix = SuffixCatalog
	return h
}

// HashManifest computes the content hash of signed manifest bytes in
// the manifest domain, distinct from the object domain so a manifest
// can never be mistaken for an object even if byte-identical.
func HashManifest(data []byte) Hash {
	return Hash{Digest: keyedHash(manifestDomain, data), Suffix: SuffixNone}
}

// WithSuffix returns a copy of h with its suffix replaced.
func (h Hash) WithSuffix(s Suffix) Hash {
	h.Suffix = s
	return h
}

// Equal reports whether two hashes name the same digest and carry the
// same suffix.
func (h Hash) Equal(other Hash) bool {
	return h.Digest == other.Digest && h.Suffix == other.Suffix
}

// Compare orders hashes byte-wise over the digest, breaking ties on
// suffix. Useful for deterministic iteration (e.g. directory listing
// order in tests).
func (h Hash) Compare(other Hash) int {
	for i := range h.Digest {
		if h.Digest[i] != other.Digest[i] {
			if h.Digest[i] < other.Digest[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case h.Suffix < other.Suffix:
		return -1
	case h.Suffix > other.Suffix:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether h is the zero Hash sentinel.
func (h Hash) IsZero() bool {
	return h.Digest == [Size]byte{} && h.Suffix == SuffixNone
}

// Hex returns the lowercase hex encoding of the digest (suffix is not
// included; it is carried only in-memory and in the checksum sidecar's
// own format, never as part of the path or the hex string).
func (h Hash) Hex() string {
	return hex.EncodeToString(h.Digest[:])
}

// String renders the hash for logging: hex digest, with the suffix
// appended in brackets when non-zero.
func (h Hash) String() string {
	if h.Suffix == SuffixNone {
		return h.Hex()
	}
	return fmt.Sprintf("%s[%s]", h.Hex(), h.Suffix)
}

// MarshalText implements encoding.TextMarshaler so a Hash serializes
// as its hex string via lib/codec's CBOR text-string mode and via
// encoding/json.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHex parses a hex-encoded digest (64 characters, no suffix) into
// a Hash with SuffixNone.
func ParseHex(s string) (Hash, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("objecthash: parsing %q: %w", s, err)
	}
	if len(decoded) != Size {
		return Hash{}, fmt.Errorf("objecthash: %q decodes to %d bytes, want %d", s, len(decoded), Size)
	}
	var h Hash
	copy(h.Digest[:], decoded)
	return h, nil
}

// PathPrefix returns the two-character hex directory name derived from
// the digest's first byte -- one of the 256 top-level prefix
// directories under the cache root.
func (h Hash) PathPrefix() string {
	return hex.EncodeToString(h.Digest[:1])
}

// PathSuffix returns the hex encoding of the remaining 31 digest bytes
// -- the filename within the prefix directory.
func (h Hash) PathSuffix() string {
	return hex.EncodeToString(h.Digest[1:])
}

// RelativePath returns the hash's path fragment relative to the cache
// root: "<two-hex-prefix>/<remaining-hex>", per the single-level,
// 256-directory sharding scheme.
func (h Hash) RelativePath() string {
	return h.PathPrefix() + "/" + h.PathSuffix()
}
