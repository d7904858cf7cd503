// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides this module's standard CBOR encoding
// configuration.
//
// CBOR is used for internal, on-disk and wire structures: the manifest
// ensemble's certificate sidecar, and anything else that benefits from
// compact deterministic encoding. The plain-text checksum sidecar
// (`<hex-hash>T<unix-ts>`) deliberately stays outside this package — it
// is a tiny, fixed-grammar format read by humans and shell tooling, not
// a structured record.
//
// This package provides the shared CBOR encoding and decoding modes so
// every caller encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// Purely internal types (such as lib/manifest's certificate sidecar)
// use `cbor` struct tags. Types that serve both JSON and CBOR use `json`
// tags only: fxamacker/cbor reads `json` tags as fallback when `cbor`
// tags are absent, so a single tag set controls field naming and
// omitempty for both formats.
package codec
