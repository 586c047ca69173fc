// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Two document serializations exist with a clear boundary:
//
//   - JSON for hand-editing: extracted save documents that a user
//     modifies in a text editor (comments and trailing commas are
//     tolerated on input).
//   - CBOR for tooling pipelines: compact, deterministic documents
//     meant to be produced and consumed by programs.
//
// This package provides the shared CBOR encoding and decoding modes
// so every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC
// 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes, which makes exported documents diffable.
//
// fxamacker/cbor v2 reads `json` struct tags when `cbor` tags are
// absent, so the document types carry a single `json` tag that
// controls field naming and omitempty for both formats.
package codec
