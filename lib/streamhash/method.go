// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamhash implements the digest and signature primitives of
// the signature-stream format: three selectable digest algorithms and
// RSA-PSS signing/verification over their outputs.
//
// The hash-method values are protocol constants stored in envelope
// headers; changing them breaks format compatibility.
package streamhash

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/cxmcc/tiger"
)

// Method selects the digest algorithm used for both the header digest
// and the per-block content digests. The numeric values appear
// verbatim in the envelope header.
type Method uint32

const (
	// MethodSHA1 is the engine's default for save files.
	MethodSHA1 Method = 4

	// MethodTiger is the 192-bit Tiger hash, seen in older streams.
	MethodTiger Method = 5

	// MethodSHA256 is used by newer content streams.
	MethodSHA256 Method = 6
)

// Valid reports whether m is one of the three known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodSHA1, MethodTiger, MethodSHA256:
		return true
	}
	return false
}

// String returns the method's human-readable name.
func (m Method) String() string {
	switch m {
	case MethodSHA1:
		return "sha1"
	case MethodTiger:
		return "tiger"
	case MethodSHA256:
		return "sha256"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(m))
	}
}

// New returns a fresh hasher for the method. Panics on an invalid
// method; callers must check Valid() when the value comes from an
// untrusted header.
func (m Method) New() hash.Hash {
	switch m {
	case MethodSHA1:
		return sha1.New()
	case MethodTiger:
		return tiger.New()
	case MethodSHA256:
		return sha256.New()
	default:
		panic(fmt.Sprintf("streamhash: invalid method %d", uint32(m)))
	}
}

// Size returns the digest size in bytes.
func (m Method) Size() int {
	return m.New().Size()
}
