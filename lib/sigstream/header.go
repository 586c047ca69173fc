// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package sigstream reads and writes the outer signed envelope of
// engine save files: a fixed header, an optional trailing signature
// block, and a payload divided into fixed-size blocks, each followed
// by its own RSA-PSS signature when the stream is signed.
//
// Two pieces of context are never stored in the file but are mixed
// into every digest: the stream identity ("memory stream name") and
// the platform user id. A file signed for one stream name or account
// does not verify under another.
package sigstream

import (
	"encoding/binary"
	"hash"

	"github.com/croteam-tools/savestream/lib/streamhash"
)

// Protocol constants. These values are fixed by the engine; changing
// any of them breaks compatibility with real save files.
const (
	// Magic is the 12-byte envelope signature.
	Magic = "SIGSTRM12GIS"

	// MaxVersion is the newest envelope layout this package
	// implements. Versions above it have unknown gated fields.
	MaxVersion = 5

	// DefaultVersion is what the engine writes for save files.
	DefaultVersion = 5

	// DefaultBlockSize is the content-hash granularity the engine
	// uses (64 KiB).
	DefaultBlockSize = 0x10000

	// maxBlockSize bounds the declared block size (512 KiB).
	maxBlockSize = 0x80000

	// maxDigestSize bounds the embedded header digest field.
	maxDigestSize = 0x1000

	// maxSignatureSize bounds the per-block signature size.
	maxSignatureSize = 0x1000

	// blockSeedOffset is added to the block index before XORing with
	// the salt, so block 0 of one file never hashes like block 0 of
	// another, and no block can be replayed at a different index.
	blockSeedOffset = 0xB1B
)

// Header is the decoded envelope header. Field presence is gated by
// Version; absent fields are left at their zero value.
type Header struct {
	// Version selects which optional fields exist (see the Binds*
	// methods and the write path).
	Version uint32

	// BlockSize is the content-hash block granularity in bytes.
	BlockSize uint32

	// HashMethod is the raw hash-method selector. May hold an
	// unknown value in streams this tool only passes through; use
	// Method() after checking Valid().
	HashMethod uint32

	// EmbeddedDigest is the optional digest stored in the header.
	// The engine writes it with size zero for save files; when
	// non-empty it is preserved verbatim but not enforced; its
	// relationship to the per-block chain is not pinned down.
	EmbeddedDigest []byte

	// Salt is the per-file random seed for the block digest chain.
	Salt uint32

	// StreamNameFlag records whether the stream identity is bound
	// into the digests. Present when Version >= 2.
	StreamNameFlag uint32

	// UserIDFlag records whether the user id is bound into the
	// digests. Present when Version >= 3.
	UserIDFlag uint32

	// RelatedString is the signature-related string, present when
	// Version >= 5. The engine writes it empty.
	RelatedString string

	// SignatureSize is the per-signature byte count (0 = unsigned).
	SignatureSize uint32

	// KeyName names the signing key; set only when a signature
	// block is present.
	KeyName string

	// Signature is the header signature bytes.
	Signature []byte
}

// Method returns the hash-method selector as a streamhash.Method.
func (h *Header) Method() streamhash.Method {
	return streamhash.Method(h.HashMethod)
}

// Signed reports whether the stream carries a signature block.
func (h *Header) Signed() bool {
	return h.Version >= 3 && h.SignatureSize > 0 && len(h.Signature) > 0
}

// BindsStreamName reports whether digests include the caller-supplied
// stream identity.
func (h *Header) BindsStreamName() bool {
	return h.Version >= 2 && h.StreamNameFlag != 0
}

// BindsUserID reports whether digests include the caller-supplied
// user id.
func (h *Header) BindsUserID() bool {
	return h.Version >= 3 && h.UserIDFlag != 0
}

// hashUint32 feeds one integer into a hasher in the stream byte
// order. Digest inputs use the same byte order as the wire format.
func hashUint32(hasher hash.Hash, order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	hasher.Write(b[:])
}

// digest computes the header digest: the value that is signed and
// verified. It covers every header field in wire order plus the bound
// context strings, and is independent of the payload.
//
// streamName and userID must be nil when the corresponding flag is
// unset or the caller did not supply the context.
func (h *Header) digest(order binary.ByteOrder, streamName, userID []byte) []byte {
	hasher := h.Method().New()
	hashUint32(hasher, order, h.Version)
	hashUint32(hasher, order, h.BlockSize)
	hashUint32(hasher, order, h.HashMethod)
	hashUint32(hasher, order, uint32(len(h.EmbeddedDigest)))
	hashUint32(hasher, order, h.Salt)
	if h.Version >= 2 {
		hashUint32(hasher, order, h.StreamNameFlag)
		if h.StreamNameFlag != 0 && streamName != nil {
			hasher.Write(streamName)
		}
	}
	if h.Version >= 3 {
		hashUint32(hasher, order, h.UserIDFlag)
		if h.UserIDFlag != 0 && userID != nil {
			hasher.Write(userID)
		}
	}
	if h.Version >= 5 {
		hasher.Write([]byte(h.RelatedString))
	}
	hashUint32(hasher, order, h.SignatureSize)
	hasher.Write([]byte(h.KeyName))
	return hasher.Sum(nil)
}

// blockDigest computes the digest for one content block. The seed is
// the salt XORed with the offset block index, so identical payload
// bytes hash differently per file and per position.
func blockDigest(method streamhash.Method, order binary.ByteOrder, salt, index uint32, streamName, userID, block []byte) []byte {
	hasher := method.New()
	hashUint32(hasher, order, salt^(index+blockSeedOffset))
	if streamName != nil {
		hasher.Write(streamName)
	}
	if userID != nil {
		hasher.Write(userID)
	}
	hasher.Write(block)
	return hasher.Sum(nil)
}
