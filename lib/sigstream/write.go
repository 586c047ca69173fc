// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/croteam-tools/savestream/lib/keyring"
	"github.com/croteam-tools/savestream/lib/streamhash"
	"github.com/croteam-tools/savestream/lib/wire"
)

// SignRequest names the key and binds the context for a signed write.
type SignRequest struct {
	// Ring supplies the signing key. Required.
	Ring *keyring.Ring

	// KeyName selects the key. Empty means keyring.GameLocal, the
	// key the engine accepts for locally written saves.
	KeyName string

	// StreamName, when non-empty, is bound into every digest and
	// the corresponding header flag is set.
	StreamName string

	// UserID, when non-empty, is bound into every digest.
	UserID string
}

// WriteOptions controls envelope encoding.
type WriteOptions struct {
	// Order is the stream byte order. Nil means little-endian.
	Order binary.ByteOrder

	// Version is the envelope version to write. Zero means
	// DefaultVersion. Versions below 3 cannot carry a signature.
	Version uint32

	// BlockSize is the content-hash granularity. Zero means
	// DefaultBlockSize.
	BlockSize uint32

	// Method selects the digest algorithm. Zero means SHA-1, the
	// engine default.
	Method streamhash.Method

	// Sign enables signing. Nil writes an unsigned stream.
	Sign *SignRequest

	// Rand is the randomness source for the salt and the PSS
	// padding. Nil means crypto/rand.Reader; tests substitute a
	// deterministic reader.
	Rand io.Reader
}

// Write encodes payload into a raw (non-gzip) signature stream,
// signing the header and every content block when requested.
func Write(payload []byte, opts WriteOptions) ([]byte, error) {
	order := opts.Order
	if order == nil {
		order = binary.LittleEndian
	}
	random := opts.Rand
	if random == nil {
		random = rand.Reader
	}

	h := Header{
		Version:   opts.Version,
		BlockSize: opts.BlockSize,
	}
	if h.Version == 0 {
		h.Version = DefaultVersion
	}
	if h.Version > MaxVersion {
		return nil, fmt.Errorf("%w: cannot write version %d", ErrVersion, h.Version)
	}
	if h.BlockSize == 0 {
		h.BlockSize = DefaultBlockSize
	}
	method := opts.Method
	if method == 0 {
		method = streamhash.MethodSHA1
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: invalid hash method %d", ErrFormat, uint32(method))
	}
	h.HashMethod = uint32(method)

	var saltBytes [4]byte
	if _, err := io.ReadFull(random, saltBytes[:]); err != nil {
		return nil, fmt.Errorf("reading salt randomness: %w", err)
	}
	h.Salt = binary.LittleEndian.Uint32(saltBytes[:])

	var key *keyring.Key
	var streamName, userID []byte
	signing := opts.Sign != nil && h.Version >= 3
	if signing {
		if opts.Sign.Ring == nil {
			return nil, fmt.Errorf("signing requested without a key ring")
		}
		name := opts.Sign.KeyName
		if name == "" {
			name = keyring.GameLocal
		}
		var ok bool
		key, ok = opts.Sign.Ring.Get(name)
		if !ok {
			return nil, fmt.Errorf("no key %q in ring", name)
		}
		if key.Private == nil {
			return nil, fmt.Errorf("key %q has no private half and cannot sign", name)
		}
		h.KeyName = name
		if opts.Sign.StreamName != "" {
			h.StreamNameFlag = 1
			streamName = []byte(opts.Sign.StreamName)
		}
		if opts.Sign.UserID != "" {
			h.UserIDFlag = 1
			userID = []byte(opts.Sign.UserID)
		}
		// PSS signatures are always key-size bytes.
		h.SignatureSize = uint32((key.Private.N.BitLen() + 7) / 8)
	}

	w := wire.NewWriter(order)
	w.Tag(Magic)
	w.Uint32(h.Version)
	w.Uint32(h.BlockSize)
	w.Uint32(h.HashMethod)
	w.Int32(0) // embedded digest size; the engine writes none for saves
	w.Uint32(h.Salt)
	if h.Version >= 2 {
		w.Uint32(h.StreamNameFlag)
	}
	if h.Version >= 3 {
		w.Uint32(h.UserIDFlag)
	}
	if h.Version >= 5 {
		w.PascalString(h.RelatedString)
	}

	if signing {
		digest := h.digest(order, streamName, userID)
		signature, err := streamhash.SignPSS(random, key.Private, method, digest)
		if err != nil {
			return nil, fmt.Errorf("signing header: %w", err)
		}
		w.Uint32(h.SignatureSize)
		w.PascalString(h.KeyName)
		w.Raw(signature)
	} else {
		w.Uint32(0)
	}

	blockSize := int(h.BlockSize)
	for index := uint32(0); int(index)*blockSize < len(payload); index++ {
		start := int(index) * blockSize
		end := min(start+blockSize, len(payload))
		block := payload[start:end]
		w.Raw(block)

		if signing {
			digest := blockDigest(method, order, h.Salt, index, streamName, userID, block)
			signature, err := streamhash.SignPSS(random, key.Private, method, digest)
			if err != nil {
				return nil, fmt.Errorf("signing block %d: %w", index, err)
			}
			w.Raw(signature)
		}
	}

	return w.Bytes(), nil
}

// verifyPSS checks one signature against the header's key and method.
func verifyPSS(key *keyring.Key, h *Header, digest, signature []byte) error {
	return streamhash.VerifyPSS(key.Public, h.Method(), digest, signature)
}
