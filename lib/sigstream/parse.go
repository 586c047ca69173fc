// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/croteam-tools/savestream/lib/keyring"
	"github.com/croteam-tools/savestream/lib/wire"
)

// ParseOptions controls envelope decoding and verification.
type ParseOptions struct {
	// Order is the stream byte order. Nil means little-endian (PC
	// saves); console saves are big-endian.
	Order binary.ByteOrder

	// Ring supplies verification keys. Nil skips verification
	// entirely.
	Ring *keyring.Ring

	// StreamName is the stream identity the file should be bound to
	// (e.g. "<memory stream:PlayerProfile.dat>"). Empty means not
	// supplied; if the header binds a stream name, verification is
	// skipped with a warning.
	StreamName string

	// UserID is the platform account id the file should be bound to
	// (hex string). Same skip semantics as StreamName.
	UserID string

	// Logger receives skipped-verification warnings. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

func (o *ParseOptions) order() binary.ByteOrder {
	if o.Order == nil {
		return binary.LittleEndian
	}
	return o.Order
}

func (o *ParseOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Stream is a decoded envelope: the header and the de-interleaved
// payload (content blocks with their signatures stripped).
type Stream struct {
	Header  Header
	Payload []byte

	// Verified is true when the header and every content block were
	// signature-checked successfully. False means verification was
	// skipped (unsigned stream, unknown key, or missing bound
	// context); a failed check is an error, not Verified=false.
	Verified bool
}

// Parse decodes a raw (non-gzip) signature stream. When the stream is
// signed, the key is in opts.Ring, and all bound context is supplied,
// the header and every block are verified; any mismatch returns
// ErrIntegrity. When verification cannot run, the reason is logged
// and the payload is returned unverified.
func Parse(data []byte, opts ParseOptions) (*Stream, error) {
	order := opts.order()
	logger := opts.logger()
	r := wire.NewReader(data, order)

	if err := r.Tag(Magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var h Header
	var err error
	if h.Version, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrFormat, err)
	}
	if h.Version == 0 || h.Version > MaxVersion {
		return nil, fmt.Errorf("%w: version %d (supported: 1..%d)", ErrVersion, h.Version, MaxVersion)
	}
	if h.BlockSize, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: reading block size: %v", ErrFormat, err)
	}
	if h.BlockSize > maxBlockSize {
		return nil, fmt.Errorf("%w: block size %d exceeds maximum %d", ErrFormat, h.BlockSize, maxBlockSize)
	}
	if h.HashMethod, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: reading hash method: %v", ErrFormat, err)
	}
	digestSize, err := r.Int32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading embedded digest size: %v", ErrFormat, err)
	}
	if digestSize > maxDigestSize {
		return nil, fmt.Errorf("%w: embedded digest size %d exceeds maximum %d", ErrFormat, digestSize, maxDigestSize)
	}
	if digestSize < 0 {
		// The engine clamps negatives to zero rather than erroring.
		digestSize = 0
	}
	digest, err := r.Bytes(int(digestSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading embedded digest: %v", ErrFormat, err)
	}
	h.EmbeddedDigest = append([]byte(nil), digest...)
	if h.Salt, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: reading salt: %v", ErrFormat, err)
	}
	if h.Version >= 2 {
		if h.StreamNameFlag, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: reading stream name flag: %v", ErrFormat, err)
		}
	}
	if h.Version >= 3 {
		if h.UserIDFlag, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: reading user id flag: %v", ErrFormat, err)
		}
	}
	if h.Version >= 5 {
		if h.RelatedString, err = r.PascalString(); err != nil {
			return nil, fmt.Errorf("%w: reading signature-related string: %v", ErrFormat, err)
		}
	}
	if h.SignatureSize, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: reading signature size: %v", ErrFormat, err)
	}
	if h.SignatureSize > maxSignatureSize {
		return nil, fmt.Errorf("%w: signature size %d exceeds maximum %d", ErrFormat, h.SignatureSize, maxSignatureSize)
	}
	if h.Version >= 3 && h.SignatureSize > 0 {
		if h.KeyName, err = r.PascalString(); err != nil {
			return nil, fmt.Errorf("%w: reading signing key name: %v", ErrFormat, err)
		}
		sig, err := r.Bytes(int(h.SignatureSize))
		if err != nil {
			return nil, fmt.Errorf("%w: reading header signature: %v", ErrFormat, err)
		}
		h.Signature = append([]byte(nil), sig...)
	}

	// Decide whether verification can run. Every skip path logs its
	// reason so silent acceptance never looks like a passed check.
	verify, key, streamName, userID := verificationContext(&h, &opts, logger)

	if verify {
		headerDigest := h.digest(order, streamName, userID)
		if err := verifyPSS(key, &h, headerDigest, h.Signature); err != nil {
			return nil, fmt.Errorf("%w: header: %v", ErrIntegrity, err)
		}
	}

	// De-interleave the payload: each block of BlockSize bytes is
	// followed by SignatureSize signature bytes; the final block may
	// be short.
	sigSize := int(h.SignatureSize)
	blockSize := int(h.BlockSize)
	if blockSize == 0 {
		// Degenerate but representable: treat the whole payload as a
		// single block.
		blockSize = r.Remaining()
	}

	payload := make([]byte, 0, r.Remaining())
	for index := uint32(0); r.Remaining() > 0; index++ {
		var block []byte
		if r.Remaining() >= blockSize+sigSize {
			block, err = r.Bytes(blockSize)
		} else {
			short := r.Remaining() - sigSize
			if short < 0 {
				return nil, fmt.Errorf("%w: %d trailing bytes cannot hold a %d-byte block signature",
					ErrFormat, r.Remaining(), sigSize)
			}
			block, err = r.Bytes(short)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading block %d: %v", ErrFormat, index, err)
		}
		signature, err := r.Bytes(sigSize)
		if err != nil {
			return nil, fmt.Errorf("%w: reading block %d signature: %v", ErrFormat, index, err)
		}
		payload = append(payload, block...)

		if verify {
			digest := blockDigest(h.Method(), order, h.Salt, index, streamName, userID, block)
			if err := verifyPSS(key, &h, digest, signature); err != nil {
				return nil, fmt.Errorf("%w: block %d: %v", ErrIntegrity, index, err)
			}
		}
	}

	if len(h.EmbeddedDigest) > 0 {
		logger.Warn("embedded header digest present but not enforced",
			"size", len(h.EmbeddedDigest))
	}

	return &Stream{Header: h, Payload: payload, Verified: verify}, nil
}

// verificationContext decides whether signature checks can run and
// returns the key plus the context byte strings to mix into digests
// (nil when unbound or unsupplied).
func verificationContext(h *Header, opts *ParseOptions, logger *slog.Logger) (bool, *keyring.Key, []byte, []byte) {
	if !h.Signed() {
		return false, nil, nil, nil
	}
	if opts.Ring == nil {
		return false, nil, nil, nil
	}
	key, ok := opts.Ring.Get(h.KeyName)
	if !ok {
		logger.Warn("skipping verification: key not in ring", "key", h.KeyName)
		return false, nil, nil, nil
	}
	if !h.Method().Valid() {
		logger.Warn("skipping verification: unknown hash method", "method", h.HashMethod)
		return false, nil, nil, nil
	}

	var streamName, userID []byte
	if h.BindsStreamName() {
		if opts.StreamName == "" {
			logger.Warn("skipping verification: stream is bound to an identity but none was supplied")
			return false, nil, nil, nil
		}
		streamName = []byte(opts.StreamName)
	}
	if h.BindsUserID() {
		if opts.UserID == "" {
			logger.Warn("skipping verification: stream is bound to a user id but none was supplied")
			return false, nil, nil, nil
		}
		userID = []byte(opts.UserID)
	}
	return true, key, streamName, userID
}
