// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a 32-byte BLAKE3 keyed hash of a decompressed
// payload. It is tooling metadata only (logging, the info command,
// comparing extractions) and plays no part in the file format; the
// format's own digests are the streamhash chain.
type Fingerprint [32]byte

// payloadKey is the BLAKE3 domain-separation key for payload
// fingerprints: the ASCII domain name, zero-padded to 32 bytes.
var payloadKey = [32]byte{
	's', 'a', 'v', 'e', 's', 't', 'r', 'e', 'a', 'm', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// PayloadFingerprint computes the keyed fingerprint of payload.
func PayloadFingerprint(payload []byte) Fingerprint {
	hasher, err := blake3.NewKeyed(payloadKey[:])
	if err != nil {
		panic("sigstream: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var fp Fingerprint
	copy(fp[:], hasher.Sum(nil))
	return fp
}

// String returns the hex encoding of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
