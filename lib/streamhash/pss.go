// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package streamhash

import (
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"
	"math/big"
)

// SaltLength is the PSS salt length used by the engine for every hash
// method. Protocol constant.
const SaltLength = 11

// SignPSS signs an already-computed digest with RSA-PSS using the
// method's hash for both the message encoding and MGF1. The digest
// must be exactly method.Size() bytes. The signature is always
// key-size bytes regardless of the message.
//
// crypto/rsa cannot serve here: its PSS entry points identify the
// hash by crypto.Hash, and Tiger has no crypto.Hash value, so the
// EMSA-PSS encoding (RFC 8017 §9.1) is implemented directly over
// hash.Hash.
func SignPSS(random io.Reader, key *rsa.PrivateKey, method Method, digest []byte) ([]byte, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("invalid hash method %d", uint32(method))
	}
	hasher := method.New()
	if len(digest) != hasher.Size() {
		return nil, fmt.Errorf("digest is %d bytes, %s produces %d", len(digest), method, hasher.Size())
	}

	modBits := key.N.BitLen()
	emBits := modBits - 1
	em, err := emsaPSSEncode(random, digest, emBits, hasher)
	if err != nil {
		return nil, err
	}

	m := new(big.Int).SetBytes(em)
	if m.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("encoded message exceeds modulus")
	}
	s := new(big.Int).Exp(m, key.D, key.N)

	k := (modBits + 7) / 8
	return s.FillBytes(make([]byte, k)), nil
}

// VerifyPSS verifies an RSA-PSS signature over digest. Returns nil on
// success and a descriptive error on any failure; callers that only
// need a boolean should compare against nil.
func VerifyPSS(key *rsa.PublicKey, method Method, digest, signature []byte) error {
	if !method.Valid() {
		return fmt.Errorf("invalid hash method %d", uint32(method))
	}
	hasher := method.New()
	if len(digest) != hasher.Size() {
		return fmt.Errorf("digest is %d bytes, %s produces %d", len(digest), method, hasher.Size())
	}

	modBits := key.N.BitLen()
	k := (modBits + 7) / 8
	if len(signature) != k {
		return fmt.Errorf("signature is %d bytes, key size is %d", len(signature), k)
	}

	s := new(big.Int).SetBytes(signature)
	if s.Cmp(key.N) >= 0 {
		return fmt.Errorf("signature exceeds modulus")
	}
	e := big.NewInt(int64(key.E))
	m := new(big.Int).Exp(s, e, key.N)

	emBits := modBits - 1
	emLen := (emBits + 7) / 8
	em := m.FillBytes(make([]byte, emLen))

	return emsaPSSVerify(digest, em, emBits, hasher)
}

// emsaPSSEncode implements EMSA-PSS-ENCODE (RFC 8017 §9.1.1) with the
// fixed salt length. mHash is the message digest; hasher is reset and
// reused for H = Hash(M').
func emsaPSSEncode(random io.Reader, mHash []byte, emBits int, hasher hash.Hash) ([]byte, error) {
	hLen := hasher.Size()
	sLen := SaltLength
	emLen := (emBits + 7) / 8

	if emLen < hLen+sLen+2 {
		return nil, fmt.Errorf("key too small for %d-byte digest with %d-byte salt", hLen, sLen)
	}

	salt := make([]byte, sLen)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("reading salt randomness: %w", err)
	}

	// M' = (0x)00 00 00 00 00 00 00 00 || mHash || salt
	hasher.Reset()
	var prefix [8]byte
	hasher.Write(prefix[:])
	hasher.Write(mHash)
	hasher.Write(salt)
	h := hasher.Sum(nil)

	// DB = PS || 0x01 || salt, PS = emLen - sLen - hLen - 2 zeros.
	em := make([]byte, emLen)
	db := em[:emLen-hLen-1]
	db[emLen-sLen-hLen-2] = 0x01
	copy(db[emLen-sLen-hLen-1:], salt)

	mgf1XOR(db, hasher, h)

	// Clear the leftmost 8*emLen - emBits bits of the masked DB.
	em[0] &= 0xFF >> (8*emLen - emBits)

	copy(em[emLen-hLen-1:], h)
	em[emLen-1] = 0xBC
	return em, nil
}

// emsaPSSVerify implements EMSA-PSS-VERIFY (RFC 8017 §9.1.2).
func emsaPSSVerify(mHash, em []byte, emBits int, hasher hash.Hash) error {
	hLen := hasher.Size()
	sLen := SaltLength
	emLen := (emBits + 7) / 8

	if emLen < hLen+sLen+2 {
		return fmt.Errorf("encoded message too short")
	}
	if em[emLen-1] != 0xBC {
		return fmt.Errorf("trailer byte is 0x%02X, want 0xBC", em[emLen-1])
	}

	unusedBits := 8*emLen - emBits
	if em[0]&^(0xFF>>unusedBits) != 0 {
		return fmt.Errorf("leftmost bits of masked DB are not zero")
	}

	maskedDB := make([]byte, emLen-hLen-1)
	copy(maskedDB, em[:emLen-hLen-1])
	h := em[emLen-hLen-1 : emLen-1]

	mgf1XOR(maskedDB, hasher, h)
	maskedDB[0] &= 0xFF >> unusedBits
	db := maskedDB

	for _, b := range db[:emLen-hLen-sLen-2] {
		if b != 0 {
			return fmt.Errorf("padding is not zero")
		}
	}
	if db[emLen-hLen-sLen-2] != 0x01 {
		return fmt.Errorf("padding separator is 0x%02X, want 0x01", db[emLen-hLen-sLen-2])
	}
	salt := db[len(db)-sLen:]

	hasher.Reset()
	var prefix [8]byte
	hasher.Write(prefix[:])
	hasher.Write(mHash)
	hasher.Write(salt)
	expected := hasher.Sum(nil)

	if subtle.ConstantTimeCompare(h, expected) != 1 {
		return fmt.Errorf("digest mismatch")
	}
	return nil
}

// mgf1XOR XORs the MGF1 mask derived from seed (using hasher) into
// out, per RFC 8017 appendix B.2.1.
func mgf1XOR(out []byte, hasher hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		hasher.Reset()
		hasher.Write(seed)
		hasher.Write(counter[:])
		digest = hasher.Sum(digest[:0])

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}

		for i := 3; i >= 0; i-- {
			counter[i]++
			if counter[i] != 0 {
				break
			}
		}
	}
}
