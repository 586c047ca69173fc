// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring holds the RSA keys used to verify and re-sign
// signature streams. A ring maps key names (the strings stored in
// envelope headers) to key material.
//
// The built-in ring carries the engine's published keys. These are
// not secrets: the private halves shipped with the game and have been
// public for years, which is what makes local re-signing of save
// files possible at all.
package keyring

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sort"
)

// Key is one named RSA keypair. Private is nil for verify-only keys.
type Key struct {
	Name    string
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// Ring is a set of named keys.
type Ring struct {
	keys map[string]*Key
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{keys: make(map[string]*Key)}
}

// Get looks up a key by the name stored in an envelope header.
func (r *Ring) Get(name string) (*Key, bool) {
	k, ok := r.keys[name]
	return k, ok
}

// Names returns the key names in the ring, sorted.
func (r *Ring) Names() []string {
	names := make([]string, 0, len(r.keys))
	for name := range r.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddPrivatePEM parses a PKCS#1 "RSA PRIVATE KEY" PEM block and adds
// it (with its derived public key) under name. Replaces any existing
// key with the same name.
func (r *Ring) AddPrivatePEM(name, pemText string) error {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return fmt.Errorf("key %q: no RSA PRIVATE KEY PEM block found", name)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("key %q: parsing PKCS#1 private key: %w", name, err)
	}
	r.keys[name] = &Key{Name: name, Public: &key.PublicKey, Private: key}
	return nil
}

// AddPublicPEM parses a PKCS#1 "RSA PUBLIC KEY" PEM block and adds a
// verify-only key under name.
func (r *Ring) AddPublicPEM(name, pemText string) error {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "RSA PUBLIC KEY" {
		return fmt.Errorf("key %q: no RSA PUBLIC KEY PEM block found", name)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("key %q: parsing PKCS#1 public key: %w", name, err)
	}
	r.keys[name] = &Key{Name: name, Public: key}
	return nil
}

// Built-in key names. GameLocal is the default signing key for save
// files; the engine accepts it for anything written locally.
const (
	GameLocal         = "SignKey.GameLocal"
	EditorSignature   = "Signkey.EditorSignature"
	LicenseSignature  = "SignKey.LicenseSignature"
	OfficialSignature = "SignKey.OfficialSignature"
)

// Default returns a ring with the engine's built-in keys. The first
// three carry private halves and can sign; OfficialSignature is
// verify-only.
func Default() *Ring {
	ring := New()
	mustAddPrivate(ring, GameLocal, gameLocalPrivatePEM)
	mustAddPrivate(ring, EditorSignature, editorSignaturePrivatePEM)
	mustAddPrivate(ring, LicenseSignature, licenseSignaturePrivatePEM)
	mustAddPublic(ring, OfficialSignature, officialSignaturePublicPEM)
	return ring
}

func mustAddPrivate(r *Ring, name, pemText string) {
	if err := r.AddPrivatePEM(name, pemText); err != nil {
		panic("keyring: built-in key failed to parse: " + err.Error())
	}
}

func mustAddPublic(r *Ring, name, pemText string) {
	if err := r.AddPublicPEM(name, pemText); err != nil {
		panic("keyring: built-in key failed to parse: " + err.Error())
	}
}
