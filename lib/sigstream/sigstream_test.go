// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/croteam-tools/savestream/lib/keyring"
	"github.com/croteam-tools/savestream/lib/streamhash"
	"github.com/croteam-tools/savestream/lib/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	testStreamName = "<memory stream:PlayerProfile.dat>"
	testUserID     = "76561197960287930"
)

func testPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	return payload
}

func TestUnsignedRoundtrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		payload := testPayload(1000)
		data, err := Write(payload, WriteOptions{Order: order})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}

		stream, err := Parse(data, ParseOptions{Order: order, Logger: quiet})
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !bytes.Equal(stream.Payload, payload) {
			t.Error("payload mismatch after roundtrip")
		}
		if stream.Verified {
			t.Error("unsigned stream reported as verified")
		}
		if stream.Header.Version != DefaultVersion {
			t.Errorf("Version = %d, want %d", stream.Header.Version, DefaultVersion)
		}
		if stream.Header.SignatureSize != 0 {
			t.Errorf("SignatureSize = %d, want 0", stream.Header.SignatureSize)
		}
	}
}

func TestSignedRoundtripMultiBlock(t *testing.T) {
	ring := keyring.Default()
	// A tiny block size forces several blocks, including a short
	// final one.
	payload := testPayload(100)
	opts := WriteOptions{
		BlockSize: 32,
		Sign: &SignRequest{
			Ring:       ring,
			StreamName: testStreamName,
			UserID:     testUserID,
		},
	}

	data, err := Write(payload, opts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	stream, err := Parse(data, ParseOptions{
		Ring:       ring,
		StreamName: testStreamName,
		UserID:     testUserID,
		Logger:     quiet,
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !stream.Verified {
		t.Error("signed stream not verified")
	}
	if !bytes.Equal(stream.Payload, payload) {
		t.Error("payload mismatch after roundtrip")
	}
	if stream.Header.KeyName != keyring.GameLocal {
		t.Errorf("KeyName = %q, want %q", stream.Header.KeyName, keyring.GameLocal)
	}
	if !stream.Header.BindsStreamName() || !stream.Header.BindsUserID() {
		t.Error("context flags not set")
	}
}

func TestSignedRoundtripBigEndian(t *testing.T) {
	ring := keyring.Default()
	payload := testPayload(64)
	data, err := Write(payload, WriteOptions{
		Order:     binary.BigEndian,
		BlockSize: 32,
		Method:    streamhash.MethodSHA256,
		Sign:      &SignRequest{Ring: ring, StreamName: testStreamName},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	stream, err := Parse(data, ParseOptions{
		Order:      binary.BigEndian,
		Ring:       ring,
		StreamName: testStreamName,
		Logger:     quiet,
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !stream.Verified {
		t.Error("stream not verified")
	}
	if stream.Header.Method() != streamhash.MethodSHA256 {
		t.Errorf("method = %v", stream.Header.Method())
	}
}

func TestTamperedBlockFailsIntegrity(t *testing.T) {
	ring := keyring.Default()
	payload := testPayload(100)
	data, err := Write(payload, WriteOptions{
		BlockSize: 32,
		Sign:      &SignRequest{Ring: ring, StreamName: testStreamName},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Flip a byte in the last content block (just before its
	// trailing 256-byte signature).
	data[len(data)-257] ^= 0x01

	_, err = Parse(data, ParseOptions{
		Ring:       ring,
		StreamName: testStreamName,
		Logger:     quiet,
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Parse = %v, want ErrIntegrity", err)
	}
}

func TestWrongStreamNameFailsIntegrity(t *testing.T) {
	ring := keyring.Default()
	data, err := Write(testPayload(40), WriteOptions{
		Sign: &SignRequest{Ring: ring, StreamName: testStreamName},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Parse(data, ParseOptions{
		Ring:       ring,
		StreamName: "Content/Talos/All.dat",
		Logger:     quiet,
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Parse = %v, want ErrIntegrity", err)
	}
}

func TestMissingBoundContextSkipsVerification(t *testing.T) {
	ring := keyring.Default()
	data, err := Write(testPayload(40), WriteOptions{
		Sign: &SignRequest{Ring: ring, UserID: testUserID},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The stream binds a user id; parsing without one must still
	// yield the payload, just unverified.
	stream, err := Parse(data, ParseOptions{Ring: ring, Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stream.Verified {
		t.Error("verification should have been skipped")
	}
}

func TestUnknownKeySkipsVerification(t *testing.T) {
	ring := keyring.Default()
	data, err := Write(testPayload(40), WriteOptions{
		Sign: &SignRequest{Ring: ring, KeyName: keyring.EditorSignature},
	})
	if err != nil {
		t.Fatal(err)
	}

	stream, err := Parse(data, ParseOptions{Ring: keyring.New(), Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stream.Verified {
		t.Error("verification should have been skipped for an unknown key")
	}
	if stream.Header.KeyName != keyring.EditorSignature {
		t.Errorf("KeyName = %q", stream.Header.KeyName)
	}
}

func TestSigningWithVerifyOnlyKeyFails(t *testing.T) {
	ring := keyring.Default()
	_, err := Write(testPayload(10), WriteOptions{
		Sign: &SignRequest{Ring: ring, KeyName: keyring.OfficialSignature},
	})
	if err == nil {
		t.Fatal("Write signed with a public-only key")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data, err := Write(testPayload(10), WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	if _, err := Parse(data, ParseOptions{Logger: quiet}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	w := wire.NewWriter(binary.LittleEndian)
	w.Tag(Magic)
	w.Uint32(6)
	if _, err := Parse(w.Bytes(), ParseOptions{Logger: quiet}); !errors.Is(err, ErrVersion) {
		t.Fatalf("Parse = %v, want ErrVersion", err)
	}
}

func TestWriteRejectsUnknownVersion(t *testing.T) {
	if _, err := Write(nil, WriteOptions{Version: 6}); !errors.Is(err, ErrVersion) {
		t.Fatalf("Write = %v, want ErrVersion", err)
	}
}

func TestParseRejectsOversizedBlockSize(t *testing.T) {
	w := wire.NewWriter(binary.LittleEndian)
	w.Tag(Magic)
	w.Uint32(1)
	w.Uint32(maxBlockSize + 1)
	if _, err := Parse(w.Bytes(), ParseOptions{Logger: quiet}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseClampsNegativeDigestSize(t *testing.T) {
	w := wire.NewWriter(binary.LittleEndian)
	w.Tag(Magic)
	w.Uint32(1)              // version
	w.Uint32(0x10000)        // block size
	w.Uint32(4)              // hash method
	w.Int32(-5)              // digest size, clamped to zero
	w.Uint32(0xCAFE)         // salt
	w.Uint32(0)              // signature size
	w.Raw([]byte("payload"))

	stream, err := Parse(w.Bytes(), ParseOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stream.Header.EmbeddedDigest) != 0 {
		t.Errorf("EmbeddedDigest = %v, want empty", stream.Header.EmbeddedDigest)
	}
	if string(stream.Payload) != "payload" {
		t.Errorf("Payload = %q", stream.Payload)
	}
}

func TestParseZeroBlockSizeSingleBlock(t *testing.T) {
	w := wire.NewWriter(binary.LittleEndian)
	w.Tag(Magic)
	w.Uint32(1)       // version
	w.Uint32(0)       // block size: whole payload is one block
	w.Uint32(4)       // hash method
	w.Int32(0)        // digest size
	w.Uint32(0xCAFE)  // salt
	w.Uint32(0)       // signature size
	w.Raw([]byte("whole payload in one block"))

	stream, err := Parse(w.Bytes(), ParseOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(stream.Payload) != "whole payload in one block" {
		t.Errorf("Payload = %q", stream.Payload)
	}
}

func TestVersionOneRoundtrip(t *testing.T) {
	// Version 1 has no flags, no related string, no signature block.
	payload := testPayload(30)
	data, err := Write(payload, WriteOptions{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := Parse(data, ParseOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stream.Header.Version != 1 {
		t.Errorf("Version = %d", stream.Header.Version)
	}
	if !bytes.Equal(stream.Payload, payload) {
		t.Error("payload mismatch")
	}
}

func TestSignRequestIgnoredBelowVersion3(t *testing.T) {
	ring := keyring.Default()
	data, err := Write(testPayload(20), WriteOptions{
		Version: 2,
		Sign:    &SignRequest{Ring: ring},
	})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := Parse(data, ParseOptions{Ring: ring, Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stream.Header.Signed() {
		t.Error("version 2 stream cannot carry a signature")
	}
}

func TestGzRoundtrip(t *testing.T) {
	ring := keyring.Default()
	payload := testPayload(5000)
	data, err := WriteGz(payload, WriteOptions{
		BlockSize: 1024,
		Sign:      &SignRequest{Ring: ring, StreamName: testStreamName},
	}, 0)
	if err != nil {
		t.Fatalf("WriteGz: %v", err)
	}

	stream, err := ParseGz(data, ParseOptions{
		Ring:       ring,
		StreamName: testStreamName,
		Logger:     quiet,
	})
	if err != nil {
		t.Fatalf("ParseGz: %v", err)
	}
	if !stream.Verified {
		t.Error("stream not verified")
	}
	if !bytes.Equal(stream.Payload, payload) {
		t.Error("payload mismatch")
	}
}

func TestGzExtraFieldLayout(t *testing.T) {
	data, err := WriteGz(testPayload(2000), WriteOptions{}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(data) < gzHeaderSize+gzFooterSize {
		t.Fatalf("output too short: %d bytes", len(data))
	}
	extra := data[12:24]
	if string(extra[:2]) != extraFieldTag {
		t.Errorf("subfield tag = %q, want %q", extra[:2], extraFieldTag)
	}
	if got := binary.LittleEndian.Uint16(extra[2:]); got != extraFieldLength {
		t.Errorf("subfield length = %d, want %d", got, extraFieldLength)
	}
	compressed := binary.LittleEndian.Uint32(extra[4:])
	if int(compressed) != len(data)-gzHeaderSize-gzFooterSize {
		t.Errorf("declared compressed size %d, actual %d",
			compressed, len(data)-gzHeaderSize-gzFooterSize)
	}
	decompressed := binary.LittleEndian.Uint32(extra[8:])
	if decompressed == 0 {
		t.Error("declared decompressed size is zero")
	}
	if data[9] != 0 {
		t.Errorf("gzip OS byte = %d, want 0", data[9])
	}
}

func TestGzRejectsLyingSizeField(t *testing.T) {
	data, err := WriteGz(testPayload(2000), WriteOptions{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the declared decompressed size.
	binary.LittleEndian.PutUint32(data[20:], 1)
	if _, err := ParseGz(data, ParseOptions{Logger: quiet}); !errors.Is(err, ErrFormat) {
		t.Fatalf("ParseGz = %v, want ErrFormat", err)
	}
}

func TestGzToleratesMissingSubfield(t *testing.T) {
	data, err := WriteGz(testPayload(100), WriteOptions{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Blank the subfield tag; the field no longer parses as "CT" and
	// the sizes go uncrosschecked, which is a warning, not an error.
	data[12] = 0
	data[13] = 0
	stream, err := ParseGz(data, ParseOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("ParseGz: %v", err)
	}
	if len(stream.Payload) != 100 {
		t.Errorf("payload length = %d", len(stream.Payload))
	}
}

func TestGzRejectsGarbage(t *testing.T) {
	if _, err := ParseGz([]byte("not gzip at all"), ParseOptions{Logger: quiet}); !errors.Is(err, ErrFormat) {
		t.Fatalf("ParseGz = %v, want ErrFormat", err)
	}
}

func TestEmptyPayload(t *testing.T) {
	data, err := Write(nil, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := Parse(data, ParseOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stream.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(stream.Payload))
	}
}

func TestPayloadFingerprint(t *testing.T) {
	a := PayloadFingerprint([]byte("save data"))
	b := PayloadFingerprint([]byte("save data"))
	c := PayloadFingerprint([]byte("other data"))

	if a != b {
		t.Error("fingerprint not deterministic")
	}
	if a == c {
		t.Error("different payloads produced the same fingerprint")
	}
	if len(a.String()) != 64 {
		t.Errorf("String() length = %d, want 64", len(a.String()))
	}
}
