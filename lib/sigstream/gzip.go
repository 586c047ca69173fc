// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"
)

// The engine wraps save envelopes in gzip with a vendor extra field
// recording the compressed and decompressed sizes. The field is
// reserved as 12 zero bytes when the header is first written, then
// rewritten in place once the sizes are known.
const (
	// extraFieldTag is the two-byte subfield identifier.
	extraFieldTag = "CT"

	// extraFieldLength is the subfield payload size: two u32 sizes.
	extraFieldLength = 8

	// extraFieldSize is the full extra field: tag + u16 length +
	// payload.
	extraFieldSize = 12

	// gzHeaderSize is the gzip header as this package writes it:
	// 10 fixed bytes, 2-byte XLEN, 12-byte extra field.
	gzHeaderSize = 10 + 2 + extraFieldSize

	// gzFooterSize is the gzip CRC32 + ISIZE trailer.
	gzFooterSize = 8

	// DefaultGzipLevel matches the engine's compression level.
	DefaultGzipLevel = 6
)

// WriteGz encodes payload as a signature stream and wraps it in the
// engine's gzip framing. level 0 means DefaultGzipLevel.
func WriteGz(payload []byte, opts WriteOptions, level int) ([]byte, error) {
	if level == 0 {
		level = DefaultGzipLevel
	}

	inner, err := Write(payload, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	// Reserve the extra field and match the engine's OS byte. The
	// zero ModTime keeps output deterministic for identical input.
	zw.Header.Extra = make([]byte, extraFieldSize)
	zw.Header.OS = 0
	if _, err := zw.Write(inner); err != nil {
		return nil, fmt.Errorf("compressing stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing gzip stream: %w", err)
	}

	out := buf.Bytes()
	compressedSize := len(out) - gzHeaderSize - gzFooterSize

	// Rewrite the reserved extra field in place. Always
	// little-endian, independent of the stream byte order.
	extra := out[gzHeaderSize-extraFieldSize : gzHeaderSize]
	copy(extra, extraFieldTag)
	binary.LittleEndian.PutUint16(extra[2:], extraFieldLength)
	binary.LittleEndian.PutUint32(extra[4:], uint32(compressedSize))
	binary.LittleEndian.PutUint32(extra[8:], uint32(len(inner)))

	return out, nil
}

// ParseGz unwraps the gzip framing, validates the vendor extra field
// when present, and parses the inner signature stream.
func ParseGz(data []byte, opts ParseOptions) (*Stream, error) {
	logger := opts.logger()

	dataOffset, extra, err := gzDataOffset(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: opening gzip stream: %v", ErrFormat, err)
	}
	defer zr.Close()
	inner, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing stream: %v", ErrFormat, err)
	}

	if err := checkSizeField(extra, len(data)-dataOffset-gzFooterSize, len(inner), logger); err != nil {
		return nil, err
	}

	return Parse(inner, opts)
}

// gzDataOffset scans a gzip member header and returns the offset of
// the deflate data plus the raw extra field (nil if absent).
func gzDataOffset(data []byte) (int, []byte, error) {
	const (
		flagHCRC    = 1 << 1
		flagExtra   = 1 << 2
		flagName    = 1 << 3
		flagComment = 1 << 4
	)

	if len(data) < 10 || data[0] != 0x1F || data[1] != 0x8B {
		return 0, nil, fmt.Errorf("not a gzip stream")
	}
	if data[2] != 8 {
		return 0, nil, fmt.Errorf("unsupported gzip compression method %d", data[2])
	}
	flags := data[3]
	offset := 10

	var extra []byte
	if flags&flagExtra != 0 {
		if len(data) < offset+2 {
			return 0, nil, fmt.Errorf("truncated gzip extra field length")
		}
		length := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if len(data) < offset+length {
			return 0, nil, fmt.Errorf("truncated gzip extra field")
		}
		extra = data[offset : offset+length]
		offset += length
	}
	for _, stringFlag := range []byte{flagName, flagComment} {
		if flags&stringFlag == 0 {
			continue
		}
		end := bytes.IndexByte(data[offset:], 0)
		if end < 0 {
			return 0, nil, fmt.Errorf("unterminated gzip header string")
		}
		offset += end + 1
	}
	if flags&flagHCRC != 0 {
		offset += 2
	}
	if offset > len(data) {
		return 0, nil, fmt.Errorf("truncated gzip header")
	}
	return offset, extra, nil
}

// checkSizeField validates the "CT" subfield against the actual
// compressed and decompressed byte counts. A missing subfield is
// tolerated (hand-regzipped files) with a warning; a present subfield
// that disagrees is a hard error.
func checkSizeField(extra []byte, compressedSize, decompressedSize int, logger *slog.Logger) error {
	field, found := findSubfield(extra, extraFieldTag)
	if !found {
		logger.Warn("gzip stream has no size extra field; sizes not cross-checked")
		return nil
	}
	if len(field) != extraFieldLength {
		return fmt.Errorf("%w: size extra field is %d bytes, want %d", ErrFormat, len(field), extraFieldLength)
	}
	declaredCompressed := binary.LittleEndian.Uint32(field)
	declaredDecompressed := binary.LittleEndian.Uint32(field[4:])
	if int(declaredCompressed) != compressedSize {
		return fmt.Errorf("%w: extra field declares %d compressed bytes, stream has %d",
			ErrFormat, declaredCompressed, compressedSize)
	}
	if int(declaredDecompressed) != decompressedSize {
		return fmt.Errorf("%w: extra field declares %d decompressed bytes, stream has %d",
			ErrFormat, declaredDecompressed, decompressedSize)
	}
	return nil
}

// findSubfield walks the gzip extra field's subfield list (RFC 1952
// §2.3.1.1) and returns the payload of the subfield with the given
// two-byte tag.
func findSubfield(extra []byte, tag string) ([]byte, bool) {
	for len(extra) >= 4 {
		length := int(binary.LittleEndian.Uint16(extra[2:]))
		if len(extra) < 4+length {
			return nil, false
		}
		if string(extra[:2]) == tag {
			return extra[4 : 4+length], true
		}
		extra = extra[4+length:]
	}
	return nil, false
}
