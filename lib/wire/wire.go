// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire provides the low-level binary primitives shared by the
// envelope and container codecs: fixed-width integers in a selectable
// byte order, four-byte tags, and Pascal strings (u32 length prefix
// followed by raw bytes; the prefix is not part of any digest that
// covers the string).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reader decodes fixed-layout binary data from an in-memory buffer.
// All reads are bounds-checked; running past the end returns an error
// rather than panicking, since the input is untrusted file content.
type Reader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewReader returns a Reader over data using the given byte order.
func NewReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Order returns the reader's byte order.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// Bytes reads exactly n bytes. The returned slice aliases the
// underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d at offset %d", n, r.pos)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes at offset %d, only %d remain: %w",
			n, r.pos, r.Remaining(), io.ErrUnexpectedEOF)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint32 reads a 4-byte unsigned integer.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// Int32 reads a 4-byte signed integer.
func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

// Uint64 reads an 8-byte unsigned integer.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// Int64 reads an 8-byte signed integer.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Float32 reads a 4-byte IEEE 754 value.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

// Tag reads len(want) bytes and checks them against the expected tag.
func (r *Reader) Tag(want string) error {
	got, err := r.Bytes(len(want))
	if err != nil {
		return fmt.Errorf("reading %q tag: %w", want, err)
	}
	if string(got) != want {
		return fmt.Errorf("expected tag %q at offset %d, found %q",
			want, r.pos-len(want), got)
	}
	return nil
}

// PascalString reads a u32 length prefix followed by that many bytes.
func (r *Reader) PascalString() (string, error) {
	length, err := r.Uint32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(length))
	if err != nil {
		return "", fmt.Errorf("reading %d-byte string: %w", length, err)
	}
	return string(b), nil
}

// Writer encodes fixed-layout binary data into a growing buffer.
// Writes to an in-memory buffer cannot fail, so the methods return
// nothing; callers collect the result with [Writer.Bytes].
type Writer struct {
	buf   []byte
	order binary.ByteOrder
}

// NewWriter returns an empty Writer using the given byte order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// Bytes returns the accumulated output. The slice aliases the
// writer's internal buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Order returns the writer's byte order.
func (w *Writer) Order() binary.ByteOrder { return w.order }

// Raw appends raw bytes.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

// Uint32 appends a 4-byte unsigned integer.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Int32 appends a 4-byte signed integer.
func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) }

// Uint64 appends an 8-byte unsigned integer.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Int64 appends an 8-byte signed integer.
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

// Float32 appends a 4-byte IEEE 754 value.
func (w *Writer) Float32(v float32) { w.Uint32(math.Float32bits(v)) }

// Tag appends a literal tag string.
func (w *Writer) Tag(tag string) { w.Raw([]byte(tag)) }

// PascalString appends a u32 length prefix followed by the string
// bytes.
func (w *Writer) PascalString(s string) {
	w.Uint32(uint32(len(s)))
	w.Raw([]byte(s))
}

// AppendUint32 appends a 4-byte unsigned integer to dst in the given
// byte order. Used by digest computations that feed integers into a
// hash without a full Writer.
func AppendUint32(dst []byte, order binary.ByteOrder, v uint32) []byte {
	var b [4]byte
	order.PutUint32(b[:], v)
	return append(dst, b[:]...)
}
