// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import (
	"fmt"

	"github.com/croteam-tools/savestream/lib/codec"
)

// The CBOR bridge mirrors the JSON one: externally tagged one-key
// maps, deterministic encoding via lib/codec. The only shape
// difference is that raw byte payloads use CBOR byte strings instead
// of number arrays.

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	tag := v.Kind.tagName()
	if tag == "" {
		return nil, fmt.Errorf("cannot serialize invalid value (kind %d)", v.Kind)
	}

	var payload any
	switch v.Kind {
	case ValuePointer, ValueSLong, ValueSQuad, ValueSLongEnum, ValueSyncedSLong:
		payload = v.Int
	case ValueCString:
		payload = v.Str
	case ValueIdent, ValueUByte, ValueULong, ValueUQuad:
		payload = v.Uint
	case ValueFloat:
		payload = v.Float
	case ValuePrimitive, ValueEnum:
		raw := v.Raw
		if raw == nil {
			raw = []byte{}
		}
		payload = raw
	case ValueArray, ValueStackArray:
		payload = nonNil(v.Elems)
	case ValueStruct:
		payload = structJSON{Base: v.Base, Members: nonNil(v.Elems)}
	case ValueContainer:
		refs := v.Refs
		if refs == nil {
			refs = []uint32{}
		}
		payload = refs
	}
	return codec.Marshal(map[string]any{tag: payload})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var tagged map[string]codec.RawMessage
	if err := codec.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("value must be a one-key tagged map, got %d keys", len(tagged))
	}
	for tag, raw := range tagged {
		kind, ok := kindForTag(tag)
		if !ok {
			return fmt.Errorf("unknown value tag %q", tag)
		}
		return v.decodePayload(kind, func(dst any) error {
			if err := codec.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("%s payload: %w", tag, err)
			}
			return nil
		})
	}
	return nil
}

// ToCBOR renders the container as a deterministic CBOR document.
func ToCBOR(m *Meta) ([]byte, error) {
	out, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}
	return out, nil
}

// FromCBOR loads a CBOR document.
func FromCBOR(data []byte) (*Meta, error) {
	m := &Meta{}
	if err := codec.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return m, nil
}
