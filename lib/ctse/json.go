// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/jsonc"
)

// Values serialize externally tagged: a one-key object whose key is
// the engine type name, {"SLONG": 42} or {"Pointer": -1}. The tag
// disambiguates variants that would otherwise collide as plain JSON
// numbers, and reads naturally when hand-editing a document.

// structJSON is the Struct variant payload.
type structJSON struct {
	Base    *Value  `json:"base"`
	Members []Value `json:"members"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
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
		// Number arrays, not base64: raw bytes stay editable.
		payload = bytesToInts(v.Raw)
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
	return json.Marshal(map[string]any{tag: payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("value must be a one-key tagged object, got %d keys", len(tagged))
	}
	for tag, raw := range tagged {
		kind, ok := kindForTag(tag)
		if !ok {
			return fmt.Errorf("unknown value tag %q", tag)
		}
		return v.decodePayload(kind, func(dst any) error {
			if err := json.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("%s payload: %w", tag, err)
			}
			return nil
		})
	}
	return nil
}

// decodePayload fills v for the given kind, pulling each payload
// shape through decode. Shared by the JSON and CBOR bridges, which
// differ only in how a raw payload becomes a Go value.
func (v *Value) decodePayload(kind ValueKind, decode func(dst any) error) error {
	*v = Value{Kind: kind}
	switch kind {
	case ValuePointer, ValueSLong, ValueSQuad, ValueSLongEnum, ValueSyncedSLong:
		if err := decode(&v.Int); err != nil {
			return err
		}
		return v.checkIntRange()
	case ValueCString:
		return decode(&v.Str)
	case ValueIdent, ValueUByte, ValueULong, ValueUQuad:
		if err := decode(&v.Uint); err != nil {
			return err
		}
		return v.checkUintRange()
	case ValueFloat:
		return decode(&v.Float)
	case ValuePrimitive, ValueEnum:
		var ints []int
		if err := decode(&ints); err != nil {
			// CBOR byte strings land here directly.
			return decode(&v.Raw)
		}
		raw, err := intsToBytes(ints)
		if err != nil {
			return err
		}
		v.Raw = raw
		return nil
	case ValueArray, ValueStackArray:
		return decode(&v.Elems)
	case ValueStruct:
		var s structJSON
		if err := decode(&s); err != nil {
			return err
		}
		v.Base = s.Base
		v.Elems = s.Members
		return nil
	case ValueContainer:
		return decode(&v.Refs)
	default:
		return fmt.Errorf("unknown value kind %d", kind)
	}
}

// checkUintRange rejects document values too wide for their wire
// field, so the error surfaces at load time instead of as silent
// truncation in the encoder.
func (v *Value) checkUintRange() error {
	var max uint64
	switch v.Kind {
	case ValueUByte:
		max = 0xFF
	case ValueIdent, ValueULong:
		max = 0xFFFFFFFF
	default:
		return nil
	}
	if v.Uint > max {
		return fmt.Errorf("%s value %d exceeds field maximum %d", v.Kind, v.Uint, max)
	}
	return nil
}

// checkIntRange is the signed counterpart: every signed scalar except
// SQUAD occupies a 32-bit wire field.
func (v *Value) checkIntRange() error {
	switch v.Kind {
	case ValuePointer, ValueSLong, ValueSLongEnum, ValueSyncedSLong:
		if v.Int > math.MaxInt32 || v.Int < math.MinInt32 {
			return fmt.Errorf("%s value %d exceeds the 32-bit field range", v.Kind, v.Int)
		}
	}
	return nil
}

// ToJSON renders the container as an indented document.
func ToJSON(m *Meta) ([]byte, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}
	return append(out, '\n'), nil
}

// FromJSON loads a document. Comments and trailing commas are
// accepted, since documents are meant to be hand-edited.
func FromJSON(data []byte) (*Meta, error) {
	m := &Meta{}
	if err := json.Unmarshal(jsonc.ToJSON(data), m); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return m, nil
}

func bytesToInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func intsToBytes(ints []int) ([]byte, error) {
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("byte value %d at index %d out of range", v, i)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func nonNil(elems []Value) []Value {
	if elems == nil {
		return []Value{}
	}
	return elems
}
