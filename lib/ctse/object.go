// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import (
	"fmt"
	"log/slog"

	"github.com/croteam-tools/savestream/lib/wire"
)

// maxValueDepth bounds value recursion. The type table is file data,
// so an alias or base-type cycle would otherwise recurse without
// bound; real saves nest a handful of levels deep.
const maxValueDepth = 512

// Instance encoding tags for the two length-prefixed container kinds.
const (
	tagStackArray = "SSAR"
	tagContainer  = "DCON"
)

type objectDecoder struct {
	r      *wire.Reader
	schema *Schema
	logger *slog.Logger
}

// object reads one instance: id, type id, then the value shaped by
// the type.
func (d *objectDecoder) object() (Object, error) {
	var obj Object
	var err error
	if obj.ID, err = d.r.Uint32(); err != nil {
		return obj, fmt.Errorf("%w: object id: %v", ErrFormat, err)
	}
	if obj.Type, err = d.r.Uint32(); err != nil {
		return obj, fmt.Errorf("%w: object %d type: %v", ErrFormat, obj.ID, err)
	}
	obj.Value, err = d.value(obj.Type, 0)
	if err != nil {
		return obj, fmt.Errorf("object %d: %w", obj.ID, err)
	}
	return obj, nil
}

// value decodes one value of the given type. Scalar interpretation
// hangs off the type's name: the engine declares CString, IDENT and
// friends as anonymous fixed-width primitives and distinguishes them
// by name alone, so the decoder must do the same.
func (d *objectDecoder) value(typeID uint32, depth int) (Value, error) {
	if depth > maxValueDepth {
		return Value{}, fmt.Errorf("%w: type %d nests deeper than %d levels",
			ErrFormat, typeID, maxValueDepth)
	}
	td, ok := d.schema.Type(typeID)
	if !ok {
		return Value{}, fmt.Errorf("%w: instance references type %d, which is external or undeclared",
			ErrFormat, typeID)
	}

	switch td.Kind {
	case KindPrimitive:
		return d.primitive(td)

	case KindEnum:
		if td.Enum.Bytes == 4 {
			v, err := d.r.Int32()
			if err != nil {
				return Value{}, fmt.Errorf("%w: enum %q: %v", ErrFormat, td.Name, err)
			}
			return Value{Kind: ValueSLongEnum, Int: int64(v)}, nil
		}
		raw, err := d.r.Bytes(int(td.Enum.Bytes))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %d-byte enum %q: %v", ErrFormat, td.Enum.Bytes, td.Name, err)
		}
		return Value{Kind: ValueEnum, Raw: cloneBytes(raw)}, nil

	case KindPointer:
		v, err := d.r.Int32()
		if err != nil {
			return Value{}, fmt.Errorf("%w: pointer %q: %v", ErrFormat, td.Name, err)
		}
		return Value{Kind: ValuePointer, Int: int64(v)}, nil

	case KindArray:
		elems := make([]Value, 0, td.Array.Cols)
		for i := uint32(0); i < td.Array.Cols; i++ {
			elem, err := d.value(td.Array.Of, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("array %q element %d: %w", td.Name, i, err)
			}
			elems = append(elems, elem)
		}
		return Value{Kind: ValueArray, Elems: elems}, nil

	case KindStruct:
		return d.structValue(td, depth)

	case KindStaticStackArray:
		if err := d.r.Tag(tagStackArray); err != nil {
			return Value{}, fmt.Errorf("%w: stack array %q: %v", ErrFormat, td.Name, err)
		}
		count, err := d.r.Uint32()
		if err != nil {
			return Value{}, fmt.Errorf("%w: stack array %q count: %v", ErrFormat, td.Name, err)
		}
		elems := make([]Value, 0, boundedCap(count))
		for i := uint32(0); i < count; i++ {
			elem, err := d.value(td.Element.Of, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("stack array %q element %d: %w", td.Name, i, err)
			}
			elems = append(elems, elem)
		}
		return Value{Kind: ValueStackArray, Elems: elems}, nil

	case KindDynamicContainer:
		if err := d.r.Tag(tagContainer); err != nil {
			return Value{}, fmt.Errorf("%w: container %q: %v", ErrFormat, td.Name, err)
		}
		count, err := d.r.Uint32()
		if err != nil {
			return Value{}, fmt.Errorf("%w: container %q count: %v", ErrFormat, td.Name, err)
		}
		refs := make([]uint32, 0, boundedCap(count))
		for i := uint32(0); i < count; i++ {
			ref, err := d.r.Uint32()
			if err != nil {
				return Value{}, fmt.Errorf("%w: container %q reference %d: %v", ErrFormat, td.Name, i, err)
			}
			refs = append(refs, ref)
		}
		return Value{Kind: ValueContainer, Refs: refs}, nil

	case KindTypeAlias:
		return d.value(td.Alias.For, depth+1)

	default:
		return Value{}, fmt.Errorf("%w: type %q has unknown kind %d",
			ErrFormat, td.Name, uint32(td.Kind))
	}
}

func (d *objectDecoder) primitive(td *TypeDef) (Value, error) {
	fail := func(err error) (Value, error) {
		return Value{}, fmt.Errorf("%w: primitive %q: %v", ErrFormat, td.Name, err)
	}
	switch td.Name {
	case "CString":
		s, err := d.r.PascalString()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueCString, Str: s}, nil
	case "IDENT":
		v, err := d.r.Uint32()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueIdent, Uint: uint64(v)}, nil
	case "UBYTE":
		v, err := d.r.Uint8()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueUByte, Uint: uint64(v)}, nil
	case "ULONG":
		v, err := d.r.Uint32()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueULong, Uint: uint64(v)}, nil
	case "SLONG":
		v, err := d.r.Int32()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueSLong, Int: int64(v)}, nil
	case "UQUAD":
		v, err := d.r.Uint64()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueUQuad, Uint: v}, nil
	case "SQUAD":
		v, err := d.r.Int64()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueSQuad, Int: v}, nil
	case "FLOAT":
		v, err := d.r.Float32()
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValueFloat, Float: v}, nil
	default:
		d.logger.Warn("unknown primitive type, keeping raw bytes",
			"type_id", td.ID,
			"name", td.Name,
			"bytes", td.Primitive.Bytes,
			"format", td.Format)
		raw, err := d.r.Bytes(int(td.Primitive.Bytes))
		if err != nil {
			return fail(err)
		}
		return Value{Kind: ValuePrimitive, Raw: cloneBytes(raw)}, nil
	}
}

func (d *objectDecoder) structValue(td *TypeDef, depth int) (Value, error) {
	st := td.Struct

	// A CSyncedSLONG declares no members; its payload is a bare
	// signed 32-bit value.
	if td.Name == "CSyncedSLONG" && len(st.Members) == 0 {
		v, err := d.r.Int32()
		if err != nil {
			return Value{}, fmt.Errorf("%w: synced value %q: %v", ErrFormat, td.Name, err)
		}
		return Value{Kind: ValueSyncedSLong, Int: int64(v)}, nil
	}

	out := Value{Kind: ValueStruct}
	if st.Base != -1 {
		base, err := d.value(uint32(st.Base), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("struct %q base: %w", td.Name, err)
		}
		out.Base = &base
	}
	out.Elems = make([]Value, 0, len(st.Members))
	for i, member := range st.Members {
		elem, err := d.value(member.Type, depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("struct %q member %d: %w", td.Name, i, err)
		}
		out.Elems = append(out.Elems, elem)
	}
	return out, nil
}

// encodeObject writes one instance. Values carry their own shape, so
// encoding needs no schema; the schema mattered only to discover that
// shape while decoding.
func encodeObject(w *wire.Writer, obj *Object) error {
	w.Uint32(obj.ID)
	w.Uint32(obj.Type)
	if err := encodeValue(w, &obj.Value); err != nil {
		return fmt.Errorf("object %d: %w", obj.ID, err)
	}
	return nil
}

func encodeValue(w *wire.Writer, v *Value) error {
	switch v.Kind {
	case ValuePointer:
		w.Int32(int32(v.Int))
	case ValueCString:
		w.PascalString(v.Str)
	case ValueIdent, ValueULong:
		w.Uint32(uint32(v.Uint))
	case ValueUByte:
		w.Uint8(uint8(v.Uint))
	case ValueSLong, ValueSLongEnum, ValueSyncedSLong:
		w.Int32(int32(v.Int))
	case ValueUQuad:
		w.Uint64(v.Uint)
	case ValueSQuad:
		w.Int64(v.Int)
	case ValueFloat:
		w.Float32(v.Float)
	case ValuePrimitive, ValueEnum:
		w.Raw(v.Raw)
	case ValueArray:
		for i := range v.Elems {
			if err := encodeValue(w, &v.Elems[i]); err != nil {
				return fmt.Errorf("array element %d: %w", i, err)
			}
		}
	case ValueStruct:
		if v.Base != nil {
			if err := encodeValue(w, v.Base); err != nil {
				return fmt.Errorf("struct base: %w", err)
			}
		}
		for i := range v.Elems {
			if err := encodeValue(w, &v.Elems[i]); err != nil {
				return fmt.Errorf("struct member %d: %w", i, err)
			}
		}
	case ValueStackArray:
		w.Tag(tagStackArray)
		w.Uint32(uint32(len(v.Elems)))
		for i := range v.Elems {
			if err := encodeValue(w, &v.Elems[i]); err != nil {
				return fmt.Errorf("stack array element %d: %w", i, err)
			}
		}
	case ValueContainer:
		w.Tag(tagContainer)
		w.Uint32(uint32(len(v.Refs)))
		for _, ref := range v.Refs {
			w.Uint32(ref)
		}
	default:
		return fmt.Errorf("cannot encode invalid value (kind %d)", v.Kind)
	}
	return nil
}

// boundedCap limits a preallocation taken from an untrusted count so
// a corrupt file cannot demand gigabytes up front. The loop itself
// still runs to the declared count and fails on truncation.
func boundedCap(count uint32) int {
	const limit = 1 << 16
	if count > limit {
		return limit
	}
	return int(count)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
