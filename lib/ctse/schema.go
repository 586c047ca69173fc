// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package ctse decodes and re-encodes the engine's self-describing
// object container: a miniature type system declared inside the file,
// followed by object instances shaped by it. The set of types and
// their layouts is file data, so decoding is schema-driven rather
// than written against fixed structs.
//
// Types and objects reference each other only by numeric id into
// flat tables; base-type chains, self-referential structs, and
// pointer cycles are all plain table lookups, resolved lazily.
package ctse

import "fmt"

// Kind discriminates the structural variants of a type definition.
// The numeric values are the kind tags stored in DTTY records.
type Kind uint32

const (
	// KindPrimitive is a fixed-width scalar.
	KindPrimitive Kind = 0

	// KindEnum is a fixed-width integer with symbolic meaning the
	// file does not carry.
	KindEnum Kind = 1

	// KindPointer is a signed 32-bit object reference (-1 = none).
	KindPointer Kind = 2

	// KindArray is a fixed-size array: one row, a declared column
	// count.
	KindArray Kind = 4

	// KindStruct is an ordered member list with an optional base
	// type whose fields are encoded first.
	KindStruct Kind = 5

	// KindStaticStackArray is a length-prefixed array of elements.
	KindStaticStackArray Kind = 7

	// KindDynamicContainer is a length-prefixed list of object ids.
	KindDynamicContainer Kind = 8

	// KindTypeAlias encodes exactly like its target type.
	KindTypeAlias Kind = 13
)

// String returns the kind's name as used in documents and errors.
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindStaticStackArray:
		return "static-stack-array"
	case KindDynamicContainer:
		return "dynamic-container"
	case KindTypeAlias:
		return "alias"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// Ident is one identifier-table entry: editor metadata preserved for
// round-tripping but not needed to decode objects.
type Ident struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// ExternalType references a type defined outside this file. Objects
// in save files never use them, but the table must round-trip.
type ExternalType struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// StructMember is one member of a struct type. Which identifying
// fields are present on the wire depends on the container version
// (see memberLayout); absent fields stay zero-valued.
type StructMember struct {
	ID   uint32 `json:"id"`
	Name string `json:"name,omitempty"`
	Type uint32 `json:"type"`
}

// PrimitiveType is the payload of a primitive type definition.
type PrimitiveType struct {
	// Bytes is the scalar width.
	Bytes uint32 `json:"bytes"`
	// ByteOrderFlag is the stored byte-order marker, preserved
	// verbatim.
	ByteOrderFlag uint32 `json:"byte_order_flag"`
}

// EnumType is the payload of an enum type definition.
type EnumType struct {
	Bytes uint32 `json:"bytes"`
}

// PointerType is the payload of a pointer type definition.
type PointerType struct {
	// To is the target type id. Instances hold object ids, not
	// inline values.
	To uint32 `json:"to"`
}

// ArrayType is the payload of a fixed array type definition.
type ArrayType struct {
	Of   uint32 `json:"of"`
	Rows uint32 `json:"rows"`
	Cols uint32 `json:"cols"`
}

// StructType is the payload of a struct type definition.
type StructType struct {
	// Base is the base type id, -1 for none.
	Base    int32          `json:"base"`
	Members []StructMember `json:"members"`
}

// ElementType is the payload of the two length-prefixed container
// kinds (static stack array, dynamic container).
type ElementType struct {
	Of uint32 `json:"of"`
}

// AliasType is the payload of a type alias.
type AliasType struct {
	For uint32 `json:"for"`
}

// TypeDef is one internal type definition (a DTTY record). Exactly
// one kind payload is non-nil, matching Kind.
type TypeDef struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Format uint32 `json:"format"`
	Kind   Kind   `json:"kind"`

	Primitive *PrimitiveType `json:"primitive,omitempty"`
	Enum      *EnumType      `json:"enum,omitempty"`
	Pointer   *PointerType   `json:"pointer,omitempty"`
	Array     *ArrayType     `json:"array,omitempty"`
	Struct    *StructType    `json:"struct,omitempty"`
	Element   *ElementType   `json:"element,omitempty"`
	Alias     *AliasType     `json:"alias,omitempty"`
}

// ObjectType is one OBTY pair binding an object id to its type.
type ObjectType struct {
	Object uint32 `json:"object"`
	Type   uint32 `json:"type"`
}

// Object is one decoded instance.
type Object struct {
	ID    uint32 `json:"id"`
	Type  uint32 `json:"type"`
	Value Value  `json:"value"`
}

// Schema indexes the internal type table by id. It is built once per
// decode or encode pass and never mutated afterwards.
type Schema struct {
	byID map[uint32]*TypeDef
}

// newSchema indexes types. Duplicate ids are a format error.
func newSchema(types []TypeDef) (*Schema, error) {
	byID := make(map[uint32]*TypeDef, len(types))
	for i := range types {
		td := &types[i]
		if _, exists := byID[td.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate type id %d", ErrFormat, td.ID)
		}
		byID[td.ID] = td
	}
	return &Schema{byID: byID}, nil
}

// Type looks up an internal type definition by id.
func (s *Schema) Type(id uint32) (*TypeDef, bool) {
	td, ok := s.byID[id]
	return td, ok
}

// memberLayout selects the wire shape of struct member records. The
// container version picks exactly one layout; keeping the decision in
// a single table keeps every variant auditable in one place.
type memberLayout int

const (
	// memberIDNameType: {id, name, type}: versions before 5.
	memberIDNameType memberLayout = iota

	// memberNameType: {name, type}: versions 5 through 10.
	memberNameType

	// memberIDType: {id, type}: versions 11 and up.
	memberIDType
)

func layoutForVersion(version uint32) memberLayout {
	switch {
	case version >= 11:
		return memberIDType
	case version >= 5:
		return memberNameType
	default:
		return memberIDNameType
	}
}
