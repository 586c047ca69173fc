// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

// ValueKind discriminates the decoded-value variants. The engine's
// own type names are kept for the variants that exist because of a
// name-based special case, so a document reads in the engine's
// vocabulary.
type ValueKind uint8

const (
	// ValueInvalid is the zero Value; encoding one is an error.
	ValueInvalid ValueKind = iota

	// ValuePointer holds an object id, -1 for none.
	ValuePointer

	// ValueCString holds a length-prefixed string.
	ValueCString

	// ValueIdent holds an identifier-table reference (u32).
	ValueIdent

	// ValueUByte holds an unsigned 8-bit scalar.
	ValueUByte

	// ValueULong holds an unsigned 32-bit scalar.
	ValueULong

	// ValueSLong holds a signed 32-bit scalar.
	ValueSLong

	// ValueUQuad holds an unsigned 64-bit scalar.
	ValueUQuad

	// ValueSQuad holds a signed 64-bit scalar.
	ValueSQuad

	// ValueFloat holds a 32-bit float.
	ValueFloat

	// ValuePrimitive holds the raw bytes of a primitive whose name
	// has no dedicated variant.
	ValuePrimitive

	// ValueSLongEnum holds a 4-byte enum as a signed integer.
	ValueSLongEnum

	// ValueEnum holds the raw bytes of an enum of any other width.
	ValueEnum

	// ValueArray holds fixed-array elements.
	ValueArray

	// ValueStruct holds an optional base value plus member values.
	ValueStruct

	// ValueSyncedSLong holds the CSyncedSLONG payload, a signed
	// 32-bit scalar behind an empty struct type.
	ValueSyncedSLong

	// ValueStackArray holds length-prefixed array elements.
	ValueStackArray

	// ValueContainer holds object ids, not inline values.
	ValueContainer
)

// Value is one node of a decoded object tree. Exactly the fields
// relevant to Kind are meaningful; the rest stay zero.
type Value struct {
	Kind ValueKind

	// Str backs ValueCString.
	Str string

	// Uint backs ValueIdent, ValueUByte, ValueULong, ValueUQuad.
	Uint uint64

	// Int backs ValuePointer, ValueSLong, ValueSQuad,
	// ValueSLongEnum, ValueSyncedSLong.
	Int int64

	// Float backs ValueFloat.
	Float float32

	// Raw backs ValuePrimitive and ValueEnum.
	Raw []byte

	// Base backs ValueStruct; nil when the struct type has no base.
	Base *Value

	// Elems backs ValueArray, ValueStruct (members) and
	// ValueStackArray.
	Elems []Value

	// Refs backs ValueContainer.
	Refs []uint32
}

// tagName returns the document tag for the value kind, empty for
// ValueInvalid. The names are the engine's.
func (k ValueKind) tagName() string {
	switch k {
	case ValuePointer:
		return "Pointer"
	case ValueCString:
		return "CString"
	case ValueIdent:
		return "IDENT"
	case ValueUByte:
		return "UBYTE"
	case ValueULong:
		return "ULONG"
	case ValueSLong:
		return "SLONG"
	case ValueUQuad:
		return "UQUAD"
	case ValueSQuad:
		return "SQUAD"
	case ValueFloat:
		return "FLOAT"
	case ValuePrimitive:
		return "Primitive"
	case ValueSLongEnum:
		return "SLONGEnum"
	case ValueEnum:
		return "Enum"
	case ValueArray:
		return "Array"
	case ValueStruct:
		return "Struct"
	case ValueSyncedSLong:
		return "CSyncedSLONG"
	case ValueStackArray:
		return "StaticStackArray"
	case ValueContainer:
		return "DynamicContainer"
	default:
		return ""
	}
}

// kindForTag is the inverse of tagName.
func kindForTag(tag string) (ValueKind, bool) {
	switch tag {
	case "Pointer":
		return ValuePointer, true
	case "CString":
		return ValueCString, true
	case "IDENT":
		return ValueIdent, true
	case "UBYTE":
		return ValueUByte, true
	case "ULONG":
		return ValueULong, true
	case "SLONG":
		return ValueSLong, true
	case "UQUAD":
		return ValueUQuad, true
	case "SQUAD":
		return ValueSQuad, true
	case "FLOAT":
		return ValueFloat, true
	case "Primitive":
		return ValuePrimitive, true
	case "SLONGEnum":
		return ValueSLongEnum, true
	case "Enum":
		return ValueEnum, true
	case "Array":
		return ValueArray, true
	case "Struct":
		return ValueStruct, true
	case "CSyncedSLONG":
		return ValueSyncedSLong, true
	case "StaticStackArray":
		return ValueStackArray, true
	case "DynamicContainer":
		return ValueContainer, true
	default:
		return ValueInvalid, false
	}
}

// String returns the document tag, or "invalid".
func (k ValueKind) String() string {
	if name := k.tagName(); name != "" {
		return name
	}
	return "invalid"
}
