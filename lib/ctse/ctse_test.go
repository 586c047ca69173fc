// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/croteam-tools/savestream/lib/wire"
)

// buildMeta constructs a container exercising every type kind and
// every name-driven decode special case.
func buildMeta(version uint32) *Meta {
	m := &Meta{
		Version:          version,
		EditDataStripped: 1,
		Idents: []Ident{
			{ID: 1, Name: "Player"},
			{ID: 2, Name: "World"},
		},
		ExternalTypes: []ExternalType{
			{ID: 1000, Name: "CWorld"},
		},
		Types: []TypeDef{
			{ID: 1, Name: "CString", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 4}},
			{ID: 2, Name: "ULONG", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 4, ByteOrderFlag: 1}},
			{ID: 3, Name: "SLONG", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 4, ByteOrderFlag: 1}},
			{ID: 4, Name: "FLOAT", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 4, ByteOrderFlag: 1}},
			{ID: 5, Name: "UBYTE", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 1}},
			{ID: 6, Name: "UQUAD", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 8, ByteOrderFlag: 1}},
			{ID: 7, Name: "SQUAD", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 8, ByteOrderFlag: 1}},
			{ID: 8, Name: "IDENT", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 4, ByteOrderFlag: 1}},
			{ID: 9, Name: "CTimeStamp", Kind: KindPrimitive, Primitive: &PrimitiveType{Bytes: 2}},
			{ID: 10, Name: "BlockType", Kind: KindEnum, Enum: &EnumType{Bytes: 4}},
			{ID: 11, Name: "TinyFlag", Kind: KindEnum, Enum: &EnumType{Bytes: 1}},
			{ID: 12, Name: "CEntity*", Kind: KindPointer, Pointer: &PointerType{To: 15}},
			{ID: 13, Name: "FLOAT3", Kind: KindArray, Array: &ArrayType{Of: 4, Rows: 1, Cols: 3}},
			{ID: 14, Name: "CEntity", Kind: KindStruct, Struct: &StructType{
				Base:    -1,
				Members: []StructMember{{ID: 1, Name: "ulID", Type: 2}},
			}},
			{ID: 15, Name: "CPlayer", Kind: KindStruct, Struct: &StructType{
				Base: 14,
				Members: []StructMember{
					{ID: 2, Name: "slHealth", Type: 3},
					{ID: 3, Name: "vPos", Type: 13},
				},
			}},
			{ID: 16, Name: "CSyncedSLONG", Kind: KindStruct, Struct: &StructType{Base: -1, Members: []StructMember{}}},
			{ID: 17, Name: "Stack_SLONG", Kind: KindStaticStackArray, Element: &ElementType{Of: 3}},
			{ID: 18, Name: "Cont_CEntity", Kind: KindDynamicContainer, Element: &ElementType{Of: 12}},
			{ID: 19, Name: "TIME", Kind: KindTypeAlias, Alias: &AliasType{For: 3}},
		},
		Objects: []Object{
			{ID: 100, Type: 15, Value: Value{Kind: ValueStruct,
				Base: &Value{Kind: ValueStruct, Elems: []Value{{Kind: ValueULong, Uint: 7}}},
				Elems: []Value{
					{Kind: ValueSLong, Int: -50},
					{Kind: ValueArray, Elems: []Value{
						{Kind: ValueFloat, Float: 1.5},
						{Kind: ValueFloat, Float: -2.25},
						{Kind: ValueFloat, Float: 0},
					}},
				}}},
			{ID: 101, Type: 1, Value: Value{Kind: ValueCString, Str: "Talos"}},
			{ID: 102, Type: 17, Value: Value{Kind: ValueStackArray, Elems: []Value{
				{Kind: ValueSLong, Int: 1},
				{Kind: ValueSLong, Int: 2},
				{Kind: ValueSLong, Int: 3},
			}}},
			{ID: 103, Type: 18, Value: Value{Kind: ValueContainer, Refs: []uint32{100, 101}}},
			{ID: 104, Type: 16, Value: Value{Kind: ValueSyncedSLong, Int: 9}},
			{ID: 105, Type: 9, Value: Value{Kind: ValuePrimitive, Raw: []byte{0xAB, 0xCD}}},
			{ID: 106, Type: 10, Value: Value{Kind: ValueSLongEnum, Int: 3}},
			{ID: 107, Type: 11, Value: Value{Kind: ValueEnum, Raw: []byte{0x07}}},
			{ID: 108, Type: 12, Value: Value{Kind: ValuePointer, Int: -1}},
			{ID: 109, Type: 19, Value: Value{Kind: ValueSLong, Int: 77}},
			{ID: 110, Type: 5, Value: Value{Kind: ValueUByte, Uint: 255}},
			{ID: 111, Type: 6, Value: Value{Kind: ValueUQuad, Uint: 1 << 40}},
			{ID: 112, Type: 7, Value: Value{Kind: ValueSQuad, Int: -5}},
			{ID: 113, Type: 8, Value: Value{Kind: ValueIdent, Uint: 42}},
			{ID: 114, Type: 4, Value: Value{Kind: ValueFloat, Float: 3.5}},
			{ID: 115, Type: 2, Value: Value{Kind: ValueULong, Uint: 4000000000}},
		},
	}
	if version >= 2 {
		m.VersionString = "Serious Engine Test Build"
	}
	for _, obj := range m.Objects {
		m.ObjectTypes = append(m.ObjectTypes, ObjectType{Object: obj.ID, Type: obj.Type})
	}
	return m
}

func mustEncode(t *testing.T, m *Meta, order binary.ByteOrder) []byte {
	t.Helper()
	data, err := m.Encode(order)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestEncodeParseRoundtrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		m := buildMeta(12)
		first := mustEncode(t, m, order)

		parsed, err := Parse(first, ParseOptions{Order: order})
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		second := mustEncode(t, parsed, order)
		if !bytes.Equal(first, second) {
			t.Fatal("re-encoding a parsed container changed the bytes")
		}

		if parsed.Version != 12 || parsed.VersionString != "Serious Engine Test Build" {
			t.Errorf("header: version %d, string %q", parsed.Version, parsed.VersionString)
		}
		if parsed.EditDataStripped != 1 {
			t.Errorf("EditDataStripped = %d", parsed.EditDataStripped)
		}
		if len(parsed.Objects) != len(m.Objects) {
			t.Fatalf("parsed %d objects, want %d", len(parsed.Objects), len(m.Objects))
		}
	}
}

func TestParsedValues(t *testing.T) {
	m := buildMeta(12)
	parsed, err := Parse(mustEncode(t, m, nil), ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}

	player, ok := parsed.Object(100)
	if !ok {
		t.Fatal("object 100 missing")
	}
	v := player.Value
	if v.Kind != ValueStruct || v.Base == nil {
		t.Fatalf("player value = %+v", v)
	}
	if v.Base.Elems[0].Kind != ValueULong || v.Base.Elems[0].Uint != 7 {
		t.Errorf("base member = %+v", v.Base.Elems[0])
	}
	if v.Elems[0].Int != -50 {
		t.Errorf("health = %d", v.Elems[0].Int)
	}
	if pos := v.Elems[1]; pos.Kind != ValueArray || len(pos.Elems) != 3 || pos.Elems[1].Float != -2.25 {
		t.Errorf("position = %+v", pos)
	}

	name, _ := parsed.Object(101)
	if name.Value.Str != "Talos" {
		t.Errorf("string value = %q", name.Value.Str)
	}

	cont, _ := parsed.Object(103)
	if len(cont.Value.Refs) != 2 || cont.Value.Refs[0] != 100 {
		t.Errorf("container refs = %v", cont.Value.Refs)
	}

	// Aliases decode as their target type.
	alias, _ := parsed.Object(109)
	if alias.Value.Kind != ValueSLong || alias.Value.Int != 77 {
		t.Errorf("alias value = %+v", alias.Value)
	}

	raw, _ := parsed.Object(105)
	if raw.Value.Kind != ValuePrimitive || !bytes.Equal(raw.Value.Raw, []byte{0xAB, 0xCD}) {
		t.Errorf("raw primitive = %+v", raw.Value)
	}
}

func TestMemberLayoutPerVersion(t *testing.T) {
	cases := []struct {
		version  uint32
		wantID   uint32
		wantName string
	}{
		{4, 1, "ulID"}, // {id, name, type}
		{7, 0, "ulID"}, // {name, type}
		{12, 1, ""},    // {id, type}
	}
	for _, tc := range cases {
		m := buildMeta(tc.version)
		parsed, err := Parse(mustEncode(t, m, nil), ParseOptions{})
		if err != nil {
			t.Fatalf("version %d: Parse: %v", tc.version, err)
		}

		var entity *TypeDef
		for i := range parsed.Types {
			if parsed.Types[i].Name == "CEntity" {
				entity = &parsed.Types[i]
			}
		}
		if entity == nil {
			t.Fatalf("version %d: CEntity type missing", tc.version)
		}
		member := entity.Struct.Members[0]
		if member.ID != tc.wantID {
			t.Errorf("version %d: member id = %d, want %d", tc.version, member.ID, tc.wantID)
		}
		if member.Name != tc.wantName {
			t.Errorf("version %d: member name = %q, want %q", tc.version, member.Name, tc.wantName)
		}
		if member.Type != 2 {
			t.Errorf("version %d: member type = %d", tc.version, member.Type)
		}
	}
}

func TestVersionOneHasNoVersionString(t *testing.T) {
	m := buildMeta(1)
	parsed, err := Parse(mustEncode(t, m, nil), ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if parsed.VersionString != "" {
		t.Errorf("VersionString = %q, want empty", parsed.VersionString)
	}
}

func TestParseRejectsSwappedCookie(t *testing.T) {
	data := mustEncode(t, buildMeta(12), binary.LittleEndian)
	_, err := Parse(data, ParseOptions{Order: binary.BigEndian})
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := mustEncode(t, buildMeta(12), nil)
	data[0] = 'X'
	if _, err := Parse(data, ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	data := mustEncode(t, buildMeta(12), nil)
	data = append(data, 0)
	if _, err := Parse(data, ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsLyingInfoCount(t *testing.T) {
	// Version 1 omits the version string, fixing the INFO field
	// offsets: the identifier count lives at byte 40.
	data := mustEncode(t, buildMeta(1), nil)
	data[40]++
	if _, err := Parse(data, ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsObjectTypeCountMismatch(t *testing.T) {
	m := buildMeta(12)
	m.ObjectTypes = append(m.ObjectTypes, ObjectType{Object: 999, Type: 1})
	if _, err := Parse(mustEncode(t, m, nil), ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsUnknownTypeKind(t *testing.T) {
	w := wire.NewWriter(binary.LittleEndian)
	w.Tag(Magic)
	w.Uint32(endianCookie)
	w.Uint32(1) // version
	w.Tag("MSGS")
	w.Uint32(0)
	w.Tag("INFO")
	w.Uint32(1) // edit data stripped
	w.Uint32(0) // resource files
	w.Uint32(0) // idents
	w.Uint32(1) // types
	w.Uint32(0) // objects
	w.Tag("RFIL")
	w.Uint32(0)
	w.Tag("IDNT")
	w.Uint32(0)
	w.Tag("EXTY")
	w.Uint32(0)
	w.Tag("INTY")
	w.Uint32(1)
	w.Tag("DTTY")
	w.Uint32(1) // type id
	w.PascalString("Bad")
	w.Uint32(0) // format
	w.Uint32(3) // kind 3 does not exist

	if _, err := Parse(w.Bytes(), ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestParseRejectsAliasCycle(t *testing.T) {
	m := &Meta{
		Version:     1,
		Types:       []TypeDef{{ID: 1, Name: "Loop", Kind: KindTypeAlias, Alias: &AliasType{For: 1}}},
		ObjectTypes: []ObjectType{{Object: 1, Type: 1}},
		Objects:     []Object{{ID: 1, Type: 1, Value: Value{Kind: ValueSLong}}},
	}
	if _, err := Parse(mustEncode(t, m, nil), ParseOptions{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse = %v, want ErrFormat", err)
	}
}

func TestSchemaRejectsDuplicateTypeID(t *testing.T) {
	m := &Meta{Types: []TypeDef{
		{ID: 1, Name: "A", Kind: KindEnum, Enum: &EnumType{Bytes: 4}},
		{ID: 1, Name: "B", Kind: KindEnum, Enum: &EnumType{Bytes: 4}},
	}}
	if _, err := m.Schema(); !errors.Is(err, ErrFormat) {
		t.Fatalf("Schema = %v, want ErrFormat", err)
	}
}

func TestEncodeRejectsMissingKindPayload(t *testing.T) {
	m := &Meta{
		Version: 1,
		Types:   []TypeDef{{ID: 1, Name: "Broken", Kind: KindStruct}},
	}
	if _, err := m.Encode(nil); err == nil {
		t.Fatal("Encode accepted a struct type with no payload")
	}
}

func TestJSONRoundtrip(t *testing.T) {
	m := buildMeta(12)
	encoded := mustEncode(t, m, nil)

	doc, err := ToJSON(m)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	loaded, err := FromJSON(doc)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	reencoded := mustEncode(t, loaded, nil)
	if !bytes.Equal(encoded, reencoded) {
		t.Fatal("JSON roundtrip changed the wire bytes")
	}
}

func TestFromJSONToleratesComments(t *testing.T) {
	m := buildMeta(12)
	doc, err := ToJSON(m)
	if err != nil {
		t.Fatal(err)
	}
	edited := append([]byte("// hand-edited save document\n"), doc...)

	loaded, err := FromJSON(edited)
	if err != nil {
		t.Fatalf("FromJSON with comments: %v", err)
	}
	if loaded.Version != 12 {
		t.Errorf("Version = %d", loaded.Version)
	}
}

func TestCBORRoundtrip(t *testing.T) {
	m := buildMeta(12)
	encoded := mustEncode(t, m, nil)

	doc, err := ToCBOR(m)
	if err != nil {
		t.Fatalf("ToCBOR: %v", err)
	}
	loaded, err := FromCBOR(doc)
	if err != nil {
		t.Fatalf("FromCBOR: %v", err)
	}
	reencoded := mustEncode(t, loaded, nil)
	if !bytes.Equal(encoded, reencoded) {
		t.Fatal("CBOR roundtrip changed the wire bytes")
	}
}

func TestValueJSONShape(t *testing.T) {
	cases := []struct {
		value Value
		want  string
	}{
		{Value{Kind: ValueSLong, Int: 42}, `{"SLONG":42}`},
		{Value{Kind: ValuePointer, Int: -1}, `{"Pointer":-1}`},
		{Value{Kind: ValueCString, Str: "hi"}, `{"CString":"hi"}`},
		{Value{Kind: ValueUByte, Uint: 7}, `{"UBYTE":7}`},
		{Value{Kind: ValuePrimitive, Raw: []byte{0xAB, 0xCD}}, `{"Primitive":[171,205]}`},
		{Value{Kind: ValueContainer, Refs: []uint32{1, 2}}, `{"DynamicContainer":[1,2]}`},
	}
	for _, tc := range cases {
		got, err := json.Marshal(tc.value)
		if err != nil {
			t.Fatalf("%v: %v", tc.value.Kind, err)
		}
		if string(got) != tc.want {
			t.Errorf("marshal %v = %s, want %s", tc.value.Kind, got, tc.want)
		}

		var back Value
		if err := json.Unmarshal(got, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", got, err)
		}
		if back.Kind != tc.value.Kind {
			t.Errorf("roundtrip kind = %v, want %v", back.Kind, tc.value.Kind)
		}
	}
}

func TestValueJSONRejectsUnknownTag(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"DOUBLE":1}`), &v); err == nil {
		t.Error("unknown tag accepted")
	}
	if err := json.Unmarshal([]byte(`{"SLONG":1,"ULONG":2}`), &v); err == nil {
		t.Error("two-key object accepted")
	}
}

func TestValueJSONRejectsOutOfRange(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"UBYTE":256}`), &v); err == nil {
		t.Error("out-of-range UBYTE accepted")
	}
	if err := json.Unmarshal([]byte(`{"Primitive":[300]}`), &v); err == nil {
		t.Error("out-of-range byte value accepted")
	}
}

func TestValueJSONRejectsOutOfRangeSigned(t *testing.T) {
	// Every signed scalar except SQUAD is a 32-bit wire field; a value
	// the encoder would truncate must be rejected at load time.
	var v Value
	for _, doc := range []string{
		`{"SLONG":5000000000}`,
		`{"SLONG":-5000000000}`,
		`{"Pointer":5000000000}`,
		`{"SLONGEnum":2147483648}`,
		`{"CSyncedSLONG":-2147483649}`,
	} {
		if err := json.Unmarshal([]byte(doc), &v); err == nil {
			t.Errorf("%s accepted", doc)
		}
	}
	if err := json.Unmarshal([]byte(`{"SLONG":2147483647}`), &v); err != nil {
		t.Errorf("boundary SLONG rejected: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"SQUAD":5000000000}`), &v); err != nil {
		t.Errorf("SQUAD is 64 bits wide, rejected: %v", err)
	}
}

func TestEditedFieldChangesOnlyItsWireBytes(t *testing.T) {
	m := buildMeta(12)
	baseline := mustEncode(t, m, nil)

	doc, err := ToJSON(m)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	// Hand-edit the player's health field in the document text.
	edited := strings.Replace(string(doc), `"SLONG": -50`, `"SLONG": 123456`, 1)
	if edited == string(doc) {
		t.Fatal("health field not found in document")
	}
	loaded, err := FromJSON([]byte(edited))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	modified := mustEncode(t, loaded, nil)

	if len(modified) != len(baseline) {
		t.Fatalf("edit changed the stream length: %d -> %d", len(baseline), len(modified))
	}
	first, last := -1, -1
	for i := range baseline {
		if baseline[i] != modified[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		t.Fatal("edit changed no wire bytes")
	}
	if last-first > 3 {
		t.Fatalf("edit touched bytes %d..%d, wider than one 32-bit field", first, last)
	}
	if got := int32(binary.LittleEndian.Uint32(baseline[first:])); got != -50 {
		t.Errorf("old value at offset %d = %d, want -50", first, got)
	}
	if got := int32(binary.LittleEndian.Uint32(modified[first:])); got != 123456 {
		t.Errorf("new value at offset %d = %d, want 123456", first, got)
	}

	reparsed, err := Parse(modified, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse after edit: %v", err)
	}
	player, ok := reparsed.Object(100)
	if !ok {
		t.Fatal("object 100 missing after edit")
	}
	if player.Value.Elems[0].Int != 123456 {
		t.Errorf("health after edit = %d", player.Value.Elems[0].Int)
	}
}
