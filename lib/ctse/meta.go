// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/croteam-tools/savestream/lib/wire"
)

const (
	// Magic opens every container.
	Magic = "CTSEMETA"

	// endTag closes every container. The trailing space is part of
	// the tag.
	endTag = "METAEND "

	// endianCookie follows the magic; reading it in the wrong byte
	// order yields endianCookieSwapped.
	endianCookie        = 0x1234ABCD
	endianCookieSwapped = 0xCDAB3412
)

// Meta is a fully decoded container: header, tables, and object
// instances. Encoding a Meta reproduces the original bytes when
// nothing was changed in between.
type Meta struct {
	// Version selects the struct-member record layout.
	Version uint32 `json:"version"`

	// VersionString is a free-form engine build string, present on
	// the wire from version 2 on.
	VersionString string `json:"version_string,omitempty"`

	// EditDataStripped is the INFO header flag, preserved verbatim.
	// The engine writes 1 once editor data has been removed.
	EditDataStripped uint32 `json:"edit_data_stripped"`

	Idents        []Ident        `json:"idents"`
	ExternalTypes []ExternalType `json:"external_types"`
	Types         []TypeDef      `json:"types"`
	ObjectTypes   []ObjectType   `json:"object_types"`
	Objects       []Object       `json:"objects"`
}

// Schema builds the type index for this container.
func (m *Meta) Schema() (*Schema, error) {
	return newSchema(m.Types)
}

// Object finds an instance by id, the target of a pointer value or a
// dynamic-container reference.
func (m *Meta) Object(id uint32) (*Object, bool) {
	for i := range m.Objects {
		if m.Objects[i].ID == id {
			return &m.Objects[i], true
		}
	}
	return nil, false
}

// ParseOptions controls container decoding.
type ParseOptions struct {
	// Order is the byte order the container was written in. Nil
	// means little-endian, the order of every known save platform.
	Order binary.ByteOrder

	// Logger receives diagnostics (unknown primitive names). Nil
	// discards them.
	Logger *slog.Logger
}

func (o *ParseOptions) order() binary.ByteOrder {
	if o.Order == nil {
		return binary.LittleEndian
	}
	return o.Order
}

func (o *ParseOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Parse decodes a complete container from data. Every structural
// failure is fatal and wraps ErrFormat or ErrVersion.
func Parse(data []byte, opts ParseOptions) (*Meta, error) {
	r := wire.NewReader(data, opts.order())
	m := &Meta{}

	if err := r.Tag(Magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	cookie, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: endianness cookie: %v", ErrFormat, err)
	}
	switch cookie {
	case endianCookie:
	case endianCookieSwapped:
		return nil, fmt.Errorf("%w: endianness cookie is byte-swapped; parse with the opposite byte order", ErrFormat)
	default:
		return nil, fmt.Errorf("%w: bad endianness cookie %#x", ErrFormat, cookie)
	}
	if m.Version, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrFormat, err)
	}
	if m.Version >= 2 {
		if m.VersionString, err = r.PascalString(); err != nil {
			return nil, fmt.Errorf("%w: version string: %v", ErrFormat, err)
		}
	}

	if err := readEmptyBlock(r, "MSGS"); err != nil {
		return nil, err
	}

	info, err := readInfo(r)
	if err != nil {
		return nil, err
	}

	if err := readEmptyBlock(r, "RFIL"); err != nil {
		return nil, err
	}
	if info.resourceFiles != 0 {
		return nil, fmt.Errorf("%w: header declares %d resource files, RFIL block has none",
			ErrFormat, info.resourceFiles)
	}

	if m.Idents, err = readIdents(r); err != nil {
		return nil, err
	}
	if uint32(len(m.Idents)) != info.idents {
		return nil, fmt.Errorf("%w: header declares %d identifiers, IDNT block has %d",
			ErrFormat, info.idents, len(m.Idents))
	}

	if m.ExternalTypes, err = readExternalTypes(r); err != nil {
		return nil, err
	}
	if m.Types, err = readTypes(r, m.Version); err != nil {
		return nil, err
	}
	if total := uint32(len(m.ExternalTypes) + len(m.Types)); total != info.types {
		return nil, fmt.Errorf("%w: header declares %d types, tables have %d",
			ErrFormat, info.types, total)
	}

	if err := readEmptyBlock(r, "EXOB"); err != nil {
		return nil, err
	}
	if m.ObjectTypes, err = readObjectTypes(r); err != nil {
		return nil, err
	}
	if err := readEmptyBlock(r, "EDTY"); err != nil {
		return nil, err
	}

	schema, err := m.Schema()
	if err != nil {
		return nil, err
	}
	if m.Objects, err = readObjects(r, schema, opts.logger()); err != nil {
		return nil, err
	}
	if uint32(len(m.Objects)) != info.objects {
		return nil, fmt.Errorf("%w: header declares %d objects, OBJS block has %d",
			ErrFormat, info.objects, len(m.Objects))
	}
	if len(m.Objects) != len(m.ObjectTypes) {
		return nil, fmt.Errorf("%w: %d object-type bindings for %d objects",
			ErrFormat, len(m.ObjectTypes), len(m.Objects))
	}

	if err := readEmptyBlock(r, "EDOB"); err != nil {
		return nil, err
	}
	if err := r.Tag(endTag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after terminator", ErrFormat, r.Remaining())
	}

	m.EditDataStripped = info.editDataStripped
	return m, nil
}

// Encode writes the container back out. A nil order means
// little-endian. The header counts are recomputed from the tables;
// only EditDataStripped is taken from the struct.
func (m *Meta) Encode(order binary.ByteOrder) ([]byte, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	w := wire.NewWriter(order)

	w.Tag(Magic)
	w.Uint32(endianCookie)
	w.Uint32(m.Version)
	if m.Version >= 2 {
		w.PascalString(m.VersionString)
	}

	w.Tag("MSGS")
	w.Uint32(0)

	w.Tag("INFO")
	w.Uint32(m.EditDataStripped)
	w.Uint32(0) // resource files
	w.Uint32(uint32(len(m.Idents)))
	w.Uint32(uint32(len(m.ExternalTypes) + len(m.Types)))
	w.Uint32(uint32(len(m.Objects)))

	w.Tag("RFIL")
	w.Uint32(0)

	w.Tag("IDNT")
	w.Uint32(uint32(len(m.Idents)))
	for _, ident := range m.Idents {
		w.Uint32(ident.ID)
		w.PascalString(ident.Name)
	}

	w.Tag("EXTY")
	w.Uint32(uint32(len(m.ExternalTypes)))
	for _, ext := range m.ExternalTypes {
		w.Uint32(ext.ID)
		w.PascalString(ext.Name)
	}

	w.Tag("INTY")
	w.Uint32(uint32(len(m.Types)))
	layout := layoutForVersion(m.Version)
	for i := range m.Types {
		if err := writeType(w, &m.Types[i], layout); err != nil {
			return nil, err
		}
	}

	w.Tag("EXOB")
	w.Uint32(0)

	w.Tag("OBTY")
	w.Uint32(uint32(len(m.ObjectTypes)))
	for _, ot := range m.ObjectTypes {
		w.Uint32(ot.Object)
		w.Uint32(ot.Type)
	}

	w.Tag("EDTY")
	w.Uint32(0)

	w.Tag("OBJS")
	w.Uint32(uint32(len(m.Objects)))
	for i := range m.Objects {
		if err := encodeObject(w, &m.Objects[i]); err != nil {
			return nil, err
		}
	}

	w.Tag("EDOB")
	w.Uint32(0)

	w.Tag(endTag)
	return w.Bytes(), nil
}

// infoBlock is the INFO header: a stripped-editor-data flag and four
// element counts cross-checked against the blocks that follow.
type infoBlock struct {
	editDataStripped uint32
	resourceFiles    uint32
	idents           uint32
	types            uint32
	objects          uint32
}

func readInfo(r *wire.Reader) (infoBlock, error) {
	var info infoBlock
	if err := r.Tag("INFO"); err != nil {
		return info, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for _, field := range []struct {
		name string
		dst  *uint32
	}{
		{"EditDataStripped", &info.editDataStripped},
		{"ResourceFiles", &info.resourceFiles},
		{"Idents", &info.idents},
		{"Types", &info.types},
		{"Objects", &info.objects},
	} {
		v, err := r.Uint32()
		if err != nil {
			return info, fmt.Errorf("%w: INFO %s: %v", ErrFormat, field.name, err)
		}
		*field.dst = v
	}
	return info, nil
}

// readEmptyBlock consumes a tag plus element count for the block
// kinds that are always empty in save files. A non-zero count means
// the file carries editor-only data this codec cannot represent, so
// rewriting it would lose content.
func readEmptyBlock(r *wire.Reader, tag string) error {
	if err := r.Tag(tag); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%w: %s count: %v", ErrFormat, tag, err)
	}
	if count != 0 {
		return fmt.Errorf("%w: %s block has %d entries, expected none", ErrFormat, tag, count)
	}
	return nil
}

func readIdents(r *wire.Reader) ([]Ident, error) {
	if err := r.Tag("IDNT"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: IDNT count: %v", ErrFormat, err)
	}
	idents := make([]Ident, 0, boundedCap(count))
	for i := uint32(0); i < count; i++ {
		var ident Ident
		if ident.ID, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: identifier %d: %v", ErrFormat, i, err)
		}
		if ident.Name, err = r.PascalString(); err != nil {
			return nil, fmt.Errorf("%w: identifier %d name: %v", ErrFormat, i, err)
		}
		idents = append(idents, ident)
	}
	return idents, nil
}

func readExternalTypes(r *wire.Reader) ([]ExternalType, error) {
	if err := r.Tag("EXTY"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: EXTY count: %v", ErrFormat, err)
	}
	types := make([]ExternalType, 0, boundedCap(count))
	for i := uint32(0); i < count; i++ {
		var ext ExternalType
		if ext.ID, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: external type %d: %v", ErrFormat, i, err)
		}
		if ext.Name, err = r.PascalString(); err != nil {
			return nil, fmt.Errorf("%w: external type %d name: %v", ErrFormat, i, err)
		}
		types = append(types, ext)
	}
	return types, nil
}

func readTypes(r *wire.Reader, version uint32) ([]TypeDef, error) {
	if err := r.Tag("INTY"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: INTY count: %v", ErrFormat, err)
	}
	layout := layoutForVersion(version)
	types := make([]TypeDef, 0, boundedCap(count))
	for i := uint32(0); i < count; i++ {
		td, err := readType(r, layout)
		if err != nil {
			return nil, fmt.Errorf("type record %d: %w", i, err)
		}
		types = append(types, td)
	}
	return types, nil
}

// readType decodes one DTTY record: the common head, then a payload
// selected by the kind tag.
func readType(r *wire.Reader, layout memberLayout) (TypeDef, error) {
	var td TypeDef
	if err := r.Tag("DTTY"); err != nil {
		return td, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	var err error
	if td.ID, err = r.Uint32(); err != nil {
		return td, fmt.Errorf("%w: type id: %v", ErrFormat, err)
	}
	if td.Name, err = r.PascalString(); err != nil {
		return td, fmt.Errorf("%w: type %d name: %v", ErrFormat, td.ID, err)
	}
	if td.Format, err = r.Uint32(); err != nil {
		return td, fmt.Errorf("%w: type %q format: %v", ErrFormat, td.Name, err)
	}
	kind, err := r.Uint32()
	if err != nil {
		return td, fmt.Errorf("%w: type %q kind: %v", ErrFormat, td.Name, err)
	}
	td.Kind = Kind(kind)

	fail := func(field string, err error) (TypeDef, error) {
		return td, fmt.Errorf("%w: type %q %s: %v", ErrFormat, td.Name, field, err)
	}
	switch td.Kind {
	case KindPrimitive:
		p := &PrimitiveType{}
		if p.Bytes, err = r.Uint32(); err != nil {
			return fail("width", err)
		}
		if p.ByteOrderFlag, err = r.Uint32(); err != nil {
			return fail("byte-order flag", err)
		}
		td.Primitive = p

	case KindEnum:
		e := &EnumType{}
		if e.Bytes, err = r.Uint32(); err != nil {
			return fail("width", err)
		}
		td.Enum = e

	case KindPointer:
		p := &PointerType{}
		if p.To, err = r.Uint32(); err != nil {
			return fail("target", err)
		}
		td.Pointer = p

	case KindArray:
		a := &ArrayType{}
		if a.Of, err = r.Uint32(); err != nil {
			return fail("element type", err)
		}
		if err := r.Tag("ADIM"); err != nil {
			return fail("dimensions", err)
		}
		if a.Rows, err = r.Uint32(); err != nil {
			return fail("rows", err)
		}
		if a.Rows != 1 {
			return td, fmt.Errorf("%w: array type %q has %d rows, only 1 is supported",
				ErrFormat, td.Name, a.Rows)
		}
		if a.Cols, err = r.Uint32(); err != nil {
			return fail("cols", err)
		}
		td.Array = a

	case KindStruct:
		s := &StructType{}
		if s.Base, err = r.Int32(); err != nil {
			return fail("base", err)
		}
		if err := r.Tag("STMB"); err != nil {
			return fail("members", err)
		}
		count, err := r.Uint32()
		if err != nil {
			return fail("member count", err)
		}
		s.Members = make([]StructMember, 0, boundedCap(count))
		for i := uint32(0); i < count; i++ {
			member, err := readMember(r, layout)
			if err != nil {
				return td, fmt.Errorf("%w: type %q member %d: %v", ErrFormat, td.Name, i, err)
			}
			s.Members = append(s.Members, member)
		}
		td.Struct = s

	case KindStaticStackArray, KindDynamicContainer:
		e := &ElementType{}
		if e.Of, err = r.Uint32(); err != nil {
			return fail("element type", err)
		}
		td.Element = e

	case KindTypeAlias:
		a := &AliasType{}
		if a.For, err = r.Uint32(); err != nil {
			return fail("target", err)
		}
		td.Alias = a

	default:
		return td, fmt.Errorf("%w: type %q has unknown kind tag %d", ErrFormat, td.Name, kind)
	}
	return td, nil
}

func readMember(r *wire.Reader, layout memberLayout) (StructMember, error) {
	var m StructMember
	var err error
	if layout == memberIDNameType || layout == memberIDType {
		if m.ID, err = r.Uint32(); err != nil {
			return m, err
		}
	}
	if layout == memberIDNameType || layout == memberNameType {
		if m.Name, err = r.PascalString(); err != nil {
			return m, err
		}
	}
	if m.Type, err = r.Uint32(); err != nil {
		return m, err
	}
	return m, nil
}

func writeType(w *wire.Writer, td *TypeDef, layout memberLayout) error {
	w.Tag("DTTY")
	w.Uint32(td.ID)
	w.PascalString(td.Name)
	w.Uint32(td.Format)
	w.Uint32(uint32(td.Kind))

	missing := func() error {
		return fmt.Errorf("type %q: kind %s has no matching payload", td.Name, td.Kind)
	}
	switch td.Kind {
	case KindPrimitive:
		if td.Primitive == nil {
			return missing()
		}
		w.Uint32(td.Primitive.Bytes)
		w.Uint32(td.Primitive.ByteOrderFlag)
	case KindEnum:
		if td.Enum == nil {
			return missing()
		}
		w.Uint32(td.Enum.Bytes)
	case KindPointer:
		if td.Pointer == nil {
			return missing()
		}
		w.Uint32(td.Pointer.To)
	case KindArray:
		if td.Array == nil {
			return missing()
		}
		w.Uint32(td.Array.Of)
		w.Tag("ADIM")
		w.Uint32(td.Array.Rows)
		w.Uint32(td.Array.Cols)
	case KindStruct:
		if td.Struct == nil {
			return missing()
		}
		w.Int32(td.Struct.Base)
		w.Tag("STMB")
		w.Uint32(uint32(len(td.Struct.Members)))
		for _, member := range td.Struct.Members {
			if layout == memberIDNameType || layout == memberIDType {
				w.Uint32(member.ID)
			}
			if layout == memberIDNameType || layout == memberNameType {
				w.PascalString(member.Name)
			}
			w.Uint32(member.Type)
		}
	case KindStaticStackArray, KindDynamicContainer:
		if td.Element == nil {
			return missing()
		}
		w.Uint32(td.Element.Of)
	case KindTypeAlias:
		if td.Alias == nil {
			return missing()
		}
		w.Uint32(td.Alias.For)
	default:
		return fmt.Errorf("type %q: unknown kind %d", td.Name, uint32(td.Kind))
	}
	return nil
}

func readObjectTypes(r *wire.Reader) ([]ObjectType, error) {
	if err := r.Tag("OBTY"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: OBTY count: %v", ErrFormat, err)
	}
	types := make([]ObjectType, 0, boundedCap(count))
	for i := uint32(0); i < count; i++ {
		var ot ObjectType
		if ot.Object, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: object-type binding %d: %v", ErrFormat, i, err)
		}
		if ot.Type, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("%w: object-type binding %d: %v", ErrFormat, i, err)
		}
		types = append(types, ot)
	}
	return types, nil
}

func readObjects(r *wire.Reader, schema *Schema, logger *slog.Logger) ([]Object, error) {
	if err := r.Tag("OBJS"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: OBJS count: %v", ErrFormat, err)
	}
	d := &objectDecoder{r: r, schema: schema, logger: logger}
	objects := make([]Object, 0, boundedCap(count))
	for i := uint32(0); i < count; i++ {
		obj, err := d.object()
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
