// Package parcelgen emits Parcelable implementations from a declarative
// description of user types. It is a pure function from a type tree to Go
// source: structs get WriteParcel/ReadParcel methods, tagged unions get an
// interface, one concrete type per variant and Write/Read dispatch
// functions keyed on an i32 discriminator.
//
// Discriminators default to the variant's zero-based declaration index; a
// variant may override its value, and collisions are a generation-time
// error.
package parcelgen

import (
	"fmt"
	"go/format"
	"strings"
	"unicode"
)

// Kind selects the container shape of a TypeDef.
type Kind int

const (
	// KindStruct is a record: fields serialized in declaration order.
	KindStruct Kind = iota

	// KindUnion is a tagged union of record variants.
	KindUnion
)

// Style describes a variant's payload shape.
type Style int

const (
	// StyleUnit carries no payload.
	StyleUnit Style = iota

	// StyleNewtype wraps a single value; its wire form is the wrapped
	// type's.
	StyleNewtype

	// StyleTuple carries positional fields.
	StyleTuple

	// StyleStruct carries named fields.
	StyleStruct
)

// FieldDef is one field of a record or variant. Type is either a wire
// primitive name (i8 u8 i16 u16 i32 u32 i64 u64 f32 f64 usize bool str
// str16 bytes) or the name of another generated type.
type FieldDef struct {
	Name string
	Type string
}

// VariantDef is one variant of a tagged union. A nil Discriminator selects
// the zero-based declaration index.
type VariantDef struct {
	Name          string
	Discriminator *int32
	Style         Style
	Fields        []FieldDef
}

// TypeDef describes one type to generate.
type TypeDef struct {
	Name string
	Kind Kind

	// PushObject marks a fixed-layout record whose write records its byte
	// offset in the parcel's object table.
	PushObject bool

	// Fields is the record's field list (KindStruct only).
	Fields []FieldDef

	// Variants is the union's variant list (KindUnion only).
	Variants []VariantDef
}

// primitive describes how a wire primitive maps to Go.
type primitive struct {
	goType string
	write  string // parcel method
	read   string
}

var primitives = map[string]primitive{
	"i8":    {"int8", "WriteInt8", "ReadInt8"},
	"u8":    {"uint8", "WriteUint8", "ReadUint8"},
	"i16":   {"int16", "WriteInt16", "ReadInt16"},
	"u16":   {"uint16", "WriteUint16", "ReadUint16"},
	"i32":   {"int32", "WriteInt32", "ReadInt32"},
	"u32":   {"uint32", "WriteUint32", "ReadUint32"},
	"i64":   {"int64", "WriteInt64", "ReadInt64"},
	"u64":   {"uint64", "WriteUint64", "ReadUint64"},
	"f32":   {"float32", "WriteFloat32", "ReadFloat32"},
	"f64":   {"float64", "WriteFloat64", "ReadFloat64"},
	"usize": {"uint64", "WriteUsize", "ReadUsize"},
	"bool":  {"bool", "WriteBool", "ReadBool"},
	"str":   {"string", "WriteString", "ReadString"},
	"str16": {"string", "WriteString16", "ReadString16"},
	"bytes": {"[]byte", "WriteByteSlice", "ReadByteSlice"},
}

// Generate emits gofmt-ed Go source implementing the Parcelable contract
// for every definition, in declaration order.
func Generate(pkgName string, defs []TypeDef) ([]byte, error) {
	if pkgName == "" {
		return nil, fmt.Errorf("parcelgen: empty package name")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by parcelgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	fmt.Fprintf(&b, "import \"github.com/marmos91/gobinder/pkg/parcel\"\n\n")

	for _, def := range defs {
		switch def.Kind {
		case KindStruct:
			if len(def.Variants) > 0 {
				return nil, fmt.Errorf("parcelgen: struct %s declares variants", def.Name)
			}
			if err := genStruct(&b, def); err != nil {
				return nil, err
			}
		case KindUnion:
			if len(def.Fields) > 0 {
				return nil, fmt.Errorf("parcelgen: union %s declares bare fields", def.Name)
			}
			if len(def.Variants) == 0 {
				return nil, fmt.Errorf("parcelgen: union %s has no variants", def.Name)
			}
			if err := genUnion(&b, def); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("parcelgen: %s: unsupported container kind %d", def.Name, def.Kind)
		}
	}

	src, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("parcelgen: generated source does not parse: %w", err)
	}
	return src, nil
}

// goType resolves a field type to its Go representation.
func goType(t string) string {
	if p, ok := primitives[t]; ok {
		return p.goType
	}
	return t
}

// exportName uppercases the first rune so the generated field is exported.
func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// genWrite emits the statement writing expr (an addressable value of the
// field's type).
func genWrite(b *strings.Builder, typ, expr string) {
	if p, ok := primitives[typ]; ok {
		fmt.Fprintf(b, "\tif err := p.%s(%s); err != nil {\n\t\treturn err\n\t}\n", p.write, expr)
		return
	}
	fmt.Fprintf(b, "\tif err := %s.WriteParcel(p); err != nil {\n\t\treturn err\n\t}\n", expr)
}

// genRead emits the statements reading into target (an addressable lvalue).
func genRead(b *strings.Builder, typ, target string) {
	if p, ok := primitives[typ]; ok {
		fmt.Fprintf(b, "\tif %s, err = p.%s(); err != nil {\n\t\treturn err\n\t}\n", target, p.read)
		return
	}
	fmt.Fprintf(b, "\tif err = %s.ReadParcel(p); err != nil {\n\t\treturn err\n\t}\n", target)
}

func genStruct(b *strings.Builder, def TypeDef) error {
	fmt.Fprintf(b, "// %s is a generated parcelable record.\n", def.Name)
	fmt.Fprintf(b, "type %s struct {\n", def.Name)
	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("parcelgen: struct %s has an unnamed field", def.Name)
		}
		fmt.Fprintf(b, "\t%s %s\n", exportName(f.Name), goType(f.Type))
	}
	fmt.Fprintf(b, "}\n\n")

	// WriteParcel
	fmt.Fprintf(b, "func (v *%s) WriteParcel(p *parcel.Parcel) error {\n", def.Name)
	if def.PushObject {
		fmt.Fprintf(b, "\tp.MarkObjectOffset()\n")
	}
	for _, f := range def.Fields {
		genWrite(b, f.Type, "v."+exportName(f.Name))
	}
	fmt.Fprintf(b, "\treturn nil\n}\n\n")

	// ReadParcel
	fmt.Fprintf(b, "func (v *%s) ReadParcel(p *parcel.Parcel) error {\n", def.Name)
	if len(def.Fields) > 0 {
		fmt.Fprintf(b, "\tvar err error\n")
	}
	for _, f := range def.Fields {
		genRead(b, f.Type, "v."+exportName(f.Name))
	}
	fmt.Fprintf(b, "\treturn nil\n}\n\n")
	return nil
}

// effectiveDiscriminators resolves each variant's discriminator and rejects
// collisions.
func effectiveDiscriminators(def TypeDef) ([]int32, error) {
	seen := make(map[int32]string, len(def.Variants))
	out := make([]int32, len(def.Variants))
	for i, v := range def.Variants {
		disc := int32(i)
		if v.Discriminator != nil {
			disc = *v.Discriminator
		}
		if prev, dup := seen[disc]; dup {
			return nil, fmt.Errorf("parcelgen: union %s: variants %s and %s share discriminator %d",
				def.Name, prev, v.Name, disc)
		}
		seen[disc] = v.Name
		out[i] = disc
	}
	return out, nil
}

// variantFields normalizes a variant's field list to (name, type) pairs,
// synthesizing positional names for tuple and newtype payloads.
func variantFields(v VariantDef) ([]FieldDef, error) {
	switch v.Style {
	case StyleUnit:
		if len(v.Fields) != 0 {
			return nil, fmt.Errorf("parcelgen: unit variant %s has fields", v.Name)
		}
		return nil, nil
	case StyleNewtype:
		if len(v.Fields) != 1 {
			return nil, fmt.Errorf("parcelgen: newtype variant %s needs exactly one field", v.Name)
		}
		return []FieldDef{{Name: "Value", Type: v.Fields[0].Type}}, nil
	case StyleTuple:
		out := make([]FieldDef, len(v.Fields))
		for i, f := range v.Fields {
			out[i] = FieldDef{Name: fmt.Sprintf("F%d", i), Type: f.Type}
		}
		return out, nil
	case StyleStruct:
		out := make([]FieldDef, len(v.Fields))
		for i, f := range v.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("parcelgen: struct variant %s has an unnamed field", v.Name)
			}
			out[i] = FieldDef{Name: exportName(f.Name), Type: f.Type}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parcelgen: variant %s: unknown style %d", v.Name, v.Style)
	}
}

func genUnion(b *strings.Builder, def TypeDef) error {
	discs, err := effectiveDiscriminators(def)
	if err != nil {
		return err
	}

	marker := "is" + def.Name

	fmt.Fprintf(b, "// %s is a generated tagged union.\n", def.Name)
	fmt.Fprintf(b, "type %s interface {\n\t%s()\n}\n\n", def.Name, marker)

	for _, v := range def.Variants {
		fields, err := variantFields(v)
		if err != nil {
			return err
		}
		variantType := def.Name + v.Name
		fmt.Fprintf(b, "type %s struct {\n", variantType)
		for _, f := range fields {
			fmt.Fprintf(b, "\t%s %s\n", f.Name, goType(f.Type))
		}
		fmt.Fprintf(b, "}\n\n")
		fmt.Fprintf(b, "func (%s) %s() {}\n\n", variantType, marker)
	}

	// The switch variable is only bound when some variant carries fields;
	// an all-unit union would leave it unused.
	anyFields := false
	for _, v := range def.Variants {
		if len(v.Fields) > 0 {
			anyFields = true
			break
		}
	}

	// Write dispatch
	fmt.Fprintf(b, "// Write%s writes the i32 discriminator then the variant payload.\n", def.Name)
	fmt.Fprintf(b, "func Write%s(p *parcel.Parcel, v %s) error {\n", def.Name, def.Name)
	if anyFields {
		fmt.Fprintf(b, "\tswitch v := v.(type) {\n")
	} else {
		fmt.Fprintf(b, "\tswitch v.(type) {\n")
	}
	for i, variant := range def.Variants {
		fields, _ := variantFields(variant)
		variantType := def.Name + variant.Name
		fmt.Fprintf(b, "\tcase *%s:\n", variantType)
		fmt.Fprintf(b, "\t\tif err := p.WriteInt32(%d); err != nil {\n\t\t\treturn err\n\t\t}\n", discs[i])
		var inner strings.Builder
		for _, f := range fields {
			genWrite(&inner, f.Type, "v."+f.Name)
		}
		b.WriteString(indent(inner.String(), "\t"))
		fmt.Fprintf(b, "\t\treturn nil\n")
	}
	fmt.Fprintf(b, "\tdefault:\n\t\treturn parcel.ErrBadEnumValue\n\t}\n}\n\n")

	// Read dispatch
	fmt.Fprintf(b, "// Read%s selects the variant by discriminator; unknown values fail\n", def.Name)
	fmt.Fprintf(b, "// with parcel.ErrBadEnumValue.\n")
	fmt.Fprintf(b, "func Read%s(p *parcel.Parcel) (%s, error) {\n", def.Name, def.Name)
	fmt.Fprintf(b, "\tdisc, err := p.ReadInt32()\n\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	fmt.Fprintf(b, "\tswitch disc {\n")
	for i, variant := range def.Variants {
		fields, _ := variantFields(variant)
		variantType := def.Name + variant.Name
		fmt.Fprintf(b, "\tcase %d:\n", discs[i])
		fmt.Fprintf(b, "\t\tv := &%s{}\n", variantType)
		var inner strings.Builder
		for _, f := range fields {
			genReadVariant(&inner, f.Type, "v."+f.Name)
		}
		b.WriteString(indent(inner.String(), "\t"))
		fmt.Fprintf(b, "\t\treturn v, nil\n")
	}
	fmt.Fprintf(b, "\tdefault:\n\t\treturn nil, parcel.ErrBadEnumValue\n\t}\n}\n\n")
	return nil
}

// genReadVariant is genRead for the read-dispatch body, where failures
// return a nil variant alongside the error.
func genReadVariant(b *strings.Builder, typ, target string) {
	if p, ok := primitives[typ]; ok {
		fmt.Fprintf(b, "\tif %s, err = p.%s(); err != nil {\n\t\treturn nil, err\n\t}\n", target, p.read)
		return
	}
	fmt.Fprintf(b, "\tif err = %s.ReadParcel(p); err != nil {\n\t\treturn nil, err\n\t}\n", target)
}

// indent prefixes every non-empty line.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
