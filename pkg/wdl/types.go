// Package wdl defines the runtime representation of WDL values, types,
// expressions and documents as produced by the analysis phase.
//
// The engine consumes these types; it does not parse WDL source. Parsing and
// static analysis happen upstream and export a typed bundle decoded by
// internal/loader.
package wdl

import (
	"fmt"
	"sort"
	"strings"
)

// TypeKind identifies the shape of a Type.
type TypeKind int

const (
	TypeNone TypeKind = iota
	TypeBoolean
	TypeInt
	TypeFloat
	TypeString
	TypeFile
	TypeDirectory
	TypeArray
	TypeMap
	TypePair
	TypeStruct
	TypeObject
)

// String returns the WDL name of the kind.
func (k TypeKind) String() string {
	switch k {
	case TypeNone:
		return "None"
	case TypeBoolean:
		return "Boolean"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeFile:
		return "File"
	case TypeDirectory:
		return "Directory"
	case TypeArray:
		return "Array"
	case TypeMap:
		return "Map"
	case TypePair:
		return "Pair"
	case TypeStruct:
		return "Struct"
	case TypeObject:
		return "Object"
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// Type describes a WDL type, including optionality and parametric shape.
type Type struct {
	Kind     TypeKind
	Optional bool
	NonEmpty bool // Array[X]+

	Elem        *Type // Array element type
	Key, Value  *Type // Map key/value types
	Left, Right *Type // Pair member types

	Name    string          // Struct type name
	Members map[string]Type // Struct member types
}

// Primitive type constructors.
func NoneType() Type      { return Type{Kind: TypeNone, Optional: true} }
func BooleanType() Type   { return Type{Kind: TypeBoolean} }
func IntType() Type       { return Type{Kind: TypeInt} }
func FloatType() Type     { return Type{Kind: TypeFloat} }
func StringType() Type    { return Type{Kind: TypeString} }
func FileType() Type      { return Type{Kind: TypeFile} }
func DirectoryType() Type { return Type{Kind: TypeDirectory} }

// ArrayType returns Array[elem].
func ArrayType(elem Type) Type {
	return Type{Kind: TypeArray, Elem: &elem}
}

// MapType returns Map[key, value].
func MapType(key, value Type) Type {
	return Type{Kind: TypeMap, Key: &key, Value: &value}
}

// PairType returns Pair[left, right].
func PairType(left, right Type) Type {
	return Type{Kind: TypePair, Left: &left, Right: &right}
}

// StructType returns a named struct type with the given members.
func StructType(name string, members map[string]Type) Type {
	return Type{Kind: TypeStruct, Name: name, Members: members}
}

// ObjectType returns the dynamic Object type.
func ObjectType() Type { return Type{Kind: TypeObject} }

// AsOptional returns a copy of t with the optional flag set.
func (t Type) AsOptional() Type {
	t.Optional = true
	return t
}

// AsRequired returns a copy of t with the optional flag cleared.
func (t Type) AsRequired() Type {
	t.Optional = false
	return t
}

// String renders the type in WDL syntax, e.g. "Array[File]+?".
func (t Type) String() string {
	var b strings.Builder
	switch t.Kind {
	case TypeArray:
		b.WriteString("Array[")
		if t.Elem != nil {
			b.WriteString(t.Elem.String())
		}
		b.WriteString("]")
		if t.NonEmpty {
			b.WriteString("+")
		}
	case TypeMap:
		b.WriteString("Map[")
		if t.Key != nil {
			b.WriteString(t.Key.String())
		}
		b.WriteString(",")
		if t.Value != nil {
			b.WriteString(t.Value.String())
		}
		b.WriteString("]")
	case TypePair:
		b.WriteString("Pair[")
		if t.Left != nil {
			b.WriteString(t.Left.String())
		}
		b.WriteString(",")
		if t.Right != nil {
			b.WriteString(t.Right.String())
		}
		b.WriteString("]")
	case TypeStruct:
		b.WriteString(t.Name)
	default:
		b.WriteString(t.Kind.String())
	}
	if t.Optional && t.Kind != TypeNone {
		b.WriteString("?")
	}
	return b.String()
}

// Equal reports whether two types are structurally identical, including
// optionality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Optional != o.Optional || t.NonEmpty != o.NonEmpty {
		return false
	}
	if !typePtrEqual(t.Elem, o.Elem) || !typePtrEqual(t.Key, o.Key) || !typePtrEqual(t.Value, o.Value) {
		return false
	}
	if !typePtrEqual(t.Left, o.Left) || !typePtrEqual(t.Right, o.Right) {
		return false
	}
	if t.Kind == TypeStruct {
		if t.Name != o.Name || len(t.Members) != len(o.Members) {
			return false
		}
		for name, mt := range t.Members {
			ot, ok := o.Members[name]
			if !ok || !mt.Equal(ot) {
				return false
			}
		}
	}
	return true
}

func typePtrEqual(a, b *Type) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Equal(*b)
}

// MemberNames returns struct member names in sorted order.
func (t Type) MemberNames() []string {
	names := make([]string, 0, len(t.Members))
	for name := range t.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseType parses a WDL type string such as "Array[File]+?" or
// "Map[String,Int]". Struct names are resolved against structs; unknown names
// are an error.
func ParseType(s string, structs map[string]Type) (Type, error) {
	p := &typeParser{src: s, structs: structs}
	t, err := p.parse()
	if err != nil {
		return Type{}, fmt.Errorf("parse type %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Type{}, fmt.Errorf("parse type %q: trailing input at offset %d", s, p.pos)
	}
	return t, nil
}

type typeParser struct {
	src     string
	pos     int
	structs map[string]Type
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) parse() (Type, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '[' || c == ']' || c == ',' || c == '?' || c == '+' || c == ' ' {
			break
		}
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return Type{}, fmt.Errorf("expected type name at offset %d", start)
	}

	var t Type
	switch name {
	case "None":
		t = NoneType()
	case "Boolean":
		t = BooleanType()
	case "Int":
		t = IntType()
	case "Float":
		t = FloatType()
	case "String":
		t = StringType()
	case "File":
		t = FileType()
	case "Directory":
		t = DirectoryType()
	case "Object":
		t = ObjectType()
	case "Array":
		elem, err := p.params(1)
		if err != nil {
			return Type{}, err
		}
		t = ArrayType(elem[0])
		if p.pos < len(p.src) && p.src[p.pos] == '+' {
			p.pos++
			t.NonEmpty = true
		}
	case "Map":
		kv, err := p.params(2)
		if err != nil {
			return Type{}, err
		}
		t = MapType(kv[0], kv[1])
	case "Pair":
		lr, err := p.params(2)
		if err != nil {
			return Type{}, err
		}
		t = PairType(lr[0], lr[1])
	default:
		st, ok := p.structs[name]
		if !ok {
			return Type{}, fmt.Errorf("unknown type name %q", name)
		}
		t = st
	}

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '?' {
		p.pos++
		t.Optional = true
	}
	return t, nil
}

func (p *typeParser) params(n int) ([]Type, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '[' {
		return nil, fmt.Errorf("expected '[' at offset %d", p.pos)
	}
	p.pos++
	out := make([]Type, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			p.skipSpace()
			if p.pos >= len(p.src) || p.src[p.pos] != ',' {
				return nil, fmt.Errorf("expected ',' at offset %d", p.pos)
			}
			p.pos++
		}
		t, err := p.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ']' {
		return nil, fmt.Errorf("expected ']' at offset %d", p.pos)
	}
	p.pos++
	return out, nil
}
