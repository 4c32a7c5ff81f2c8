package wdl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is the runtime representation of a WDL value. Values are immutable
// once produced; containers hold copies of their element slices and must not
// be mutated after construction.
type Value interface {
	// Type returns the value's runtime type.
	Type() Type
	// String renders the value for logs and command-line interpolation.
	String() string
	isValue()
}

// None is the WDL None value.
type None struct{}

func (None) Type() Type     { return NoneType() }
func (None) String() string { return "None" }
func (None) isValue()       {}

// IsNone reports whether v is the None value.
func IsNone(v Value) bool {
	_, ok := v.(None)
	return ok
}

// Boolean is a WDL Boolean.
type Boolean bool

func (Boolean) Type() Type { return BooleanType() }
func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (Boolean) isValue() {}

// Int is a WDL Int (64-bit signed).
type Int int64

func (Int) Type() Type       { return IntType() }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (Int) isValue()         {}

// Float is a WDL Float (64-bit IEEE 754).
type Float float64

func (Float) Type() Type { return FloatType() }
func (f Float) String() string {
	// WDL renders floats with six decimal places in string context.
	return strconv.FormatFloat(float64(f), 'f', 6, 64)
}
func (Float) isValue() {}

// String is a WDL String.
type String string

func (String) Type() Type       { return StringType() }
func (s String) String() string { return string(s) }
func (String) isValue()         {}

// File is a path-like WDL File value. Identity is the path; content identity
// is the call cache's concern.
type File string

func (File) Type() Type       { return FileType() }
func (f File) String() string { return string(f) }
func (File) isValue()         {}

// Directory is a path-like WDL Directory value.
type Directory string

func (Directory) Type() Type       { return DirectoryType() }
func (d Directory) String() string { return string(d) }
func (Directory) isValue()         {}

// Array is an ordered, homogeneous WDL Array.
type Array struct {
	Elem  Type
	Items []Value
}

// NewArray constructs an Array of the given element type.
func NewArray(elem Type, items ...Value) Array {
	return Array{Elem: elem, Items: items}
}

func (a Array) Type() Type { return Type{Kind: TypeArray, Elem: &a.Elem} }
func (a Array) String() string {
	parts := make([]string, len(a.Items))
	for i, v := range a.Items {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (Array) isValue() {}

// Len returns the number of elements.
func (a Array) Len() int { return len(a.Items) }

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	K, V Value
}

// Map is a WDL Map. Insertion order is retained for rendering but is
// irrelevant to equality; key uniqueness is enforced at construction.
type Map struct {
	KeyType, ValueType Type
	Entries            []MapEntry
}

// NewMap constructs a Map, rejecting duplicate keys.
func NewMap(key, value Type, entries []MapEntry) (Map, error) {
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if Equals(entries[i].K, entries[j].K) {
				return Map{}, fmt.Errorf("duplicate map key %s", entries[i].K)
			}
		}
	}
	return Map{KeyType: key, ValueType: value, Entries: entries}, nil
}

func (m Map) Type() Type {
	k, v := m.KeyType, m.ValueType
	return Type{Kind: TypeMap, Key: &k, Value: &v}
}
func (m Map) String() string {
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = e.K.String() + ": " + e.V.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (Map) isValue() {}

// Get looks up a key, returning (value, found).
func (m Map) Get(key Value) (Value, bool) {
	for _, e := range m.Entries {
		if Equals(e.K, key) {
			return e.V, true
		}
	}
	return nil, false
}

// Pair is a WDL Pair.
type Pair struct {
	LeftVal, RightVal Value
}

func (p Pair) Type() Type {
	l, r := p.LeftVal.Type(), p.RightVal.Type()
	return Type{Kind: TypePair, Left: &l, Right: &r}
}
func (p Pair) String() string {
	return "(" + p.LeftVal.String() + ", " + p.RightVal.String() + ")"
}
func (Pair) isValue() {}

// Struct is a WDL struct or object value: an immutable mapping of field name
// to value. Names preserves declaration order for rendering.
type Struct struct {
	TypeName string
	Names    []string
	Members  map[string]Value
}

// NewStruct constructs a struct value. The names slice fixes field order.
func NewStruct(typeName string, names []string, members map[string]Value) Struct {
	return Struct{TypeName: typeName, Names: names, Members: members}
}

func (s Struct) Type() Type {
	members := make(map[string]Type, len(s.Members))
	for name, v := range s.Members {
		members[name] = v.Type()
	}
	if s.TypeName == "" {
		t := ObjectType()
		t.Members = members
		return t
	}
	return StructType(s.TypeName, members)
}

func (s Struct) String() string {
	names := s.Names
	if names == nil {
		names = make([]string, 0, len(s.Members))
		for name := range s.Members {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+s.Members[name].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (Struct) isValue() {}

// Field returns a struct member, distinguishing a missing field from a None
// member value.
func (s Struct) Field(name string) (Value, bool) {
	v, ok := s.Members[name]
	return v, ok
}

// Equals compares two values structurally. Int and Float compare with numeric
// promotion; Files and Directories compare by path identity; Maps compare as
// unordered key sets; None equals only None.
func Equals(a, b Value) bool {
	switch av := a.(type) {
	case None:
		return IsNone(b)
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return Float(av) == bv
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return av == Float(bv)
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case File:
		bv, ok := b.(File)
		return ok && av == bv
	case Directory:
		bv, ok := b.(Directory)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equals(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av.Entries) != len(bv.Entries) {
			return false
		}
		for _, e := range av.Entries {
			other, found := bv.Get(e.K)
			if !found || !Equals(e.V, other) {
				return false
			}
		}
		return true
	case Pair:
		bv, ok := b.(Pair)
		return ok && Equals(av.LeftVal, bv.LeftVal) && Equals(av.RightVal, bv.RightVal)
	case Struct:
		bv, ok := b.(Struct)
		if !ok || len(av.Members) != len(bv.Members) {
			return false
		}
		for name, v := range av.Members {
			other, found := bv.Members[name]
			if !found || !Equals(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Index retrieves an element from a container: Array by Int (range-checked),
// Map by key, Struct/Object by String key. A missing map key or out-of-range
// index is a lookup failure, never a None result.
func Index(container, key Value) (Value, error) {
	switch c := container.(type) {
	case Array:
		i, ok := key.(Int)
		if !ok {
			return nil, &IndexError{Container: container.Type(), Msg: fmt.Sprintf("array index must be Int, got %s", key.Type())}
		}
		if i < 0 || int(i) >= len(c.Items) {
			return nil, &IndexError{Container: container.Type(), Msg: fmt.Sprintf("index %d out of range for array of length %d", i, len(c.Items))}
		}
		return c.Items[i], nil
	case Map:
		v, ok := c.Get(key)
		if !ok {
			return nil, &IndexError{Container: container.Type(), Msg: fmt.Sprintf("key %s not found", key)}
		}
		return v, nil
	case Struct:
		name, ok := key.(String)
		if !ok {
			return nil, &IndexError{Container: container.Type(), Msg: fmt.Sprintf("object member access requires String, got %s", key.Type())}
		}
		v, found := c.Field(string(name))
		if !found {
			return nil, &IndexError{Container: container.Type(), Msg: fmt.Sprintf("no member %q", string(name))}
		}
		return v, nil
	}
	return nil, &IndexError{Container: container.Type(), Msg: "value is not indexable"}
}
