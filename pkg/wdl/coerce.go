package wdl

import "fmt"

// Coerce converts v to the target type, applying WDL's implicit coercion
// rules:
//
//   - Int widens to Float.
//   - Any required T is accepted where T? is expected.
//   - String coerces to File and Directory (and back).
//   - Containers coerce element-wise.
//   - Map[String, X] and anonymous objects coerce to declared structs.
//
// Narrowing (Float to Int, None to a required type) is rejected with a
// TypeMismatchError. The engine only sees post-analysis values, so a
// mismatch here indicates a cross-document invocation mismatch and is
// reported rather than trusted away.
func Coerce(v Value, target Type) (Value, error) {
	if IsNone(v) {
		if target.Optional || target.Kind == TypeNone {
			return None{}, nil
		}
		return nil, &TypeMismatchError{Want: target, Got: v.Type(), Msg: "None is not allowed for a required type"}
	}

	switch target.Kind {
	case TypeBoolean:
		if b, ok := v.(Boolean); ok {
			return b, nil
		}
	case TypeInt:
		if i, ok := v.(Int); ok {
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case Float:
			return n, nil
		case Int:
			return Float(n), nil
		}
	case TypeString:
		switch s := v.(type) {
		case String:
			return s, nil
		case File:
			return String(s), nil
		case Directory:
			return String(s), nil
		}
	case TypeFile:
		switch s := v.(type) {
		case File:
			return s, nil
		case String:
			return File(s), nil
		}
	case TypeDirectory:
		switch s := v.(type) {
		case Directory:
			return s, nil
		case String:
			return Directory(s), nil
		}
	case TypeArray:
		a, ok := v.(Array)
		if !ok {
			break
		}
		if target.NonEmpty && len(a.Items) == 0 {
			return nil, &TypeMismatchError{Want: target, Got: v.Type(), Msg: "empty array for non-empty array type"}
		}
		items := make([]Value, len(a.Items))
		for i, item := range a.Items {
			coerced, err := Coerce(item, *target.Elem)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			items[i] = coerced
		}
		return Array{Elem: target.Elem.AsRequired(), Items: items}, nil
	case TypeMap:
		m, ok := v.(Map)
		if !ok {
			break
		}
		entries := make([]MapEntry, len(m.Entries))
		for i, e := range m.Entries {
			k, err := Coerce(e.K, *target.Key)
			if err != nil {
				return nil, fmt.Errorf("map key %s: %w", e.K, err)
			}
			val, err := Coerce(e.V, *target.Value)
			if err != nil {
				return nil, fmt.Errorf("map value for key %s: %w", e.K, err)
			}
			entries[i] = MapEntry{K: k, V: val}
		}
		return Map{KeyType: *target.Key, ValueType: *target.Value, Entries: entries}, nil
	case TypePair:
		p, ok := v.(Pair)
		if !ok {
			break
		}
		l, err := Coerce(p.LeftVal, *target.Left)
		if err != nil {
			return nil, fmt.Errorf("pair left: %w", err)
		}
		r, err := Coerce(p.RightVal, *target.Right)
		if err != nil {
			return nil, fmt.Errorf("pair right: %w", err)
		}
		return Pair{LeftVal: l, RightVal: r}, nil
	case TypeStruct:
		members, names, err := structSource(v)
		if err != nil {
			break
		}
		out := make(map[string]Value, len(target.Members))
		for name, mt := range target.Members {
			mv, ok := members[name]
			if !ok {
				if !mt.Optional {
					return nil, &TypeMismatchError{Want: target, Got: v.Type(), Msg: fmt.Sprintf("missing member %q", name)}
				}
				out[name] = None{}
				continue
			}
			coerced, err := Coerce(mv, mt)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", name, err)
			}
			out[name] = coerced
		}
		for _, name := range names {
			if _, ok := target.Members[name]; !ok {
				return nil, &TypeMismatchError{Want: target, Got: v.Type(), Msg: fmt.Sprintf("unexpected member %q", name)}
			}
		}
		ordered := make([]string, 0, len(out))
		for _, name := range names {
			if _, ok := out[name]; ok {
				ordered = append(ordered, name)
			}
		}
		for name := range out {
			if _, ok := members[name]; !ok {
				ordered = append(ordered, name)
			}
		}
		return Struct{TypeName: target.Name, Names: ordered, Members: out}, nil
	case TypeObject:
		if s, ok := v.(Struct); ok {
			return s, nil
		}
		if m, ok := v.(Map); ok {
			members, names, err := structSource(m)
			if err != nil {
				return nil, err
			}
			return Struct{Names: names, Members: members}, nil
		}
	case TypeNone:
		// Only None coerces to None, handled above.
	}

	return nil, &TypeMismatchError{Want: target, Got: v.Type()}
}

// structSource extracts name->value members from a struct, object, or
// Map[String, X] value.
func structSource(v Value) (map[string]Value, []string, error) {
	switch src := v.(type) {
	case Struct:
		names := src.Names
		if names == nil {
			names = make([]string, 0, len(src.Members))
			for name := range src.Members {
				names = append(names, name)
			}
		}
		return src.Members, names, nil
	case Map:
		members := make(map[string]Value, len(src.Entries))
		names := make([]string, 0, len(src.Entries))
		for _, e := range src.Entries {
			k, ok := e.K.(String)
			if !ok {
				return nil, nil, &TypeMismatchError{Want: ObjectType(), Got: v.Type(), Msg: "map keys must be String"}
			}
			members[string(k)] = e.V
			names = append(names, string(k))
		}
		return members, names, nil
	}
	return nil, nil, &TypeMismatchError{Want: ObjectType(), Got: v.Type()}
}
