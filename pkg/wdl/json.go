package wdl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EncodeJSON converts a value to its JSON-compatible representation, as
// written to outputs files and cache entries. Maps become JSON objects with
// stringified keys; Pairs become {"left": ..., "right": ...}.
func EncodeJSON(v Value) any {
	switch val := v.(type) {
	case None:
		return nil
	case Boolean:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case File:
		return string(val)
	case Directory:
		return string(val)
	case Array:
		out := make([]any, len(val.Items))
		for i, item := range val.Items {
			out[i] = EncodeJSON(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(val.Entries))
		for _, e := range val.Entries {
			out[e.K.String()] = EncodeJSON(e.V)
		}
		return out
	case Pair:
		return map[string]any{
			"left":  EncodeJSON(val.LeftVal),
			"right": EncodeJSON(val.RightVal),
		}
	case Struct:
		out := make(map[string]any, len(val.Members))
		for name, m := range val.Members {
			out[name] = EncodeJSON(m)
		}
		return out
	}
	return nil
}

// DecodeJSON converts a decoded JSON value (as produced by encoding/json with
// UseNumber) into a Value of the declared type.
func DecodeJSON(raw any, target Type) (Value, error) {
	if raw == nil {
		if target.Optional || target.Kind == TypeNone {
			return None{}, nil
		}
		return nil, &TypeMismatchError{Want: target, Got: NoneType(), Msg: "null for a required type"}
	}

	switch target.Kind {
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return Boolean(b), nil
		}
	case TypeInt:
		if n, ok := jsonNumber(raw); ok {
			i, err := n.Int64()
			if err != nil {
				return nil, &TypeMismatchError{Want: target, Got: FloatType(), Msg: "not an integer"}
			}
			return Int(i), nil
		}
	case TypeFloat:
		if n, ok := jsonNumber(raw); ok {
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("decode float: %w", err)
			}
			return Float(f), nil
		}
	case TypeString:
		if s, ok := raw.(string); ok {
			return String(s), nil
		}
	case TypeFile:
		if s, ok := raw.(string); ok {
			return File(s), nil
		}
	case TypeDirectory:
		if s, ok := raw.(string); ok {
			return Directory(s), nil
		}
	case TypeArray:
		arr, ok := raw.([]any)
		if !ok {
			break
		}
		if target.NonEmpty && len(arr) == 0 {
			return nil, &TypeMismatchError{Want: target, Got: ArrayType(NoneType()), Msg: "empty array for non-empty array type"}
		}
		items := make([]Value, len(arr))
		for i, item := range arr {
			v, err := DecodeJSON(item, *target.Elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = v
		}
		return Array{Elem: target.Elem.AsRequired(), Items: items}, nil
	case TypeMap:
		obj, ok := raw.(map[string]any)
		if !ok {
			break
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]MapEntry, 0, len(obj))
		for _, k := range keys {
			kv, err := DecodeJSON(k, *target.Key)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			vv, err := DecodeJSON(obj[k], *target.Value)
			if err != nil {
				return nil, fmt.Errorf("map value for key %q: %w", k, err)
			}
			entries = append(entries, MapEntry{K: kv, V: vv})
		}
		return Map{KeyType: *target.Key, ValueType: *target.Value, Entries: entries}, nil
	case TypePair:
		obj, ok := raw.(map[string]any)
		if !ok || len(obj) != 2 {
			break
		}
		l, err := DecodeJSON(obj["left"], *target.Left)
		if err != nil {
			return nil, fmt.Errorf("pair left: %w", err)
		}
		r, err := DecodeJSON(obj["right"], *target.Right)
		if err != nil {
			return nil, fmt.Errorf("pair right: %w", err)
		}
		return Pair{LeftVal: l, RightVal: r}, nil
	case TypeStruct:
		obj, ok := raw.(map[string]any)
		if !ok {
			break
		}
		members := make(map[string]Value, len(target.Members))
		names := make([]string, 0, len(target.Members))
		for _, name := range sortedKeys(obj) {
			mt, ok := target.Members[name]
			if !ok {
				return nil, &TypeMismatchError{Want: target, Got: ObjectType(), Msg: fmt.Sprintf("unexpected member %q", name)}
			}
			v, err := DecodeJSON(obj[name], mt)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", name, err)
			}
			members[name] = v
			names = append(names, name)
		}
		for name, mt := range target.Members {
			if _, ok := members[name]; ok {
				continue
			}
			if !mt.Optional {
				return nil, &TypeMismatchError{Want: target, Got: ObjectType(), Msg: fmt.Sprintf("missing member %q", name)}
			}
			members[name] = None{}
			names = append(names, name)
		}
		return Struct{TypeName: target.Name, Names: names, Members: members}, nil
	case TypeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			break
		}
		members := make(map[string]Value, len(obj))
		names := sortedKeys(obj)
		for _, name := range names {
			v, err := decodeDynamic(obj[name])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", name, err)
			}
			members[name] = v
		}
		return Struct{Names: names, Members: members}, nil
	}

	return nil, &TypeMismatchError{Want: target, Got: ObjectType(), Msg: fmt.Sprintf("JSON value %v does not fit", raw)}
}

// decodeDynamic infers a Value from untyped JSON, for Object members.
func decodeDynamic(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return None{}, nil
	case bool:
		return Boolean(v), nil
	case string:
		return String(v), nil
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			dv, err := decodeDynamic(item)
			if err != nil {
				return nil, err
			}
			items[i] = dv
		}
		elem := StringType()
		if len(items) > 0 {
			elem = items[0].Type()
		}
		return Array{Elem: elem, Items: items}, nil
	case map[string]any:
		return DecodeJSON(v, ObjectType())
	}
	if n, ok := jsonNumber(raw); ok {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number: %w", err)
		}
		return Float(f), nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", raw)
}

func jsonNumber(raw any) (json.Number, bool) {
	switch n := raw.(type) {
	case json.Number:
		return n, true
	case float64:
		return json.Number(strconv.FormatFloat(n, 'g', -1, 64)), true
	case int:
		return json.Number(strconv.Itoa(n)), true
	case int64:
		return json.Number(strconv.FormatInt(n, 10)), true
	}
	return "", false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical renders a value as deterministic JSON text: object keys sorted,
// floats in shortest round-trip form. Used for invocation fingerprints, where
// equal values must yield equal bytes.
func Canonical(v Value) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case None:
		b.WriteString("null")
	case Boolean:
		b.WriteString(val.String())
	case Int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		b.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case String:
		writeJSONString(b, string(val))
	case File:
		writeJSONString(b, string(val))
	case Directory:
		writeJSONString(b, string(val))
	case Array:
		b.WriteString("[")
		for i, item := range val.Items {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, item)
		}
		b.WriteString("]")
	case Map:
		entries := make([]MapEntry, len(val.Entries))
		copy(entries, val.Entries)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].K.String() < entries[j].K.String()
		})
		b.WriteString("{")
		for i, e := range entries {
			if i > 0 {
				b.WriteString(",")
			}
			writeJSONString(b, e.K.String())
			b.WriteString(":")
			writeCanonical(b, e.V)
		}
		b.WriteString("}")
	case Pair:
		b.WriteString(`{"left":`)
		writeCanonical(b, val.LeftVal)
		b.WriteString(`,"right":`)
		writeCanonical(b, val.RightVal)
		b.WriteString("}")
	case Struct:
		names := make([]string, 0, len(val.Members))
		for name := range val.Members {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("{")
		for i, name := range names {
			if i > 0 {
				b.WriteString(",")
			}
			writeJSONString(b, name)
			b.WriteString(":")
			writeCanonical(b, val.Members[name])
		}
		b.WriteString("}")
	}
}

func writeJSONString(b *strings.Builder, s string) {
	data, _ := json.Marshal(s)
	b.Write(data)
}
