package wdl

import (
	"encoding/json"
	"testing"
)

func TestCanonicalDeterministic(t *testing.T) {
	// Equal maps with different insertion order must produce identical bytes.
	a := Map{KeyType: StringType(), ValueType: IntType(), Entries: []MapEntry{
		{K: String("b"), V: Int(2)}, {K: String("a"), V: Int(1)},
	}}
	b := Map{KeyType: StringType(), ValueType: IntType(), Entries: []MapEntry{
		{K: String("a"), V: Int(1)}, {K: String("b"), V: Int(2)},
	}}
	if Canonical(a) != Canonical(b) {
		t.Errorf("canonical forms differ: %s vs %s", Canonical(a), Canonical(b))
	}
	if Canonical(a) != `{"a":1,"b":2}` {
		t.Errorf("got %s", Canonical(a))
	}
}

func TestCanonicalShapes(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{None{}, "null"},
		{Boolean(true), "true"},
		{Int(-3), "-3"},
		{Float(2.5), "2.5"},
		{String(`a"b`), `"a\"b"`},
		{File("/x"), `"/x"`},
		{NewArray(IntType(), Int(1), Int(2)), "[1,2]"},
		{Pair{LeftVal: Int(1), RightVal: String("x")}, `{"left":1,"right":"x"}`},
	}
	for _, tt := range tests {
		if got := Canonical(tt.v); got != tt.want {
			t.Errorf("Canonical(%s) = %s, want %s", tt.v, got, tt.want)
		}
	}
}

func TestDecodeJSONByType(t *testing.T) {
	raw := map[string]any{}
	if err := json.Unmarshal([]byte(`{"n": 5, "f": 1.5, "files": ["a.txt"], "opt": null}`), &raw); err != nil {
		t.Fatal(err)
	}

	v, err := DecodeJSON(raw["n"], IntType())
	if err != nil {
		t.Fatalf("int: %v", err)
	}
	if v.(Int) != 5 {
		t.Errorf("got %v", v)
	}

	v, err = DecodeJSON(raw["n"], FloatType())
	if err != nil {
		t.Fatalf("int as float: %v", err)
	}
	if v.(Float) != 5.0 {
		t.Errorf("got %v", v)
	}

	v, err = DecodeJSON(raw["files"], ArrayType(FileType()))
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if v.(Array).Items[0].(File) != "a.txt" {
		t.Errorf("got %v", v)
	}

	v, err = DecodeJSON(raw["opt"], StringType().AsOptional())
	if err != nil {
		t.Fatalf("opt: %v", err)
	}
	if !IsNone(v) {
		t.Errorf("got %v, want None", v)
	}

	if _, err := DecodeJSON(raw["opt"], StringType()); err == nil {
		t.Error("null for required type must fail")
	}
	if _, err := DecodeJSON(raw["f"], IntType()); err == nil {
		t.Error("1.5 as Int must fail")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ty := MapType(StringType(), ArrayType(IntType()))
	orig := Map{KeyType: StringType(), ValueType: ArrayType(IntType()), Entries: []MapEntry{
		{K: String("xs"), V: NewArray(IntType(), Int(1), Int(2))},
	}}

	data, err := json.Marshal(EncodeJSON(orig))
	if err != nil {
		t.Fatal(err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	back, err := DecodeJSON(raw, ty)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equals(orig, back) {
		t.Errorf("round trip mismatch: %s vs %s", orig, back)
	}
}
