package wdl

import (
	"errors"
	"testing"
)

func TestCoerceWidening(t *testing.T) {
	v, err := Coerce(Int(3), FloatType())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if f, ok := v.(Float); !ok || f != 3.0 {
		t.Errorf("got %v, want Float 3.0", v)
	}
}

func TestCoerceNarrowingRejected(t *testing.T) {
	var tm *TypeMismatchError

	_, err := Coerce(Float(3.5), IntType())
	if !errors.As(err, &tm) {
		t.Errorf("Float->Int: expected TypeMismatchError, got %v", err)
	}

	_, err = Coerce(None{}, IntType())
	if !errors.As(err, &tm) {
		t.Errorf("None->Int: expected TypeMismatchError, got %v", err)
	}
}

func TestCoerceOptionalWrapping(t *testing.T) {
	// A required Int is accepted where Int? is expected.
	v, err := Coerce(Int(7), IntType().AsOptional())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if i, ok := v.(Int); !ok || i != 7 {
		t.Errorf("got %v, want Int 7", v)
	}

	// None is accepted for any optional.
	v, err = Coerce(None{}, FileType().AsOptional())
	if err != nil {
		t.Fatalf("Coerce None: %v", err)
	}
	if !IsNone(v) {
		t.Errorf("got %v, want None", v)
	}
}

func TestCoerceStringFile(t *testing.T) {
	v, err := Coerce(String("/data/reads.fq"), FileType())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if f, ok := v.(File); !ok || f != "/data/reads.fq" {
		t.Errorf("got %v, want File", v)
	}

	v, err = Coerce(File("/data/reads.fq"), StringType())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if _, ok := v.(String); !ok {
		t.Errorf("got %T, want String", v)
	}
}

func TestCoerceArrayElementwise(t *testing.T) {
	arr := NewArray(IntType(), Int(1), Int(2))
	v, err := Coerce(arr, ArrayType(FloatType()))
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	got := v.(Array)
	for i, item := range got.Items {
		if _, ok := item.(Float); !ok {
			t.Errorf("element %d: got %T, want Float", i, item)
		}
	}
}

func TestCoerceNonEmptyArray(t *testing.T) {
	empty := NewArray(IntType())
	target := Type{Kind: TypeArray, NonEmpty: true, Elem: &Type{Kind: TypeInt}}
	if _, err := Coerce(empty, target); err == nil {
		t.Fatal("expected non-empty violation")
	}
}

func TestCoerceStruct(t *testing.T) {
	target := StructType("Sample", map[string]Type{
		"name":  StringType(),
		"depth": IntType().AsOptional(),
	})

	src := NewStruct("", []string{"name"}, map[string]Value{"name": String("s1")})
	v, err := Coerce(src, target)
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	s := v.(Struct)
	if s.TypeName != "Sample" {
		t.Errorf("TypeName = %q, want Sample", s.TypeName)
	}
	if d, ok := s.Field("depth"); !ok || !IsNone(d) {
		t.Errorf("missing optional member should fill with None, got (%v, %v)", d, ok)
	}

	// Missing required member is rejected.
	bad := NewStruct("", nil, map[string]Value{"depth": Int(30)})
	if _, err := Coerce(bad, target); err == nil {
		t.Fatal("expected missing-member error")
	}

	// Extra member is rejected.
	extra := NewStruct("", []string{"name", "zzz"}, map[string]Value{
		"name": String("s1"), "zzz": Int(1),
	})
	if _, err := Coerce(extra, target); err == nil {
		t.Fatal("expected unexpected-member error")
	}
}
