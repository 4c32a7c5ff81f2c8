package wdl

import "testing"

func TestParseType(t *testing.T) {
	structs := map[string]Type{
		"Sample": StructType("Sample", map[string]Type{
			"name":  StringType(),
			"reads": ArrayType(FileType()),
		}),
	}

	tests := []struct {
		in   string
		want Type
	}{
		{"Int", IntType()},
		{"Float?", FloatType().AsOptional()},
		{"File", FileType()},
		{"Array[File]", ArrayType(FileType())},
		{"Array[Int]+", Type{Kind: TypeArray, NonEmpty: true, Elem: &Type{Kind: TypeInt}}},
		{"Array[String]+?", Type{Kind: TypeArray, NonEmpty: true, Optional: true, Elem: &Type{Kind: TypeString}}},
		{"Map[String, Int]", MapType(StringType(), IntType())},
		{"Pair[Int, String]", PairType(IntType(), StringType())},
		{"Array[Array[Int]]", ArrayType(ArrayType(IntType()))},
		{"Sample", structs["Sample"]},
		{"Sample?", structs["Sample"].AsOptional()},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.in, structs)
		if err != nil {
			t.Errorf("ParseType(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "Array[", "Map[String]", "Frobnicate", "Int extra"} {
		if _, err := ParseType(in, nil); err == nil {
			t.Errorf("ParseType(%q): expected error", in)
		}
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		in   Type
		want string
	}{
		{IntType(), "Int"},
		{FloatType().AsOptional(), "Float?"},
		{ArrayType(FileType()), "Array[File]"},
		{Type{Kind: TypeArray, NonEmpty: true, Optional: true, Elem: &Type{Kind: TypeInt}}, "Array[Int]+?"},
		{MapType(StringType(), IntType()), "Map[String,Int]"},
		{PairType(IntType(), FloatType()), "Pair[Int,Float]"},
		{StructType("Sample", nil), "Sample"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeRoundTrip(t *testing.T) {
	// String() output must parse back to an equal type.
	types := []Type{
		IntType(),
		ArrayType(MapType(StringType(), FloatType().AsOptional())),
		PairType(ArrayType(FileType()), IntType()).AsOptional(),
	}
	for _, ty := range types {
		got, err := ParseType(ty.String(), nil)
		if err != nil {
			t.Fatalf("reparse %s: %v", ty, err)
		}
		if !got.Equal(ty) {
			t.Errorf("round trip %s: got %s", ty, got)
		}
	}
}
