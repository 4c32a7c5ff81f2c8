package loader

import (
	"strings"
	"testing"

	"github.com/me/wdlrun/pkg/wdl"
)

func testWorkflow() *wdl.Workflow {
	return &wdl.Workflow{
		Name: "wf",
		Inputs: []*wdl.Decl{
			{Name: "x", Type: wdl.IntType()},
			{Name: "label", Type: wdl.StringType().AsOptional()},
			{Name: "threads", Type: wdl.IntType(), Expr: &wdl.Literal{Value: wdl.Int(4)}},
			{Name: "reads", Type: wdl.ArrayType(wdl.FileType())},
		},
	}
}

func TestDecodeInputs(t *testing.T) {
	raw := map[string]any{
		"wf.x":     5,
		"wf.reads": []any{"a.fq", "b.fq"},
	}
	got, err := DecodeInputs(raw, testWorkflow())
	if err != nil {
		t.Fatalf("DecodeInputs: %v", err)
	}
	if got["x"].(wdl.Int) != 5 {
		t.Errorf("x = %v", got["x"])
	}
	if !wdl.IsNone(got["label"]) {
		t.Errorf("unset optional should be None, got %v", got["label"])
	}
	// Defaulted input left for declaration evaluation.
	if _, ok := got["threads"]; ok {
		t.Error("defaulted input should not be pre-bound")
	}
	reads := got["reads"].(wdl.Array)
	if len(reads.Items) != 2 || reads.Items[0].(wdl.File) != "a.fq" {
		t.Errorf("reads = %v", reads)
	}
}

func TestDecodeInputsErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{"missing required", map[string]any{"wf.reads": []any{}}, "missing required input"},
		{"unknown key", map[string]any{"wf.x": 1, "wf.reads": []any{}, "wf.zzz": 1}, "unknown input"},
		{"wrong workflow", map[string]any{"other.x": 1}, "does not belong"},
		{"type mismatch", map[string]any{"wf.x": "five", "wf.reads": []any{}}, "does not fit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInputs(tt.raw, testWorkflow())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadInputsFiles(t *testing.T) {
	wf := &wdl.Workflow{Name: "wf", Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}}}

	got, err := LoadInputs(writeFile(t, "in.json", `{"wf.x": 7}`), wf)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if got["x"].(wdl.Int) != 7 {
		t.Errorf("x = %v", got["x"])
	}

	got, err = LoadInputs(writeFile(t, "in.yaml", "wf.x: 9\n"), wf)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if got["x"].(wdl.Int) != 9 {
		t.Errorf("x = %v", got["x"])
	}

	// No inputs file at all is valid when every input has a default or is
	// optional.
	opt := &wdl.Workflow{Name: "wf", Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType().AsOptional()}}}
	got, err = LoadInputs("", opt)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if !wdl.IsNone(got["x"]) {
		t.Errorf("x = %v", got["x"])
	}
}
