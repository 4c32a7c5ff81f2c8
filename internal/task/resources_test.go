package task

import (
	"testing"

	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/pkg/wdl"
)

func lit(v wdl.Value) wdl.Expr {
	return &wdl.Literal{Value: v}
}

func TestParseRuntime(t *testing.T) {
	ev := eval.New()
	res, err := parseRuntime(ev, eval.Env{}, map[string]wdl.Expr{
		"cpu":        lit(wdl.Int(4)),
		"memory":     lit(wdl.String("2 GiB")),
		"docker":     lit(wdl.String("ubuntu:24.04")),
		"maxRetries": lit(wdl.Int(1)),
		"disks":      lit(wdl.String("local-disk 50 SSD")), // ignored hint
	})
	if err != nil {
		t.Fatalf("parseRuntime: %v", err)
	}
	if res.CPU != 4 {
		t.Errorf("CPU = %d", res.CPU)
	}
	if res.MemoryBytes != 2<<30 {
		t.Errorf("MemoryBytes = %d, want %d", res.MemoryBytes, int64(2<<30))
	}
	if res.Image != "ubuntu:24.04" {
		t.Errorf("Image = %q", res.Image)
	}
	if res.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d", res.MaxRetries)
	}
}

func TestParseRuntimeMemoryForms(t *testing.T) {
	ev := eval.New()
	tests := []struct {
		expr wdl.Expr
		want int64
		ok   bool
	}{
		{lit(wdl.Int(1024)), 1024, true},
		{lit(wdl.String("512 MB")), 512_000_000, true},
		{lit(wdl.String("1GiB")), 1 << 30, true},
		{lit(wdl.String("lots")), 0, false},
		{lit(wdl.Boolean(true)), 0, false},
	}
	for _, tt := range tests {
		res, err := parseRuntime(ev, eval.Env{}, map[string]wdl.Expr{"memory": tt.expr})
		if tt.ok && (err != nil || res.MemoryBytes != tt.want) {
			t.Errorf("memory %v: got %d, %v", tt.expr, res.MemoryBytes, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("memory %v: expected error", tt.expr)
		}
	}
}

func TestExitAllowed(t *testing.T) {
	zeroOnly := Resources{}
	if !zeroOnly.ExitAllowed(0) || zeroOnly.ExitAllowed(1) {
		t.Error("default policy is zero-only")
	}

	listed := Resources{ReturnCodes: []int{3, 7}}
	for code, want := range map[int]bool{0: true, 3: true, 7: true, 1: false} {
		if got := listed.ExitAllowed(code); got != want {
			t.Errorf("listed.ExitAllowed(%d) = %v, want %v", code, got, want)
		}
	}

	star := Resources{AllowAll: true}
	if !star.ExitAllowed(137) {
		t.Error("returnCodes \"*\" accepts everything")
	}
}

func TestParseReturnCodesForms(t *testing.T) {
	ev := eval.New()

	res, err := parseRuntime(ev, eval.Env{}, map[string]wdl.Expr{"returnCodes": lit(wdl.String("*"))})
	if err != nil || !res.AllowAll {
		t.Errorf("star form: %+v, %v", res, err)
	}

	res, err = parseRuntime(ev, eval.Env{}, map[string]wdl.Expr{"returnCodes": lit(wdl.Int(3))})
	if err != nil || len(res.ReturnCodes) != 1 || res.ReturnCodes[0] != 3 {
		t.Errorf("int form: %+v, %v", res, err)
	}

	if _, err := parseRuntime(ev, eval.Env{}, map[string]wdl.Expr{"returnCodes": lit(wdl.String("any"))}); err == nil {
		t.Error("arbitrary string should be rejected")
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	tk := &wdl.Task{Name: "t", Version: "v1"}
	inputs := map[string]wdl.Value{
		"b": wdl.Int(2),
		"a": wdl.String("x"),
	}

	fp1 := Fingerprint(tk, inputs, "img:1")
	fp2 := Fingerprint(tk, map[string]wdl.Value{"a": wdl.String("x"), "b": wdl.Int(2)}, "img:1")
	if fp1 != fp2 {
		t.Error("equal invocations must fingerprint equally")
	}

	if Fingerprint(tk, map[string]wdl.Value{"a": wdl.String("y"), "b": wdl.Int(2)}, "img:1") == fp1 {
		t.Error("input change must change the fingerprint")
	}
	if Fingerprint(tk, inputs, "img:2") == fp1 {
		t.Error("image change must change the fingerprint")
	}
	if Fingerprint(&wdl.Task{Name: "t", Version: "v2"}, inputs, "img:1") == fp1 {
		t.Error("task version change must change the fingerprint")
	}
}
