package graph

import (
	"errors"
	"testing"

	"github.com/me/wdlrun/pkg/wdl"
)

func lit(v wdl.Value) wdl.Expr { return &wdl.Literal{Value: v} }

func findByName(t *testing.T, g *Graph, name string) *Node {
	t.Helper()
	for _, n := range g.Nodes() {
		if n.DisplayName() == name {
			return n
		}
	}
	t.Fatalf("node %q not found", name)
	return nil
}

func hasDep(n *Node, id NodeID) bool {
	for _, d := range n.Deps {
		if d == id {
			return true
		}
	}
	return false
}

func TestBuildWiresDeclChain(t *testing.T) {
	// a = x + 1; b = a * 2; output o = b
	wf := &wdl.Workflow{
		Name:   "wf",
		Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
		Body: []wdl.Stmt{
			&wdl.Decl{Name: "a", Type: wdl.IntType(), Expr: &wdl.Binary{Op: wdl.OpAdd, Left: &wdl.Ident{Name: "x"}, Right: lit(wdl.Int(1))}},
			&wdl.Decl{Name: "b", Type: wdl.IntType(), Expr: &wdl.Binary{Op: wdl.OpMul, Left: &wdl.Ident{Name: "a"}, Right: lit(wdl.Int(2))}},
		},
		Outputs: []*wdl.Decl{
			{Name: "o", Type: wdl.IntType(), Expr: &wdl.Ident{Name: "b"}},
		},
	}
	g, err := Build(wf, map[string]wdl.Value{"x": wdl.Int(5)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("got %d nodes", g.Len())
	}

	a := findByName(t, g, "a")
	b := findByName(t, g, "b")
	o := findByName(t, g, "output.o")

	if len(a.Deps) != 0 {
		t.Errorf("a should only read the input, deps = %v", a.Deps)
	}
	if !hasDep(b, a.ID) {
		t.Errorf("b should depend on a, deps = %v", b.Deps)
	}
	if !hasDep(o, b.ID) {
		t.Errorf("output should depend on b, deps = %v", o.Deps)
	}
}

func TestBuildRejectsForwardReference(t *testing.T) {
	wf := &wdl.Workflow{
		Name: "wf",
		Body: []wdl.Stmt{
			&wdl.Decl{Name: "a", Type: wdl.IntType(), Expr: &wdl.Ident{Name: "b"}},
			&wdl.Decl{Name: "b", Type: wdl.IntType(), Expr: lit(wdl.Int(1))},
		},
	}
	_, err := Build(wf, nil)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
}

func TestBuildRejectsDuplicateBinding(t *testing.T) {
	wf := &wdl.Workflow{
		Name: "wf",
		Body: []wdl.Stmt{
			&wdl.Decl{Name: "a", Type: wdl.IntType(), Expr: lit(wdl.Int(1))},
			&wdl.Decl{Name: "a", Type: wdl.IntType(), Expr: lit(wdl.Int(2))},
		},
	}
	if _, err := Build(wf, nil); err == nil {
		t.Fatal("expected duplicate-binding error")
	}
}

func TestBuildCallAfterEdge(t *testing.T) {
	wf := &wdl.Workflow{
		Name: "wf",
		Body: []wdl.Stmt{
			&wdl.Call{Task: "first"},
			&wdl.Call{Task: "second", After: []string{"first"}},
		},
	}
	g, err := Build(wf, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first := findByName(t, g, "first")
	second := findByName(t, g, "second")
	if !hasDep(second, first.ID) {
		t.Errorf("after should create an edge, deps = %v", second.Deps)
	}
}

func TestBuildScatterDependsOnBodyExternals(t *testing.T) {
	// d is only referenced inside the scatter body; the scatter node must
	// still wait for it so expansion sees a bound value.
	wf := &wdl.Workflow{
		Name:   "wf",
		Inputs: []*wdl.Decl{{Name: "xs", Type: wdl.ArrayType(wdl.IntType())}},
		Body: []wdl.Stmt{
			&wdl.Decl{Name: "d", Type: wdl.IntType(), Expr: lit(wdl.Int(10))},
			&wdl.Scatter{
				Var:        "x",
				Collection: &wdl.Ident{Name: "xs"},
				Body: []wdl.Stmt{
					&wdl.Decl{Name: "y", Type: wdl.IntType(), Expr: &wdl.Binary{Op: wdl.OpAdd, Left: &wdl.Ident{Name: "x"}, Right: &wdl.Ident{Name: "d"}}},
				},
			},
		},
	}
	g, err := Build(wf, map[string]wdl.Value{"xs": wdl.NewArray(wdl.IntType())})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := findByName(t, g, "d")
	sc := findByName(t, g, "scatter.x")
	if !hasDep(sc, d.ID) {
		t.Errorf("scatter should depend on d, deps = %v", sc.Deps)
	}
	if len(sc.BodyBinds) != 1 || sc.BodyBinds[0] != "y" {
		t.Errorf("BodyBinds = %v", sc.BodyBinds)
	}
	if !sc.BindTypes["y"].Equal(wdl.IntType()) {
		t.Errorf("BindTypes[y] = %v", sc.BindTypes["y"])
	}
	// The scatter variable itself must not leak into dependencies.
	if g.Len() != 2 {
		t.Errorf("bodies must not materialize at build time, got %d nodes", g.Len())
	}
}

func TestBuildScatterVarNotVisibleOutside(t *testing.T) {
	wf := &wdl.Workflow{
		Name:   "wf",
		Inputs: []*wdl.Decl{{Name: "xs", Type: wdl.ArrayType(wdl.IntType())}},
		Body: []wdl.Stmt{
			&wdl.Scatter{Var: "x", Collection: &wdl.Ident{Name: "xs"}, Body: nil},
			&wdl.Decl{Name: "bad", Type: wdl.IntType(), Expr: &wdl.Ident{Name: "x"}},
		},
	}
	var be *BuildError
	if _, err := Build(wf, nil); !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
}

func TestBuildConditionalBindsBodyNames(t *testing.T) {
	wf := &wdl.Workflow{
		Name:   "wf",
		Inputs: []*wdl.Decl{{Name: "go", Type: wdl.BooleanType()}},
		Body: []wdl.Stmt{
			&wdl.Conditional{
				Cond: &wdl.Ident{Name: "go"},
				Body: []wdl.Stmt{
					&wdl.Decl{Name: "v", Type: wdl.IntType(), Expr: lit(wdl.Int(1))},
				},
			},
			&wdl.Decl{Name: "after", Type: wdl.IntType().AsOptional(), Expr: &wdl.Ident{Name: "v"}},
		},
	}
	g, err := Build(wf, map[string]wdl.Value{"go": wdl.Boolean(true)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cond := findByName(t, g, "if")
	after := findByName(t, g, "after")
	if !hasDep(after, cond.ID) {
		t.Errorf("after should depend on the conditional, deps = %v", after.Deps)
	}
	if !cond.BindTypes["v"].Optional {
		t.Error("conditional body binding should surface as optional")
	}
}
