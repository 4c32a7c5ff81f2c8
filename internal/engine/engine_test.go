package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/wdlrun/internal/backend"
	"github.com/me/wdlrun/internal/cache"
	"github.com/me/wdlrun/internal/graph"
	"github.com/me/wdlrun/internal/task"
	"github.com/me/wdlrun/pkg/wdl"
)

// fakeBackend emulates a shell that understands two scripts: "echo X" writes
// X to stdout, "exit N" exits with code N. failFirst injects transient
// errors into the leading calls.
type fakeBackend struct {
	calls     atomic.Int64
	failFirst int64
}

func (f *fakeBackend) Run(ctx context.Context, spec backend.Spec) (*backend.Result, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	call := f.calls.Add(1)
	if call <= f.failFirst {
		return nil, fmt.Errorf("transient backend outage")
	}

	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(spec.StderrPath, nil, 0o644); err != nil {
		return nil, err
	}

	stdout := ""
	exit := 0
	switch {
	case strings.HasPrefix(spec.Script, "echo "):
		stdout = strings.TrimPrefix(spec.Script, "echo ") + "\n"
	case strings.HasPrefix(spec.Script, "exit "):
		exit, _ = strconv.Atoi(strings.TrimPrefix(spec.Script, "exit "))
	}
	if err := os.WriteFile(spec.StdoutPath, []byte(stdout), 0o644); err != nil {
		return nil, err
	}
	return &backend.Result{ExitCode: exit}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ident(name string) wdl.Expr {
	return &wdl.Ident{Name: name}
}

func intLit(n int64) wdl.Expr {
	return &wdl.Literal{Value: wdl.Int(n)}
}

func addOneTask() *wdl.Task {
	return &wdl.Task{
		Name:    "addOne",
		Version: "v1",
		Inputs:  []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
		Command: []wdl.CommandPart{
			{Text: "echo "},
			{Placeholder: &wdl.Placeholder{Expr: &wdl.Binary{
				Op:    wdl.OpAdd,
				Left:  ident("x"),
				Right: intLit(1),
			}}},
		},
		Outputs: []*wdl.Decl{{
			Name: "result",
			Type: wdl.IntType(),
			Expr: &wdl.Apply{Func: "read_int", Args: []wdl.Expr{&wdl.Apply{Func: "stdout"}}},
		}},
	}
}

func boomTask() *wdl.Task {
	return &wdl.Task{
		Name:    "boom",
		Command: []wdl.CommandPart{{Text: "exit 1"}},
	}
}

func newTestEngine(t *testing.T, doc *wdl.Document, fb *fakeBackend, store *cache.Store, cfg Config) *Engine {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	runner := task.NewRunner(fb, store, nil, discard())
	return New(doc, runner, cfg, discard())
}

func nodeStatus(t *testing.T, e *Engine, name string) string {
	t.Helper()
	for _, n := range e.Snapshot().Nodes {
		if n.Name == name {
			return n.Status
		}
	}
	t.Fatalf("no node named %q in snapshot", name)
	return ""
}

func TestRunDeclChain(t *testing.T) {
	doc := &wdl.Document{
		Workflow: &wdl.Workflow{
			Name: "chain",
			Body: []wdl.Stmt{
				&wdl.Decl{Name: "a", Type: wdl.IntType(), Expr: intLit(1)},
				&wdl.Decl{Name: "b", Type: wdl.IntType(), Expr: &wdl.Binary{Op: wdl.OpAdd, Left: ident("a"), Right: intLit(1)}},
			},
			Outputs: []*wdl.Decl{{
				Name: "c",
				Type: wdl.IntType(),
				Expr: &wdl.Binary{Op: wdl.OpAdd, Left: ident("b"), Right: intLit(1)},
			}},
		},
	}

	e := newTestEngine(t, doc, &fakeBackend{}, nil, Config{})
	res, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.Equals(res.Outputs["c"], wdl.Int(3)) {
		t.Errorf("c = %v, want 3", res.Outputs["c"])
	}
}

func TestRunAddOneEndToEnd(t *testing.T) {
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name:   "wf",
			Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
			Body: []wdl.Stmt{
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
			},
			Outputs: []*wdl.Decl{{
				Name: "y",
				Type: wdl.IntType(),
				Expr: &wdl.Member{X: ident("addOne"), Name: "result"},
			}},
		},
	}

	store, err := cache.Open(":memory:", discard())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	fb := &fakeBackend{}
	e := newTestEngine(t, doc, fb, store, Config{})
	inputs := map[string]wdl.Value{"x": wdl.Int(5)}

	res, err := e.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.Equals(res.Outputs["y"], wdl.Int(6)) {
		t.Errorf("y = %v, want 6", res.Outputs["y"])
	}
	if got := fb.calls.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}

	// Warm-cache rerun: same result, zero new executions.
	res, err = e.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if !wdl.Equals(res.Outputs["y"], wdl.Int(6)) {
		t.Errorf("rerun y = %v, want 6", res.Outputs["y"])
	}
	if got := fb.calls.Load(); got != 1 {
		t.Errorf("rerun executed %d times, want 0 new", got-1)
	}
}

func scatterDoc() *wdl.Document {
	return &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name:   "sweep",
			Inputs: []*wdl.Decl{{Name: "ns", Type: wdl.ArrayType(wdl.IntType())}},
			Body: []wdl.Stmt{
				&wdl.Scatter{Var: "n", Collection: ident("ns"), Body: []wdl.Stmt{
					&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("n")}},
					&wdl.Decl{Name: "bumped", Type: wdl.IntType(), Expr: &wdl.Member{X: ident("addOne"), Name: "result"}},
				}},
			},
			Outputs: []*wdl.Decl{{
				Name: "ys",
				Type: wdl.ArrayType(wdl.IntType()),
				Expr: ident("bumped"),
			}},
		},
	}
}

func TestRunScatterOrderedGather(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, scatterDoc(), fb, nil, Config{MaxConcurrency: 2})

	res, err := e.Run(context.Background(), map[string]wdl.Value{
		"ns": wdl.NewArray(wdl.IntType(), wdl.Int(1), wdl.Int(2), wdl.Int(3)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := wdl.NewArray(wdl.IntType(), wdl.Int(2), wdl.Int(3), wdl.Int(4))
	if !wdl.Equals(res.Outputs["ys"], want) {
		t.Errorf("ys = %v, want %v", res.Outputs["ys"], want)
	}
	if got := fb.calls.Load(); got != 3 {
		t.Errorf("executions = %d, want 3", got)
	}
}

func TestRunEmptyScatter(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, scatterDoc(), fb, nil, Config{})

	res, err := e.Run(context.Background(), map[string]wdl.Value{
		"ns": wdl.NewArray(wdl.IntType()),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	arr, ok := res.Outputs["ys"].(wdl.Array)
	if !ok || len(arr.Items) != 0 {
		t.Errorf("ys = %v, want empty array", res.Outputs["ys"])
	}
	if got := fb.calls.Load(); got != 0 {
		t.Errorf("executions = %d, want 0", got)
	}
}

func conditionalDoc() *wdl.Document {
	return &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name: "maybe",
			Inputs: []*wdl.Decl{
				{Name: "flag", Type: wdl.BooleanType()},
				{Name: "x", Type: wdl.IntType()},
			},
			Body: []wdl.Stmt{
				&wdl.Conditional{Cond: ident("flag"), Body: []wdl.Stmt{
					&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
					&wdl.Decl{Name: "bumped", Type: wdl.IntType(), Expr: &wdl.Member{X: ident("addOne"), Name: "result"}},
				}},
			},
			Outputs: []*wdl.Decl{{
				Name: "res",
				Type: wdl.IntType().AsOptional(),
				Expr: ident("bumped"),
			}},
		},
	}
}

func TestRunConditionalTrue(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, conditionalDoc(), fb, nil, Config{})

	res, err := e.Run(context.Background(), map[string]wdl.Value{
		"flag": wdl.Boolean(true),
		"x":    wdl.Int(5),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.Equals(res.Outputs["res"], wdl.Int(6)) {
		t.Errorf("res = %v, want 6", res.Outputs["res"])
	}
	if got := fb.calls.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}
}

func TestRunConditionalFalseSkips(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, conditionalDoc(), fb, nil, Config{})

	res, err := e.Run(context.Background(), map[string]wdl.Value{
		"flag": wdl.Boolean(false),
		"x":    wdl.Int(5),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.IsNone(res.Outputs["res"]) {
		t.Errorf("res = %v, want None", res.Outputs["res"])
	}
	if got := fb.calls.Load(); got != 0 {
		t.Errorf("executions = %d, want 0", got)
	}
	if got := nodeStatus(t, e, "if"); got != string(graph.StatusSkipped) {
		t.Errorf("conditional status = %s, want %s", got, graph.StatusSkipped)
	}
}

func TestRunConditionalFalseCallMemberAccess(t *testing.T) {
	// The usual way to consume a conditional call from outside is a member
	// access on the call name; with a false guard it must resolve to None,
	// not fail evaluation.
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name: "maybeDirect",
			Inputs: []*wdl.Decl{
				{Name: "flag", Type: wdl.BooleanType()},
				{Name: "x", Type: wdl.IntType()},
			},
			Body: []wdl.Stmt{
				&wdl.Conditional{Cond: ident("flag"), Body: []wdl.Stmt{
					&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
				}},
			},
			Outputs: []*wdl.Decl{{
				Name: "res",
				Type: wdl.IntType().AsOptional(),
				Expr: &wdl.Member{X: ident("addOne"), Name: "result"},
			}},
		},
	}

	fb := &fakeBackend{}
	e := newTestEngine(t, doc, fb, nil, Config{})

	res, err := e.Run(context.Background(), map[string]wdl.Value{
		"flag": wdl.Boolean(false),
		"x":    wdl.Int(5),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.IsNone(res.Outputs["res"]) {
		t.Errorf("res = %v, want None", res.Outputs["res"])
	}
	if got := fb.calls.Load(); got != 0 {
		t.Errorf("executions = %d, want 0", got)
	}
}

func failureDoc() *wdl.Document {
	return &wdl.Document{
		Tasks: map[string]*wdl.Task{
			"addOne": addOneTask(),
			"boom":   boomTask(),
		},
		Workflow: &wdl.Workflow{
			Name:   "fails",
			Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
			Body: []wdl.Stmt{
				&wdl.Call{Task: "boom"},
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}, After: []string{"boom"}},
			},
			Outputs: []*wdl.Decl{},
		},
	}
}

func TestRunFailFastCancelsUnstarted(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, failureDoc(), fb, nil, Config{FailFast: true})

	_, err := e.Run(context.Background(), map[string]wdl.Value{"x": wdl.Int(5)})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := fb.calls.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}
	if got := nodeStatus(t, e, "addOne"); got != string(graph.StatusCanceled) {
		t.Errorf("addOne status = %s, want %s", got, graph.StatusCanceled)
	}
	if got := nodeStatus(t, e, "boom"); got != string(graph.StatusFailed) {
		t.Errorf("boom status = %s, want %s", got, graph.StatusFailed)
	}
}

func TestRunFailFastIndependentSibling(t *testing.T) {
	// Two unrelated calls, one slot: the first fails, the queued sibling must
	// end Canceled without ever reaching the backend.
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{
			"addOne": addOneTask(),
			"boom":   boomTask(),
		},
		Workflow: &wdl.Workflow{
			Name:   "unrelated",
			Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
			Body: []wdl.Stmt{
				&wdl.Call{Task: "boom"},
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
			},
		},
	}

	fb := &fakeBackend{}
	e := newTestEngine(t, doc, fb, nil, Config{FailFast: true, MaxConcurrency: 1})

	_, err := e.Run(context.Background(), map[string]wdl.Value{"x": wdl.Int(5)})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := fb.calls.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}
	if got := nodeStatus(t, e, "boom"); got != string(graph.StatusFailed) {
		t.Errorf("boom status = %s, want %s", got, graph.StatusFailed)
	}
	if got := nodeStatus(t, e, "addOne"); got != string(graph.StatusCanceled) {
		t.Errorf("independent sibling status = %s, want %s", got, graph.StatusCanceled)
	}
}

func TestRunCallInputEvalErrorFailsNode(t *testing.T) {
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name: "badInput",
			Body: []wdl.Stmt{
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{
					"x": &wdl.Binary{Op: wdl.OpDiv, Left: intLit(1), Right: intLit(0)},
				}},
			},
		},
	}

	fb := &fakeBackend{}
	e := newTestEngine(t, doc, fb, nil, Config{FailFast: true})

	_, err := e.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := fb.calls.Load(); got != 0 {
		t.Errorf("executions = %d, want 0", got)
	}
	if got := nodeStatus(t, e, "addOne"); got != string(graph.StatusFailed) {
		t.Errorf("addOne status = %s, want %s", got, graph.StatusFailed)
	}
}

func TestRunContinueOnFailure(t *testing.T) {
	doc := failureDoc()
	// An independent second branch that must still run to completion.
	doc.Workflow.Body = append(doc.Workflow.Body,
		&wdl.Call{Task: "addOne", Alias: "also", Inputs: map[string]wdl.Expr{"x": ident("x")}})

	fb := &fakeBackend{}
	e := newTestEngine(t, doc, fb, nil, Config{})

	res, err := e.Run(context.Background(), map[string]wdl.Value{"x": wdl.Int(5)})
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if len(res.Failed) != 1 {
		t.Errorf("Failed = %v, want one entry", res.Failed)
	}
	if got := fb.calls.Load(); got != 2 {
		t.Errorf("executions = %d, want 2 (boom and the independent branch)", got)
	}
	if got := nodeStatus(t, e, "also"); got != string(graph.StatusSucceeded) {
		t.Errorf("also status = %s, want %s", got, graph.StatusSucceeded)
	}
	if got := nodeStatus(t, e, "addOne"); got != string(graph.StatusSkipped) {
		t.Errorf("dependent of failed call = %s, want %s", got, graph.StatusSkipped)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name:   "flaky",
			Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
			Body: []wdl.Stmt{
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
			},
			Outputs: []*wdl.Decl{{
				Name: "y",
				Type: wdl.IntType(),
				Expr: &wdl.Member{X: ident("addOne"), Name: "result"},
			}},
		},
	}

	fb := &fakeBackend{failFirst: 2}
	e := newTestEngine(t, doc, fb, nil, Config{MaxAttempts: 3})

	res, err := e.Run(context.Background(), map[string]wdl.Value{"x": wdl.Int(5)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wdl.Equals(res.Outputs["y"], wdl.Int(6)) {
		t.Errorf("y = %v, want 6", res.Outputs["y"])
	}
	if got := fb.calls.Load(); got != 3 {
		t.Errorf("executions = %d, want 3", got)
	}
}

func TestRunRetriesExhausted(t *testing.T) {
	doc := &wdl.Document{
		Tasks: map[string]*wdl.Task{"addOne": addOneTask()},
		Workflow: &wdl.Workflow{
			Name:   "doomed",
			Inputs: []*wdl.Decl{{Name: "x", Type: wdl.IntType()}},
			Body: []wdl.Stmt{
				&wdl.Call{Task: "addOne", Inputs: map[string]wdl.Expr{"x": ident("x")}},
			},
		},
	}

	fb := &fakeBackend{failFirst: 100}
	e := newTestEngine(t, doc, fb, nil, Config{MaxAttempts: 2})

	_, err := e.Run(context.Background(), map[string]wdl.Value{"x": wdl.Int(5)})
	if err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
	if got := fb.calls.Load(); got != 2 {
		t.Errorf("executions = %d, want 2", got)
	}
}

func TestSnapshotAfterRun(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, scatterDoc(), fb, nil, Config{})

	if _, err := e.Run(context.Background(), map[string]wdl.Value{
		"ns": wdl.NewArray(wdl.IntType(), wdl.Int(1), wdl.Int(2)),
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := e.Snapshot()
	if snap.Workflow != "sweep" || snap.RunID == "" {
		t.Errorf("snapshot header = %+v", snap)
	}
	// Scatter header, 2x2 children, output node.
	if len(snap.Nodes) != 6 {
		t.Errorf("nodes = %d, want 6", len(snap.Nodes))
	}
	for _, n := range snap.Nodes {
		if n.Status != string(graph.StatusSucceeded) {
			t.Errorf("node %s status = %s, want %s", n.Name, n.Status, graph.StatusSucceeded)
		}
	}
}
