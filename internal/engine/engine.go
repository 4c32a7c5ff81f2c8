// Package engine schedules workflow graph execution: it walks the graph built
// by the graph package, evaluates declarations inline, dispatches calls to the
// task runner with bounded concurrency, and expands scatter and conditional
// bodies once their inputs are known.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/internal/graph"
	"github.com/me/wdlrun/internal/logging"
	"github.com/me/wdlrun/internal/task"
	"github.com/me/wdlrun/pkg/wdl"
)

// Config tunes a workflow execution.
type Config struct {
	// MaxConcurrency bounds simultaneously running tasks. Zero or negative
	// means unlimited.
	MaxConcurrency int
	// FailFast cancels unstarted work on the first final task failure.
	// Otherwise execution continues and failures aggregate.
	FailFast bool
	// MaxAttempts caps executions of one invocation, retries included.
	MaxAttempts int
	// BackoffBase and BackoffMax shape the retry delay: full jitter over an
	// exponentially growing window.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// WorkDir is the root under which per-call work directories are created.
	WorkDir string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// Result is a finished workflow execution.
type Result struct {
	RunID   string
	Outputs map[string]wdl.Value
	// Failed collects the node failures of a continue-on-failure run; empty
	// on success.
	Failed []error
}

// Engine executes workflows.
type Engine struct {
	doc    *wdl.Document
	runner *task.Runner
	cfg    Config
	logger *slog.Logger

	stateMu sync.Mutex
	state   *runState // current run, for monitor snapshots
}

// New creates an Engine over a validated document.
func New(doc *wdl.Document, runner *task.Runner, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		doc:    doc,
		runner: runner,
		cfg:    cfg.withDefaults(),
		logger: logging.Component(logger, "engine"),
	}
}

// envKey addresses one binding group: the bindings produced by the nodes of a
// single expansion (owner node and, for scatters, iteration). Top-level nodes
// share the group keyed by NoOwner.
type envKey struct {
	owner graph.NodeID
	index int
}

// expansion tracks an open scatter or conditional whose children are still
// running.
type expansion struct {
	node        *graph.Node
	iterations  int
	outstanding int
	failed      bool
}

type callResult struct {
	id      graph.NodeID
	outcome *task.Outcome
	err     error
}

// pendingCall is a call whose inputs are evaluated but which is queued for a
// free concurrency slot. The node stays Ready until dispatched.
type pendingCall struct {
	id  graph.NodeID
	inv task.Invocation
}

// Run executes the workflow with the given concrete inputs until every node
// is terminal. The returned error is non-nil when any node failed.
func (e *Engine) Run(ctx context.Context, inputs map[string]wdl.Value) (*Result, error) {
	wf := e.doc.Workflow
	if wf == nil {
		return nil, errors.New("document has no workflow")
	}

	runID := uuid.New().String()[:8]
	logger := e.logger.With("run", runID, "workflow", wf.Name)
	logger.Info("starting", "inputs", len(inputs))

	g, err := graph.Build(wf, inputs)
	if err != nil {
		return nil, err
	}

	env, err := e.bindWorkflowInputs(wf, inputs)
	if err != nil {
		return nil, err
	}

	st := newRunState(runID, wf.Name, g, env, logger)
	e.setState(st)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan callResult)
	sem := newSemaphore(e.cfg.MaxConcurrency)

	for _, n := range g.Nodes() {
		st.register(n)
	}
	ready := st.initialReady()

	// Calls queued behind the concurrency limit; the loop dispatches them as
	// slots free up, so an undispatched call stays Ready and cancelable.
	var waiting []pendingCall
	inflight := 0
	for {
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			dispatched := e.process(ctx, st, id, &ready, &waiting, results, sem, logger)
			if dispatched {
				inflight++
			}
		}
		if inflight == 0 {
			break
		}

		res := <-results
		inflight--
		sem.Release()
		e.handleResult(st, res, &ready, logger)
		if st.stopRequested {
			cancel()
			st.cancelUnstarted()
			ready, waiting = nil, nil
			continue
		}
		for len(waiting) > 0 && sem.TryAcquire() {
			pc := waiting[0]
			waiting = waiting[1:]
			e.dispatch(ctx, st, pc, results)
			inflight++
		}
	}

	st.skipUnreached()
	return e.finish(st, wf, logger)
}

// bindWorkflowInputs coerces provided inputs and evaluates defaulted input
// declarations in order.
func (e *Engine) bindWorkflowInputs(wf *wdl.Workflow, inputs map[string]wdl.Value) (eval.Env, error) {
	ev := eval.New()
	env := make(eval.Env, len(wf.Inputs))
	for _, decl := range wf.Inputs {
		v, provided := inputs[decl.Name]
		switch {
		case provided:
			coerced, err := wdl.Coerce(v, decl.Type)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", decl.Name, err)
			}
			v = coerced
		case decl.Expr != nil:
			dv, err := ev.Evaluate(decl.Expr, env)
			if err != nil {
				return nil, fmt.Errorf("input %s default: %w", decl.Name, err)
			}
			v, err = wdl.Coerce(dv, decl.Type)
			if err != nil {
				return nil, fmt.Errorf("input %s default: %w", decl.Name, err)
			}
		case decl.Type.Optional:
			v = wdl.None{}
		default:
			return nil, fmt.Errorf("missing required input %s", decl.Name)
		}
		env[decl.Name] = v
	}
	return env, nil
}

// process advances one ready node. Declarations, outputs, and expansion
// headers evaluate inline; calls dispatch to a worker goroutine and report
// back through results, or queue in waiting when no slot is free. Returns
// true when a call was dispatched.
func (e *Engine) process(ctx context.Context, st *runState, id graph.NodeID, ready *[]graph.NodeID, waiting *[]pendingCall, results chan<- callResult, sem *semaphore, logger *slog.Logger) bool {
	if st.stopRequested {
		if st.status(id) == graph.StatusPending {
			st.transition(id, graph.StatusCanceled)
			st.completeNode(id, false, ready, logger)
		}
		return false
	}

	n := st.g.Node(id)
	switch n.Kind {
	case graph.KindDecl, graph.KindOutput:
		st.transition(id, graph.StatusReady)
		st.transition(id, graph.StatusRunning)
		v, err := eval.New().Evaluate(n.Decl.Expr, st.envFor(n))
		if err == nil {
			v, err = wdl.Coerce(v, n.Decl.Type)
		}
		if err != nil {
			e.failNode(st, id, fmt.Errorf("%s: %w", n.DisplayName(), err), ready, logger)
			return false
		}
		st.bind(n, map[string]wdl.Value{n.Decl.Name: v})
		st.transition(id, graph.StatusSucceeded)
		st.completeNode(id, true, ready, logger)

	case graph.KindScatter:
		st.transition(id, graph.StatusReady)
		st.transition(id, graph.StatusRunning)
		e.startScatter(st, n, ready, logger)

	case graph.KindConditional:
		e.startConditional(st, n, ready, logger)

	case graph.KindCall:
		st.transition(id, graph.StatusReady)
		t, ok := e.doc.Tasks[n.Call.Task]
		if !ok {
			st.transition(id, graph.StatusRunning)
			e.failNode(st, id, fmt.Errorf("call %s: unknown task %q", n.Call.Name(), n.Call.Task), ready, logger)
			return false
		}
		env := st.envFor(n)
		ev := eval.New()
		callInputs := make(map[string]wdl.Value, len(n.Call.Inputs))
		for name, expr := range n.Call.Inputs {
			v, err := ev.Evaluate(expr, env)
			if err != nil {
				st.transition(id, graph.StatusRunning)
				e.failNode(st, id, fmt.Errorf("call %s input %s: %w", n.Call.Name(), name, err), ready, logger)
				return false
			}
			callInputs[name] = v
		}

		pc := pendingCall{id: id, inv: task.Invocation{
			Task:     t,
			CallName: n.Call.Name(),
			Inputs:   callInputs,
			WorkDir:  filepath.Join(e.cfg.WorkDir, fmt.Sprintf("%s-%d", n.Call.Name(), id)),
		}}
		if !sem.TryAcquire() {
			*waiting = append(*waiting, pc)
			return false
		}
		e.dispatch(ctx, st, pc, results)
		return true
	}
	return false
}

// dispatch hands one call to a worker goroutine. The caller holds the
// semaphore slot; the loop releases it when it consumes the result.
func (e *Engine) dispatch(ctx context.Context, st *runState, pc pendingCall, results chan<- callResult) {
	st.transition(pc.id, graph.StatusRunning)
	go func() {
		outcome, err := e.runWithRetry(ctx, pc.inv)
		results <- callResult{id: pc.id, outcome: outcome, err: err}
	}()
}

// startScatter evaluates the collection and materializes one body copy per
// element. An empty collection gathers immediately with zero executions.
func (e *Engine) startScatter(st *runState, n *graph.Node, ready *[]graph.NodeID, logger *slog.Logger) {
	v, err := eval.New().Evaluate(n.Scatter.Collection, st.envFor(n))
	if err != nil {
		e.failNode(st, n.ID, fmt.Errorf("scatter over %s: %w", n.Scatter.Var, err), ready, logger)
		return
	}
	arr, ok := v.(wdl.Array)
	if !ok {
		e.failNode(st, n.ID, fmt.Errorf("scatter over %s: collection is %s, not Array", n.Scatter.Var, v.Type()), ready, logger)
		return
	}

	if len(arr.Items) == 0 {
		st.bind(n, emptyGather(n))
		st.transition(n.ID, graph.StatusSucceeded)
		st.completeNode(n.ID, true, ready, logger)
		return
	}

	groups := st.g.MaterializeScatter(n, arr.Items)
	exp := &expansion{node: n, iterations: len(arr.Items)}
	for _, ids := range groups {
		for _, id := range ids {
			st.register(st.g.Node(id))
			exp.outstanding++
		}
	}
	st.expansions[n.ID] = exp
	logger.Debug("scatter expanded", "node", n.DisplayName(), "iterations", len(arr.Items))
	st.enqueueNewlyReady(groups, ready)
}

// startConditional evaluates the guard once. A false guard skips the node
// before it ever becomes ready and binds every body name to None.
func (e *Engine) startConditional(st *runState, n *graph.Node, ready *[]graph.NodeID, logger *slog.Logger) {
	v, err := eval.New().Evaluate(n.Cond.Cond, st.envFor(n))
	if err != nil {
		st.transition(n.ID, graph.StatusReady)
		st.transition(n.ID, graph.StatusRunning)
		e.failNode(st, n.ID, fmt.Errorf("conditional: %w", err), ready, logger)
		return
	}
	guard, ok := v.(wdl.Boolean)
	if !ok {
		st.transition(n.ID, graph.StatusReady)
		st.transition(n.ID, graph.StatusRunning)
		e.failNode(st, n.ID, fmt.Errorf("conditional: guard is %s, not Boolean", v.Type()), ready, logger)
		return
	}

	if !guard {
		st.bind(n, e.skippedBindings(n.Cond.Body))
		st.transition(n.ID, graph.StatusSkipped)
		st.completeNode(n.ID, true, ready, logger)
		logger.Debug("conditional skipped", "node", n.ID)
		return
	}

	st.transition(n.ID, graph.StatusReady)
	st.transition(n.ID, graph.StatusRunning)
	ids := st.g.MaterializeConditional(n)
	exp := &expansion{node: n, iterations: 1}
	for _, id := range ids {
		st.register(st.g.Node(id))
		exp.outstanding++
	}
	st.expansions[n.ID] = exp
	st.enqueueNewlyReady([][]graph.NodeID{ids}, ready)
}

// handleResult finishes a call node.
func (e *Engine) handleResult(st *runState, res callResult, ready *[]graph.NodeID, logger *slog.Logger) {
	n := st.g.Node(res.id)
	if res.err != nil {
		e.failNode(st, res.id, res.err, ready, logger)
		return
	}

	names := make([]string, 0, len(res.outcome.Outputs))
	for name := range res.outcome.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	outputs := wdl.NewStruct("", names, res.outcome.Outputs)

	st.bind(n, map[string]wdl.Value{n.Call.Name(): outputs})
	st.transition(res.id, graph.StatusSucceeded)
	st.completeNode(res.id, true, ready, logger)
	logger.Info("call finished", "call", n.Call.Name(), "cached", res.outcome.Cached)
}

// failNode marks a node failed, records the error, and applies the failure
// policy.
func (e *Engine) failNode(st *runState, id graph.NodeID, err error, ready *[]graph.NodeID, logger *slog.Logger) {
	logger.Error("node failed", "node", st.g.Node(id).DisplayName(), "error", err)
	st.transition(id, graph.StatusFailed)
	// Cancellation fallout of an earlier failure is not a failure of its own.
	if !st.stopRequested || !errors.Is(err, context.Canceled) {
		st.errs = append(st.errs, err)
	}
	if e.cfg.FailFast {
		st.stopRequested = true
	}
	st.completeNode(id, false, ready, logger)
}

// runWithRetry executes an invocation, retrying retryable failures with
// exponentially growing, fully jittered delays.
func (e *Engine) runWithRetry(ctx context.Context, inv task.Invocation) (*task.Outcome, error) {
	for attempt := 0; ; attempt++ {
		inv.Attempt = attempt
		outcome, err := e.runner.Run(ctx, inv)
		if err == nil {
			return outcome, nil
		}
		var terr *task.Error
		if !errors.As(err, &terr) || !terr.Retryable || attempt+1 >= e.cfg.MaxAttempts {
			return nil, err
		}

		delay := e.cfg.BackoffBase << attempt
		if delay > e.cfg.BackoffMax {
			delay = e.cfg.BackoffMax
		}
		delay = time.Duration(rand.Int63n(int64(delay)) + 1)
		e.logger.Warn("retrying", "call", inv.CallName, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
	}
}

func (e *Engine) finish(st *runState, wf *wdl.Workflow, logger *slog.Logger) (*Result, error) {
	result := &Result{RunID: st.runID, Failed: st.errs}

	if len(st.errs) > 0 {
		logger.Error("workflow failed", "failures", len(st.errs))
		return result, errors.Join(st.errs...)
	}

	global := st.groups[envKey{owner: graph.NoOwner}]
	result.Outputs = make(map[string]wdl.Value, len(wf.Outputs))
	for _, out := range wf.Outputs {
		v, ok := global[out.Name]
		if !ok {
			return result, fmt.Errorf("output %s was never produced", out.Name)
		}
		result.Outputs[out.Name] = v
	}
	logger.Info("workflow succeeded", "outputs", len(result.Outputs))
	return result, nil
}

// skippedBindings resolves every name a false-guarded body would have bound.
// Calls bind a struct whose declared outputs are all None, so member access
// on a skipped call still evaluates; declarations bind None directly.
func (e *Engine) skippedBindings(body []wdl.Stmt) map[string]wdl.Value {
	out := make(map[string]wdl.Value)
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *wdl.Decl:
			out[s.Name] = wdl.None{}
		case *wdl.Call:
			out[s.Name()] = noneOutputs(e.doc.Tasks[s.Task])
		case *wdl.Scatter:
			for name, v := range e.skippedBindings(s.Body) {
				out[name] = v
			}
		case *wdl.Conditional:
			for name, v := range e.skippedBindings(s.Body) {
				out[name] = v
			}
		}
	}
	return out
}

func noneOutputs(t *wdl.Task) wdl.Value {
	if t == nil {
		return wdl.None{}
	}
	names := make([]string, 0, len(t.Outputs))
	members := make(map[string]wdl.Value, len(t.Outputs))
	for _, out := range t.Outputs {
		names = append(names, out.Name)
		members[out.Name] = wdl.None{}
	}
	return wdl.NewStruct("", names, members)
}

// emptyGather produces the zero-iteration result of a scatter: one empty
// array per body binding, typed from the declared binding types.
func emptyGather(n *graph.Node) map[string]wdl.Value {
	out := make(map[string]wdl.Value, len(n.BodyBinds))
	for _, name := range n.BodyBinds {
		elem, ok := n.BindTypes[name]
		if !ok {
			elem = wdl.ObjectType()
		}
		out[name] = wdl.Array{Elem: elem}
	}
	return out
}
