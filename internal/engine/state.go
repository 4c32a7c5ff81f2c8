package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/internal/graph"
	"github.com/me/wdlrun/pkg/wdl"
)

// runState is the mutable execution state of one run. The scheduler loop owns
// it; only the status table is read concurrently, by monitor snapshots.
type runState struct {
	runID    string
	workflow string
	g        *graph.Graph
	inputs   eval.Env

	mu       sync.Mutex
	statuses map[graph.NodeID]graph.Status

	groups     map[envKey]map[string]wdl.Value
	depsLeft   map[graph.NodeID]int
	dependents map[graph.NodeID][]graph.NodeID
	expansions map[graph.NodeID]*expansion

	errs          []error
	stopRequested bool
	logger        *slog.Logger
}

func newRunState(runID, workflow string, g *graph.Graph, inputs eval.Env, logger *slog.Logger) *runState {
	return &runState{
		runID:      runID,
		workflow:   workflow,
		g:          g,
		inputs:     inputs,
		statuses:   make(map[graph.NodeID]graph.Status, g.Len()),
		groups:     make(map[envKey]map[string]wdl.Value),
		depsLeft:   make(map[graph.NodeID]int, g.Len()),
		dependents: make(map[graph.NodeID][]graph.NodeID),
		expansions: make(map[graph.NodeID]*expansion),
		logger:     logger,
	}
}

// register adds a node to the runtime tables. Materialized children register
// on insertion; their sibling dependencies are all freshly pending.
func (st *runState) register(n *graph.Node) {
	st.mu.Lock()
	st.statuses[n.ID] = graph.StatusPending
	st.mu.Unlock()

	st.depsLeft[n.ID] = len(n.Deps)
	for _, dep := range n.Deps {
		st.dependents[dep] = append(st.dependents[dep], n.ID)
	}
}

// initialReady lists the dependency-free nodes in ID order.
func (st *runState) initialReady() []graph.NodeID {
	var ready []graph.NodeID
	for _, n := range st.g.Nodes() {
		if st.depsLeft[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	return ready
}

func (st *runState) enqueueNewlyReady(groups [][]graph.NodeID, ready *[]graph.NodeID) {
	for _, ids := range groups {
		for _, id := range ids {
			if st.depsLeft[id] == 0 {
				*ready = append(*ready, id)
			}
		}
	}
}

// transition moves a node to status, enforcing the valid transition table. An
// invalid transition indicates a scheduler bug; the node keeps its status.
func (st *runState) transition(id graph.NodeID, to graph.Status) {
	st.mu.Lock()
	defer st.mu.Unlock()
	from := st.statuses[id]
	if !from.CanTransitionTo(to) {
		st.logger.Error("invalid status transition", "node", id, "from", from, "to", to)
		return
	}
	st.statuses[id] = to
}

func (st *runState) status(id graph.NodeID) graph.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.statuses[id]
}

// bind records the values a node produced into its expansion's binding group.
func (st *runState) bind(n *graph.Node, values map[string]wdl.Value) {
	key := envKey{owner: n.Owner, index: n.Index}
	group, ok := st.groups[key]
	if !ok {
		group = make(map[string]wdl.Value)
		st.groups[key] = group
	}
	for name, v := range values {
		group[name] = v
	}
}

// envFor assembles the evaluation environment a node sees: workflow inputs,
// then the binding groups and iteration-local values along its owner chain,
// outermost first.
func (st *runState) envFor(n *graph.Node) eval.Env {
	var chain []*graph.Node
	for cur := n; ; {
		chain = append(chain, cur)
		if cur.Owner == graph.NoOwner {
			break
		}
		cur = st.g.Node(cur.Owner)
	}

	env := st.inputs.With(nil)
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		for name, v := range st.groups[envKey{owner: cur.Owner, index: cur.Index}] {
			env[name] = v
		}
		for name, v := range cur.Local {
			env[name] = v
		}
	}
	return env
}

// completeNode propagates a terminal node. ok means the node produced its
// bindings (success, or a skipped conditional binding Nones); dependents of a
// node that produced nothing are skipped transitively.
func (st *runState) completeNode(id graph.NodeID, ok bool, ready *[]graph.NodeID, logger *slog.Logger) {
	n := st.g.Node(id)

	if n.Owner != graph.NoOwner {
		if exp := st.expansions[n.Owner]; exp != nil {
			exp.outstanding--
			if !ok {
				exp.failed = true
			}
			if exp.outstanding == 0 {
				st.finishExpansion(exp, ready, logger)
			}
		}
	}

	for _, dep := range st.dependents[id] {
		if ok {
			st.depsLeft[dep]--
			if st.depsLeft[dep] == 0 {
				*ready = append(*ready, dep)
			}
		} else {
			st.skipCascade(dep, ready, logger)
		}
	}
}

// skipCascade marks a node unrunnable because an upstream dependency produced
// nothing, and cascades to its own dependents.
func (st *runState) skipCascade(id graph.NodeID, ready *[]graph.NodeID, logger *slog.Logger) {
	if st.status(id) != graph.StatusPending {
		return
	}
	if st.stopRequested {
		st.transition(id, graph.StatusCanceled)
	} else {
		st.transition(id, graph.StatusSkipped)
	}
	logger.Debug("node skipped", "node", st.g.Node(id).DisplayName())
	st.completeNode(id, false, ready, logger)
}

// finishExpansion closes a scatter or conditional whose children are all
// terminal: gather per-iteration bindings into arrays, or surface the
// conditional body's bindings as optionals.
func (st *runState) finishExpansion(exp *expansion, ready *[]graph.NodeID, logger *slog.Logger) {
	owner := exp.node

	if exp.failed {
		st.transition(owner.ID, graph.StatusFailed)
		st.completeNode(owner.ID, false, ready, logger)
		return
	}

	out := make(map[string]wdl.Value, len(owner.BodyBinds))
	switch owner.Kind {
	case graph.KindScatter:
		for _, name := range owner.BodyBinds {
			elem, ok := owner.BindTypes[name]
			if !ok {
				elem = wdl.ObjectType()
			}
			items := make([]wdl.Value, exp.iterations)
			for i := 0; i < exp.iterations; i++ {
				v, ok := st.groups[envKey{owner: owner.ID, index: i}][name]
				if !ok {
					v = wdl.None{}
				}
				items[i] = v
			}
			out[name] = wdl.Array{Elem: elem, Items: items}
		}
	case graph.KindConditional:
		body := st.groups[envKey{owner: owner.ID}]
		for _, name := range owner.BodyBinds {
			v, ok := body[name]
			if !ok {
				v = wdl.None{}
			}
			out[name] = v
		}
	}

	st.bind(owner, out)
	st.transition(owner.ID, graph.StatusSucceeded)
	st.completeNode(owner.ID, true, ready, logger)
	logger.Debug("expansion gathered", "node", owner.DisplayName(), "iterations", exp.iterations)
}

// cancelUnstarted moves every Pending and Ready node to Canceled when the run
// stops early. Running nodes finish through their context.
func (st *runState) cancelUnstarted() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, status := range st.statuses {
		if status == graph.StatusPending || status == graph.StatusReady {
			st.statuses[id] = graph.StatusCanceled
		}
	}
}

// skipUnreached marks any node still pending at the end of the run. With
// cascading skips this should find nothing; it guards the terminal condition.
func (st *runState) skipUnreached() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, status := range st.statuses {
		if status == graph.StatusPending {
			st.statuses[id] = graph.StatusSkipped
		}
	}
}
