// Package graph builds and grows the workflow evaluation graph. Build wires
// the top-level statements; scatter and conditional bodies are stored as
// templates on their nodes and materialized by the engine once their inputs
// are known.
package graph

import (
	"fmt"
	"sort"

	"github.com/me/wdlrun/pkg/wdl"
)

// BuildError reports an invalid workflow structure: an unresolvable name, a
// duplicate binding, or a dependency cycle.
type BuildError struct {
	Msg string
}

func (e *BuildError) Error() string {
	return "build: " + e.Msg
}

// Build constructs the evaluation graph for a workflow. inputs names the
// pre-bound workflow inputs; references to them create no edges. Statements
// wire in source order, so a reference to a name bound later in the same
// scope is an error.
func Build(wf *wdl.Workflow, inputs map[string]wdl.Value) (*Graph, error) {
	b := &builder{
		g:     &Graph{},
		known: make(map[string]bool, len(inputs)),
	}
	for name := range inputs {
		b.known[name] = true
	}
	// Inputs with defaults may be absent from the concrete inputs; their
	// names are still in scope.
	for _, in := range wf.Inputs {
		b.known[in.Name] = true
	}

	scope := map[string]NodeID{}
	for _, stmt := range wf.Body {
		n, err := b.addStmt(stmt, scope)
		if err != nil {
			return nil, err
		}
		if err := bindNode(scope, b.known, n); err != nil {
			return nil, err
		}
	}

	for _, out := range wf.Outputs {
		deps, err := b.resolve(wdl.FreeVars(out.Expr), nil, scope)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", out.Name, err)
		}
		b.g.Add(&Node{Kind: KindOutput, Decl: out, Deps: deps, Owner: NoOwner})
	}

	if err := checkAcyclic(b.g); err != nil {
		return nil, err
	}
	return b.g, nil
}

type builder struct {
	g     *Graph
	known map[string]bool
}

func (b *builder) addStmt(stmt wdl.Stmt, scope map[string]NodeID) (*Node, error) {
	switch st := stmt.(type) {
	case *wdl.Decl:
		deps, err := b.resolve(wdl.FreeVars(st.Expr), nil, scope)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", st.Name, err)
		}
		n := &Node{Kind: KindDecl, Decl: st, Deps: deps, Owner: NoOwner}
		b.g.Add(n)
		return n, nil

	case *wdl.Call:
		names := callFreeVars(st)
		deps, err := b.resolve(names, nil, scope)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", st.Name(), err)
		}
		n := &Node{Kind: KindCall, Call: st, Deps: deps, Owner: NoOwner}
		b.g.Add(n)
		return n, nil

	case *wdl.Scatter:
		deps, err := b.resolve(wdl.FreeVars(st.Collection), nil, scope)
		if err != nil {
			return nil, fmt.Errorf("scatter over %s: %w", st.Var, err)
		}
		// Body references to outer names delay expansion until those nodes
		// complete, so every outer value is bound before materialization.
		bodyDeps, err := b.externalDeps(st.Body, map[string]bool{st.Var: true}, scope)
		if err != nil {
			return nil, fmt.Errorf("scatter over %s: %w", st.Var, err)
		}
		n := &Node{
			Kind:      KindScatter,
			Scatter:   st,
			Deps:      mergeDeps(deps, bodyDeps),
			BodyBinds: bindsOf(st.Body),
			BindTypes: bindTypesOf(st.Body),
			Owner:     NoOwner,
		}
		if err := checkUniqueBinds(n.BodyBinds); err != nil {
			return nil, fmt.Errorf("scatter over %s: %w", st.Var, err)
		}
		b.g.Add(n)
		return n, nil

	case *wdl.Conditional:
		deps, err := b.resolve(wdl.FreeVars(st.Cond), nil, scope)
		if err != nil {
			return nil, fmt.Errorf("conditional: %w", err)
		}
		bodyDeps, err := b.externalDeps(st.Body, map[string]bool{}, scope)
		if err != nil {
			return nil, fmt.Errorf("conditional: %w", err)
		}
		n := &Node{
			Kind:      KindConditional,
			Cond:      st,
			Deps:      mergeDeps(deps, bodyDeps),
			BodyBinds: bindsOf(st.Body),
			BindTypes: bindTypesOf(st.Body),
			Owner:     NoOwner,
		}
		if err := checkUniqueBinds(n.BodyBinds); err != nil {
			return nil, fmt.Errorf("conditional: %w", err)
		}
		b.g.Add(n)
		return n, nil
	}
	return nil, &BuildError{Msg: fmt.Sprintf("unsupported statement %T", stmt)}
}

// resolve maps free names to node dependencies. Names in local resolve to
// nothing (they are bound within the construct under validation); names in
// scope resolve to edges; input names resolve to nothing; anything else is a
// BuildError.
func (b *builder) resolve(names []string, local map[string]bool, scope map[string]NodeID) ([]NodeID, error) {
	var deps []NodeID
	for _, name := range names {
		if local[name] {
			continue
		}
		if id, ok := scope[name]; ok {
			deps = append(deps, id)
			continue
		}
		if b.known[name] {
			continue
		}
		return nil, &BuildError{Msg: fmt.Sprintf("reference to undeclared name %q", name)}
	}
	return dedupeDeps(deps), nil
}

// externalDeps walks a deferred body in source order and resolves every free
// name that is not bound inside it. local accumulates body-bound names.
func (b *builder) externalDeps(body []wdl.Stmt, local map[string]bool, scope map[string]NodeID) ([]NodeID, error) {
	var deps []NodeID
	for _, stmt := range body {
		switch st := stmt.(type) {
		case *wdl.Decl:
			d, err := b.resolve(wdl.FreeVars(st.Expr), local, scope)
			if err != nil {
				return nil, fmt.Errorf("declaration %s: %w", st.Name, err)
			}
			deps = append(deps, d...)
			local[st.Name] = true

		case *wdl.Call:
			d, err := b.resolve(callFreeVars(st), local, scope)
			if err != nil {
				return nil, fmt.Errorf("call %s: %w", st.Name(), err)
			}
			deps = append(deps, d...)
			local[st.Name()] = true

		case *wdl.Scatter:
			d, err := b.resolve(wdl.FreeVars(st.Collection), local, scope)
			if err != nil {
				return nil, fmt.Errorf("scatter over %s: %w", st.Var, err)
			}
			deps = append(deps, d...)
			inner := copyBound(local)
			inner[st.Var] = true
			bd, err := b.externalDeps(st.Body, inner, scope)
			if err != nil {
				return nil, err
			}
			deps = append(deps, bd...)
			for _, name := range bindsOf(st.Body) {
				local[name] = true
			}

		case *wdl.Conditional:
			d, err := b.resolve(wdl.FreeVars(st.Cond), local, scope)
			if err != nil {
				return nil, fmt.Errorf("conditional: %w", err)
			}
			deps = append(deps, d...)
			bd, err := b.externalDeps(st.Body, copyBound(local), scope)
			if err != nil {
				return nil, err
			}
			deps = append(deps, bd...)
			for _, name := range bindsOf(st.Body) {
				local[name] = true
			}
		}
	}
	return dedupeDeps(deps), nil
}

func bindNode(scope map[string]NodeID, known map[string]bool, n *Node) error {
	for _, name := range n.Binds() {
		if _, dup := scope[name]; dup || known[name] {
			return &BuildError{Msg: fmt.Sprintf("name %q bound more than once", name)}
		}
		scope[name] = n.ID
	}
	return nil
}

func checkUniqueBinds(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return &BuildError{Msg: fmt.Sprintf("name %q bound more than once", name)}
		}
		seen[name] = true
	}
	return nil
}

// callFreeVars collects the names a call reads: its input expressions plus
// explicit after dependencies.
func callFreeVars(c *wdl.Call) []string {
	var names []string
	seen := make(map[string]bool)
	for _, name := range sortedExprKeys(c.Inputs) {
		for _, fv := range wdl.FreeVars(c.Inputs[name]) {
			if !seen[fv] {
				seen[fv] = true
				names = append(names, fv)
			}
		}
	}
	for _, after := range c.After {
		if !seen[after] {
			seen[after] = true
			names = append(names, after)
		}
	}
	return names
}

// bindsOf lists the names a statement list binds, in declaration order.
func bindsOf(body []wdl.Stmt) []string {
	var names []string
	for _, stmt := range body {
		switch st := stmt.(type) {
		case *wdl.Decl:
			names = append(names, st.Name)
		case *wdl.Call:
			names = append(names, st.Name())
		case *wdl.Scatter:
			names = append(names, bindsOf(st.Body)...)
		case *wdl.Conditional:
			names = append(names, bindsOf(st.Body)...)
		}
	}
	return names
}

// bindTypesOf maps body-bound names to their types as seen from outside the
// construct, where declared. Calls bind dynamic structs and map to Object.
func bindTypesOf(body []wdl.Stmt) map[string]wdl.Type {
	types := make(map[string]wdl.Type)
	for _, stmt := range body {
		switch st := stmt.(type) {
		case *wdl.Decl:
			types[st.Name] = st.Type
		case *wdl.Call:
			types[st.Name()] = wdl.ObjectType()
		case *wdl.Scatter:
			for name, t := range bindTypesOf(st.Body) {
				types[name] = wdl.ArrayType(t)
			}
		case *wdl.Conditional:
			for name, t := range bindTypesOf(st.Body) {
				types[name] = t.AsOptional()
			}
		}
	}
	return types
}

// checkAcyclic runs Kahn's algorithm over the built edges. Forward references
// are rejected during wiring, so this should never fire; it guards against
// builder regressions.
func checkAcyclic(g *Graph) error {
	inDegree := make(map[NodeID]int, g.Len())
	forward := make(map[NodeID][]NodeID, g.Len())
	for _, n := range g.Nodes() {
		inDegree[n.ID] += 0
		for _, dep := range n.Deps {
			forward[dep] = append(forward[dep], n.ID)
			inDegree[n.ID]++
		}
	}

	var queue []NodeID
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range forward[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if visited != g.Len() {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, g.Node(id).DisplayName())
			}
		}
		sort.Strings(stuck)
		return &BuildError{Msg: fmt.Sprintf("dependency cycle involving: %v", stuck)}
	}
	return nil
}

func copyBound(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeDeps(a, b []NodeID) []NodeID {
	return dedupeDeps(append(append([]NodeID{}, a...), b...))
}

func dedupeDeps(deps []NodeID) []NodeID {
	if len(deps) < 2 {
		return deps
	}
	seen := make(map[NodeID]bool, len(deps))
	out := deps[:0]
	for _, d := range deps {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func sortedExprKeys(m map[string]wdl.Expr) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
