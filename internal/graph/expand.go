package graph

import (
	"github.com/me/wdlrun/pkg/wdl"
)

// MaterializeScatter inserts one copy of the scatter body per collection item
// and returns the node IDs of each iteration. Edges between the new nodes
// cover body-internal references only; outer references need no edges because
// the scatter node's own dependencies already forced those values to exist.
func (g *Graph) MaterializeScatter(sc *Node, items []wdl.Value) [][]NodeID {
	groups := make([][]NodeID, len(items))
	for i, item := range items {
		local := map[string]wdl.Value{sc.Scatter.Var: item}
		groups[i] = g.materializeBody(sc.Scatter.Body, sc.ID, i, local)
	}
	return groups
}

// MaterializeConditional inserts the conditional body once, for a guard that
// evaluated to true.
func (g *Graph) MaterializeConditional(cn *Node) []NodeID {
	return g.materializeBody(cn.Cond.Body, cn.ID, 0, nil)
}

func (g *Graph) materializeBody(body []wdl.Stmt, owner NodeID, index int, local map[string]wdl.Value) []NodeID {
	scope := map[string]NodeID{}
	ids := make([]NodeID, 0, len(body))
	for _, stmt := range body {
		n := g.childNode(stmt, scope)
		n.Owner = owner
		n.Index = index
		n.Local = local
		g.Add(n)
		for _, name := range n.Binds() {
			scope[name] = n.ID
		}
		ids = append(ids, n.ID)
	}
	return ids
}

// childNode builds an unwired node for a body statement with edges to the
// siblings it references. Build already validated every name, so anything
// missing from the sibling scope is an outer binding that needs no edge.
func (g *Graph) childNode(stmt wdl.Stmt, scope map[string]NodeID) *Node {
	switch st := stmt.(type) {
	case *wdl.Decl:
		return &Node{Kind: KindDecl, Decl: st, Deps: siblingDeps(wdl.FreeVars(st.Expr), scope)}

	case *wdl.Call:
		return &Node{Kind: KindCall, Call: st, Deps: siblingDeps(callFreeVars(st), scope)}

	case *wdl.Scatter:
		names := append(wdl.FreeVars(st.Collection), externalNames(st.Body, map[string]bool{st.Var: true})...)
		return &Node{
			Kind:      KindScatter,
			Scatter:   st,
			Deps:      siblingDeps(names, scope),
			BodyBinds: bindsOf(st.Body),
			BindTypes: bindTypesOf(st.Body),
		}

	case *wdl.Conditional:
		names := append(wdl.FreeVars(st.Cond), externalNames(st.Body, map[string]bool{})...)
		return &Node{
			Kind:      KindConditional,
			Cond:      st,
			Deps:      siblingDeps(names, scope),
			BodyBinds: bindsOf(st.Body),
			BindTypes: bindTypesOf(st.Body),
		}
	}
	return nil
}

func siblingDeps(names []string, scope map[string]NodeID) []NodeID {
	var deps []NodeID
	for _, name := range names {
		if id, ok := scope[name]; ok {
			deps = append(deps, id)
		}
	}
	return dedupeDeps(deps)
}

// externalNames lists the free names a body reads from outside itself, in
// first-use order.
func externalNames(body []wdl.Stmt, local map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(names []string) {
		for _, name := range names {
			if !local[name] && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	for _, stmt := range body {
		switch st := stmt.(type) {
		case *wdl.Decl:
			add(wdl.FreeVars(st.Expr))
			local[st.Name] = true
		case *wdl.Call:
			add(callFreeVars(st))
			local[st.Name()] = true
		case *wdl.Scatter:
			add(wdl.FreeVars(st.Collection))
			inner := copyBound(local)
			inner[st.Var] = true
			add(externalNames(st.Body, inner))
			for _, name := range bindsOf(st.Body) {
				local[name] = true
			}
		case *wdl.Conditional:
			add(wdl.FreeVars(st.Cond))
			add(externalNames(st.Body, copyBound(local)))
			for _, name := range bindsOf(st.Body) {
				local[name] = true
			}
		}
	}
	return out
}
