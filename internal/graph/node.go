package graph

import (
	"fmt"

	"github.com/me/wdlrun/pkg/wdl"
)

// NodeID addresses a node in the graph arena.
type NodeID int

// NoOwner marks a node created at workflow top level rather than by
// scatter/conditional expansion.
const NoOwner NodeID = -1

// Kind classifies an evaluation node.
type Kind string

const (
	KindDecl        Kind = "decl"
	KindCall        Kind = "call"
	KindScatter     Kind = "scatter"
	KindConditional Kind = "conditional"
	KindOutput      Kind = "output"
)

// Node is one schedulable unit: a declaration to evaluate, a call to run, a
// scatter or conditional to expand, or a workflow output to collect. Nodes
// are immutable after insertion; runtime status lives in the engine.
type Node struct {
	ID   NodeID
	Kind Kind

	// Deps are upstream nodes whose bindings this node reads. A node becomes
	// ready when every dep succeeded.
	Deps []NodeID

	// Exactly one of the following is set, matching Kind. KindOutput uses
	// Decl.
	Decl    *wdl.Decl
	Call    *wdl.Call
	Scatter *wdl.Scatter
	Cond    *wdl.Conditional

	// BodyBinds lists the names a deferred scatter/conditional body binds, in
	// declaration order; they become visible outside the construct through
	// this node. BindTypes carries their declared types where known, for
	// empty gathers.
	BodyBinds []string
	BindTypes map[string]wdl.Type

	// Owner and Index identify the expansion that materialized this node:
	// the scatter/conditional node and, for scatters, the iteration. Local
	// holds iteration-scoped bindings (the scatter variable).
	Owner NodeID
	Index int
	Local map[string]wdl.Value
}

// Binds returns the names this node binds in its scope.
func (n *Node) Binds() []string {
	switch n.Kind {
	case KindDecl, KindOutput:
		return []string{n.Decl.Name}
	case KindCall:
		return []string{n.Call.Name()}
	case KindScatter, KindConditional:
		return n.BodyBinds
	}
	return nil
}

// DisplayName names the node for logs and the monitor endpoint.
func (n *Node) DisplayName() string {
	switch n.Kind {
	case KindDecl:
		return n.Decl.Name
	case KindCall:
		return n.Call.Name()
	case KindScatter:
		return "scatter." + n.Scatter.Var
	case KindConditional:
		return "if"
	case KindOutput:
		return "output." + n.Decl.Name
	}
	return fmt.Sprintf("node-%d", n.ID)
}

// Graph is an arena of nodes. It grows during execution as scatter and
// conditional bodies materialize; existing nodes are never removed or
// rewired.
type Graph struct {
	nodes []*Node
}

// Add inserts a node and assigns its ID.
func (g *Graph) Add(n *Node) NodeID {
	n.ID = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return n.ID
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes, including materialized children.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the arena slice. Callers must not mutate it.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}
