package engine

import (
	"sort"
)

// NodeSnapshot is one node's state as seen by the monitor.
type NodeSnapshot struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// Snapshot is a read-only view of the current run.
type Snapshot struct {
	RunID    string         `json:"run_id"`
	Workflow string         `json:"workflow"`
	Counts   map[string]int `json:"counts"`
	Nodes    []NodeSnapshot `json:"nodes"`
}

func (e *Engine) setState(st *runState) {
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()
}

// Snapshot captures the current run's node states. Before any run starts it
// returns an empty snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.stateMu.Lock()
	st := e.state
	e.stateMu.Unlock()
	if st == nil {
		return Snapshot{Counts: map[string]int{}}
	}

	snap := Snapshot{
		RunID:    st.runID,
		Workflow: st.workflow,
		Counts:   make(map[string]int),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for id, status := range st.statuses {
		n := st.g.Node(id)
		snap.Counts[string(status)]++
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:     int(id),
			Name:   n.DisplayName(),
			Kind:   string(n.Kind),
			Status: string(status),
		})
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	return snap
}
