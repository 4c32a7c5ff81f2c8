package graph

// Status is the lifecycle state of an evaluation node.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusCanceled  Status = "CANCELED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the node is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCanceled:
		return true
	}
	return false
}

// ValidTransitions defines the allowed status transitions. Retries happen
// within Running; they are attempts of one node, not status changes.
var ValidTransitions = map[Status][]Status{
	StatusPending: {StatusReady, StatusSkipped, StatusCanceled},
	StatusReady:   {StatusRunning, StatusCanceled},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransitionTo returns true if moving from the current status to next is
// valid.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
