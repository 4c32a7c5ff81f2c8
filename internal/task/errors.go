package task

import "fmt"

// Error is a failed task invocation. Retryable marks transient failures the
// scheduler may attempt again under the same fingerprint; application
// failures (disallowed exit codes, evaluation errors) are final.
type Error struct {
	Task      string
	ExitCode  int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("task %s: exited with code %d", e.Task, e.ExitCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}
