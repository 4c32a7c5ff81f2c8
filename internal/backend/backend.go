// Package backend runs rendered task scripts. A backend receives a fully
// rendered bash script plus resource requirements and reports the exit
// status; it knows nothing about WDL values or the call cache.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoImage     = errors.New("container execution requested but no image specified")
	ErrEmptyScript = errors.New("empty command script")
	// ErrUnavailable reports that the selected backend cannot run on this
	// host, for example a missing docker binary. Infra errors like this are
	// retryable at the task layer.
	ErrUnavailable = errors.New("backend unavailable")
)

// Spec describes one task execution.
type Spec struct {
	// Script is the rendered bash script text.
	Script string
	// WorkDir is the task work directory; it is created if absent and the
	// script runs with it as the working directory.
	WorkDir string
	// Env holds extra environment variables.
	Env map[string]string
	// StdoutPath and StderrPath capture the script's streams.
	StdoutPath string
	StderrPath string
	// Image is the container image; required by container backends, ignored
	// by the local one.
	Image string
	// Mounts maps host paths to be visible inside a container. Paths mount
	// at their host location so rendered commands work unchanged.
	Mounts []string
	// CPU and MemoryBytes bound container resources when nonzero.
	CPU         int
	MemoryBytes int64
}

// Result holds the outcome of a completed execution. A nonzero exit code is
// a Result, not an error; errors mean the script could not be run at all.
type Result struct {
	ExitCode int
}

// Backend executes task scripts.
type Backend interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// Select returns the named backend.
func Select(name string) (Backend, error) {
	switch name {
	case "local", "":
		return &Local{}, nil
	case "docker":
		return &Docker{}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
