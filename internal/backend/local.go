package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const scriptName = ".command.sh"

// Local runs scripts as host processes under bash.
type Local struct {
	// Shell overrides the interpreter (default "bash").
	Shell string
}

// Run executes the script and returns its exit status. Cancellation kills
// the process through the command context.
func (l *Local) Run(ctx context.Context, spec Spec) (*Result, error) {
	scriptPath, err := prepare(spec)
	if err != nil {
		return nil, err
	}

	shell := l.Shell
	if shell == "" {
		shell = "bash"
	}
	if _, err := exec.LookPath(shell); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, shell)
	}

	cmd := exec.CommandContext(ctx, shell, scriptPath)
	cmd.Dir = spec.WorkDir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, stderr, err := openStreams(spec)
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	defer stderr.Close()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &Result{ExitCode: exitErr.ExitCode()}, nil
		}
		return nil, fmt.Errorf("run script: %w", err)
	}
	return &Result{ExitCode: 0}, nil
}

// prepare creates the work directory and writes the script into it.
func prepare(spec Spec) (string, error) {
	if spec.Script == "" {
		return "", ErrEmptyScript
	}
	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	scriptPath := filepath.Join(spec.WorkDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(spec.Script), 0o755); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return scriptPath, nil
}

func openStreams(spec Spec) (stdout, stderr *os.File, err error) {
	stdout, err = os.Create(spec.StdoutPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create stdout file: %w", err)
	}
	stderr, err = os.Create(spec.StderrPath)
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("create stderr file: %w", err)
	}
	return stdout, stderr, nil
}
