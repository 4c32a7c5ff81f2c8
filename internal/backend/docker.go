package backend

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// Docker runs scripts inside containers via the docker CLI. The work
// directory and input mounts bind at their host paths so rendered commands
// reference the same locations inside and outside the container.
type Docker struct {
	// Command is the path to the docker binary (default "docker").
	Command string
}

func (d *Docker) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Image == "" {
		return nil, ErrNoImage
	}
	scriptPath, err := prepare(spec)
	if err != nil {
		return nil, err
	}

	dockerCmd := d.Command
	if dockerCmd == "" {
		dockerCmd = "docker"
	}
	if _, err := exec.LookPath(dockerCmd); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, dockerCmd)
	}

	workDir := resolveSymlinks(spec.WorkDir)
	args := []string{"run", "--rm"}
	args = append(args, "--mount", fmt.Sprintf("type=bind,source=%s,target=%s", workDir, spec.WorkDir))
	args = append(args, "-w", spec.WorkDir)
	for _, mount := range spec.Mounts {
		resolved := resolveSymlinks(mount)
		args = append(args, "--mount", fmt.Sprintf("type=bind,source=%s,target=%s,readonly", resolved, mount))
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	if spec.CPU > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%d", spec.CPU))
	}
	if spec.MemoryBytes > 0 {
		args = append(args, "--memory", fmt.Sprintf("%d", spec.MemoryBytes))
	}
	args = append(args, spec.Image, "bash", scriptPath)

	cmd := exec.CommandContext(ctx, dockerCmd, args...)
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
		return nil, fmt.Errorf("docker run: %w", err)
	}
	return &Result{ExitCode: 0}, nil
}

// resolveSymlinks resolves symlinks for bind mount sources. On macOS /tmp is
// a symlink to /private/tmp, which docker cannot mount unresolved.
func resolveSymlinks(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}
