package task

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/pkg/wdl"
)

// Resources are a task's runtime requirements, evaluated from its runtime
// block in the input environment.
type Resources struct {
	CPU         int
	MemoryBytes int64
	Image       string
	MaxRetries  int
	// ReturnCodes lists exit codes the task declares as success. Empty means
	// only zero; AllowAll (returnCodes: "*") accepts any exit code.
	ReturnCodes []int
	AllowAll    bool
}

// ExitAllowed reports whether code counts as success under the task's
// declared return-code policy.
func (r Resources) ExitAllowed(code int) bool {
	if r.AllowAll {
		return true
	}
	if code == 0 {
		return true
	}
	for _, allowed := range r.ReturnCodes {
		if code == allowed {
			return true
		}
	}
	return false
}

// parseRuntime evaluates the runtime attribute expressions. Unknown
// attributes are ignored so bundles can carry backend-specific hints.
func parseRuntime(ev *eval.Evaluator, env eval.Env, runtime map[string]wdl.Expr) (Resources, error) {
	res := Resources{}
	for name, expr := range runtime {
		v, err := ev.Evaluate(expr, env)
		if err != nil {
			return Resources{}, fmt.Errorf("runtime attribute %q: %w", name, err)
		}
		switch name {
		case "cpu":
			n, err := runtimeInt(v)
			if err != nil {
				return Resources{}, fmt.Errorf("runtime cpu: %w", err)
			}
			res.CPU = int(n)
		case "memory":
			bytes, err := runtimeMemory(v)
			if err != nil {
				return Resources{}, fmt.Errorf("runtime memory: %w", err)
			}
			res.MemoryBytes = bytes
		case "docker", "container":
			s, ok := v.(wdl.String)
			if !ok {
				return Resources{}, fmt.Errorf("runtime %s: %s is not a String", name, v.Type())
			}
			res.Image = string(s)
		case "maxRetries":
			n, err := runtimeInt(v)
			if err != nil {
				return Resources{}, fmt.Errorf("runtime maxRetries: %w", err)
			}
			res.MaxRetries = int(n)
		case "returnCodes":
			if err := parseReturnCodes(v, &res); err != nil {
				return Resources{}, fmt.Errorf("runtime returnCodes: %w", err)
			}
		}
	}
	return res, nil
}

func parseReturnCodes(v wdl.Value, res *Resources) error {
	switch val := v.(type) {
	case wdl.String:
		if string(val) != "*" {
			return fmt.Errorf("string value must be %q, got %q", "*", string(val))
		}
		res.AllowAll = true
		return nil
	case wdl.Int:
		res.ReturnCodes = []int{int(val)}
		return nil
	case wdl.Array:
		codes := make([]int, 0, len(val.Items))
		for _, item := range val.Items {
			n, err := runtimeInt(item)
			if err != nil {
				return err
			}
			codes = append(codes, int(n))
		}
		res.ReturnCodes = codes
		return nil
	}
	return fmt.Errorf("%s is not an Int, Array[Int] or %q", v.Type(), "*")
}

func runtimeInt(v wdl.Value) (int64, error) {
	switch val := v.(type) {
	case wdl.Int:
		return int64(val), nil
	case wdl.String:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", string(val))
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s is not an Int", v.Type())
}

// runtimeMemory accepts an Int byte count or a human-readable size string
// ("4 GiB", "512MB").
func runtimeMemory(v wdl.Value) (int64, error) {
	switch val := v.(type) {
	case wdl.Int:
		if val < 0 {
			return 0, fmt.Errorf("negative byte count %d", int64(val))
		}
		return int64(val), nil
	case wdl.String:
		bytes, err := humanize.ParseBytes(string(val))
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", string(val), err)
		}
		return int64(bytes), nil
	}
	return 0, fmt.Errorf("%s is not an Int or String", v.Type())
}
