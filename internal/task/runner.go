// Package task executes single task invocations: input binding, call-cache
// consultation, command rendering, backend dispatch, output collection.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/wdlrun/internal/backend"
	"github.com/me/wdlrun/internal/cache"
	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/internal/logging"
	"github.com/me/wdlrun/internal/stage"
	"github.com/me/wdlrun/pkg/wdl"
)

// Invocation is one fully resolved request to run a task.
type Invocation struct {
	Task *wdl.Task
	// CallName is the name the call binds in the workflow, used in logs and
	// errors. Defaults to the task name.
	CallName string
	// Inputs are the evaluated call input expressions, not yet coerced to the
	// task's declared input types.
	Inputs map[string]wdl.Value
	// WorkDir is the invocation's private work directory, created on demand.
	WorkDir string
	// Attempt counts executions of this invocation, starting at 0.
	Attempt int
}

// Outcome reports a completed invocation.
type Outcome struct {
	Outputs     map[string]wdl.Value
	Fingerprint string
	// Cached is set when the outputs came from the call cache and no backend
	// execution happened.
	Cached   bool
	ExitCode int
}

// Runner runs invocations against a backend, consulting the call cache when
// one is configured.
type Runner struct {
	backend   backend.Backend
	store     *cache.Store
	lock      *cache.KeyLock
	localizer *stage.Localizer
	logger    *slog.Logger
}

// NewRunner creates a Runner. store and localizer may be nil to disable
// caching and remote input staging respectively.
func NewRunner(b backend.Backend, store *cache.Store, localizer *stage.Localizer, logger *slog.Logger) *Runner {
	return &Runner{
		backend:   b,
		store:     store,
		lock:      cache.NewKeyLock(),
		localizer: localizer,
		logger:    logging.Component(logger, "task"),
	}
}

// Run executes one invocation. Failures are returned as *Error; the Retryable
// flag distinguishes transient infrastructure failures from final ones.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	name := inv.CallName
	if name == "" {
		name = inv.Task.Name
	}
	logger := r.logger.With("call", name)

	env, inputs, err := r.bindInputs(inv)
	if err != nil {
		return nil, &Error{Task: name, Err: err}
	}

	ev := eval.New()
	res, err := parseRuntime(ev, env, inv.Task.Runtime)
	if err != nil {
		return nil, &Error{Task: name, Err: err}
	}

	fp := Fingerprint(inv.Task, inputs, res.Image)
	logger = logger.With("fingerprint", fp[:12])

	if outputs, ok := r.lookup(ctx, inv.Task, fp); ok {
		logger.Info("cache hit")
		return &Outcome{Outputs: outputs, Fingerprint: fp, Cached: true}, nil
	}

	// Concurrent identical invocations take turns; the second holder re-checks
	// the cache and usually hits.
	r.lock.Lock(fp)
	defer r.lock.Unlock(fp)
	if outputs, ok := r.lookup(ctx, inv.Task, fp); ok {
		logger.Info("cache hit")
		return &Outcome{Outputs: outputs, Fingerprint: fp, Cached: true}, nil
	}

	env, mounts, err := r.localizeFiles(ctx, env)
	if err != nil {
		return nil, &Error{Task: name, Retryable: true, Err: fmt.Errorf("stage inputs: %w", err)}
	}

	script, err := renderCommand(ev, env, inv.Task.Command)
	if err != nil {
		return nil, &Error{Task: name, Err: err}
	}

	spec := backend.Spec{
		Script:      script,
		WorkDir:     inv.WorkDir,
		StdoutPath:  filepath.Join(inv.WorkDir, "stdout"),
		StderrPath:  filepath.Join(inv.WorkDir, "stderr"),
		Image:       res.Image,
		Mounts:      mounts,
		CPU:         res.CPU,
		MemoryBytes: res.MemoryBytes,
	}

	logger.Info("executing", "attempt", inv.Attempt+1)
	result, err := r.backend.Run(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Task: name, Err: ctx.Err()}
		}
		return nil, &Error{Task: name, Retryable: true, Err: err}
	}
	if !res.ExitAllowed(result.ExitCode) {
		return nil, &Error{
			Task:      name,
			ExitCode:  result.ExitCode,
			Retryable: inv.Attempt < res.MaxRetries,
		}
	}

	outputs, err := r.collectOutputs(inv.Task, env, spec)
	if err != nil {
		return nil, &Error{Task: name, Err: err}
	}

	if r.store != nil {
		entry := cache.Entry{
			Fingerprint: fp,
			Task:        inv.Task.Name,
			OutputsJSON: encodeOutputs(outputs),
			Attempts:    inv.Attempt + 1,
		}
		if err := r.store.Put(ctx, entry); err != nil {
			// A cache write failure costs a re-execution later, not the run.
			logger.Warn("cache store failed", "error", err)
		}
	}

	logger.Info("completed", "exit_code", result.ExitCode)
	return &Outcome{Outputs: outputs, Fingerprint: fp, ExitCode: result.ExitCode}, nil
}

// bindInputs coerces provided inputs to their declared types, evaluates
// defaults for absent ones, then evaluates the task's private declarations.
// The returned inputs map holds only declared inputs, for fingerprinting.
func (r *Runner) bindInputs(inv Invocation) (eval.Env, map[string]wdl.Value, error) {
	ev := eval.New()
	env := make(eval.Env, len(inv.Task.Inputs)+len(inv.Task.Decls))
	inputs := make(map[string]wdl.Value, len(inv.Task.Inputs))

	for _, decl := range inv.Task.Inputs {
		v, provided := inv.Inputs[decl.Name]
		switch {
		case provided:
			coerced, err := wdl.Coerce(v, decl.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("input %s: %w", decl.Name, err)
			}
			v = coerced
		case decl.Expr != nil:
			dv, err := ev.Evaluate(decl.Expr, env)
			if err != nil {
				return nil, nil, fmt.Errorf("input %s default: %w", decl.Name, err)
			}
			v, err = wdl.Coerce(dv, decl.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("input %s default: %w", decl.Name, err)
			}
		case decl.Type.Optional:
			v = wdl.None{}
		default:
			return nil, nil, fmt.Errorf("missing required input %s", decl.Name)
		}
		env[decl.Name] = v
		inputs[decl.Name] = v
	}

	for _, decl := range inv.Task.Decls {
		v, err := ev.Evaluate(decl.Expr, env)
		if err != nil {
			return nil, nil, fmt.Errorf("declaration %s: %w", decl.Name, err)
		}
		v, err = wdl.Coerce(v, decl.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("declaration %s: %w", decl.Name, err)
		}
		env[decl.Name] = v
	}

	return env, inputs, nil
}

// lookup consults the cache and decodes the stored outputs against the task's
// declared output types. Any decode failure degrades to a miss.
func (r *Runner) lookup(ctx context.Context, t *wdl.Task, fp string) (map[string]wdl.Value, bool) {
	if r.store == nil {
		return nil, false
	}
	entry, ok, err := r.store.Lookup(ctx, fp)
	if err != nil {
		r.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(entry.OutputsJSON))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		r.logger.Warn("cache entry undecodable, treating as miss", "fingerprint", fp)
		return nil, false
	}

	outputs := make(map[string]wdl.Value, len(t.Outputs))
	for _, decl := range t.Outputs {
		v, err := wdl.DecodeJSON(raw[decl.Name], decl.Type)
		if err != nil {
			r.logger.Warn("cache entry does not match task outputs, treating as miss",
				"fingerprint", fp, "output", decl.Name)
			return nil, false
		}
		outputs[decl.Name] = v
	}
	return outputs, true
}

// localizeFiles rewrites remote File values in env to staged local paths and
// collects the host paths the backend must expose to the task.
func (r *Runner) localizeFiles(ctx context.Context, env eval.Env) (eval.Env, []string, error) {
	out := make(eval.Env, len(env))
	var mounts []string
	seen := make(map[string]bool)

	record := func(path string) {
		if !seen[path] {
			seen[path] = true
			mounts = append(mounts, path)
		}
	}

	for name, v := range env {
		lv, err := r.localizeValue(ctx, v, record)
		if err != nil {
			return nil, nil, err
		}
		out[name] = lv
	}
	return out, mounts, nil
}

func (r *Runner) localizeValue(ctx context.Context, v wdl.Value, record func(string)) (wdl.Value, error) {
	switch val := v.(type) {
	case wdl.File:
		path := string(val)
		if r.localizer != nil {
			local, err := r.localizer.Localize(ctx, path)
			if err != nil {
				return nil, err
			}
			path = local
		}
		record(path)
		return wdl.File(path), nil
	case wdl.Array:
		items := make([]wdl.Value, len(val.Items))
		for i, item := range val.Items {
			lv, err := r.localizeValue(ctx, item, record)
			if err != nil {
				return nil, err
			}
			items[i] = lv
		}
		return wdl.Array{Elem: val.Elem, Items: items}, nil
	case wdl.Map:
		entries := make([]wdl.MapEntry, len(val.Entries))
		for i, e := range val.Entries {
			lv, err := r.localizeValue(ctx, e.V, record)
			if err != nil {
				return nil, err
			}
			entries[i] = wdl.MapEntry{K: e.K, V: lv}
		}
		return wdl.Map{KeyType: val.KeyType, ValueType: val.ValueType, Entries: entries}, nil
	case wdl.Pair:
		l, err := r.localizeValue(ctx, val.LeftVal, record)
		if err != nil {
			return nil, err
		}
		rv, err := r.localizeValue(ctx, val.RightVal, record)
		if err != nil {
			return nil, err
		}
		return wdl.Pair{LeftVal: l, RightVal: rv}, nil
	case wdl.Struct:
		members := make(map[string]wdl.Value, len(val.Members))
		for name, m := range val.Members {
			lv, err := r.localizeValue(ctx, m, record)
			if err != nil {
				return nil, err
			}
			members[name] = lv
		}
		return wdl.Struct{TypeName: val.TypeName, Names: val.Names, Members: members}, nil
	}
	return v, nil
}

// collectOutputs evaluates the task's output declarations in a task-scoped
// environment. File outputs resolve relative to the work directory and must
// exist.
func (r *Runner) collectOutputs(t *wdl.Task, env eval.Env, spec backend.Spec) (map[string]wdl.Value, error) {
	ev := eval.NewTaskScoped(eval.TaskScope{
		WorkDir:    spec.WorkDir,
		StdoutPath: spec.StdoutPath,
		StderrPath: spec.StderrPath,
	})

	scope := env.With(nil)
	outputs := make(map[string]wdl.Value, len(t.Outputs))
	for _, decl := range t.Outputs {
		v, err := ev.Evaluate(decl.Expr, scope)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", decl.Name, err)
		}
		v, err = wdl.Coerce(v, decl.Type)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", decl.Name, err)
		}
		v, err = resolveOutputFiles(v, decl.Name, spec.WorkDir)
		if err != nil {
			return nil, err
		}
		outputs[decl.Name] = v
		scope[decl.Name] = v
	}
	return outputs, nil
}

func resolveOutputFiles(v wdl.Value, output, workDir string) (wdl.Value, error) {
	switch val := v.(type) {
	case wdl.File:
		path := string(val)
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("output %s: file %s was not produced", output, string(val))
		}
		return wdl.File(path), nil
	case wdl.Array:
		items := make([]wdl.Value, len(val.Items))
		for i, item := range val.Items {
			rv, err := resolveOutputFiles(item, output, workDir)
			if err != nil {
				return nil, err
			}
			items[i] = rv
		}
		return wdl.Array{Elem: val.Elem, Items: items}, nil
	}
	return v, nil
}

// encodeOutputs renders outputs as deterministic JSON for the cache entry.
func encodeOutputs(outputs map[string]wdl.Value) string {
	return wdl.Canonical(wdl.Struct{Members: outputs})
}
