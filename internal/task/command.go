package task

import (
	"fmt"
	"strings"

	"github.com/me/wdlrun/internal/eval"
	"github.com/me/wdlrun/pkg/wdl"
)

// renderCommand expands a task's command template in env. Placeholder options
// apply in order: true/false renders Booleans, sep joins arrays, default
// substitutes for None.
func renderCommand(ev *eval.Evaluator, env eval.Env, parts []wdl.CommandPart) (string, error) {
	var b strings.Builder
	for _, part := range parts {
		if part.Placeholder == nil {
			b.WriteString(part.Text)
			continue
		}
		s, err := renderPlaceholder(ev, env, part.Placeholder)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func renderPlaceholder(ev *eval.Evaluator, env eval.Env, p *wdl.Placeholder) (string, error) {
	v, err := ev.Evaluate(p.Expr, env)
	if err != nil {
		return "", err
	}

	if wdl.IsNone(v) {
		if p.Default == nil {
			return "", fmt.Errorf("command placeholder evaluated to None and has no default")
		}
		v, err = ev.Evaluate(p.Default, env)
		if err != nil {
			return "", err
		}
	}

	if p.HasTrueFalse {
		b, ok := v.(wdl.Boolean)
		if !ok {
			return "", fmt.Errorf("true/false placeholder applied to %s, not Boolean", v.Type())
		}
		if b {
			return p.TrueStr, nil
		}
		return p.FalseStr, nil
	}

	if arr, ok := v.(wdl.Array); ok {
		if p.Sep == "" {
			return "", fmt.Errorf("array placeholder requires a sep option")
		}
		elems := make([]string, len(arr.Items))
		for i, item := range arr.Items {
			s, err := eval.Stringify(item)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = s
		}
		return strings.Join(elems, p.Sep), nil
	}

	return eval.Stringify(v)
}
