// Package eval evaluates WDL expression trees against a variable environment.
//
// Evaluation is pure, synchronous and non-suspending: given an environment
// containing every free variable, it cannot block. The read_* standard
// library functions and stdout()/stderr() are the one exception; they perform
// file reads and are only available to evaluators constructed with a task
// scope (output collection inside a task work directory).
package eval

import (
	"fmt"

	"github.com/me/wdlrun/pkg/wdl"
)

// Env maps in-scope names to values. Once built for a node it is immutable
// and safely shared across readers.
type Env map[string]wdl.Value

// With returns a copy of env with extra bindings applied.
func (e Env) With(bindings map[string]wdl.Value) Env {
	out := make(Env, len(e)+len(bindings))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range bindings {
		out[k] = v
	}
	return out
}

// TaskScope grants an evaluator access to a task's work directory for output
// collection. Pure workflow-scope evaluators have none.
type TaskScope struct {
	WorkDir    string
	StdoutPath string
	StderrPath string
}

// Evaluator evaluates expressions. The zero value is not usable; construct
// with New or NewTaskScoped.
type Evaluator struct {
	fns   map[string]function
	scope *TaskScope
}

// New returns a pure evaluator with the standard library, excluding
// filesystem functions.
func New() *Evaluator {
	return &Evaluator{fns: stdlib()}
}

// NewTaskScoped returns an evaluator that additionally supports
// stdout()/stderr(), glob() and the read_* family, rooted at the given task
// scope.
func NewTaskScoped(scope TaskScope) *Evaluator {
	return &Evaluator{fns: stdlib(), scope: &scope}
}

// Evaluate evaluates expr in env. Every error it returns is an *Error.
func (ev *Evaluator) Evaluate(expr wdl.Expr, env Env) (wdl.Value, error) {
	switch x := expr.(type) {
	case *wdl.Literal:
		return x.Value, nil

	case *wdl.Ident:
		v, ok := env[x.Name]
		if !ok {
			// Should not occur post-analysis; defend anyway.
			return nil, &Error{Msg: fmt.Sprintf("unbound identifier %q", x.Name)}
		}
		return v, nil

	case *wdl.Unary:
		return ev.evalUnary(x, env)

	case *wdl.Binary:
		return ev.evalBinary(x, env)

	case *wdl.Cond:
		guard, err := ev.Evaluate(x.If, env)
		if err != nil {
			return nil, err
		}
		b, ok := guard.(wdl.Boolean)
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("if condition is %s, not Boolean", guard.Type())}
		}
		if b {
			return ev.Evaluate(x.Then, env)
		}
		return ev.Evaluate(x.Else, env)

	case *wdl.Interp:
		return ev.evalInterp(x, env)

	case *wdl.Member:
		base, err := ev.Evaluate(x.X, env)
		if err != nil {
			return nil, err
		}
		return ev.member(base, x.Name)

	case *wdl.IndexExpr:
		c, err := ev.Evaluate(x.X, env)
		if err != nil {
			return nil, err
		}
		k, err := ev.Evaluate(x.Key, env)
		if err != nil {
			return nil, err
		}
		v, err := wdl.Index(c, k)
		if err != nil {
			return nil, &Error{Msg: err.Error(), Err: err}
		}
		return v, nil

	case *wdl.Apply:
		fn, ok := ev.fns[x.Func]
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("unknown function %q", x.Func)}
		}
		// Arguments evaluate left to right.
		args := make([]wdl.Value, len(x.Args))
		for i, a := range x.Args {
			v, err := ev.Evaluate(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		if len(args) < fn.minArgs || len(args) > fn.maxArgs {
			return nil, &Error{Msg: fmt.Sprintf("function %q takes %d to %d arguments, got %d", x.Func, fn.minArgs, fn.maxArgs, len(args))}
		}
		return fn.impl(ev, args)

	case *wdl.ArrayLit:
		items := make([]wdl.Value, len(x.Elems))
		for i, el := range x.Elems {
			v, err := ev.Evaluate(el, env)
			if err != nil {
				return nil, err
			}
			coerced, err := wdl.Coerce(v, x.Elem)
			if err != nil {
				return nil, &Error{Msg: fmt.Sprintf("array literal element %d: %v", i, err), Err: err}
			}
			items[i] = coerced
		}
		return wdl.Array{Elem: x.Elem, Items: items}, nil

	case *wdl.MapLit:
		entries := make([]wdl.MapEntry, len(x.Entries))
		for i, e := range x.Entries {
			k, err := ev.Evaluate(e.K, env)
			if err != nil {
				return nil, err
			}
			v, err := ev.Evaluate(e.V, env)
			if err != nil {
				return nil, err
			}
			entries[i] = wdl.MapEntry{K: k, V: v}
		}
		m, err := wdl.NewMap(x.Key, x.Value, entries)
		if err != nil {
			return nil, &Error{Msg: err.Error(), Err: err}
		}
		return m, nil

	case *wdl.PairLit:
		l, err := ev.Evaluate(x.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := ev.Evaluate(x.Right, env)
		if err != nil {
			return nil, err
		}
		return wdl.Pair{LeftVal: l, RightVal: r}, nil

	case *wdl.StructLit:
		members := make(map[string]wdl.Value, len(x.Fields))
		names := make([]string, 0, len(x.Fields))
		for _, f := range x.Fields {
			v, err := ev.Evaluate(f.Expr, env)
			if err != nil {
				return nil, err
			}
			members[f.Name] = v
			names = append(names, f.Name)
		}
		return wdl.NewStruct(x.TypeName, names, members), nil
	}

	return nil, &Error{Msg: fmt.Sprintf("unsupported expression %T", expr)}
}

func (ev *Evaluator) evalUnary(x *wdl.Unary, env Env) (wdl.Value, error) {
	v, err := ev.Evaluate(x.X, env)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case wdl.OpNeg:
		switch n := v.(type) {
		case wdl.Int:
			return -n, nil
		case wdl.Float:
			return -n, nil
		}
		return nil, &Error{Msg: fmt.Sprintf("cannot negate %s", v.Type())}
	case wdl.OpNot:
		b, ok := v.(wdl.Boolean)
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("! requires Boolean, got %s", v.Type())}
		}
		return !b, nil
	}
	return nil, &Error{Msg: fmt.Sprintf("unknown unary operator %q", x.Op)}
}

func (ev *Evaluator) evalBinary(x *wdl.Binary, env Env) (wdl.Value, error) {
	// Short-circuit Boolean logic evaluates the right operand only on need.
	if x.Op == wdl.OpAnd || x.Op == wdl.OpOr {
		l, err := ev.Evaluate(x.Left, env)
		if err != nil {
			return nil, err
		}
		lb, ok := l.(wdl.Boolean)
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("%s requires Boolean operands, got %s", x.Op, l.Type())}
		}
		if x.Op == wdl.OpAnd && !bool(lb) {
			return wdl.Boolean(false), nil
		}
		if x.Op == wdl.OpOr && bool(lb) {
			return wdl.Boolean(true), nil
		}
		r, err := ev.Evaluate(x.Right, env)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(wdl.Boolean)
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("%s requires Boolean operands, got %s", x.Op, r.Type())}
		}
		return rb, nil
	}

	l, err := ev.Evaluate(x.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := ev.Evaluate(x.Right, env)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case wdl.OpEq:
		return wdl.Boolean(wdl.Equals(l, r)), nil
	case wdl.OpNe:
		return wdl.Boolean(!wdl.Equals(l, r)), nil
	case wdl.OpAdd:
		// String concatenation when either operand is string-like.
		if ls, ok := stringish(l); ok {
			if rs, err := Stringify(r); err == nil {
				return wdl.String(ls + rs), nil
			}
		}
		if rs, ok := stringish(r); ok {
			if ls, err := Stringify(l); err == nil {
				return wdl.String(ls + rs), nil
			}
		}
		return arith(x.Op, l, r)
	case wdl.OpSub, wdl.OpMul, wdl.OpDiv, wdl.OpRem:
		return arith(x.Op, l, r)
	case wdl.OpLt, wdl.OpLe, wdl.OpGt, wdl.OpGe:
		return compare(x.Op, l, r)
	}
	return nil, &Error{Msg: fmt.Sprintf("unknown binary operator %q", x.Op)}
}

func (ev *Evaluator) evalInterp(x *wdl.Interp, env Env) (wdl.Value, error) {
	var out []byte
	for _, p := range x.Parts {
		if p.Expr == nil {
			out = append(out, p.Text...)
			continue
		}
		v, err := ev.Evaluate(p.Expr, env)
		if err != nil {
			return nil, err
		}
		if wdl.IsNone(v) {
			return nil, &Error{Msg: "cannot interpolate None into a string"}
		}
		s, err := Stringify(v)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return wdl.String(out), nil
}

func (ev *Evaluator) member(base wdl.Value, name string) (wdl.Value, error) {
	switch b := base.(type) {
	case wdl.Pair:
		switch name {
		case "left":
			return b.LeftVal, nil
		case "right":
			return b.RightVal, nil
		}
		return nil, &Error{Msg: fmt.Sprintf("pair has no member %q", name)}
	case wdl.Struct:
		v, ok := b.Field(name)
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("%s has no member %q", base.Type(), name)}
		}
		return v, nil
	}
	return nil, &Error{Msg: fmt.Sprintf("%s has no members", base.Type())}
}

func arith(op wdl.BinaryOp, l, r wdl.Value) (wdl.Value, error) {
	li, lIsInt := l.(wdl.Int)
	ri, rIsInt := r.(wdl.Int)
	if lIsInt && rIsInt {
		switch op {
		case wdl.OpAdd:
			return li + ri, nil
		case wdl.OpSub:
			return li - ri, nil
		case wdl.OpMul:
			return li * ri, nil
		case wdl.OpDiv:
			if ri == 0 {
				return nil, &Error{Msg: "division by zero"}
			}
			return li / ri, nil
		case wdl.OpRem:
			if ri == 0 {
				return nil, &Error{Msg: "division by zero"}
			}
			return li % ri, nil
		}
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, &Error{Msg: fmt.Sprintf("operator %s is not defined for %s and %s", op, l.Type(), r.Type())}
	}
	switch op {
	case wdl.OpAdd:
		return wdl.Float(lf + rf), nil
	case wdl.OpSub:
		return wdl.Float(lf - rf), nil
	case wdl.OpMul:
		return wdl.Float(lf * rf), nil
	case wdl.OpDiv:
		if rf == 0 {
			return nil, &Error{Msg: "division by zero"}
		}
		return wdl.Float(lf / rf), nil
	case wdl.OpRem:
		return nil, &Error{Msg: "operator % requires Int operands"}
	}
	return nil, &Error{Msg: fmt.Sprintf("unknown arithmetic operator %q", op)}
}

func compare(op wdl.BinaryOp, l, r wdl.Value) (wdl.Value, error) {
	if ls, lok := stringOperand(l); lok {
		rs, rok := stringOperand(r)
		if !rok {
			return nil, &Error{Msg: fmt.Sprintf("operator %s is not defined for %s and %s", op, l.Type(), r.Type())}
		}
		switch op {
		case wdl.OpLt:
			return wdl.Boolean(ls < rs), nil
		case wdl.OpLe:
			return wdl.Boolean(ls <= rs), nil
		case wdl.OpGt:
			return wdl.Boolean(ls > rs), nil
		case wdl.OpGe:
			return wdl.Boolean(ls >= rs), nil
		}
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, &Error{Msg: fmt.Sprintf("operator %s is not defined for %s and %s", op, l.Type(), r.Type())}
	}
	switch op {
	case wdl.OpLt:
		return wdl.Boolean(lf < rf), nil
	case wdl.OpLe:
		return wdl.Boolean(lf <= rf), nil
	case wdl.OpGt:
		return wdl.Boolean(lf > rf), nil
	case wdl.OpGe:
		return wdl.Boolean(lf >= rf), nil
	}
	return nil, &Error{Msg: fmt.Sprintf("unknown comparison operator %q", op)}
}

func toFloat(v wdl.Value) (float64, bool) {
	switch n := v.(type) {
	case wdl.Int:
		return float64(n), true
	case wdl.Float:
		return float64(n), true
	}
	return 0, false
}

func stringish(v wdl.Value) (string, bool) {
	if s, ok := v.(wdl.String); ok {
		return string(s), true
	}
	return "", false
}

func stringOperand(v wdl.Value) (string, bool) {
	switch s := v.(type) {
	case wdl.String:
		return string(s), true
	case wdl.File:
		return string(s), true
	case wdl.Directory:
		return string(s), true
	}
	return "", false
}

// Stringify renders a value for string interpolation and command lines.
// Containers and None are not interpolatable.
func Stringify(v wdl.Value) (string, error) {
	switch v.(type) {
	case wdl.Boolean, wdl.Int, wdl.Float, wdl.String, wdl.File, wdl.Directory:
		return v.String(), nil
	}
	return "", &Error{Msg: fmt.Sprintf("%s cannot be converted to String", v.Type())}
}
