package wdl

// Document is a validated, analyzed WDL document: task definitions plus at
// most one workflow, with imports resolved and static types checked upstream.
type Document struct {
	Version  string
	Structs  map[string]Type
	Tasks    map[string]*Task
	Workflow *Workflow
}

// Decl is a typed declaration. Expr is nil for required inputs that must be
// supplied by the caller.
type Decl struct {
	Name string
	Type Type
	Expr Expr
}

// Task is a single unit of work: declared inputs, a command template, and
// declared outputs, plus runtime requirements.
type Task struct {
	Name string
	// Version distinguishes revisions of a task with the same name for
	// call-cache fingerprinting.
	Version string
	Inputs  []*Decl
	// Decls are private declarations evaluated after inputs, before the
	// command renders.
	Decls   []*Decl
	Command []CommandPart
	Outputs []*Decl
	// Runtime maps runtime attribute names (cpu, memory, docker, disks,
	// maxRetries, returnCodes) to expressions evaluated in the task's input
	// environment.
	Runtime map[string]Expr
	Meta    map[string]string
}

// CommandPart is one segment of a task command template: literal text or a
// placeholder.
type CommandPart struct {
	Text        string
	Placeholder *Placeholder
}

// Placeholder is an embedded expression in a command template with optional
// sep/default/true-false rendering options.
type Placeholder struct {
	Expr Expr
	// Sep joins array elements when set.
	Sep string
	// Default renders in place of None when set.
	Default Expr
	// TrueStr/FalseStr render Boolean values when HasTrueFalse is set.
	TrueStr, FalseStr string
	HasTrueFalse      bool
}

// Workflow is a workflow definition: inputs, a body of statements, and
// declared outputs.
type Workflow struct {
	Name    string
	Inputs  []*Decl
	Body    []Stmt
	Outputs []*Decl
}

// Stmt is a workflow body statement: a declaration, call, scatter, or
// conditional.
type Stmt interface {
	isStmt()
}

// Call invokes a task. Inputs map task input names to expressions evaluated
// in the call's scope; After lists explicit ordering dependencies.
type Call struct {
	Task   string
	Alias  string
	Inputs map[string]Expr
	After  []string
}

// Name returns the name the call binds in its scope: the alias if present,
// otherwise the task name.
func (c *Call) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Task
}

// Scatter runs its body once per element of Collection, binding Var to the
// element. Names bound in the body are visible outside as arrays.
type Scatter struct {
	Var        string
	Collection Expr
	Body       []Stmt
}

// Conditional runs its body only if Cond is true. Names bound in the body are
// visible outside as optionals, None when the guard was false.
type Conditional struct {
	Cond Expr
	Body []Stmt
}

func (*Decl) isStmt()        {}
func (*Call) isStmt()        {}
func (*Scatter) isStmt()     {}
func (*Conditional) isStmt() {}
