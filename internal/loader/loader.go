// Package loader decodes analyzer bundles and workflow input files into the
// document model. Bundles are typed exports of an already-validated WDL
// document, serialized as JSON or YAML; the engine never parses WDL source.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/me/wdlrun/pkg/wdl"
)

// LoadBundle reads and decodes a bundle file. The format is chosen by
// extension: .yaml/.yml decode as YAML, everything else as JSON.
func LoadBundle(path string) (*wdl.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	doc, err := DecodeBundle(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// DecodeBundle decodes bundle bytes into a document.
func DecodeBundle(data []byte, asYAML bool) (*wdl.Document, error) {
	var b bundleDoc
	if asYAML {
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	return b.build()
}

func isYAML(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// bundleDoc is the serialized bundle schema.
type bundleDoc struct {
	Version  string                       `json:"version" yaml:"version"`
	Structs  map[string]map[string]string `json:"structs,omitempty" yaml:"structs,omitempty"`
	Tasks    []*taskDoc                   `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Workflow *workflowDoc                 `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

type taskDoc struct {
	Name    string              `json:"name" yaml:"name"`
	Version string              `json:"version,omitempty" yaml:"version,omitempty"`
	Inputs  []*declDoc          `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Decls   []*declDoc          `json:"declarations,omitempty" yaml:"declarations,omitempty"`
	Command []*commandPartDoc   `json:"command,omitempty" yaml:"command,omitempty"`
	Outputs []*declDoc          `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Runtime map[string]*exprDoc `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Meta    map[string]string   `json:"meta,omitempty" yaml:"meta,omitempty"`
}

type declDoc struct {
	Name string   `json:"name" yaml:"name"`
	Type string   `json:"type" yaml:"type"`
	Expr *exprDoc `json:"expr,omitempty" yaml:"expr,omitempty"`
}

type commandPartDoc struct {
	Text        string          `json:"text,omitempty" yaml:"text,omitempty"`
	Placeholder *placeholderDoc `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

type placeholderDoc struct {
	Expr    *exprDoc `json:"expr" yaml:"expr"`
	Sep     string   `json:"sep,omitempty" yaml:"sep,omitempty"`
	Default *exprDoc `json:"default,omitempty" yaml:"default,omitempty"`
	True    *string  `json:"true,omitempty" yaml:"true,omitempty"`
	False   *string  `json:"false,omitempty" yaml:"false,omitempty"`
}

type workflowDoc struct {
	Name    string     `json:"name" yaml:"name"`
	Inputs  []*declDoc `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Body    []*stmtDoc `json:"body,omitempty" yaml:"body,omitempty"`
	Outputs []*declDoc `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// stmtDoc is a one-of: exactly one field set.
type stmtDoc struct {
	Decl    *declDoc        `json:"decl,omitempty" yaml:"decl,omitempty"`
	Call    *callDoc        `json:"call,omitempty" yaml:"call,omitempty"`
	Scatter *scatterDoc     `json:"scatter,omitempty" yaml:"scatter,omitempty"`
	If      *conditionalDoc `json:"if,omitempty" yaml:"if,omitempty"`
}

type callDoc struct {
	Task   string              `json:"task" yaml:"task"`
	Alias  string              `json:"alias,omitempty" yaml:"alias,omitempty"`
	Inputs map[string]*exprDoc `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	After  []string            `json:"after,omitempty" yaml:"after,omitempty"`
}

type scatterDoc struct {
	Var  string     `json:"var" yaml:"var"`
	In   *exprDoc   `json:"in" yaml:"in"`
	Body []*stmtDoc `json:"body,omitempty" yaml:"body,omitempty"`
}

type conditionalDoc struct {
	Cond *exprDoc   `json:"cond" yaml:"cond"`
	Body []*stmtDoc `json:"body,omitempty" yaml:"body,omitempty"`
}

// exprDoc is a one-of: exactly one field set.
type exprDoc struct {
	Int    *int64          `json:"int,omitempty" yaml:"int,omitempty"`
	Float  *float64        `json:"float,omitempty" yaml:"float,omitempty"`
	Str    *string         `json:"string,omitempty" yaml:"string,omitempty"`
	Bool   *bool           `json:"boolean,omitempty" yaml:"boolean,omitempty"`
	File   *string         `json:"file,omitempty" yaml:"file,omitempty"`
	None   bool            `json:"none,omitempty" yaml:"none,omitempty"`
	Ident  *string         `json:"ident,omitempty" yaml:"ident,omitempty"`
	Unary  *unaryDoc       `json:"unary,omitempty" yaml:"unary,omitempty"`
	Binary *binaryDoc      `json:"binary,omitempty" yaml:"binary,omitempty"`
	If     *condDoc        `json:"if,omitempty" yaml:"if,omitempty"`
	Interp []*interpDoc    `json:"interp,omitempty" yaml:"interp,omitempty"`
	Member *memberDoc      `json:"member,omitempty" yaml:"member,omitempty"`
	Index  *indexDoc       `json:"index,omitempty" yaml:"index,omitempty"`
	Apply  *applyDoc       `json:"apply,omitempty" yaml:"apply,omitempty"`
	Array  *arrayLitDoc    `json:"array,omitempty" yaml:"array,omitempty"`
	Map    *mapLitDoc      `json:"map,omitempty" yaml:"map,omitempty"`
	Pair   *pairLitDoc     `json:"pair,omitempty" yaml:"pair,omitempty"`
	Struct *structLitDoc   `json:"struct,omitempty" yaml:"struct,omitempty"`
}

type unaryDoc struct {
	Op string   `json:"op" yaml:"op"`
	X  *exprDoc `json:"x" yaml:"x"`
}

type binaryDoc struct {
	Op    string   `json:"op" yaml:"op"`
	Left  *exprDoc `json:"left" yaml:"left"`
	Right *exprDoc `json:"right" yaml:"right"`
}

type condDoc struct {
	Cond *exprDoc `json:"cond" yaml:"cond"`
	Then *exprDoc `json:"then" yaml:"then"`
	Else *exprDoc `json:"else" yaml:"else"`
}

type interpDoc struct {
	Text string   `json:"text,omitempty" yaml:"text,omitempty"`
	Expr *exprDoc `json:"expr,omitempty" yaml:"expr,omitempty"`
}

type memberDoc struct {
	X    *exprDoc `json:"x" yaml:"x"`
	Name string   `json:"name" yaml:"name"`
}

type indexDoc struct {
	X   *exprDoc `json:"x" yaml:"x"`
	Key *exprDoc `json:"key" yaml:"key"`
}

type applyDoc struct {
	Func string     `json:"func" yaml:"func"`
	Args []*exprDoc `json:"args,omitempty" yaml:"args,omitempty"`
}

type arrayLitDoc struct {
	Elem  string     `json:"elem" yaml:"elem"`
	Elems []*exprDoc `json:"elems,omitempty" yaml:"elems,omitempty"`
}

type mapLitDoc struct {
	Key     string         `json:"key" yaml:"key"`
	Value   string         `json:"value" yaml:"value"`
	Entries []*mapEntryDoc `json:"entries,omitempty" yaml:"entries,omitempty"`
}

type mapEntryDoc struct {
	K *exprDoc `json:"k" yaml:"k"`
	V *exprDoc `json:"v" yaml:"v"`
}

type pairLitDoc struct {
	Left  *exprDoc `json:"left" yaml:"left"`
	Right *exprDoc `json:"right" yaml:"right"`
}

type structLitDoc struct {
	Type   string              `json:"type,omitempty" yaml:"type,omitempty"`
	Fields map[string]*exprDoc `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// decoder carries the struct type table so type strings resolve while
// decoding.
type decoder struct {
	structs map[string]wdl.Type
}

func (b *bundleDoc) build() (*wdl.Document, error) {
	doc := &wdl.Document{
		Version: b.Version,
		Structs: make(map[string]wdl.Type, len(b.Structs)),
		Tasks:   make(map[string]*wdl.Task, len(b.Tasks)),
	}
	d := &decoder{structs: doc.Structs}

	// Struct member types may reference other structs, so register names
	// first and resolve members in a second pass.
	for name := range b.Structs {
		doc.Structs[name] = wdl.StructType(name, nil)
	}
	for name, members := range b.Structs {
		resolved := make(map[string]wdl.Type, len(members))
		for mname, mtype := range members {
			t, err := d.parseType(mtype)
			if err != nil {
				return nil, fmt.Errorf("struct %s member %s: %w", name, mname, err)
			}
			resolved[mname] = t
		}
		doc.Structs[name] = wdl.StructType(name, resolved)
	}

	for _, td := range b.Tasks {
		task, err := d.decodeTask(td)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", td.Name, err)
		}
		if _, dup := doc.Tasks[task.Name]; dup {
			return nil, fmt.Errorf("duplicate task %q", task.Name)
		}
		doc.Tasks[task.Name] = task
	}

	if b.Workflow != nil {
		wf, err := d.decodeWorkflow(b.Workflow, doc.Tasks)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", b.Workflow.Name, err)
		}
		doc.Workflow = wf
	}
	return doc, nil
}

func (d *decoder) parseType(s string) (wdl.Type, error) {
	if s == "" {
		return wdl.Type{}, fmt.Errorf("empty type")
	}
	return wdl.ParseType(s, d.structs)
}

func (d *decoder) decodeTask(td *taskDoc) (*wdl.Task, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("task has no name")
	}
	task := &wdl.Task{
		Name:    td.Name,
		Version: td.Version,
		Runtime: make(map[string]wdl.Expr, len(td.Runtime)),
		Meta:    td.Meta,
	}
	var err error
	if task.Inputs, err = d.decodeDecls(td.Inputs); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if task.Decls, err = d.decodeDecls(td.Decls); err != nil {
		return nil, fmt.Errorf("declarations: %w", err)
	}
	if task.Outputs, err = d.decodeDecls(td.Outputs); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	for _, od := range task.Outputs {
		if od.Expr == nil {
			return nil, fmt.Errorf("output %s has no expression", od.Name)
		}
	}
	for i, part := range td.Command {
		cp, err := d.decodeCommandPart(part)
		if err != nil {
			return nil, fmt.Errorf("command part %d: %w", i, err)
		}
		task.Command = append(task.Command, cp)
	}
	for name, e := range td.Runtime {
		expr, err := d.decodeExpr(e)
		if err != nil {
			return nil, fmt.Errorf("runtime %s: %w", name, err)
		}
		task.Runtime[name] = expr
	}
	return task, nil
}

func (d *decoder) decodeDecls(docs []*declDoc) ([]*wdl.Decl, error) {
	out := make([]*wdl.Decl, 0, len(docs))
	for _, dd := range docs {
		decl, err := d.decodeDecl(dd)
		if err != nil {
			return nil, err
		}
		out = append(out, decl)
	}
	return out, nil
}

func (d *decoder) decodeDecl(dd *declDoc) (*wdl.Decl, error) {
	if dd.Name == "" {
		return nil, fmt.Errorf("declaration has no name")
	}
	t, err := d.parseType(dd.Type)
	if err != nil {
		return nil, fmt.Errorf("declaration %s: %w", dd.Name, err)
	}
	decl := &wdl.Decl{Name: dd.Name, Type: t}
	if dd.Expr != nil {
		if decl.Expr, err = d.decodeExpr(dd.Expr); err != nil {
			return nil, fmt.Errorf("declaration %s: %w", dd.Name, err)
		}
	}
	return decl, nil
}

func (d *decoder) decodeCommandPart(part *commandPartDoc) (wdl.CommandPart, error) {
	if part.Placeholder == nil {
		return wdl.CommandPart{Text: part.Text}, nil
	}
	if part.Placeholder.Expr == nil {
		return wdl.CommandPart{}, fmt.Errorf("placeholder has no expression")
	}
	expr, err := d.decodeExpr(part.Placeholder.Expr)
	if err != nil {
		return wdl.CommandPart{}, err
	}
	ph := &wdl.Placeholder{Expr: expr, Sep: part.Placeholder.Sep}
	if part.Placeholder.Default != nil {
		if ph.Default, err = d.decodeExpr(part.Placeholder.Default); err != nil {
			return wdl.CommandPart{}, err
		}
	}
	if part.Placeholder.True != nil || part.Placeholder.False != nil {
		if part.Placeholder.True == nil || part.Placeholder.False == nil {
			return wdl.CommandPart{}, fmt.Errorf("placeholder needs both true and false options")
		}
		ph.HasTrueFalse = true
		ph.TrueStr = *part.Placeholder.True
		ph.FalseStr = *part.Placeholder.False
	}
	return wdl.CommandPart{Placeholder: ph}, nil
}

func (d *decoder) decodeWorkflow(wd *workflowDoc, tasks map[string]*wdl.Task) (*wdl.Workflow, error) {
	if wd.Name == "" {
		return nil, fmt.Errorf("workflow has no name")
	}
	wf := &wdl.Workflow{Name: wd.Name}
	var err error
	if wf.Inputs, err = d.decodeDecls(wd.Inputs); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if wf.Body, err = d.decodeStmts(wd.Body, tasks); err != nil {
		return nil, err
	}
	if wf.Outputs, err = d.decodeDecls(wd.Outputs); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	for _, od := range wf.Outputs {
		if od.Expr == nil {
			return nil, fmt.Errorf("output %s has no expression", od.Name)
		}
	}
	return wf, nil
}

func (d *decoder) decodeStmts(docs []*stmtDoc, tasks map[string]*wdl.Task) ([]wdl.Stmt, error) {
	out := make([]wdl.Stmt, 0, len(docs))
	for i, sd := range docs {
		stmt, err := d.decodeStmt(sd, tasks)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, stmt)
	}
	return out, nil
}

func (d *decoder) decodeStmt(sd *stmtDoc, tasks map[string]*wdl.Task) (wdl.Stmt, error) {
	switch {
	case sd.Decl != nil:
		decl, err := d.decodeDecl(sd.Decl)
		if err != nil {
			return nil, err
		}
		if decl.Expr == nil {
			return nil, fmt.Errorf("declaration %s in workflow body has no expression", decl.Name)
		}
		return decl, nil

	case sd.Call != nil:
		if _, ok := tasks[sd.Call.Task]; !ok {
			return nil, fmt.Errorf("call references unknown task %q", sd.Call.Task)
		}
		call := &wdl.Call{
			Task:   sd.Call.Task,
			Alias:  sd.Call.Alias,
			Inputs: make(map[string]wdl.Expr, len(sd.Call.Inputs)),
			After:  sd.Call.After,
		}
		for name, e := range sd.Call.Inputs {
			expr, err := d.decodeExpr(e)
			if err != nil {
				return nil, fmt.Errorf("call %s input %s: %w", call.Name(), name, err)
			}
			call.Inputs[name] = expr
		}
		return call, nil

	case sd.Scatter != nil:
		if sd.Scatter.Var == "" {
			return nil, fmt.Errorf("scatter has no variable")
		}
		coll, err := d.decodeExpr(sd.Scatter.In)
		if err != nil {
			return nil, fmt.Errorf("scatter collection: %w", err)
		}
		body, err := d.decodeStmts(sd.Scatter.Body, tasks)
		if err != nil {
			return nil, fmt.Errorf("scatter body: %w", err)
		}
		return &wdl.Scatter{Var: sd.Scatter.Var, Collection: coll, Body: body}, nil

	case sd.If != nil:
		cond, err := d.decodeExpr(sd.If.Cond)
		if err != nil {
			return nil, fmt.Errorf("conditional guard: %w", err)
		}
		body, err := d.decodeStmts(sd.If.Body, tasks)
		if err != nil {
			return nil, fmt.Errorf("conditional body: %w", err)
		}
		return &wdl.Conditional{Cond: cond, Body: body}, nil
	}
	return nil, fmt.Errorf("statement is empty")
}

func (d *decoder) decodeExpr(e *exprDoc) (wdl.Expr, error) {
	if e == nil {
		return nil, fmt.Errorf("expression is empty")
	}
	switch {
	case e.Int != nil:
		return &wdl.Literal{Value: wdl.Int(*e.Int)}, nil
	case e.Float != nil:
		return &wdl.Literal{Value: wdl.Float(*e.Float)}, nil
	case e.Str != nil:
		return &wdl.Literal{Value: wdl.String(*e.Str)}, nil
	case e.Bool != nil:
		return &wdl.Literal{Value: wdl.Boolean(*e.Bool)}, nil
	case e.File != nil:
		return &wdl.Literal{Value: wdl.File(*e.File)}, nil
	case e.None:
		return &wdl.Literal{Value: wdl.None{}}, nil

	case e.Ident != nil:
		if *e.Ident == "" {
			return nil, fmt.Errorf("empty identifier")
		}
		return &wdl.Ident{Name: *e.Ident}, nil

	case e.Unary != nil:
		x, err := d.decodeExpr(e.Unary.X)
		if err != nil {
			return nil, err
		}
		switch op := wdl.UnaryOp(e.Unary.Op); op {
		case wdl.OpNeg, wdl.OpNot:
			return &wdl.Unary{Op: op, X: x}, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", e.Unary.Op)

	case e.Binary != nil:
		l, err := d.decodeExpr(e.Binary.Left)
		if err != nil {
			return nil, err
		}
		r, err := d.decodeExpr(e.Binary.Right)
		if err != nil {
			return nil, err
		}
		op := wdl.BinaryOp(e.Binary.Op)
		if !validBinaryOp(op) {
			return nil, fmt.Errorf("unknown binary operator %q", e.Binary.Op)
		}
		return &wdl.Binary{Op: op, Left: l, Right: r}, nil

	case e.If != nil:
		c, err := d.decodeExpr(e.If.Cond)
		if err != nil {
			return nil, err
		}
		t, err := d.decodeExpr(e.If.Then)
		if err != nil {
			return nil, err
		}
		f, err := d.decodeExpr(e.If.Else)
		if err != nil {
			return nil, err
		}
		return &wdl.Cond{If: c, Then: t, Else: f}, nil

	case e.Interp != nil:
		parts := make([]wdl.InterpPart, len(e.Interp))
		for i, p := range e.Interp {
			if p.Expr != nil {
				expr, err := d.decodeExpr(p.Expr)
				if err != nil {
					return nil, err
				}
				parts[i] = wdl.InterpPart{Expr: expr}
				continue
			}
			parts[i] = wdl.InterpPart{Text: p.Text}
		}
		return &wdl.Interp{Parts: parts}, nil

	case e.Member != nil:
		x, err := d.decodeExpr(e.Member.X)
		if err != nil {
			return nil, err
		}
		if e.Member.Name == "" {
			return nil, fmt.Errorf("member access has no name")
		}
		return &wdl.Member{X: x, Name: e.Member.Name}, nil

	case e.Index != nil:
		x, err := d.decodeExpr(e.Index.X)
		if err != nil {
			return nil, err
		}
		k, err := d.decodeExpr(e.Index.Key)
		if err != nil {
			return nil, err
		}
		return &wdl.IndexExpr{X: x, Key: k}, nil

	case e.Apply != nil:
		if e.Apply.Func == "" {
			return nil, fmt.Errorf("function application has no name")
		}
		args := make([]wdl.Expr, len(e.Apply.Args))
		for i, a := range e.Apply.Args {
			arg, err := d.decodeExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return &wdl.Apply{Func: e.Apply.Func, Args: args}, nil

	case e.Array != nil:
		elem, err := d.parseType(e.Array.Elem)
		if err != nil {
			return nil, fmt.Errorf("array literal: %w", err)
		}
		elems := make([]wdl.Expr, len(e.Array.Elems))
		for i, el := range e.Array.Elems {
			x, err := d.decodeExpr(el)
			if err != nil {
				return nil, err
			}
			elems[i] = x
		}
		return &wdl.ArrayLit{Elem: elem, Elems: elems}, nil

	case e.Map != nil:
		key, err := d.parseType(e.Map.Key)
		if err != nil {
			return nil, fmt.Errorf("map literal key: %w", err)
		}
		value, err := d.parseType(e.Map.Value)
		if err != nil {
			return nil, fmt.Errorf("map literal value: %w", err)
		}
		entries := make([]wdl.MapEntryExpr, len(e.Map.Entries))
		for i, en := range e.Map.Entries {
			k, err := d.decodeExpr(en.K)
			if err != nil {
				return nil, err
			}
			v, err := d.decodeExpr(en.V)
			if err != nil {
				return nil, err
			}
			entries[i] = wdl.MapEntryExpr{K: k, V: v}
		}
		return &wdl.MapLit{Key: key, Value: value, Entries: entries}, nil

	case e.Pair != nil:
		l, err := d.decodeExpr(e.Pair.Left)
		if err != nil {
			return nil, err
		}
		r, err := d.decodeExpr(e.Pair.Right)
		if err != nil {
			return nil, err
		}
		return &wdl.PairLit{Left: l, Right: r}, nil

	case e.Struct != nil:
		fields := make([]wdl.FieldExpr, 0, len(e.Struct.Fields))
		for _, name := range sortedFieldNames(e.Struct.Fields) {
			x, err := d.decodeExpr(e.Struct.Fields[name])
			if err != nil {
				return nil, err
			}
			fields = append(fields, wdl.FieldExpr{Name: name, Expr: x})
		}
		return &wdl.StructLit{TypeName: e.Struct.Type, Fields: fields}, nil
	}
	return nil, fmt.Errorf("expression is empty")
}

func validBinaryOp(op wdl.BinaryOp) bool {
	switch op {
	case wdl.OpAdd, wdl.OpSub, wdl.OpMul, wdl.OpDiv, wdl.OpRem,
		wdl.OpEq, wdl.OpNe, wdl.OpLt, wdl.OpLe, wdl.OpGt, wdl.OpGe,
		wdl.OpAnd, wdl.OpOr:
		return true
	}
	return false
}

func sortedFieldNames(m map[string]*exprDoc) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	// Deterministic field order; maps iterate randomly.
	sort.Strings(names)
	return names
}
