package wdl

// Expr is a node of a typed WDL expression tree, produced by the analyzer and
// decoded by internal/loader. The engine evaluates these trees; it never sees
// source text.
type Expr interface {
	isExpr()
}

// Literal holds a constant value.
type Literal struct {
	Value Value
}

// Ident references a name bound in the evaluation environment. Dotted names
// are expressed as Member access on an Ident base.
type Ident struct {
	Name string
}

// UnaryOp is a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
)

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// BinaryOp is a binary operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpRem BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
)

// Binary applies a binary operator. && and || short-circuit.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

// Cond is a WDL if-then-else expression.
type Cond struct {
	If, Then, Else Expr
}

// Interp is an interpolated string: literal text interleaved with embedded
// expressions.
type Interp struct {
	Parts []InterpPart
}

// InterpPart is one segment of an interpolated string. Exactly one of Text or
// Expr is meaningful.
type InterpPart struct {
	Text string
	Expr Expr
}

// Member accesses a struct field, pair member (left/right), or call output.
type Member struct {
	X    Expr
	Name string
}

// IndexExpr accesses an array element or map value.
type IndexExpr struct {
	X, Key Expr
}

// Apply calls a standard-library function with positional arguments,
// evaluated left to right.
type Apply struct {
	Func string
	Args []Expr
}

// ArrayLit constructs an array. Elem is the declared element type.
type ArrayLit struct {
	Elem  Type
	Elems []Expr
}

// MapLit constructs a map.
type MapLit struct {
	Key, Value Type
	Entries    []MapEntryExpr
}

// MapEntryExpr is one key/value entry of a MapLit.
type MapEntryExpr struct {
	K, V Expr
}

// PairLit constructs a pair.
type PairLit struct {
	Left, Right Expr
}

// StructLit constructs a struct or object value.
type StructLit struct {
	TypeName string
	Fields   []FieldExpr
}

// FieldExpr is one field of a StructLit.
type FieldExpr struct {
	Name string
	Expr Expr
}

func (*Literal) isExpr()   {}
func (*Ident) isExpr()     {}
func (*Unary) isExpr()     {}
func (*Binary) isExpr()    {}
func (*Cond) isExpr()      {}
func (*Interp) isExpr()    {}
func (*Member) isExpr()    {}
func (*IndexExpr) isExpr() {}
func (*Apply) isExpr()     {}
func (*ArrayLit) isExpr()  {}
func (*MapLit) isExpr()    {}
func (*PairLit) isExpr()   {}
func (*StructLit) isExpr() {}

// FreeVars returns the base identifiers the expression reads, in first-use
// order without duplicates. Member access contributes its base identifier
// only ("addOne.result" reads "addOne").
func FreeVars(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	collectFreeVars(e, seen, &out)
	return out
}

func collectFreeVars(e Expr, seen map[string]bool, out *[]string) {
	switch x := e.(type) {
	case nil:
	case *Literal:
	case *Ident:
		if !seen[x.Name] {
			seen[x.Name] = true
			*out = append(*out, x.Name)
		}
	case *Unary:
		collectFreeVars(x.X, seen, out)
	case *Binary:
		collectFreeVars(x.Left, seen, out)
		collectFreeVars(x.Right, seen, out)
	case *Cond:
		collectFreeVars(x.If, seen, out)
		collectFreeVars(x.Then, seen, out)
		collectFreeVars(x.Else, seen, out)
	case *Interp:
		for _, p := range x.Parts {
			if p.Expr != nil {
				collectFreeVars(p.Expr, seen, out)
			}
		}
	case *Member:
		collectFreeVars(x.X, seen, out)
	case *IndexExpr:
		collectFreeVars(x.X, seen, out)
		collectFreeVars(x.Key, seen, out)
	case *Apply:
		for _, a := range x.Args {
			collectFreeVars(a, seen, out)
		}
	case *ArrayLit:
		for _, el := range x.Elems {
			collectFreeVars(el, seen, out)
		}
	case *MapLit:
		for _, e := range x.Entries {
			collectFreeVars(e.K, seen, out)
			collectFreeVars(e.V, seen, out)
		}
	case *PairLit:
		collectFreeVars(x.Left, seen, out)
		collectFreeVars(x.Right, seen, out)
	case *StructLit:
		for _, f := range x.Fields {
			collectFreeVars(f.Expr, seen, out)
		}
	}
}
