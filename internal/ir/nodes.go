package ir

import "github.com/roach88/ferrule/internal/diag"

// ExprID addresses an expression in a module's arena. Zero is the null node.
type ExprID int32

// StmtID addresses a statement in a module's arena. Zero is the null node.
type StmtID int32

const (
	NoExpr ExprID = 0
	NoStmt StmtID = 0
)

// ExprKind tags an Expr.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprLit
	ExprVar
	ExprConst // catalog constant: Callee names library and symbol
	ExprAttr
	ExprSubscript
	ExprSlice
	ExprCall
	ExprMethodCall
	ExprBinary
	ExprBoolOp
	ExprUnary
	ExprDict
	ExprList
	ExprSet
	ExprTuple
	ExprComp
	ExprLambda
	ExprStarred
	ExprNamed
	ExprIfExp
	ExprFString
	ExprTruthy // inserted: type-appropriate boolean test of X
	ExprCast   // inserted: numeric conversion of X to Type
)

var exprKindNames = [...]string{
	ExprInvalid: "invalid", ExprLit: "lit", ExprVar: "var", ExprConst: "const",
	ExprAttr: "attr", ExprSubscript: "subscript", ExprSlice: "slice",
	ExprCall: "call", ExprMethodCall: "method", ExprBinary: "binary",
	ExprBoolOp: "boolop", ExprUnary: "unary", ExprDict: "dict", ExprList: "list",
	ExprSet: "set", ExprTuple: "tuple", ExprComp: "comp", ExprLambda: "lambda",
	ExprStarred: "starred", ExprNamed: "named", ExprIfExp: "ifexp",
	ExprFString: "fstring", ExprTruthy: "truthy", ExprCast: "cast",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "invalid"
}

// LitKind tags a Literal.
type LitKind uint8

const (
	LitInt LitKind = iota + 1
	LitFloat
	LitStr
	LitBool
	LitNone
)

// Literal is a constant value.
type Literal struct {
	Kind  LitKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// CallKind classifies what a call resolves to.
type CallKind uint8

const (
	CallUnresolved CallKind = iota
	// CallLocal calls a function defined in the same unit.
	CallLocal
	// CallIntrinsic calls a builtin function or typed method.
	CallIntrinsic
	// CallLibrary calls a catalog symbol.
	CallLibrary
	// CallOpaque passes an unknown library symbol through unchanged.
	CallOpaque
	// CallException constructs an exception value of kind Name.
	CallException
	// CallValue calls a callable binding such as a lambda.
	CallValue
)

func (k CallKind) String() string {
	switch k {
	case CallLocal:
		return "local"
	case CallIntrinsic:
		return "intrinsic"
	case CallLibrary:
		return "library"
	case CallOpaque:
		return "opaque"
	case CallException:
		return "exception"
	case CallValue:
		return "value"
	}
	return "unresolved"
}

// Callee is the resolution of a call target.
type Callee struct {
	Kind    CallKind
	Library string
	Symbol  string
}

// Keyword is a keyword argument.
type Keyword struct {
	Name  string
	Value ExprID
}

// CompKind tags a comprehension.
type CompKind uint8

const (
	CompList CompKind = iota + 1
	CompSet
	CompDict
	CompGen
)

// Comp is a comprehension or generator expression.
type Comp struct {
	Kind CompKind
	Elt  ExprID
	Key  ExprID // CompDict only
	Gens []CompFor
}

// CompFor is one `for target in iter if ...` clause.
type CompFor struct {
	Target ExprID
	Iter   ExprID
	Ifs    []ExprID
}

// Expr is an expression node. Field use depends on Kind:
//
//	Lit        Lit
//	Var        Name, Use
//	Const      Callee
//	Attr       X.Name
//	Subscript  X[Y]
//	Slice      X[Y:Z], either bound may be NoExpr
//	Call       Name(Args, Kwargs), resolved by Callee; Pass per argument
//	MethodCall X.Name(Args), resolved by Callee
//	Binary     X Op Y
//	BoolOp     Args joined by Op
//	Unary      Op X
//	Dict       Keys[i]: Args[i]
//	List, Set, Tuple, FString   Args
//	Comp       Comp
//	Lambda     Params: X
//	Starred    *X
//	Named      Name := X
//	IfExp      Y if X else Z
//	Truthy     bool(X)
//	Cast       X as Type
type Expr struct {
	Kind ExprKind
	Pos  diag.Pos
	Type *Type

	Lit    Literal
	Name   string
	Op     Op
	X      ExprID
	Y      ExprID
	Z      ExprID
	Args   []ExprID
	Keys   []ExprID
	Kwargs []Keyword
	Params []string
	Comp   *Comp
	Callee Callee

	// Use is how a Var read is emitted.
	Use Use
	// Pass is, per argument, the mode the callee receives it in.
	Pass []Use
	// Fallible marks a call whose failure propagates to the caller, or a
	// subscript or division whose fault a surrounding handler catches and
	// which is therefore rendered in its checked form.
	Fallible bool
	// Dynamic marks an aggregate literal built from dynamic tagged values.
	Dynamic bool
}

// StmtKind tags a Stmt.
type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtAssign
	StmtAugAssign
	StmtIf
	StmtWhile
	StmtLoop
	StmtFor
	StmtBreak
	StmtContinue
	StmtTry
	StmtReturn
	StmtRaise
	StmtExpr
	StmtDel
	StmtMatch
	StmtLetElse
	StmtAssert
	StmtYield
	StmtPass
)

var stmtKindNames = [...]string{
	StmtInvalid: "invalid", StmtAssign: "assign", StmtAugAssign: "augassign",
	StmtIf: "if", StmtWhile: "while", StmtLoop: "loop", StmtFor: "for",
	StmtBreak: "break", StmtContinue: "continue", StmtTry: "try",
	StmtReturn: "return", StmtRaise: "raise", StmtExpr: "expr", StmtDel: "del",
	StmtMatch: "match", StmtLetElse: "letelse", StmtAssert: "assert",
	StmtYield: "yield", StmtPass: "pass",
}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return "invalid"
}

// Handler is one except clause of a guarded region. Empty Kinds catches
// every exception.
type Handler struct {
	Pos   diag.Pos
	Kinds []string
	Name  string
	Body  []StmtID
}

// Match is an exhaustive dispatch over a closed tagged union.
type Match struct {
	Subject ExprID
	Union   string
	Arms    []Arm
	// Default holds the trailing else branch. It is unreachable once every
	// variant has an arm but is kept to preserve source behavior.
	Default    []StmtID
	HasDefault bool
}

// Arm is one variant's branch.
type Arm struct {
	Variant string
	Body    []StmtID
}

// Stmt is a statement node. Field use depends on Kind:
//
//	Assign     Target = Value, optional Annot
//	AugAssign  Target Op= Value
//	If         if Cond Body else Else
//	While      while Cond Body
//	Loop       loop Body
//	For        for Target in Value Body
//	Try        guarded Body, Handlers, Else, Finally; Scoped for `with`
//	Return     Value (NoExpr for a bare return)
//	Raise      Value (NoExpr re-raises the handled exception)
//	Expr       Value
//	Del        Targets
//	Match      Match
//	LetElse    Target := Value or break, see Guard
//	Assert     Cond, Value message
//	Yield      Value appended to the generator's output
type Stmt struct {
	Kind StmtKind
	Pos  diag.Pos

	Target   ExprID
	Value    ExprID
	Cond     ExprID
	Op       Op
	Body     []StmtID
	Else     []StmtID
	Handlers []Handler
	Finally  []StmtID
	Targets  []ExprID
	Annot    *Type
	Match    *Match

	// Scoped marks a Try that came from a with-block.
	Scoped bool
	// Declares marks the Assign that introduces its target binding.
	Declares bool
	// Hoisted lists bindings declared, uninitialized, just before this
	// statement because branches of it assign them and later code reads them.
	Hoisted []string
}

// Param is a function parameter.
type Param struct {
	Name      string
	Pos       diag.Pos
	Type      *Type
	Annotated bool
	Own       Ownership
	Vararg    bool
	Default   ExprID
}

// Binding is a local name within a function.
type Binding struct {
	Name string
	Type *Type
	Own  Ownership
	// Param marks bindings introduced by the parameter list.
	Param bool
	// Reassigned is set when the binding is assigned more than once.
	Reassigned bool
	// Mutated is set when the value is changed in place: method calls with
	// side effects, subscript or attribute stores, augmented assignment.
	Mutated bool
}

// Function is a function definition.
type Function struct {
	Name            string
	Pos             diag.Pos
	Params          []*Param
	Return          *Type
	ReturnAnnotated bool
	Body            []StmtID
	CanFail         bool
	Generator       bool
	// Main marks the function synthesized from a main guard.
	Main     bool
	Bindings map[string]*Binding
}

// Binding returns the named local, or nil.
func (f *Function) Binding(name string) *Binding {
	if f.Bindings == nil {
		return nil
	}
	return f.Bindings[name]
}

// Param returns the named parameter, or nil.
func (f *Function) Param(name string) *Param {
	for _, p := range f.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Constant is a module-level binding.
type Constant struct {
	Name  string
	Pos   diag.Pos
	Value ExprID
	Type  *Type
	Annot *Type
}

// Union is a closed tagged union synthesized from tagged dispatch.
type Union struct {
	Name string
	// Discriminant is the attribute the source compared, e.g. "command".
	Discriminant string
	Variants     []*Variant
}

// Variant is one union case.
type Variant struct {
	Name   string
	Tag    string
	Fields []*Field
}

// Field is a payload field of a variant.
type Field struct {
	Name string
	Type *Type
}

// Variant returns the named variant, or nil.
func (u *Union) Variant(name string) *Variant {
	for _, v := range u.Variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Field returns the named field, or nil.
func (v *Variant) Field(name string) *Field {
	for _, f := range v.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Import binds a local alias to a library symbol or a whole library.
type Import struct {
	Library string
	Symbol  string // empty for `import lib`
}
