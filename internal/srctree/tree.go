// Package srctree defines the validated source tree handed to the translator
// by the external front end, and its YAML/JSON interchange encoding.
//
// Every Stmt and Expr is a one-of: exactly one kind field is set. The
// encoding mirrors the front end's abstract syntax closely so that the
// lowering pass, not the decoder, owns every canonicalization decision.
package srctree

// Pos is a 1-based source location.
type Pos struct {
	Line int `yaml:"line,omitempty" json:"line,omitempty"`
	Col  int `yaml:"col,omitempty" json:"col,omitempty"`
}

// Module is one compilation unit.
type Module struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	Body []Stmt `yaml:"body" json:"body"`
}

// Stmt is a statement node. Exactly one kind field is set.
type Stmt struct {
	Pos `yaml:",inline"`

	Def        *FunctionDef `yaml:"def,omitempty" json:"def,omitempty"`
	Class      *ClassDef    `yaml:"class,omitempty" json:"class,omitempty"`
	Assign     *Assign      `yaml:"assign,omitempty" json:"assign,omitempty"`
	AugAssign  *AugAssign   `yaml:"aug_assign,omitempty" json:"aug_assign,omitempty"`
	If         *If          `yaml:"if,omitempty" json:"if,omitempty"`
	While      *While       `yaml:"while,omitempty" json:"while,omitempty"`
	For        *For         `yaml:"for,omitempty" json:"for,omitempty"`
	Try        *Try         `yaml:"try,omitempty" json:"try,omitempty"`
	With       *With        `yaml:"with,omitempty" json:"with,omitempty"`
	Return     *Return      `yaml:"return,omitempty" json:"return,omitempty"`
	Raise      *Raise       `yaml:"raise,omitempty" json:"raise,omitempty"`
	Expr       *Expr        `yaml:"expr,omitempty" json:"expr,omitempty"`
	Del        *Del         `yaml:"del,omitempty" json:"del,omitempty"`
	Assert     *Assert      `yaml:"assert,omitempty" json:"assert,omitempty"`
	Import     *Import      `yaml:"import,omitempty" json:"import,omitempty"`
	ImportFrom *ImportFrom  `yaml:"import_from,omitempty" json:"import_from,omitempty"`
	Global     []string     `yaml:"global,omitempty" json:"global,omitempty"`
	Nonlocal   []string     `yaml:"nonlocal,omitempty" json:"nonlocal,omitempty"`
	Pass       bool         `yaml:"pass,omitempty" json:"pass,omitempty"`
	Break      bool         `yaml:"break,omitempty" json:"break,omitempty"`
	Continue   bool         `yaml:"continue,omitempty" json:"continue,omitempty"`
}

// FunctionDef is a function definition.
type FunctionDef struct {
	Name       string   `yaml:"name" json:"name"`
	Params     []Param  `yaml:"params,omitempty" json:"params,omitempty"`
	Returns    *TypeRef `yaml:"returns,omitempty" json:"returns,omitempty"`
	Body       []Stmt   `yaml:"body" json:"body"`
	Decorators []string `yaml:"decorators,omitempty" json:"decorators,omitempty"`
	Async      bool     `yaml:"async,omitempty" json:"async,omitempty"`
}

// Param is a formal parameter. Vararg marks `*name`, Kwarg marks `**name`.
type Param struct {
	Name    string   `yaml:"name" json:"name"`
	Type    *TypeRef `yaml:"type,omitempty" json:"type,omitempty"`
	Default *Expr    `yaml:"default,omitempty" json:"default,omitempty"`
	Vararg  bool     `yaml:"vararg,omitempty" json:"vararg,omitempty"`
	Kwarg   bool     `yaml:"kwarg,omitempty" json:"kwarg,omitempty"`
}

// ClassDef is a class definition.
type ClassDef struct {
	Name  string   `yaml:"name" json:"name"`
	Bases []string `yaml:"bases,omitempty" json:"bases,omitempty"`
	Body  []Stmt   `yaml:"body" json:"body"`
}

// Assign is `target = value` or the annotated `target: type = value`.
type Assign struct {
	Target Expr     `yaml:"target" json:"target"`
	Type   *TypeRef `yaml:"type,omitempty" json:"type,omitempty"`
	Value  *Expr    `yaml:"value,omitempty" json:"value,omitempty"`
}

// AugAssign is `target op= value`.
type AugAssign struct {
	Target Expr   `yaml:"target" json:"target"`
	Op     string `yaml:"op" json:"op"`
	Value  Expr   `yaml:"value" json:"value"`
}

// If is a conditional; elif chains nest in Else.
type If struct {
	Test Expr   `yaml:"test" json:"test"`
	Body []Stmt `yaml:"body" json:"body"`
	Else []Stmt `yaml:"else,omitempty" json:"else,omitempty"`
}

// While is a condition-controlled loop.
type While struct {
	Test Expr   `yaml:"test" json:"test"`
	Body []Stmt `yaml:"body" json:"body"`
	Else []Stmt `yaml:"else,omitempty" json:"else,omitempty"`
}

// For is an iteration loop.
type For struct {
	Target Expr   `yaml:"target" json:"target"`
	Iter   Expr   `yaml:"iter" json:"iter"`
	Body   []Stmt `yaml:"body" json:"body"`
	Else   []Stmt `yaml:"else,omitempty" json:"else,omitempty"`
}

// Try is exception handling.
type Try struct {
	Body     []Stmt    `yaml:"body" json:"body"`
	Handlers []Handler `yaml:"handlers,omitempty" json:"handlers,omitempty"`
	Else     []Stmt    `yaml:"else,omitempty" json:"else,omitempty"`
	Finally  []Stmt    `yaml:"finally,omitempty" json:"finally,omitempty"`
}

// Handler is one except clause. Empty Types means a bare except.
type Handler struct {
	Pos   `yaml:",inline"`
	Types []string `yaml:"types,omitempty" json:"types,omitempty"`
	Name  string   `yaml:"name,omitempty" json:"name,omitempty"`
	Body  []Stmt   `yaml:"body" json:"body"`
}

// With is a context-manager block.
type With struct {
	Items []WithItem `yaml:"items" json:"items"`
	Body  []Stmt     `yaml:"body" json:"body"`
}

// WithItem is `context as name`.
type WithItem struct {
	Context Expr   `yaml:"context" json:"context"`
	As      string `yaml:"as,omitempty" json:"as,omitempty"`
}

// Return is a return statement; Value is nil for a bare return.
type Return struct {
	Value *Expr `yaml:"value,omitempty" json:"value,omitempty"`
}

// Raise is a raise statement; Exc is nil for a bare re-raise.
type Raise struct {
	Exc *Expr `yaml:"exc,omitempty" json:"exc,omitempty"`
}

// Del deletes names, subscripts or attributes.
type Del struct {
	Targets []Expr `yaml:"targets" json:"targets"`
}

// Assert is `assert test, msg`.
type Assert struct {
	Test Expr  `yaml:"test" json:"test"`
	Msg  *Expr `yaml:"msg,omitempty" json:"msg,omitempty"`
}

// Alias is one imported name.
type Alias struct {
	Name string `yaml:"name" json:"name"`
	As   string `yaml:"as,omitempty" json:"as,omitempty"`
}

// Import is `import a.b as c`.
type Import struct {
	Names []Alias `yaml:"names" json:"names"`
}

// ImportFrom is `from module import names`.
type ImportFrom struct {
	Module string  `yaml:"module" json:"module"`
	Names  []Alias `yaml:"names" json:"names"`
}

// Expr is an expression node. Exactly one kind field is set.
type Expr struct {
	Pos `yaml:",inline"`

	Int   *int64   `yaml:"int,omitempty" json:"int,omitempty"`
	Float *float64 `yaml:"float,omitempty" json:"float,omitempty"`
	Str   *string  `yaml:"str,omitempty" json:"str,omitempty"`
	Bool  *bool    `yaml:"bool,omitempty" json:"bool,omitempty"`
	None  bool     `yaml:"none,omitempty" json:"none,omitempty"`

	Name      string      `yaml:"name,omitempty" json:"name,omitempty"`
	Attr      *Attribute  `yaml:"attr,omitempty" json:"attr,omitempty"`
	Subscript *Subscript  `yaml:"subscript,omitempty" json:"subscript,omitempty"`
	Call      *Call       `yaml:"call,omitempty" json:"call,omitempty"`
	BinOp     *BinOp      `yaml:"binop,omitempty" json:"binop,omitempty"`
	BoolOp    *BoolOp     `yaml:"boolop,omitempty" json:"boolop,omitempty"`
	Compare   *Compare    `yaml:"compare,omitempty" json:"compare,omitempty"`
	Unary     *UnaryOp    `yaml:"unary,omitempty" json:"unary,omitempty"`
	Dict      *DictLit    `yaml:"dict,omitempty" json:"dict,omitempty"`
	List      *SeqLit     `yaml:"list,omitempty" json:"list,omitempty"`
	Set       *SeqLit     `yaml:"set,omitempty" json:"set,omitempty"`
	Tuple     *SeqLit     `yaml:"tuple,omitempty" json:"tuple,omitempty"`
	ListComp  *Comp       `yaml:"list_comp,omitempty" json:"list_comp,omitempty"`
	SetComp   *Comp       `yaml:"set_comp,omitempty" json:"set_comp,omitempty"`
	DictComp  *Comp       `yaml:"dict_comp,omitempty" json:"dict_comp,omitempty"`
	GenExp    *Comp       `yaml:"gen_exp,omitempty" json:"gen_exp,omitempty"`
	Lambda    *Lambda     `yaml:"lambda,omitempty" json:"lambda,omitempty"`
	Starred   *Expr       `yaml:"starred,omitempty" json:"starred,omitempty"`
	Walrus    *NamedExpr  `yaml:"walrus,omitempty" json:"walrus,omitempty"`
	IfExp     *IfExp      `yaml:"if_exp,omitempty" json:"if_exp,omitempty"`
	FString   *FString    `yaml:"fstring,omitempty" json:"fstring,omitempty"`
	Yield     *Yield      `yaml:"yield,omitempty" json:"yield,omitempty"`
	Await     *Expr       `yaml:"await,omitempty" json:"await,omitempty"`
}

// Attribute is `value.attr`.
type Attribute struct {
	Value Expr   `yaml:"value" json:"value"`
	Attr  string `yaml:"attr" json:"attr"`
}

// Subscript is `value[index]` or `value[lower:upper]`.
type Subscript struct {
	Value Expr   `yaml:"value" json:"value"`
	Index *Expr  `yaml:"index,omitempty" json:"index,omitempty"`
	Slice *Slice `yaml:"slice,omitempty" json:"slice,omitempty"`
}

// Slice bounds; any may be nil.
type Slice struct {
	Lower *Expr `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper *Expr `yaml:"upper,omitempty" json:"upper,omitempty"`
	Step  *Expr `yaml:"step,omitempty" json:"step,omitempty"`
}

// Call is a call expression.
type Call struct {
	Func     Expr      `yaml:"func" json:"func"`
	Args     []Expr    `yaml:"args,omitempty" json:"args,omitempty"`
	Keywords []Keyword `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Keyword is a keyword argument.
type Keyword struct {
	Name  string `yaml:"name" json:"name"`
	Value Expr   `yaml:"value" json:"value"`
}

// BinOp is an arithmetic or bitwise operation.
type BinOp struct {
	Op    string `yaml:"op" json:"op"`
	Left  Expr   `yaml:"left" json:"left"`
	Right Expr   `yaml:"right" json:"right"`
}

// BoolOp is `and`/`or` over two or more values.
type BoolOp struct {
	Op     string `yaml:"op" json:"op"`
	Values []Expr `yaml:"values" json:"values"`
}

// Compare is a (possibly chained) comparison.
type Compare struct {
	Left        Expr     `yaml:"left" json:"left"`
	Ops         []string `yaml:"ops" json:"ops"`
	Comparators []Expr   `yaml:"comparators" json:"comparators"`
}

// UnaryOp is `not`, `-`, `+` or `~`.
type UnaryOp struct {
	Op      string `yaml:"op" json:"op"`
	Operand Expr   `yaml:"operand" json:"operand"`
}

// DictLit is a dict display.
type DictLit struct {
	Entries []DictEntry `yaml:"entries,omitempty" json:"entries,omitempty"`
}

// DictEntry is one key/value pair.
type DictEntry struct {
	Key   Expr `yaml:"key" json:"key"`
	Value Expr `yaml:"value" json:"value"`
}

// SeqLit is a list, set or tuple display.
type SeqLit struct {
	Elts []Expr `yaml:"elts,omitempty" json:"elts,omitempty"`
}

// Comp is a comprehension. Key is set only for dict comprehensions.
type Comp struct {
	Key        *Expr     `yaml:"key,omitempty" json:"key,omitempty"`
	Elt        Expr      `yaml:"elt" json:"elt"`
	Generators []CompFor `yaml:"generators" json:"generators"`
}

// CompFor is one `for target in iter if ...` clause.
type CompFor struct {
	Target Expr   `yaml:"target" json:"target"`
	Iter   Expr   `yaml:"iter" json:"iter"`
	Ifs    []Expr `yaml:"ifs,omitempty" json:"ifs,omitempty"`
}

// Lambda is an anonymous function.
type Lambda struct {
	Params []string `yaml:"params" json:"params"`
	Body   Expr     `yaml:"body" json:"body"`
}

// NamedExpr is `target := value`.
type NamedExpr struct {
	Target string `yaml:"target" json:"target"`
	Value  Expr   `yaml:"value" json:"value"`
}

// IfExp is `body if test else orelse`.
type IfExp struct {
	Test   Expr `yaml:"test" json:"test"`
	Body   Expr `yaml:"body" json:"body"`
	OrElse Expr `yaml:"orelse" json:"orelse"`
}

// FString is an interpolated string; literal parts are Str expressions.
type FString struct {
	Parts []Expr `yaml:"parts" json:"parts"`
}

// Yield is `yield value` or `yield from value`.
type Yield struct {
	Value *Expr `yaml:"value,omitempty" json:"value,omitempty"`
	From  bool  `yaml:"from,omitempty" json:"from,omitempty"`
}
