package ir

// Op is a unary, binary, comparison or boolean operator.
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	OpEq
	OpNotEq
	OpLt
	OpLtE
	OpGt
	OpGtE
	OpIn
	OpNotIn
	OpIs
	OpIsNot

	OpAnd
	OpOr

	OpNot
	OpNeg
	OpPos
	OpInvert
)

var opSpelling = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "//",
	OpMod: "%", OpPow: "**", OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpShl: "<<", OpShr: ">>",
	OpEq: "==", OpNotEq: "!=", OpLt: "<", OpLtE: "<=", OpGt: ">", OpGtE: ">=",
	OpIn: "in", OpNotIn: "not in", OpIs: "is", OpIsNot: "is not",
	OpAnd: "and", OpOr: "or",
	OpNot: "not", OpNeg: "-", OpPos: "+", OpInvert: "~",
}

func (o Op) String() string {
	if s, ok := opSpelling[o]; ok {
		return s
	}
	return "?op"
}

// IsCompare reports comparison operators.
func (o Op) IsCompare() bool { return o >= OpEq && o <= OpIsNot }

// IsArith reports arithmetic and bitwise binary operators.
func (o Op) IsArith() bool { return o >= OpAdd && o <= OpShr }

var (
	binaryOps = map[string]Op{
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "//": OpFloorDiv,
		"%": OpMod, "**": OpPow, "&": OpBitAnd, "|": OpBitOr, "^": OpBitXor,
		"<<": OpShl, ">>": OpShr,
	}
	compareOps = map[string]Op{
		"==": OpEq, "!=": OpNotEq, "<": OpLt, "<=": OpLtE, ">": OpGt, ">=": OpGtE,
		"in": OpIn, "not in": OpNotIn, "is": OpIs, "is not": OpIsNot,
	}
	unaryOps = map[string]Op{"not": OpNot, "-": OpNeg, "+": OpPos, "~": OpInvert}
	boolOps  = map[string]Op{"and": OpAnd, "or": OpOr}
)

// ParseBinaryOp parses an arithmetic or bitwise operator.
func ParseBinaryOp(s string) (Op, bool) { op, ok := binaryOps[s]; return op, ok }

// ParseCompareOp parses a comparison operator.
func ParseCompareOp(s string) (Op, bool) { op, ok := compareOps[s]; return op, ok }

// ParseUnaryOp parses a unary operator.
func ParseUnaryOp(s string) (Op, bool) { op, ok := unaryOps[s]; return op, ok }

// ParseBoolOp parses `and` or `or`.
func ParseBoolOp(s string) (Op, bool) { op, ok := boolOps[s]; return op, ok }
