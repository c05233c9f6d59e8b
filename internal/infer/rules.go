package infer

import (
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

// assignable reports whether a value of type from may be stored where to
// is expected. The code generator inserts the matching coercion: int to
// float, wrapping in Some, or wrapping as a dynamic tagged value.
func assignable(from, to *ir.Type) bool {
	switch {
	case from.IsUnknown() || to.IsUnknown():
		return true
	case from.Equal(to):
		return true
	case from.Kind == ir.KindInt && to.Kind == ir.KindFloat:
		return true
	case to.Kind == ir.KindOptional:
		if from.IsNone() || from.Kind == ir.KindUnit {
			return true
		}
		if from.Kind == ir.KindOptional {
			return assignable(from.Elem, to.Elem)
		}
		return assignable(from, to.Elem)
	case to.Kind == ir.KindDyn:
		switch from.Kind {
		case ir.KindFunc, ir.KindOpaque, ir.KindUnion, ir.KindTuple, ir.KindFallible:
			return false
		}
		return true
	case from.Kind == to.Kind && from.Name == to.Name && len(from.Items) == len(to.Items):
		// Structural types with unknown parts on either side.
		if j, ok := ir.Join(from, to); ok && j.Equal(to) {
			return true
		}
		return !from.Known() || !to.Known()
	}
	return false
}

// symmetric reports operators whose operands share one type, so a known
// left operand types the right one.
func symmetric(op ir.Op, t *ir.Type) bool {
	switch {
	case t.IsNumeric():
		return true
	case t.Kind == ir.KindStr || t.Kind == ir.KindSeq:
		return op == ir.OpAdd
	case t.Kind == ir.KindSet:
		return op == ir.OpBitOr || op == ir.OpBitAnd || op == ir.OpBitXor || op == ir.OpSub
	}
	return false
}

// arith types a binary arithmetic or bitwise operator.
func arith(op ir.Op, x, y *ir.Type, p diag.Pos) (*ir.Type, error) {
	if x.IsUnknown() || y.IsUnknown() {
		return ir.Unknown, nil
	}
	bitwise := op >= ir.OpBitAnd && op <= ir.OpShr
	switch {
	case x.Kind == ir.KindInt && y.Kind == ir.KindInt:
		if op == ir.OpDiv {
			return ir.Float, nil
		}
		return ir.Int, nil
	case x.IsNumeric() && y.IsNumeric() && !bitwise:
		return ir.Float, nil
	case x.Kind == ir.KindStr && op == ir.OpMod:
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "%",
			"%%-formatting of strings; use an f-string")
	case x.Kind == ir.KindStr && y.Kind == ir.KindStr && op == ir.OpAdd:
		return ir.Str, nil
	case op == ir.OpMul && x.Kind == ir.KindStr && y.Kind == ir.KindInt,
		op == ir.OpMul && x.Kind == ir.KindInt && y.Kind == ir.KindStr:
		return ir.Str, nil
	case x.Kind == ir.KindSeq && y.Kind == ir.KindSeq && op == ir.OpAdd:
		if j, ok := ir.Join(x, y); ok {
			return j, nil
		}
	case op == ir.OpMul && x.Kind == ir.KindSeq && y.Kind == ir.KindInt:
		return x, nil
	case op == ir.OpMul && x.Kind == ir.KindInt && y.Kind == ir.KindSeq:
		return y, nil
	case x.Kind == ir.KindSet && y.Kind == ir.KindSet && symmetric(op, x):
		if j, ok := ir.Join(x, y); ok {
			return j, nil
		}
	}
	return nil, diag.Inference(diag.CodeInferConflict, p, op.String(),
		"unsupported operand types for %s: %s and %s", op, x, y)
}

// comparable reports whether x op y is well typed.
func comparable(op ir.Op, x, y *ir.Type) bool {
	if !x.Known() || !y.Known() {
		return true
	}
	if op == ir.OpEq || op == ir.OpNotEq {
		switch {
		case x.IsNumeric() && y.IsNumeric():
			return true
		case x.Kind == ir.KindDyn || y.Kind == ir.KindDyn:
			return true
		case x.Kind == ir.KindOptional && assignable(y, x), y.Kind == ir.KindOptional && assignable(x, y):
			return true
		}
		_, ok := ir.Join(x, y)
		return ok && x.Kind != ir.KindFunc
	}
	switch {
	case x.IsNumeric() && y.IsNumeric():
		return true
	case x.Kind == ir.KindStr && y.Kind == ir.KindStr:
		return true
	case x.Kind == ir.KindBool && y.Kind == ir.KindBool:
		return true
	case x.Kind == ir.KindSeq && y.Kind == ir.KindSeq, x.Kind == ir.KindTuple && y.Kind == ir.KindTuple:
		j, ok := ir.Join(x, y)
		return ok && ordered(j)
	}
	return false
}

// ordered reports types with a total order in the target.
func ordered(t *ir.Type) bool {
	switch t.Kind {
	case ir.KindInt, ir.KindBool, ir.KindStr, ir.KindSize:
		return true
	case ir.KindSeq:
		return ordered(t.Elem)
	case ir.KindTuple:
		for _, it := range t.Items {
			if !ordered(it) && it.Kind != ir.KindFloat {
				return false
			}
		}
		return true
	}
	return false
}

// hashable reports types usable as map keys and set elements.
func hashable(t *ir.Type) bool {
	switch t.Kind {
	case ir.KindUnknown, ir.KindInt, ir.KindBool, ir.KindStr, ir.KindUnit, ir.KindSize:
		return true
	case ir.KindOptional:
		return hashable(t.Elem)
	case ir.KindTuple:
		for _, it := range t.Items {
			if !hashable(it) {
				return false
			}
		}
		return true
	}
	return false
}
