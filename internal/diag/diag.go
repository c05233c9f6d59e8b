// Package diag defines the diagnostic taxonomy shared by every pipeline stage.
//
// A stage either succeeds for a unit or returns a *Error carrying a located
// Diagnostic. Warnings (catalog misses under the "warn" policy, name-based
// fallbacks) are collected in a Bag and never abort the unit.
package diag

import (
	"errors"
	"fmt"
	"sort"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// KindSyntaxUnsupported means no lowering rule exists for a construct.
	KindSyntaxUnsupported Kind = "SyntaxUnsupported"

	// KindInference means a type or ownership mode could not be determined.
	KindInference Kind = "InferenceError"

	// KindCatalogMiss means a library symbol is absent from the catalog.
	KindCatalogMiss Kind = "CatalogMiss"

	// KindInternal means a pass observed an IR shape its contract forbids.
	KindInternal Kind = "InternalInvariantViolation"
)

// Diagnostic codes, grouped by kind.
const (
	CodeUnsupportedStmt    = "E201" // statement kind has no lowering rule
	CodeUnsupportedExpr    = "E202" // expression kind has no lowering rule
	CodeUnsupportedForm    = "E203" // construct shape not canonicalizable
	CodeUnsupportedImport  = "E204" // import form not supported
	CodeInferUnresolved    = "E301" // required type never resolved
	CodeInferConflict      = "E302" // binding rebound with incompatible type
	CodeInferUndefined     = "E303" // name not defined in scope
	CodeInferUnassigned    = "E304" // binding may be unassigned where read
	CodeInferOwnership     = "E305" // ownership mode cannot be satisfied
	CodeInferFallback      = "E306" // name-based fallback applied (warning)
	CodeCatalogMiss        = "E401" // unknown library symbol
	CodeInternalInvariant  = "E501" // forbidden IR shape observed
	CodeInternalPanic      = "E502" // recovered panic inside a pass
	CodeInternalUnknownTyp = "E503" // Unknown type survived to codegen
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Pos is a source location. Line and Col are 1-based; zero means unknown.
type Pos struct {
	Line int `json:"line,omitempty"`
	Col  int `json:"col,omitempty"`
}

// IsValid reports whether the position carries a line.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.Col > 0 {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%d", p.Line)
}

// Diagnostic is one structured report: kind, unit, location and a one-line cause.
type Diagnostic struct {
	Kind      Kind     `json:"kind"`
	Code      string   `json:"code"`
	Severity  Severity `json:"severity"`
	Unit      string   `json:"unit"`
	Pos       Pos      `json:"pos"`
	Construct string   `json:"construct,omitempty"`
	Cause     string   `json:"cause"`
}

func (d Diagnostic) String() string {
	loc := d.Unit
	if d.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%s", d.Unit, d.Pos)
	}
	if d.Construct != "" {
		return fmt.Sprintf("%s: %s [%s] %s: %s", loc, d.Severity, d.Code, d.Construct, d.Cause)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Severity, d.Code, d.Cause)
}

// Error is a unit-aborting diagnostic.
type Error struct {
	Diagnostic
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic.String())
}

func newError(kind Kind, code string, pos Pos, construct, format string, args ...any) *Error {
	return &Error{Diagnostic{
		Kind:      kind,
		Code:      code,
		Severity:  SeverityError,
		Pos:       pos,
		Construct: construct,
		Cause:     fmt.Sprintf(format, args...),
	}}
}

// Unsupported reports a construct without a lowering rule.
func Unsupported(code string, pos Pos, construct, format string, args ...any) *Error {
	return newError(KindSyntaxUnsupported, code, pos, construct, format, args...)
}

// Inference reports an undetermined type or ownership mode.
func Inference(code string, pos Pos, construct, format string, args ...any) *Error {
	return newError(KindInference, code, pos, construct, format, args...)
}

// CatalogMiss reports an unknown library symbol as a hard error.
func CatalogMiss(pos Pos, library, symbol string) *Error {
	return newError(KindCatalogMiss, CodeCatalogMiss, pos, library+"."+symbol,
		"symbol %q not found in library %q", symbol, library)
}

// Internal reports a contract violation between passes.
func Internal(code string, pos Pos, construct, format string, args ...any) *Error {
	return newError(KindInternal, code, pos, construct, format, args...)
}

// WithUnit stamps the unit name on err if it is a *Error without one.
func WithUnit(err error, unit string) error {
	var de *Error
	if errors.As(err, &de) && de.Unit == "" {
		de.Unit = unit
	}
	return err
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsUnsupported reports whether err is a SyntaxUnsupported error.
func IsUnsupported(err error) bool { return err != nil && KindOf(err) == KindSyntaxUnsupported }

// IsInference reports whether err is an InferenceError.
func IsInference(err error) bool { return err != nil && KindOf(err) == KindInference }

// IsInternal reports whether err is an internal invariant violation.
func IsInternal(err error) bool { return err != nil && KindOf(err) == KindInternal }

// AsDiagnostic converts any error to a Diagnostic for unit.
func AsDiagnostic(err error, unit string) Diagnostic {
	var de *Error
	if errors.As(err, &de) {
		d := de.Diagnostic
		if d.Unit == "" {
			d.Unit = unit
		}
		return d
	}
	return Diagnostic{
		Kind:     KindInternal,
		Code:     CodeInternalInvariant,
		Severity: SeverityError,
		Unit:     unit,
		Cause:    err.Error(),
	}
}

// Bag collects non-fatal diagnostics for one unit.
type Bag struct {
	Unit  string
	Items []Diagnostic
}

// Warn records a warning.
func (b *Bag) Warn(kind Kind, code string, pos Pos, construct, format string, args ...any) {
	b.Items = append(b.Items, Diagnostic{
		Kind:      kind,
		Code:      code,
		Severity:  SeverityWarning,
		Unit:      b.Unit,
		Pos:       pos,
		Construct: construct,
		Cause:     fmt.Sprintf(format, args...),
	})
}

// Add records an existing diagnostic.
func (b *Bag) Add(d Diagnostic) {
	if d.Unit == "" {
		d.Unit = b.Unit
	}
	b.Items = append(b.Items, d)
}

// Sorted returns the diagnostics ordered by unit, line and column.
func Sorted(items []Diagnostic) []Diagnostic {
	out := make([]Diagnostic, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		if out[i].Pos.Line != out[j].Pos.Line {
			return out[i].Pos.Line < out[j].Pos.Line
		}
		return out[i].Pos.Col < out[j].Pos.Col
	})
	return out
}

// HasErrors reports whether any item has error severity.
func HasErrors(items []Diagnostic) bool {
	for _, d := range items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
