package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
)

// AssertionError is returned when an assertion fails.
// It includes the unit's stage and diagnostics to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Unit     string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Unit)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nDiagnostics:\n")
		for _, line := range e.Context {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	u := result.unit(a.Unit)
	if u == nil {
		return &AssertionError{Type: a.Type, Unit: a.Unit, Expected: "unit in batch", Actual: "no such unit"}
	}
	fail := func(expected, actual string) error {
		ctx := make([]string, len(u.Diagnostics))
		for i, d := range u.Diagnostics {
			ctx[i] = d.String()
		}
		return &AssertionError{Type: a.Type, Unit: a.Unit, Expected: expected, Actual: actual, Context: ctx}
	}
	emitted := u.Stage == pipeline.StageEmitted.String()

	switch a.Type {
	case AssertEmitted:
		if !emitted {
			return fail("stage emitted", "stage "+u.Stage)
		}
	case AssertFailed:
		if emitted {
			return fail("unit aborts", "stage emitted")
		}
		if a.Code != "" && !hasCode(u, a.Code) {
			return fail("aborting diagnostic "+a.Code, fmt.Sprintf("codes %v", codes(u)))
		}
	case AssertSourceContains:
		if !strings.Contains(u.Source, a.Text) {
			return fail(fmt.Sprintf("source containing %q", a.Text), sourceSummary(u))
		}
	case AssertSourceExcludes:
		if strings.Contains(u.Source, a.Text) {
			return fail(fmt.Sprintf("source without %q", a.Text), "text present")
		}
	case AssertDiagnostic:
		if !hasCode(u, a.Code) {
			return fail("diagnostic "+a.Code, fmt.Sprintf("codes %v", codes(u)))
		}
	case AssertDiagnosticCount:
		if len(u.Diagnostics) != *a.Count {
			return fail(fmt.Sprintf("%d diagnostic(s)", *a.Count), fmt.Sprintf("%d diagnostic(s)", len(u.Diagnostics)))
		}
	case AssertSignature:
		return assertSignature(result.Signatures, a, fail)
	case AssertCrate:
		for _, c := range u.Crates {
			if c == a.Crate {
				return nil
			}
		}
		return fail("crate "+a.Crate, fmt.Sprintf("crates %v", u.Crates))
	}
	return nil
}

// assertSignature checks parameter modes (subset semantics) and the return
// shape of one stored signature.
func assertSignature(sigs []signature.Signature, a Assertion, fail func(string, string) error) error {
	var sig *signature.Signature
	for i := range sigs {
		if sigs[i].Unit == a.Unit && sigs[i].Function == a.Function {
			sig = &sigs[i]
			break
		}
	}
	if sig == nil {
		return fail("published signature for "+a.Function, "none")
	}
	if a.Shape != "" && string(sig.Shape) != a.Shape {
		return fail("return shape "+a.Shape, string(sig.Shape))
	}

	names := make([]string, 0, len(a.Params))
	for name := range a.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var found *signature.Param
		for i := range sig.Params {
			if sig.Params[i].Name == name {
				found = &sig.Params[i]
			}
		}
		if found == nil {
			return fail("parameter "+name, "no such parameter")
		}
		if string(found.Mode) != a.Params[name] {
			return fail(fmt.Sprintf("%s received %s", name, a.Params[name]), string(found.Mode))
		}
	}
	return nil
}

func hasCode(u *Unit, code string) bool {
	for _, d := range u.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func codes(u *Unit) []string {
	out := make([]string, len(u.Diagnostics))
	for i, d := range u.Diagnostics {
		out[i] = d.Code
	}
	return out
}

func sourceSummary(u *Unit) string {
	if u.Source == "" {
		return "no source (stage " + u.Stage + ")"
	}
	return fmt.Sprintf("%d bytes without it", len(u.Source))
}
