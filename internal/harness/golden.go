package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the observable outcome of a scenario run as plain
// text: each unit's stage, then its emitted source or its diagnostics.
// Hashes and run IDs are left out so snapshots survive catalog edits that
// do not change output.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, u := range result.Units {
		fmt.Fprintf(&b, "\n== %s (%s)\n", u.Name, u.Stage)
		for _, d := range u.Diagnostics {
			fmt.Fprintf(&b, "-- %s\n", d)
		}
		if len(u.Crates) > 0 {
			fmt.Fprintf(&b, "-- crates: %s\n", strings.Join(u.Crates, ", "))
		}
		b.WriteString(u.Source)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
