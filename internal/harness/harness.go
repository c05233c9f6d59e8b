package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
	"github.com/roach88/ferrule/internal/srctree"
	"github.com/roach88/ferrule/internal/store"
	"github.com/roach88/ferrule/internal/testutil"
)

// Unit is the observed outcome of one unit in a scenario run.
type Unit struct {
	Name        string            `json:"name"`
	Stage       string            `json:"stage"`
	Source      string            `json:"source,omitempty"`
	Crates      []string          `json:"crates,omitempty"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Units holds the outcome of every tree, in the scenario's order.
	Units []Unit `json:"units"`

	// Signatures are the published signatures as read back from the store.
	Signatures []signature.Signature `json:"signatures"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// unit returns the outcome of the named unit, or nil.
func (r *Result) unit(name string) *Unit {
	for i := range r.Units {
		if r.Units[i].Name == name {
			return &r.Units[i]
		}
	}
	return nil
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation, with a fixed
// run ID and a deterministic clock so results are reproducible.
//
// Execution flow:
//  1. Resolve configuration and the default catalog
//  2. Decode every tree
//  3. Translate the batch through the pipeline, recording into the store
//  4. Read published signatures back from the store
//  5. Evaluate assertions
//
// The returned error means the scenario could not run at all; a unit that
// fails to translate is an outcome, not an error.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	if scenario.Config != "" {
		var err error
		if cfg, err = config.Parse([]byte(scenario.Config)); err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	trees := make([]*srctree.Module, 0, len(scenario.Trees))
	for _, path := range scenario.Trees {
		tree, err := srctree.LoadFile(path)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	tr := pipeline.New(cat, cfg,
		pipeline.WithRecorder(st),
		pipeline.WithRunIDs(pipeline.NewFixedGenerator("scenario-"+scenario.Name)),
		pipeline.WithSequencer(testutil.NewDeterministicClock()),
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in scenarios
	)
	run, err := tr.Batch(ctx, trees)
	if err != nil {
		return nil, fmt.Errorf("failed to translate batch: %w", err)
	}

	result := &Result{Pass: true, Units: make([]Unit, 0, len(run.Results))}
	for _, r := range run.Results {
		u := Unit{
			Name:        r.Unit,
			Stage:       r.Stage.String(),
			Source:      r.Source,
			Diagnostics: r.Diagnostics,
		}
		for _, c := range r.Crates {
			u.Crates = append(u.Crates, c.Name)
		}
		result.Units = append(result.Units, u)
	}
	if result.Signatures, err = st.Signatures(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("failed to read signatures: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
