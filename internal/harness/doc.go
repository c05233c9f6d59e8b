// Package harness runs translation conformance scenarios.
//
// A scenario names source tree files, an optional configuration, and the
// outcomes the batch must produce. The harness translates the trees with
// the real pipeline into a fresh in-memory store and checks each assertion
// against the run: unit states, emitted text, diagnostics, the published
// signatures read back from the store, and required crates.
//
// # Scenario Format
//
//	name: vararg_clone
//	description: "Spread arguments are cloned under the clone policy"
//	trees:
//	  - trees/spread.yaml
//	config: |
//	  policy: vararg_spread: "clone"
//	assertions:
//	  - type: emitted
//	    unit: spread
//	  - type: source_contains
//	    unit: spread
//	    text: ".clone()"
//	  - type: signature
//	    unit: spread
//	    function: total
//	    params: {xs: borrowed}
//	    shape: scalar
//
// Tree paths are relative to the scenario file.
//
// # Assertion Types
//
//   - emitted: the unit reached the emitted state
//   - failed: the unit aborted; with code, the aborting diagnostic has it
//   - source_contains, source_excludes: the emitted text does or does not
//     contain text
//   - diagnostic: the unit reported a diagnostic with code
//   - diagnostic_count: the unit reported exactly count diagnostics
//   - signature: the stored signature of function has the given parameter
//     modes and return shape
//   - crate: the unit requires the named external crate
//
// # Deterministic Runs
//
// Every scenario runs with a fixed run ID and a deterministic clock, so
// the snapshot compared against golden files is identical across runs.
package harness
