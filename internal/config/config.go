// Package config loads translator policy from a CUE file unified with the
// embedded #Config schema. Every field has a default, so an absent file
// yields a complete configuration.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/ferrule/internal/srctree"
)

//go:embed schema.cue
var schemaSource []byte

// DisplayMode controls how a dynamic tagged value is formatted.
type DisplayMode string

const (
	// DisplayUnwrapped formats the inner value: `3`, `hello`.
	DisplayUnwrapped DisplayMode = "unwrapped"
	// DisplayWrapped formats the variant: `Int(3)`, `Str("hello")`.
	DisplayWrapped DisplayMode = "wrapped"
)

// SpreadMode decides ownership when a variadic parameter's backing
// sequence is spread into another variadic call.
type SpreadMode string

const (
	SpreadClone  SpreadMode = "clone"
	SpreadMove   SpreadMode = "move"
	SpreadReject SpreadMode = "reject"
)

// MissMode decides what an unknown library symbol does.
type MissMode string

const (
	MissWarn  MissMode = "warn"
	MissError MissMode = "error"
)

// Policy holds the integrator decisions that change emitted code.
type Policy struct {
	DynamicDisplay DisplayMode `json:"dynamic_display"`
	VarargSpread   SpreadMode  `json:"vararg_spread"`
	CatalogMiss    MissMode    `json:"catalog_miss"`
	NameHeuristics bool        `json:"name_heuristics"`
}

// Optimize toggles optional optimizer passes. Dead-code elimination is
// not optional and has no switch.
type Optimize struct {
	CSE bool `json:"cse"`
}

// Config is the full driver configuration.
type Config struct {
	Policy   Policy   `json:"policy"`
	Optimize Optimize `json:"optimize"`
	Workers  int      `json:"workers"`
	Catalog  string   `json:"catalog"`
	Store    string   `json:"store"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := decode(nil, "")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads a CUE config file and fills unset fields from the schema.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(data, path)
}

// Parse decodes CUE config source.
func Parse(src []byte) (Config, error) {
	return decode(src, "config.cue")
}

func decode(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, err
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))
	if src != nil {
		file := ctx.CompileBytes(src, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, describe(err)
		}
		v = v.Unify(file)
	}
	if err := v.Err(); err != nil {
		return Config{}, describe(err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, describe(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rechecks enumerations after command-line overrides.
func (c Config) Validate() error {
	switch c.Policy.DynamicDisplay {
	case DisplayUnwrapped, DisplayWrapped:
	default:
		return fmt.Errorf("policy.dynamic_display: invalid value %q", c.Policy.DynamicDisplay)
	}
	switch c.Policy.VarargSpread {
	case SpreadClone, SpreadMove, SpreadReject:
	default:
		return fmt.Errorf("policy.vararg_spread: invalid value %q", c.Policy.VarargSpread)
	}
	switch c.Policy.CatalogMiss {
	case MissWarn, MissError:
	default:
		return fmt.Errorf("policy.catalog_miss: invalid value %q", c.Policy.CatalogMiss)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers: must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Fingerprint identifies the settings that affect emitted code. Worker
// count and file locations are excluded.
func (c Config) Fingerprint() string {
	canonical, err := srctree.MarshalCanonical(struct {
		Policy   Policy   `json:"policy"`
		Optimize Optimize `json:"optimize"`
	}{c.Policy, c.Optimize})
	if err != nil {
		panic(fmt.Sprintf("config: fingerprint: %v", err))
	}
	sum := sha256.Sum256(append([]byte("ferrule/policy/v1\x00"), canonical...))
	return hex.EncodeToString(sum[:])
}

// describe flattens a CUE error list into one message with positions.
func describe(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return fmt.Errorf("invalid config: %s", errors.Details(errs[0], nil))
}
