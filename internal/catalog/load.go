package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/Masterminds/semver/v3"

	"github.com/roach88/ferrule/internal/srctree"
)

//go:embed default.cue
var defaultSource []byte

// Error is a catalog loading error with its CUE source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the embedded default catalog.
func Default() (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(defaultSource, cue.Filename("default.cue"))
	return FromValue(v)
}

// Load returns the default catalog unified with the CUE package in dir.
// User entries add symbols; redefining a default symbol with different
// values is a unification conflict, not an override.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Field: "catalog", Message: fmt.Sprintf("catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &Error{Field: "catalog", Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	base := ctx.CompileBytes(defaultSource, cue.Filename("default.cue"))
	if err := base.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Field: "catalog", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Field: "catalog", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	user := ctx.BuildInstance(inst)
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return FromValue(base.Unify(user))
}

// FromValue builds a catalog from a CUE value shaped like default.cue.
func FromValue(v cue.Value) (*Catalog, error) {
	if err := v.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}
	c := newCatalog()

	if err := c.parseCrates(v.LookupPath(cue.ParsePath("crates"))); err != nil {
		return nil, err
	}
	if err := c.parseTypes(v.LookupPath(cue.ParsePath("types"))); err != nil {
		return nil, err
	}
	if err := c.parseLibraries(v.LookupPath(cue.ParsePath("libraries"))); err != nil {
		return nil, err
	}
	if err := c.parseConstants(v.LookupPath(cue.ParsePath("constants"))); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := c.computeFingerprint(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) parseCrates(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		raw, err := iter.Value().LookupPath(cue.ParsePath("version")).String()
		if err != nil {
			return formatCUEError(err)
		}
		ver, err := semver.NewVersion(raw)
		if err != nil {
			return &Error{
				Field:   "crates." + name + ".version",
				Message: fmt.Sprintf("invalid version %q: %v", raw, err),
				Pos:     iter.Value().Pos(),
			}
		}
		c.crates[name] = ver
	}
	return nil
}

func (c *Catalog) parseTypes(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		target, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		c.types[iter.Label()] = target
	}
	return nil
}

func (c *Catalog) parseLibraries(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	libs, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for libs.Next() {
		library := libs.Label()
		syms, err := libs.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for syms.Next() {
			e, err := parseEntry(library, syms.Label(), syms.Value())
			if err != nil {
				return err
			}
			c.entries[e.Key()] = e
			c.libraries[library] = true
		}
	}
	return nil
}

func parseEntry(library, symbol string, v cue.Value) (*Entry, error) {
	field := "libraries." + library + "." + symbol
	e := &Entry{Library: library, Symbol: symbol}

	var err error
	if e.Path, err = requiredString(v, field, "path"); err != nil {
		return nil, err
	}
	shape, err := requiredString(v, field, "shape")
	if err != nil {
		return nil, err
	}
	if e.Shape, err = ParseCallShape(shape); err != nil {
		return nil, &Error{Field: field + ".shape", Message: err.Error(), Pos: v.Pos()}
	}
	if e.Method, err = optionalString(v, "method"); err != nil {
		return nil, err
	}
	if e.Raises, err = optionalString(v, "raises"); err != nil {
		return nil, err
	}
	if e.Crate, err = optionalString(v, "crate"); err != nil {
		return nil, err
	}
	if e.Requires, err = optionalString(v, "requires"); err != nil {
		return nil, err
	}

	returns, err := optionalString(v, "returns")
	if err != nil {
		return nil, err
	}
	if returns == "" {
		returns = "None"
	}
	if e.Returns, err = srctree.ParseTypeRef(returns); err != nil {
		return nil, &Error{Field: field + ".returns", Message: err.Error(), Pos: v.Pos()}
	}

	if se := lookup(v, "side_effecting"); se.Exists() {
		if e.SideEffecting, err = se.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if args := lookup(v, "args"); args.Exists() {
		iter, err := args.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			shape, err := ParseArgShape(s)
			if err != nil {
				return nil, &Error{Field: field + ".args", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			e.Args = append(e.Args, shape)
		}
	}

	if types := lookup(v, "arg_types"); types.Exists() {
		iter, err := types.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ref, err := srctree.ParseTypeRef(s)
			if err != nil {
				return nil, &Error{Field: field + ".arg_types", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			e.ArgTypes = append(e.ArgTypes, ref)
		}
	}
	return e, nil
}

func (c *Catalog) parseConstants(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	libs, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for libs.Next() {
		library := libs.Label()
		syms, err := libs.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for syms.Next() {
			field := "constants." + library + "." + syms.Label()
			path, err := requiredString(syms.Value(), field, "path")
			if err != nil {
				return err
			}
			typ, err := requiredString(syms.Value(), field, "type")
			if err != nil {
				return err
			}
			ref, err := srctree.ParseTypeRef(typ)
			if err != nil {
				return &Error{Field: field + ".type", Message: err.Error(), Pos: syms.Value().Pos()}
			}
			k := &Const{Library: library, Symbol: syms.Label(), Path: path, Type: ref}
			c.consts[Key{library, k.Symbol}] = k
			c.libraries[library] = true
		}
	}
	return nil
}

// lookup resolves a field to its default when the schema supplies one.
func lookup(v cue.Value, name string) cue.Value {
	f := v.LookupPath(cue.ParsePath(name))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

func requiredString(v cue.Value, field, name string) (string, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return "", &Error{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
