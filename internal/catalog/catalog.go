// Package catalog is the library call catalog: per-symbol metadata telling
// the code generator how a call into a source-language library lowers.
//
// A Catalog is built once (from the embedded default plus optional user CUE
// files) and is read-only afterwards, so it is shared between workers
// without locking.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/ferrule/internal/srctree"
)

// CallShape is the closed classification of how a catalog symbol is invoked.
// The code generator switches over it exhaustively.
type CallShape int

const (
	// BareCall emits `path(args)`.
	BareCall CallShape = iota + 1
	// StaticConstructor emits `Type::new(args)`, or `Type::<method>(args)`
	// when Method is set.
	StaticConstructor
	// NamedStaticMethod emits `Type::method(args)`.
	NamedStaticMethod
	// FallibleCall emits `path(args)` and propagates its error as the
	// entry's Raises exception kind.
	FallibleCall
)

var shapeNames = map[CallShape]string{
	BareCall:          "bare_call",
	StaticConstructor: "static_constructor",
	NamedStaticMethod: "named_static_method",
	FallibleCall:      "fallible_call",
}

func (s CallShape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("CallShape(%d)", int(s))
}

// MarshalText encodes the catalog spelling.
func (s CallShape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes the catalog spelling.
func (s *CallShape) UnmarshalText(b []byte) error {
	v, err := ParseCallShape(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseCallShape parses the catalog spelling of a call shape.
func ParseCallShape(s string) (CallShape, error) {
	for shape, name := range shapeNames {
		if name == s {
			return shape, nil
		}
	}
	return 0, fmt.Errorf("unknown call shape %q", s)
}

// ArgShape is the ownership a catalog symbol requires for one positional
// argument.
type ArgShape int

const (
	ArgBorrow ArgShape = iota + 1
	ArgBorrowMut
	ArgOwned
	ArgCopy
)

var argNames = map[ArgShape]string{
	ArgBorrow:    "borrow",
	ArgBorrowMut: "borrow_mut",
	ArgOwned:     "owned",
	ArgCopy:      "copy",
}

func (a ArgShape) String() string {
	if n, ok := argNames[a]; ok {
		return n
	}
	return fmt.Sprintf("ArgShape(%d)", int(a))
}

// MarshalText encodes the catalog spelling.
func (a ArgShape) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes the catalog spelling.
func (a *ArgShape) UnmarshalText(b []byte) error {
	v, err := ParseArgShape(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseArgShape parses the catalog spelling of an argument shape.
func ParseArgShape(s string) (ArgShape, error) {
	for shape, name := range argNames {
		if name == s {
			return shape, nil
		}
	}
	return 0, fmt.Errorf("unknown argument shape %q", s)
}

// Key identifies a catalog symbol.
type Key struct {
	Library string
	Symbol  string
}

func (k Key) String() string { return k.Library + "." + k.Symbol }

// Entry describes one callable library symbol.
type Entry struct {
	Library       string            `json:"library"`
	Symbol        string            `json:"symbol"`
	Path          string            `json:"path"`
	Method        string            `json:"method,omitempty"`
	Shape         CallShape         `json:"shape"`
	Args          []ArgShape        `json:"args,omitempty"`
	ArgTypes      []srctree.TypeRef `json:"arg_types,omitempty"`
	Returns       srctree.TypeRef   `json:"returns"`
	Raises        string            `json:"raises,omitempty"`
	SideEffecting bool              `json:"side_effecting,omitempty"`
	Crate         string            `json:"crate,omitempty"`
	Requires      string            `json:"requires,omitempty"`
}

// Key returns the entry's lookup key.
func (e *Entry) Key() Key { return Key{Library: e.Library, Symbol: e.Symbol} }

// ArgShapeAt returns the declared shape of positional argument i. Arguments
// beyond the declared list reuse the last declared shape; an entry with no
// declared shapes borrows.
func (e *Entry) ArgShapeAt(i int) ArgShape {
	if len(e.Args) == 0 {
		return ArgBorrow
	}
	if i < len(e.Args) {
		return e.Args[i]
	}
	return e.Args[len(e.Args)-1]
}

// ArgTypeAt returns the declared target type of positional argument i,
// extended past the declared list like ArgShapeAt. ok is false when the
// entry declares no argument types.
func (e *Entry) ArgTypeAt(i int) (ref srctree.TypeRef, ok bool) {
	if len(e.ArgTypes) == 0 {
		return srctree.TypeRef{}, false
	}
	if i < len(e.ArgTypes) {
		return e.ArgTypes[i], true
	}
	return e.ArgTypes[len(e.ArgTypes)-1], true
}

// Const describes a library-level constant such as math.pi.
type Const struct {
	Library string          `json:"library"`
	Symbol  string          `json:"symbol"`
	Path    string          `json:"path"`
	Type    srctree.TypeRef `json:"type"`
}

// Crate is one external target crate the emitted code depends on.
type Crate struct {
	Name    string
	Version *semver.Version
}

func (c Crate) String() string { return c.Name + " " + c.Version.String() }

// Catalog is the read-only symbol table.
type Catalog struct {
	entries map[Key]*Entry
	consts  map[Key]*Const
	types   map[string]string
	crates  map[string]*semver.Version

	libraries   map[string]bool
	fingerprint string
}

func newCatalog() *Catalog {
	return &Catalog{
		entries:   make(map[Key]*Entry),
		consts:    make(map[Key]*Const),
		types:     make(map[string]string),
		crates:    make(map[string]*semver.Version),
		libraries: make(map[string]bool),
	}
}

// Lookup returns the entry for library.symbol.
func (c *Catalog) Lookup(library, symbol string) (*Entry, bool) {
	e, ok := c.entries[Key{library, symbol}]
	return e, ok
}

// LookupConst returns the constant for library.symbol.
func (c *Catalog) LookupConst(library, symbol string) (*Const, bool) {
	k, ok := c.consts[Key{library, symbol}]
	return k, ok
}

// TargetType returns the target spelling of an opaque library type name.
func (c *Catalog) TargetType(name string) (string, bool) {
	t, ok := c.types[name]
	return t, ok
}

// KnowsLibrary reports whether any entry or constant belongs to library.
func (c *Catalog) KnowsLibrary(library string) bool {
	return c.libraries[library]
}

// Entries returns all entries ordered by key.
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Consts returns all constants ordered by key.
func (c *Catalog) Consts() []*Const {
	out := make([]*Const, 0, len(c.consts))
	for _, k := range c.consts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Library+"."+out[i].Symbol < out[j].Library+"."+out[j].Symbol
	})
	return out
}

// Fingerprint identifies the catalog contents. Translation caches salt
// their keys with it so a catalog edit invalidates cached output.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

func (c *Catalog) computeFingerprint() error {
	doc := struct {
		Entries []*Entry          `json:"entries"`
		Consts  []*Const          `json:"consts"`
		Types   map[string]string `json:"types"`
		Crates  map[string]string `json:"crates"`
	}{
		Entries: c.Entries(),
		Consts:  c.Consts(),
		Types:   c.types,
		Crates:  make(map[string]string, len(c.crates)),
	}
	for name, v := range c.crates {
		doc.Crates[name] = v.String()
	}
	canonical, err := srctree.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("fingerprint catalog: %w", err)
	}
	sum := sha256.Sum256(append([]byte("ferrule/catalog/v1\x00"), canonical...))
	c.fingerprint = hex.EncodeToString(sum[:])
	return nil
}

// RequiredCrates resolves the pinned crates needed by the given entries.
// Entries without a crate use only the target's standard library.
func (c *Catalog) RequiredCrates(used []*Entry) ([]Crate, error) {
	seen := make(map[string]bool)
	var out []Crate
	for _, e := range used {
		if e.Crate == "" || seen[e.Crate] {
			continue
		}
		v, ok := c.crates[e.Crate]
		if !ok {
			return nil, fmt.Errorf("%s: crate %q has no pinned version", e.Key(), e.Crate)
		}
		seen[e.Crate] = true
		out = append(out, Crate{Name: e.Crate, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// validate checks cross-references: every crate named by an entry is
// pinned, and the pinned version satisfies the entry's requirement.
func (c *Catalog) validate() error {
	var problems []string
	for _, e := range c.Entries() {
		if e.Shape == NamedStaticMethod && e.Method == "" {
			problems = append(problems, fmt.Sprintf("%s: named_static_method requires a method", e.Key()))
		}
		if e.Shape == FallibleCall && e.Raises == "" {
			problems = append(problems, fmt.Sprintf("%s: fallible_call requires raises", e.Key()))
		}
		if e.Crate == "" {
			if e.Requires != "" {
				problems = append(problems, fmt.Sprintf("%s: requires set without crate", e.Key()))
			}
			continue
		}
		pinned, ok := c.crates[e.Crate]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: crate %q is not pinned in crates", e.Key(), e.Crate))
			continue
		}
		if e.Requires == "" {
			continue
		}
		constraint, err := semver.NewConstraint(e.Requires)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid requirement %q: %v", e.Key(), e.Requires, err))
			continue
		}
		if !constraint.Check(pinned) {
			problems = append(problems, fmt.Sprintf("%s: pinned %s %s does not satisfy %s", e.Key(), e.Crate, pinned, e.Requires))
		}
	}
	if len(problems) > 0 {
		return &Error{Field: "catalog", Message: strings.Join(problems, "; ")}
	}
	return nil
}
