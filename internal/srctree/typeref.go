package srctree

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// TypeRef is a type annotation as written in the source, e.g.
// `dict[str, list[int]]`. Unions with None are normalized to Optional.
type TypeRef struct {
	Name string    `yaml:"name" json:"name"`
	Args []TypeRef `yaml:"args,omitempty" json:"args,omitempty"`
}

// String renders the annotation in source syntax.
func (t TypeRef) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return t.Name + "[" + strings.Join(parts, ", ") + "]"
}

// UnmarshalYAML accepts either the structured form or a scalar such as
// "Optional[list[str]]" or "int | None".
func (t *TypeRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseTypeRef(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*t = parsed
		return nil
	}
	type plain TypeRef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TypeRef(p)
	return nil
}

// ParseTypeRef parses an annotation string.
func ParseTypeRef(s string) (TypeRef, error) {
	p := &typeParser{src: s}
	ref, err := p.parseUnion()
	if err != nil {
		return TypeRef{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeRef{}, fmt.Errorf("annotation %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return ref, nil
}

// MustParseTypeRef is like ParseTypeRef but panics on error.
// Use only in tests or for annotations known to be valid.
func MustParseTypeRef(s string) TypeRef {
	ref, err := ParseTypeRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) parseUnion() (TypeRef, error) {
	first, err := p.parseAtom()
	if err != nil {
		return TypeRef{}, err
	}
	members := []TypeRef{first}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '|' {
			break
		}
		p.pos++
		next, err := p.parseAtom()
		if err != nil {
			return TypeRef{}, err
		}
		members = append(members, next)
	}
	if len(members) == 1 {
		return first, nil
	}
	var rest []TypeRef
	hasNone := false
	for _, m := range members {
		if m.Name == "None" && len(m.Args) == 0 {
			hasNone = true
			continue
		}
		rest = append(rest, m)
	}
	var inner TypeRef
	if len(rest) == 1 {
		inner = rest[0]
	} else {
		inner = TypeRef{Name: "Union", Args: rest}
	}
	if hasNone {
		return TypeRef{Name: "Optional", Args: []TypeRef{inner}}, nil
	}
	return inner, nil
}

func (p *typeParser) parseAtom() (TypeRef, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return TypeRef{}, fmt.Errorf("annotation %q: expected a type name at offset %d", p.src, start)
	}
	ref := TypeRef{Name: p.src[start:p.pos]}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '[' {
		p.pos++
		for {
			arg, err := p.parseUnion()
			if err != nil {
				return TypeRef{}, err
			}
			ref.Args = append(ref.Args, arg)
			p.skipSpace()
			if p.pos >= len(p.src) {
				return TypeRef{}, fmt.Errorf("annotation %q: unterminated '['", p.src)
			}
			if p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.src[p.pos] == ']' {
				p.pos++
				break
			}
			return TypeRef{}, fmt.Errorf("annotation %q: unexpected %q at offset %d", p.src, p.src[p.pos], p.pos)
		}
	}
	return ref, nil
}
