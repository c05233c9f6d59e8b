// Package signature publishes the final calling convention of each
// translated function: how every parameter is received and what shape the
// result has. External test generators consume it to build calls against
// the emitted code without reading it.
package signature

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ferrule/internal/ir"
)

// Mode is how a parameter is received.
type Mode string

const (
	ModeOwned       Mode = "owned"
	ModeOwnedMut    Mode = "owned_mut"
	ModeBorrowed    Mode = "borrowed"
	ModeBorrowedMut Mode = "borrowed_mut"
)

// Shape classifies a return type for callers that only need to know how to
// hold the result.
type Shape string

const (
	ShapeUnit     Shape = "unit"
	ShapeScalar   Shape = "scalar"
	ShapeText     Shape = "text"
	ShapeSequence Shape = "sequence"
	ShapeMapping  Shape = "mapping"
	ShapeSet      Shape = "set"
	ShapeTuple    Shape = "tuple"
	ShapeOptional Shape = "optional"
	ShapeDynamic  Shape = "dynamic"
	ShapeUnion    Shape = "union"
	ShapeOpaque   Shape = "opaque"
)

// Param is one published parameter.
type Param struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Mode   Mode   `json:"mode"`
	Vararg bool   `json:"vararg,omitempty"`
}

// Signature is the published form of one function.
type Signature struct {
	Unit      string  `json:"unit"`
	Function  string  `json:"function"`
	Params    []Param `json:"params"`
	Returns   string  `json:"returns"`
	Shape     Shape   `json:"shape"`
	CanFail   bool    `json:"can_fail,omitempty"`
	Generator bool    `json:"generator,omitempty"`
}

// Of returns the signatures of every function in m except the synthesized
// main function, in declaration order. m must have been through ownership
// inference.
func Of(m *ir.Module) ([]Signature, error) {
	var out []Signature
	for _, f := range m.Functions {
		if f.Main {
			continue
		}
		sig := Signature{
			Unit:      m.Name,
			Function:  f.Name,
			Params:    make([]Param, 0, len(f.Params)),
			Returns:   f.Return.String(),
			Shape:     ShapeOf(f.Return),
			CanFail:   f.CanFail,
			Generator: f.Generator,
		}
		for _, p := range f.Params {
			mode, err := modeOf(p.Own)
			if err != nil {
				return nil, fmt.Errorf("%s.%s parameter %s: %w", m.Name, f.Name, p.Name, err)
			}
			sig.Params = append(sig.Params, Param{
				Name:   p.Name,
				Type:   p.Type.String(),
				Mode:   mode,
				Vararg: p.Vararg,
			})
		}
		out = append(out, sig)
	}
	return out, nil
}

func modeOf(o ir.Ownership) (Mode, error) {
	switch o {
	case ir.Owned:
		return ModeOwned, nil
	case ir.OwnedMut:
		return ModeOwnedMut, nil
	case ir.Borrowed:
		return ModeBorrowed, nil
	case ir.BorrowedMut:
		return ModeBorrowedMut, nil
	}
	return "", fmt.Errorf("ownership mode was never decided")
}

// ShapeOf classifies t.
func ShapeOf(t *ir.Type) Shape {
	switch t.Kind {
	case ir.KindUnit:
		return ShapeUnit
	case ir.KindInt, ir.KindFloat, ir.KindBool, ir.KindSize:
		return ShapeScalar
	case ir.KindStr:
		return ShapeText
	case ir.KindSeq:
		return ShapeSequence
	case ir.KindMap:
		return ShapeMapping
	case ir.KindSet:
		return ShapeSet
	case ir.KindTuple:
		return ShapeTuple
	case ir.KindOptional:
		return ShapeOptional
	case ir.KindDyn:
		return ShapeDynamic
	case ir.KindUnion:
		return ShapeUnion
	case ir.KindFallible:
		return ShapeOf(t.Elem)
	}
	return ShapeOpaque
}

// Marshal encodes signatures as indented JSON.
func Marshal(sigs []Signature) ([]byte, error) {
	if sigs == nil {
		sigs = []Signature{}
	}
	return json.MarshalIndent(sigs, "", "  ")
}

// Unmarshal decodes signatures written by Marshal.
func Unmarshal(data []byte) ([]Signature, error) {
	var sigs []Signature
	if err := json.Unmarshal(data, &sigs); err != nil {
		return nil, fmt.Errorf("failed to decode signatures: %w", err)
	}
	return sigs, nil
}
