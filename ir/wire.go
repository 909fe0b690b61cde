package ir

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// CBOR wire form
//
// Terms travel between processes (batch files, the compile service, the
// procedure cache) as a tree of Nodes. Canonical encoding keeps the bytes of
// equal terms equal.
// ---------------------------------------------------------------------------

// WireVersion prefixes every encoded batch.
const WireVersion uint8 = 1

// MacroTag identifies the macro payload in a wire Node.
type MacroTag uint8

const (
	macroNone MacroTag = iota
	MacroNat
	MacroQuote
	MacroAnnotation
	MacroOpaque
)

// Node is the wire form of a Term.
type Node struct {
	Kind   Kind       `cbor:"1,keyasint"`
	Name   string     `cbor:"2,keyasint,omitempty"`
	Index  uint32     `cbor:"3,keyasint,omitempty"`
	Marker MarkerKind `cbor:"4,keyasint,omitempty"`
	Kids   []Node     `cbor:"5,keyasint,omitempty"`
	Names  []string   `cbor:"6,keyasint,omitempty"`
	Macro  MacroTag   `cbor:"7,keyasint,omitempty"`
	Num    string     `cbor:"8,keyasint,omitempty"`
	ID     uint64     `cbor:"9,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// ErrMalformedNode is wrapped by every decoding failure.
var ErrMalformedNode = errors.New("ir: malformed node")

// ToNode converts a term to its wire form.
func ToNode(e Term) Node {
	switch t := e.(type) {
	case *Var:
		return Node{Kind: KindVar, Index: t.Index}
	case *Sort:
		return Node{Kind: KindSort, Name: t.Level}
	case *Meta:
		return Node{Kind: KindMeta, Name: t.Name}
	case *Constant:
		return Node{Kind: KindConstant, Name: t.Name, Marker: t.Marker.Kind, Index: t.Marker.Index}
	case *Local:
		return Node{Kind: KindLocal, Name: t.Name, ID: uint64(t.ID)}
	case *App:
		kids := make([]Node, 0, len(t.Args)+1)
		kids = append(kids, ToNode(t.Fn))
		for _, a := range t.Args {
			kids = append(kids, ToNode(a))
		}
		return Node{Kind: KindApp, Kids: kids}
	case *Lambda:
		return Node{Kind: KindLambda, Name: t.Binder, Kids: []Node{ToNode(t.Body)}}
	case *Pi:
		return Node{Kind: KindPi, Name: t.Binder, Kids: []Node{ToNode(t.Domain), ToNode(t.Body)}}
	case *Let:
		n := Node{Kind: KindLet}
		for _, b := range t.Bindings {
			n.Names = append(n.Names, b.Name)
			n.Kids = append(n.Kids, ToNode(b.Value))
		}
		n.Kids = append(n.Kids, ToNode(t.Body))
		return n
	case *Macro:
		switch d := t.Def.(type) {
		case *NatLit:
			return Node{Kind: KindMacro, Macro: MacroNat, Num: d.Value.String()}
		case *Quote:
			return Node{Kind: KindMacro, Macro: MacroQuote, Kids: []Node{ToNode(d.Expr)}}
		case *Annotation:
			return Node{Kind: KindMacro, Macro: MacroAnnotation, Name: d.Name, Kids: []Node{ToNode(d.Arg)}}
		case *OpaqueMacro:
			n := Node{Kind: KindMacro, Macro: MacroOpaque, Name: d.Name}
			for _, a := range d.Args {
				n.Kids = append(n.Kids, ToNode(a))
			}
			return n
		}
	}
	panic(fmt.Sprintf("ir: cannot encode %T", e))
}

// FromNode rebuilds a term from its wire form.
func FromNode(n Node) (Term, error) {
	kids := func(want int) ([]Term, error) {
		if want >= 0 && len(n.Kids) != want {
			return nil, fmt.Errorf("%w: %s has %d children, want %d", ErrMalformedNode, n.Kind, len(n.Kids), want)
		}
		out := make([]Term, len(n.Kids))
		for i, k := range n.Kids {
			t, err := FromNode(k)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		return out, nil
	}

	switch n.Kind {
	case KindVar:
		return &Var{Index: n.Index}, nil
	case KindSort:
		return &Sort{Level: n.Name}, nil
	case KindMeta:
		return &Meta{Name: n.Name}, nil
	case KindConstant:
		if n.Marker > MarkerUnreachable {
			return nil, fmt.Errorf("%w: unknown marker %d", ErrMalformedNode, n.Marker)
		}
		return &Constant{Name: n.Name, Marker: Marker{Kind: n.Marker, Index: n.Index}}, nil
	case KindLocal:
		return &Local{ID: LocalID(n.ID), Name: n.Name}, nil
	case KindApp:
		ts, err := kids(-1)
		if err != nil {
			return nil, err
		}
		if len(ts) < 2 {
			return nil, fmt.Errorf("%w: App needs a function and at least one argument", ErrMalformedNode)
		}
		return &App{Fn: ts[0], Args: ts[1:]}, nil
	case KindLambda:
		ts, err := kids(1)
		if err != nil {
			return nil, err
		}
		return &Lambda{Binder: n.Name, Body: ts[0]}, nil
	case KindPi:
		ts, err := kids(2)
		if err != nil {
			return nil, err
		}
		return &Pi{Binder: n.Name, Domain: ts[0], Body: ts[1]}, nil
	case KindLet:
		ts, err := kids(len(n.Names) + 1)
		if err != nil {
			return nil, err
		}
		bs := make([]LetBinding, len(n.Names))
		for i, name := range n.Names {
			bs[i] = LetBinding{Name: name, Value: ts[i]}
		}
		return &Let{Bindings: bs, Body: ts[len(ts)-1]}, nil
	case KindMacro:
		return macroFromNode(n, kids)
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformedNode, n.Kind)
}

func macroFromNode(n Node, kids func(int) ([]Term, error)) (Term, error) {
	switch n.Macro {
	case MacroNat:
		v, ok := new(big.Int).SetString(n.Num, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("%w: bad natural literal %q", ErrMalformedNode, n.Num)
		}
		return &Macro{Def: &NatLit{Value: v}}, nil
	case MacroQuote:
		ts, err := kids(1)
		if err != nil {
			return nil, err
		}
		return &Macro{Def: &Quote{Expr: ts[0]}}, nil
	case MacroAnnotation:
		ts, err := kids(1)
		if err != nil {
			return nil, err
		}
		return &Macro{Def: &Annotation{Name: n.Name, Arg: ts[0]}}, nil
	case MacroOpaque:
		ts, err := kids(-1)
		if err != nil {
			return nil, err
		}
		return &Macro{Def: &OpaqueMacro{Name: n.Name, Args: ts}}, nil
	}
	return nil, fmt.Errorf("%w: unknown macro tag %d", ErrMalformedNode, n.Macro)
}

// MarshalTerm serializes a single term to CBOR bytes.
func MarshalTerm(e Term) ([]byte, error) {
	return encMode.Marshal(ToNode(e))
}

// UnmarshalTerm deserializes a term from CBOR bytes.
func UnmarshalTerm(data []byte) (Term, error) {
	var n Node
	if err := cbor.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("ir: unmarshal term: %w", err)
	}
	return FromNode(n)
}

type wireDecl struct {
	Name  string `cbor:"1,keyasint"`
	Value Node   `cbor:"2,keyasint"`
}

// MarshalCBOR implements cbor.Marshaler.
func (d Declaration) MarshalCBOR() ([]byte, error) {
	if d.Value == nil {
		return nil, fmt.Errorf("ir: declaration %q has no value", d.Name)
	}
	return encMode.Marshal(wireDecl{Name: d.Name, Value: ToNode(d.Value)})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *Declaration) UnmarshalCBOR(data []byte) error {
	var w wireDecl
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := FromNode(w.Value)
	if err != nil {
		return fmt.Errorf("declaration %q: %w", w.Name, err)
	}
	d.Name = w.Name
	d.Value = v
	return nil
}

type batchFile struct {
	Version uint8         `cbor:"1,keyasint"`
	Decls   []Declaration `cbor:"2,keyasint"`
}

// MarshalBatch serializes a compilation batch.
func MarshalBatch(decls []Declaration) ([]byte, error) {
	return encMode.Marshal(batchFile{Version: WireVersion, Decls: decls})
}

// UnmarshalBatch deserializes a compilation batch.
func UnmarshalBatch(data []byte) ([]Declaration, error) {
	var b batchFile
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("ir: unmarshal batch: %w", err)
	}
	if b.Version != WireVersion {
		return nil, fmt.Errorf("ir: unsupported batch version %d", b.Version)
	}
	return b.Decls, nil
}
