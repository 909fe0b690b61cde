package vm

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/vmgen/ir"
)

// ---------------------------------------------------------------------------
// CBOR wire form of procedures
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireInstr struct {
	Op     Opcode   `cbor:"1,keyasint"`
	A      uint32   `cbor:"2,keyasint,omitempty"`
	B      uint32   `cbor:"3,keyasint,omitempty"`
	Num    string   `cbor:"4,keyasint,omitempty"`
	Expr   *ir.Node `cbor:"5,keyasint,omitempty"`
	PCs    []uint32 `cbor:"6,keyasint,omitempty"`
	Fields []uint32 `cbor:"7,keyasint,omitempty"`
}

type wireProc struct {
	Name  string      `cbor:"1,keyasint"`
	Arity uint32      `cbor:"2,keyasint"`
	Code  []wireInstr `cbor:"3,keyasint"`
}

func toWireCode(code []Instruction) []wireInstr {
	out := make([]wireInstr, len(code))
	for i, in := range code {
		w := wireInstr{Op: in.Op, A: in.A, B: in.B, PCs: in.PCs, Fields: in.Fields}
		if in.Num != nil {
			w.Num = in.Num.String()
		}
		if in.Expr != nil {
			n := ir.ToNode(in.Expr)
			w.Expr = &n
		}
		out[i] = w
	}
	return out
}

func fromWireCode(ws []wireInstr) ([]Instruction, error) {
	out := make([]Instruction, len(ws))
	for i, w := range ws {
		if _, ok := opcodeTable[w.Op]; !ok {
			return nil, fmt.Errorf("vm: instruction %d: unknown opcode 0x%02X", i, byte(w.Op))
		}
		in := Instruction{Op: w.Op, A: w.A, B: w.B, PCs: w.PCs, Fields: w.Fields}
		if w.Op == OpNum {
			v, ok := new(big.Int).SetString(w.Num, 10)
			if !ok {
				return nil, fmt.Errorf("vm: instruction %d: bad literal %q", i, w.Num)
			}
			in.Num = v
		}
		if w.Op == OpExpr {
			if w.Expr == nil {
				return nil, fmt.Errorf("vm: instruction %d: EXPR without a term", i)
			}
			t, err := ir.FromNode(*w.Expr)
			if err != nil {
				return nil, fmt.Errorf("vm: instruction %d: %w", i, err)
			}
			in.Expr = t
		}
		out[i] = in
	}
	return out, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (p Procedure) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(wireProc{Name: p.Name, Arity: p.Arity, Code: toWireCode(p.Code)})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *Procedure) UnmarshalCBOR(data []byte) error {
	var w wireProc
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	code, err := fromWireCode(w.Code)
	if err != nil {
		return fmt.Errorf("procedure %q: %w", w.Name, err)
	}
	p.Name, p.Arity, p.Code = w.Name, w.Arity, code
	return nil
}

// MarshalCode serializes an instruction sequence to CBOR bytes.
func MarshalCode(code []Instruction) ([]byte, error) {
	return cborEncMode.Marshal(toWireCode(code))
}

// UnmarshalCode deserializes an instruction sequence from CBOR bytes.
func UnmarshalCode(data []byte) ([]Instruction, error) {
	var ws []wireInstr
	if err := cbor.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("vm: unmarshal code: %w", err)
	}
	return fromWireCode(ws)
}

// MarshalProcedures serializes a list of procedures to CBOR bytes.
func MarshalProcedures(procs []*Procedure) ([]byte, error) {
	return cborEncMode.Marshal(procs)
}

// UnmarshalProcedures deserializes a list of procedures from CBOR bytes.
func UnmarshalProcedures(data []byte) ([]*Procedure, error) {
	var procs []*Procedure
	if err := cbor.Unmarshal(data, &procs); err != nil {
		return nil, fmt.Errorf("vm: unmarshal procedures: %w", err)
	}
	return procs, nil
}
