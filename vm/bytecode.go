package vm

import (
	"fmt"
	"math/big"

	"github.com/chazu/vmgen/ir"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a VM instruction.
type Opcode byte

// Stack Operations
const (
	OpPush Opcode = 0x01 // push the value at a frame slot
	OpDrop Opcode = 0x02 // remove n values below the top
)

// Values
const (
	OpSConstructor Opcode = 0x10 // push a zero-field constructor
	OpConstructor  Opcode = 0x11 // pop n fields, push a constructor
	OpNum          Opcode = 0x12 // push a natural number literal
	OpExpr         Opcode = 0x13 // push a quoted term
	OpProj         Opcode = 0x14 // replace the top with one of its fields
)

// Control Flow
const (
	OpGoto         Opcode = 0x20 // unconditional jump
	OpDestruct     Opcode = 0x21 // pop a value, push its fields
	OpCases2       Opcode = 0x22 // pop, push fields, branch on a two-constructor tag
	OpCasesN       Opcode = 0x23 // pop, push fields, branch through a table
	OpNatCases     Opcode = 0x24 // pop, branch on zero / push predecessor
	OpBuiltinCases Opcode = 0x25 // pop, branch through a runtime case analyzer
	OpUnreachable  Opcode = 0x26 // trap
)

// Calls
const (
	OpApply         Opcode = 0x30 // pop a callable and one argument, push the result
	OpInvokeGlobal  Opcode = 0x31 // saturated call of a compiled procedure
	OpInvokeBuiltin Opcode = 0x32 // saturated call of a VM intrinsic
	OpInvokeCFun    Opcode = 0x33 // saturated call of a native function
	OpClosure       Opcode = 0x34 // pop n arguments, push a partial application
	OpRet           Opcode = 0x35 // return the top of stack
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	StackEffect int    // net effect on stack (Variable when operand dependent)
	Branches    bool   // carries forward targets that are backpatched
}

// Variable marks an opcode whose stack effect depends on its operands or
// on the declaration it references.
const Variable = -1 << 16

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPush: {"PUSH", 1, false},
	OpDrop: {"DROP", Variable, false},

	OpSConstructor: {"SCONSTRUCTOR", 1, false},
	OpConstructor:  {"CONSTRUCTOR", Variable, false},
	OpNum:          {"NUM", 1, false},
	OpExpr:         {"EXPR", 1, false},
	OpProj:         {"PROJ", 0, false},

	OpGoto:         {"GOTO", 0, true},
	OpDestruct:     {"DESTRUCT", Variable, false},
	OpCases2:       {"CASES2", Variable, true},
	OpCasesN:       {"CASESN", Variable, true},
	OpNatCases:     {"NAT_CASES", Variable, true},
	OpBuiltinCases: {"BUILTIN_CASES", Variable, true},
	OpUnreachable:  {"UNREACHABLE", 0, false},

	OpApply:         {"APPLY", -1, false},
	OpInvokeGlobal:  {"INVOKE_GLOBAL", Variable, false},
	OpInvokeBuiltin: {"INVOKE_BUILTIN", Variable, false},
	OpInvokeCFun:    {"INVOKE_CFUN", Variable, false},
	OpClosure:       {"CLOSURE", Variable, false},
	OpRet:           {"RET", -1, false},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one VM instruction. The meaning of A and B depends on Op:
//
//	PUSH slot | DROP n | SCONSTRUCTOR cidx | CONSTRUCTOR cidx nfields
//	PROJ field | INVOKE_* declidx | CLOSURE declidx nargs | BUILTIN_CASES idx
//
// PCs holds forward targets (GOTO has one). Fields records how many values
// each alternative of a branching instruction finds pushed on entry.
type Instruction struct {
	Op     Opcode
	A      uint32
	B      uint32
	Num    *big.Int
	Expr   ir.Term
	PCs    []uint32
	Fields []uint32
}

// Push returns PUSH slot.
func Push(slot uint32) Instruction { return Instruction{Op: OpPush, A: slot} }

// Drop returns DROP n.
func Drop(n uint32) Instruction { return Instruction{Op: OpDrop, A: n} }

// Goto returns a GOTO whose target is still to be patched.
func Goto() Instruction { return Instruction{Op: OpGoto, PCs: make([]uint32, 1)} }

// SConstructor returns SCONSTRUCTOR cidx.
func SConstructor(cidx uint32) Instruction { return Instruction{Op: OpSConstructor, A: cidx} }

// Constructor returns CONSTRUCTOR cidx nfields.
func Constructor(cidx, nfields uint32) Instruction {
	return Instruction{Op: OpConstructor, A: cidx, B: nfields}
}

// Num returns NUM v. The value is copied.
func Num(v *big.Int) Instruction { return Instruction{Op: OpNum, Num: new(big.Int).Set(v)} }

// Expr returns EXPR t.
func Expr(t ir.Term) Instruction { return Instruction{Op: OpExpr, Expr: t} }

// Proj returns PROJ field.
func Proj(field uint32) Instruction { return Instruction{Op: OpProj, A: field} }

// Destruct returns DESTRUCT.
func Destruct() Instruction { return Instruction{Op: OpDestruct, Fields: make([]uint32, 1)} }

// Cases2 returns a CASES2 with both targets unpatched.
func Cases2() Instruction { return branch(OpCases2, 0, 2) }

// CasesN returns a CASESN over n alternatives with all targets unpatched.
func CasesN(n int) Instruction { return branch(OpCasesN, 0, n) }

// NatCases returns a NAT_CASES with both targets unpatched.
func NatCases() Instruction { return branch(OpNatCases, 0, 2) }

// BuiltinCases returns a BUILTIN_CASES over n alternatives with all targets
// unpatched.
func BuiltinCases(idx uint32, n int) Instruction { return branch(OpBuiltinCases, idx, n) }

func branch(op Opcode, a uint32, n int) Instruction {
	return Instruction{Op: op, A: a, PCs: make([]uint32, n), Fields: make([]uint32, n)}
}

// Apply returns APPLY.
func Apply() Instruction { return Instruction{Op: OpApply} }

// InvokeGlobal returns INVOKE_GLOBAL idx.
func InvokeGlobal(idx uint32) Instruction { return Instruction{Op: OpInvokeGlobal, A: idx} }

// InvokeBuiltin returns INVOKE_BUILTIN idx.
func InvokeBuiltin(idx uint32) Instruction { return Instruction{Op: OpInvokeBuiltin, A: idx} }

// InvokeCFun returns INVOKE_CFUN idx.
func InvokeCFun(idx uint32) Instruction { return Instruction{Op: OpInvokeCFun, A: idx} }

// Closure returns CLOSURE idx nargs.
func Closure(idx, nargs uint32) Instruction { return Instruction{Op: OpClosure, A: idx, B: nargs} }

// Unreachable returns UNREACHABLE.
func Unreachable() Instruction { return Instruction{Op: OpUnreachable} }

// Ret returns RET.
func Ret() Instruction { return Instruction{Op: OpRet} }

// Clone returns a deep copy that shares nothing mutable with i.
func (i Instruction) Clone() Instruction {
	c := i
	if i.Num != nil {
		c.Num = new(big.Int).Set(i.Num)
	}
	if i.PCs != nil {
		c.PCs = append([]uint32(nil), i.PCs...)
	}
	if i.Fields != nil {
		c.Fields = append([]uint32(nil), i.Fields...)
	}
	return c
}

// Equal reports whether two instructions are identical. Quoted terms are
// compared by identity.
func (i Instruction) Equal(o Instruction) bool {
	if i.Op != o.Op || i.A != o.A || i.B != o.B || i.Expr != o.Expr {
		return false
	}
	if (i.Num == nil) != (o.Num == nil) || (i.Num != nil && i.Num.Cmp(o.Num) != 0) {
		return false
	}
	return equalU32(i.PCs, o.PCs) && equalU32(i.Fields, o.Fields)
}

func equalU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

// EqualCode reports whether two instruction sequences are identical.
func EqualCode(a, b []Instruction) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !a[k].Equal(b[k]) {
			return false
		}
	}
	return true
}
