package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pc. Declaration indices
// are resolved to names through env when it is non-nil.
func DisassembleInstruction(env *Env, pc int, in Instruction) string {
	name := in.Op.Name()
	switch in.Op {
	case OpApply, OpRet, OpUnreachable:
		return fmt.Sprintf("%04d  %s", pc, name)

	case OpPush, OpDrop, OpSConstructor, OpProj:
		return fmt.Sprintf("%04d  %s %d", pc, name, in.A)

	case OpConstructor:
		return fmt.Sprintf("%04d  %s %d %d", pc, name, in.A, in.B)

	case OpNum:
		return fmt.Sprintf("%04d  %s %s", pc, name, in.Num)

	case OpExpr:
		return fmt.Sprintf("%04d  %s <%s>", pc, name, in.Expr.Kind())

	case OpGoto:
		return fmt.Sprintf("%04d  %s %04d", pc, name, in.PCs[0])

	case OpDestruct:
		return fmt.Sprintf("%04d  %s fields=%d", pc, name, in.Fields[0])

	case OpCases2, OpCasesN, OpNatCases:
		return fmt.Sprintf("%04d  %s %s", pc, name, targets(in))

	case OpBuiltinCases:
		return fmt.Sprintf("%04d  %s %d %s", pc, name, in.A, targets(in))

	case OpInvokeGlobal, OpInvokeBuiltin, OpInvokeCFun:
		return fmt.Sprintf("%04d  %s %d (%s)", pc, name, in.A, declName(env, in.A))

	case OpClosure:
		return fmt.Sprintf("%04d  %s %d (%s) args=%d", pc, name, in.A, declName(env, in.A), in.B)
	}
	return fmt.Sprintf("%04d  %s", pc, name)
}

func targets(in Instruction) string {
	parts := make([]string, len(in.PCs))
	for i, t := range in.PCs {
		parts[i] = fmt.Sprintf("%04d/%d", t, in.Fields[i])
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func declName(env *Env, idx uint32) string {
	if env == nil {
		return "?"
	}
	if d, ok := env.DeclAt(idx); ok {
		return d.Name
	}
	return "?"
}

// WriteListing writes one line per instruction to w.
func WriteListing(w io.Writer, env *Env, code []Instruction) error {
	for pc, in := range code {
		if _, err := fmt.Fprintln(w, DisassembleInstruction(env, pc, in)); err != nil {
			return err
		}
	}
	return nil
}

// Disassemble returns a full listing of code.
func Disassemble(env *Env, code []Instruction) string {
	var sb strings.Builder
	_ = WriteListing(&sb, env, code)
	return strings.TrimSuffix(sb.String(), "\n")
}
