package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Stack-balance verification
//
// Verify executes a procedure symbolically: it tracks only the stack depth
// along every control path, starting from the Arity argument values, and
// checks that no instruction underflows, that control paths agree on the
// depth where they merge, and that RET finds exactly one value above the
// arguments.
// ---------------------------------------------------------------------------

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrDepthMismatch  = errors.New("stack depth differs between paths")
	ErrBadReturn      = errors.New("return with unbalanced stack")
	ErrBadTarget      = errors.New("branch target out of range")
	ErrFallOff        = errors.New("control falls off the end of the code")
	ErrBadOperand     = errors.New("bad operand")
)

// VerifyError locates a verification failure.
type VerifyError struct {
	Proc string
	PC   int
	Err  error
	Msg  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("vm: verify %s at %04d: %v: %s", e.Proc, e.PC, e.Err, e.Msg)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Analysis is the result of a successful verification.
type Analysis struct {
	// Depth is the stack depth on entry to each pc, or -1 if unreachable.
	Depth []int
}

// Verify checks the stack discipline of p against the declarations in env.
func Verify(env *Env, p *Procedure) error {
	_, err := Analyze(env, p)
	return err
}

// Analyze verifies p and returns the entry depth of every instruction.
func Analyze(env *Env, p *Procedure) (*Analysis, error) {
	depth := make([]int, len(p.Code))
	for i := range depth {
		depth[i] = -1
	}
	fail := func(pc int, err error, format string, args ...interface{}) (*Analysis, error) {
		return nil, &VerifyError{Proc: p.Name, PC: pc, Err: err, Msg: fmt.Sprintf(format, args...)}
	}

	type edge struct{ pc, depth int }
	work := []edge{{0, int(p.Arity)}}
	for len(work) > 0 {
		e := work[len(work)-1]
		work = work[:len(work)-1]
		if e.pc >= len(p.Code) {
			return fail(e.pc, ErrFallOff, "depth %d", e.depth)
		}
		if seen := depth[e.pc]; seen >= 0 {
			if seen != e.depth {
				return fail(e.pc, ErrDepthMismatch, "%d vs %d", seen, e.depth)
			}
			continue
		}
		depth[e.pc] = e.depth

		in := p.Code[e.pc]
		d := e.depth
		need := func(n int) bool { return d >= n }
		next := func(nd int) { work = append(work, edge{e.pc + 1, nd}) }

		switch in.Op {
		case OpPush:
			if int(in.A) >= d {
				return fail(e.pc, ErrBadOperand, "slot %d with depth %d", in.A, d)
			}
			next(d + 1)
		case OpDrop:
			if !need(int(in.A) + 1) {
				return fail(e.pc, ErrStackUnderflow, "drop %d with depth %d", in.A, d)
			}
			next(d - int(in.A))
		case OpSConstructor, OpNum, OpExpr:
			next(d + 1)
		case OpConstructor:
			if !need(int(in.B)) {
				return fail(e.pc, ErrStackUnderflow, "%d fields with depth %d", in.B, d)
			}
			next(d - int(in.B) + 1)
		case OpProj:
			if !need(1) {
				return fail(e.pc, ErrStackUnderflow, "empty stack")
			}
			next(d)
		case OpApply:
			if !need(2) {
				return fail(e.pc, ErrStackUnderflow, "apply with depth %d", d)
			}
			next(d - 1)
		case OpGoto:
			if int(in.PCs[0]) >= len(p.Code) {
				return fail(e.pc, ErrBadTarget, "%d", in.PCs[0])
			}
			work = append(work, edge{int(in.PCs[0]), d})
		case OpDestruct:
			if !need(1) {
				return fail(e.pc, ErrStackUnderflow, "empty stack")
			}
			next(d - 1 + int(in.Fields[0]))
		case OpCases2, OpCasesN, OpNatCases, OpBuiltinCases:
			if !need(1) {
				return fail(e.pc, ErrStackUnderflow, "empty stack")
			}
			if len(in.Fields) != len(in.PCs) {
				return fail(e.pc, ErrBadOperand, "%d targets, %d field counts", len(in.PCs), len(in.Fields))
			}
			for i, t := range in.PCs {
				if int(t) <= e.pc || int(t) >= len(p.Code) {
					return fail(e.pc, ErrBadTarget, "%d", t)
				}
				work = append(work, edge{int(t), d - 1 + int(in.Fields[i])})
			}
		case OpInvokeGlobal, OpInvokeBuiltin, OpInvokeCFun:
			decl, ok := env.DeclAt(in.A)
			if !ok {
				return fail(e.pc, ErrBadOperand, "unknown declaration %d", in.A)
			}
			if want := invokeKind[in.Op]; decl.Kind != want {
				return fail(e.pc, ErrBadOperand, "%s is %s, not %s", decl.Name, decl.Kind, want)
			}
			if !need(int(decl.Arity)) {
				return fail(e.pc, ErrStackUnderflow, "%s needs %d arguments, depth %d", decl.Name, decl.Arity, d)
			}
			next(d - int(decl.Arity) + 1)
		case OpClosure:
			decl, ok := env.DeclAt(in.A)
			if !ok {
				return fail(e.pc, ErrBadOperand, "unknown declaration %d", in.A)
			}
			if in.B >= decl.Arity {
				return fail(e.pc, ErrBadOperand, "closure of %s over %d of %d arguments", decl.Name, in.B, decl.Arity)
			}
			if !need(int(in.B)) {
				return fail(e.pc, ErrStackUnderflow, "closure over %d with depth %d", in.B, d)
			}
			next(d - int(in.B) + 1)
		case OpUnreachable:
		case OpRet:
			if d != int(p.Arity)+1 {
				return fail(e.pc, ErrBadReturn, "depth %d, want %d", d, p.Arity+1)
			}
		default:
			return fail(e.pc, ErrBadOperand, "unknown opcode %s", in.Op)
		}
	}
	return &Analysis{Depth: depth}, nil
}

var invokeKind = map[Opcode]DeclKind{
	OpInvokeGlobal:  DeclCompiled,
	OpInvokeBuiltin: DeclBuiltin,
	OpInvokeCFun:    DeclNative,
}
