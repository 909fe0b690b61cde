package compiler

import (
	"math/big"

	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Codegen: compile erased terms to stack-machine bytecode
// ---------------------------------------------------------------------------

// scope maps local identities to stack slots. It is an immutable linked
// list: entering a binder prepends a node, so every branch of a match
// extends the same parent without seeing its siblings.
type scope struct {
	id     ir.LocalID
	slot   uint32
	parent *scope
}

func (s *scope) bind(id ir.LocalID, slot uint32) *scope {
	return &scope{id: id, slot: slot, parent: s}
}

func (s *scope) lookup(id ir.LocalID) (uint32, bool) {
	for ; s != nil; s = s.parent {
		if s.id == id {
			return s.slot, true
		}
	}
	return 0, false
}

// Compiler generates the code of one procedure at a time against a fixed
// declaration table. A Compiler is not safe for concurrent use; the driver
// gives each worker its own.
type Compiler struct {
	env   *vm.Env
	cases *vm.CasesTable

	// Current compilation context
	builder *vm.Builder
	nextID  ir.LocalID
}

// NewCompiler creates a compiler that resolves globals in env and built-in
// case analyzers in cases. cases may be nil.
func NewCompiler(env *vm.Env, cases *vm.CasesTable) *Compiler {
	return &Compiler{env: env, cases: cases}
}

// fresh returns a new local standing for a stripped binder.
func (c *Compiler) fresh(name string) *ir.Local {
	c.nextID++
	return &ir.Local{ID: c.nextID, Name: name}
}

// CompileProcedure strips the leading lambdas of value, binds the i-th
// (outermost first) to slot arity-1-i, compiles the body and appends RET.
// The returned procedure's Arity is the number of lambdas stripped.
//
// Invariant violations panic with *InvariantError.
func (c *Compiler) CompileProcedure(name string, value ir.Term) (*vm.Procedure, error) {
	c.builder = vm.NewBuilder()
	c.nextID = 0

	arity := ir.Arity(value)
	var sc *scope
	locals := make([]ir.Term, 0, arity)
	e := value
	for i := uint32(0); i < arity; i++ {
		lam := e.(*ir.Lambda)
		l := c.fresh(lam.Binder)
		sc = sc.bind(l.ID, arity-1-i)
		locals = append(locals, l)
		e = lam.Body
	}
	e = ir.InstantiateRev(e, locals)

	if err := c.compileExpr(e, arity, sc); err != nil {
		return nil, err
	}
	c.builder.Emit(vm.Ret())

	return &vm.Procedure{Name: name, Arity: arity, Code: c.builder.Finalize()}, nil
}

// compileExpr emits code that leaves the value of e on top of the stack.
// bpz is the number of values in the frame when e starts evaluating.
func (c *Compiler) compileExpr(e ir.Term, bpz uint32, sc *scope) error {
	switch t := e.(type) {
	case *ir.Macro:
		return c.compileMacro(t, bpz, sc)
	case *ir.Constant:
		return c.compileConstant(t)
	case *ir.Local:
		c.compileLocal(t, sc)
		return nil
	case *ir.App:
		return c.compileApp(t, bpz, sc)
	case *ir.Let:
		return c.compileLet(t, bpz, sc)
	case *ir.Var:
		invariantf("loose bound variable #%d in code body", t.Index)
	case *ir.Sort, *ir.Meta, *ir.Pi, *ir.Lambda:
		invariantf("%s node in code body", e.Kind())
	default:
		invariantf("unknown term type %T", e)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Leaves
// ---------------------------------------------------------------------------

func (c *Compiler) compileConstant(k *ir.Constant) error {
	switch {
	case ir.IsNeutral(k):
		c.builder.Emit(vm.SConstructor(0))
	case ir.IsUnreachable(k):
		c.builder.Emit(vm.Unreachable())
	case ir.IsConstant(k, ir.NatZeroName):
		c.builder.Emit(vm.Num(new(big.Int)))
	default:
		if idx, ok := ir.IsInternalCnstr(k); ok {
			c.builder.Emit(vm.SConstructor(idx))
			return nil
		}
		if k.Marker.Kind != ir.NoMarker {
			invariantf("bare %s outside an application", k.Marker)
		}
		decl, ok := c.env.Lookup(k.Name)
		if !ok {
			return &UnknownConstantError{Name: k.Name}
		}
		return c.compileGlobal(decl, nil, 0, nil)
	}
	return nil
}

func (c *Compiler) compileLocal(l *ir.Local, sc *scope) {
	slot, ok := sc.lookup(l.ID)
	if !ok {
		invariantf("local %s (#%d) is not bound in this frame", l.Name, l.ID)
	}
	c.builder.Emit(vm.Push(slot))
}

// ---------------------------------------------------------------------------
// Argument lists
// ---------------------------------------------------------------------------

// compileArgs pushes args first to last.
func (c *Compiler) compileArgs(args []ir.Term, bpz uint32, sc *scope) error {
	for _, a := range args {
		if err := c.compileExpr(a, bpz, sc); err != nil {
			return err
		}
		bpz++
	}
	return nil
}

// compileRevArgs pushes args last to first, so the first argument ends on
// top of the stack.
func (c *Compiler) compileRevArgs(args []ir.Term, bpz uint32, sc *scope) error {
	for i := len(args) - 1; i >= 0; i-- {
		if err := c.compileExpr(args[i], bpz, sc); err != nil {
			return err
		}
		bpz++
	}
	return nil
}

func (c *Compiler) emitApply(n int) {
	for i := 0; i < n; i++ {
		c.builder.Emit(vm.Apply())
	}
}

// ---------------------------------------------------------------------------
// Applications
// ---------------------------------------------------------------------------

func (c *Compiler) compileApp(app *ir.App, bpz uint32, sc *scope) error {
	head, args := ir.Spine(app)
	if k, ok := head.(*ir.Constant); ok {
		if c.isCasesHead(k) {
			return c.compileCasesOn(k, args, bpz, sc)
		}
		if idx, ok := ir.IsInternalCnstr(k); ok {
			return c.compileCnstr(idx, args, bpz, sc)
		}
		if idx, ok := ir.IsInternalProj(k); ok {
			return c.compileProj(idx, args, bpz, sc)
		}
	}
	return c.compileFnCall(head, args, bpz, sc)
}

// compileFnCall emits a call through a constant head, or an APPLY chain
// for any other head. Each pushed argument advances bpz, so a non-constant
// callee is compiled at bpz+len(args) above its arguments.
func (c *Compiler) compileFnCall(head ir.Term, args []ir.Term, bpz uint32, sc *scope) error {
	k, ok := head.(*ir.Constant)
	if !ok {
		// Unknown arity: push the arguments, then the callee above them,
		// and feed the arguments in one at a time.
		if err := c.compileRevArgs(args, bpz, sc); err != nil {
			return err
		}
		if err := c.compileExpr(head, bpz+uint32(len(args)), sc); err != nil {
			return err
		}
		c.emitApply(len(args))
		return nil
	}

	switch {
	case ir.IsNeutral(k):
		c.builder.Emit(vm.SConstructor(0))
		return nil
	case ir.IsUnreachable(k):
		c.builder.Emit(vm.Unreachable())
		return nil
	case k.Marker.Kind != ir.NoMarker:
		invariantf("%s applied to %d arguments", k.Marker, len(args))
	}

	decl, ok := c.env.Lookup(k.Name)
	if !ok {
		return &UnknownConstantError{Name: k.Name}
	}
	return c.compileGlobal(decl, args, bpz, sc)
}

// compileGlobal emits a call to decl with args. A saturated or over-applied
// call invokes decl and applies the leftover arguments to its result; an
// under-applied call builds a closure.
func (c *Compiler) compileGlobal(decl vm.Decl, args []ir.Term, bpz uint32, sc *scope) error {
	if err := c.compileRevArgs(args, bpz, sc); err != nil {
		return err
	}
	n := uint32(len(args))
	if decl.Arity > n {
		c.builder.Emit(vm.Closure(decl.Index, n))
		return nil
	}
	switch decl.Kind {
	case vm.DeclBuiltin:
		c.builder.Emit(vm.InvokeBuiltin(decl.Index))
	case vm.DeclNative:
		c.builder.Emit(vm.InvokeCFun(decl.Index))
	default:
		c.builder.Emit(vm.InvokeGlobal(decl.Index))
	}
	c.emitApply(int(n - decl.Arity))
	return nil
}

// compileCnstr builds a constructor value. Fields are pushed first to last.
func (c *Compiler) compileCnstr(idx uint32, args []ir.Term, bpz uint32, sc *scope) error {
	if err := c.compileArgs(args, bpz, sc); err != nil {
		return err
	}
	c.builder.Emit(vm.Constructor(idx, uint32(len(args))))
	return nil
}

// compileProj projects field idx out of args[0] and applies the result to
// the remaining arguments.
func (c *Compiler) compileProj(idx uint32, args []ir.Term, bpz uint32, sc *scope) error {
	if len(args) == 0 {
		invariantf("projection %d without a subject", idx)
	}
	extra := args[1:]
	if err := c.compileRevArgs(extra, bpz, sc); err != nil {
		return err
	}
	bpz += uint32(len(extra))
	if err := c.compileExpr(args[0], bpz, sc); err != nil {
		return err
	}
	c.builder.Emit(vm.Proj(idx))
	c.emitApply(len(extra))
	return nil
}

// ---------------------------------------------------------------------------
// Let chains
// ---------------------------------------------------------------------------

// compileLet binds every value of a contiguous let chain to consecutive
// slots, compiles the body, and drops the whole chain with one DROP.
func (c *Compiler) compileLet(let *ir.Let, bpz uint32, sc *scope) error {
	var count uint32
	var e ir.Term = let
	for {
		t, ok := e.(*ir.Let)
		if !ok {
			break
		}
		locals := make([]ir.Term, 0, len(t.Bindings))
		for _, b := range t.Bindings {
			if err := c.compileExpr(ir.InstantiateRev(b.Value, locals), bpz, sc); err != nil {
				return err
			}
			l := c.fresh(b.Name)
			sc = sc.bind(l.ID, bpz)
			locals = append(locals, l)
			bpz++
			count++
		}
		e = ir.InstantiateRev(t.Body, locals)
	}
	if err := c.compileExpr(e, bpz, sc); err != nil {
		return err
	}
	if count > 0 {
		c.builder.Emit(vm.Drop(count))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Macros
// ---------------------------------------------------------------------------

func (c *Compiler) compileMacro(m *ir.Macro, bpz uint32, sc *scope) error {
	switch d := m.Def.(type) {
	case *ir.NatLit:
		c.builder.Emit(vm.Num(d.Value))
	case *ir.Annotation:
		return c.compileExpr(d.Arg, bpz, sc)
	case *ir.Quote:
		c.builder.Emit(vm.Expr(d.Expr))
	default:
		return &UnsupportedMacroError{Tag: m.Def.Tag()}
	}
	return nil
}
