package compiler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/chazu/vmgen/cache"
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// evenOdd is a mutually recursive pair; even refers forward to odd.
func evenOdd() []ir.Declaration {
	even := lam("n", ir.Mk(ir.Const(ir.NatCasesOnName), ir.BVar(0),
		ir.Cnstr(1),
		lam("m", ir.Mk(ir.Const("odd"), ir.BVar(0))),
	))
	odd := lam("n", ir.Mk(ir.Const(ir.NatCasesOnName), ir.BVar(0),
		ir.Cnstr(0),
		lam("m", ir.Mk(ir.Const("even"), ir.BVar(0))),
	))
	return []ir.Declaration{{Name: "even", Value: even}, {Name: "odd", Value: odd}}
}

func TestDriverForwardReferences(t *testing.T) {
	base := testEnv(t)
	d := &Driver{Verify: true, Jobs: 2}

	res, err := d.Compile(context.Background(), base, evenOdd())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	for i, name := range []string{"even", "odd"} {
		decl, ok := res.Env.Lookup(name)
		if !ok {
			t.Fatalf("%s not in table", name)
		}
		if decl.Kind != vm.DeclCompiled || decl.Arity != 1 {
			t.Errorf("%s = %+v, want compiled arity 1", name, decl)
		}
		proc, ok := res.Env.Procedure(name)
		if !ok {
			t.Fatalf("%s has no code", name)
		}
		if proc != res.Procedures[i] {
			t.Errorf("Procedures[%d] is not the installed %s", i, name)
		}
		if proc.Arity != decl.Arity {
			t.Errorf("%s: code arity %d, table arity %d", name, proc.Arity, decl.Arity)
		}
	}

	// even calls odd through odd's reserved slot.
	odd, _ := res.Env.Lookup("odd")
	even, _ := res.Env.Procedure("even")
	found := false
	for _, in := range even.Code {
		if in.Op == vm.OpInvokeGlobal && in.A == odd.Index {
			found = true
		}
	}
	if !found {
		t.Errorf("even does not invoke odd:\n%s", vm.Disassemble(res.Env, even.Code))
	}

	if _, ok := base.Lookup("even"); ok {
		t.Error("compilation modified the input table")
	}
}

func TestDriverAllOrNothing(t *testing.T) {
	base := testEnv(t)
	batch := append(evenOdd(), ir.Declaration{
		Name:  "broken",
		Value: lam("x", ir.Mk(ir.Const("nowhere"), ir.BVar(0))),
	})

	res, err := Compile(context.Background(), base, batch)
	var uce *UnknownConstantError
	if !errors.As(err, &uce) || uce.Name != "nowhere" {
		t.Fatalf("err = %v, want UnknownConstantError", err)
	}
	if res != nil {
		t.Error("failed batch returned a result")
	}
	if _, ok := base.Lookup("even"); ok {
		t.Error("failed batch modified the input table")
	}
}

func TestDriverDuplicateInBatch(t *testing.T) {
	batch := []ir.Declaration{
		{Name: "a", Value: ir.Nat(1)},
		{Name: "a", Value: ir.Nat(2)},
	}
	if _, err := Compile(context.Background(), testEnv(t), batch); !errors.Is(err, ErrDuplicateInBatch) {
		t.Errorf("err = %v, want ErrDuplicateInBatch", err)
	}
}

func TestDriverReservingBuiltinFails(t *testing.T) {
	batch := []ir.Declaration{{Name: "nat.add", Value: ir.Nat(1)}}
	if _, err := Compile(context.Background(), testEnv(t), batch); !errors.Is(err, vm.ErrDuplicateDecl) {
		t.Errorf("err = %v, want ErrDuplicateDecl", err)
	}
}

func TestDriverInvariantPanicsOnCaller(t *testing.T) {
	batch := []ir.Declaration{
		{Name: "fine", Value: ir.Nat(1)},
		{Name: "bad", Value: lam("x", &ir.Sort{Level: "1"})},
	}
	defer func() {
		ie, ok := AsInvariant(recover())
		if !ok {
			t.Fatal("expected an *InvariantError panic")
		}
		if ie.Decl != "bad" {
			t.Errorf("Decl = %q, want bad", ie.Decl)
		}
	}()
	d := &Driver{Jobs: 4}
	_, _ = d.Compile(context.Background(), testEnv(t), batch)
}

func TestDriverRecompileReusesSlot(t *testing.T) {
	ctx := context.Background()
	first, err := Compile(ctx, testEnv(t), []ir.Declaration{{Name: "k", Value: ir.Nat(1)}})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := first.Env.Lookup("k")

	second, err := Compile(ctx, first.Env, []ir.Declaration{{Name: "k", Value: lam("x", ir.BVar(0))}})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := second.Env.Lookup("k")
	if after.Index != before.Index || after.Arity != 1 {
		t.Errorf("k = %+v after recompilation, want index %d arity 1", after, before.Index)
	}
	if old, _ := first.Env.Lookup("k"); old.Arity != 0 {
		t.Error("recompilation changed the earlier table")
	}
}

func TestDriverCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	d := &Driver{Cache: store}

	res, err := d.Compile(ctx, testEnv(t), evenOdd())
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHits != 0 || store.Len() != 2 {
		t.Fatalf("first run: hits %d, stored %d", res.CacheHits, store.Len())
	}

	again, err := d.Compile(ctx, testEnv(t), evenOdd())
	if err != nil {
		t.Fatal(err)
	}
	if again.CacheHits != 2 {
		t.Errorf("second run: hits %d, want 2", again.CacheHits)
	}
	for i, p := range again.Procedures {
		if p.Name != res.Procedures[i].Name {
			t.Errorf("cached procedure %d named %q, want %q", i, p.Name, res.Procedures[i].Name)
		}
		if !vm.EqualCode(p.Code, res.Procedures[i].Code) {
			t.Errorf("cached code for %s differs", p.Name)
		}
	}
}

func TestDriverCacheMissOnTableChange(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	d := &Driver{Cache: store}
	batch := []ir.Declaration{{Name: "g", Value: lam("x", ir.Mk(ir.Const("f"), ir.BVar(0), ir.BVar(0)))}}

	if _, err := d.Compile(ctx, testEnv(t), batch); err != nil {
		t.Fatal(err)
	}

	// Same body, but f now sits at another index.
	env, _ := vm.NewEnv().Reserve([]vm.Reservation{{Name: "pad", Arity: 0}, {Name: "f", Arity: 2}})
	res, err := d.Compile(ctx, env, batch)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHits != 0 {
		t.Error("cache hit across a changed declaration index")
	}
}

func TestDriverOptimizerAndTrace(t *testing.T) {
	var calls atomic.Int32
	tracer := NewTracer()
	if err := tracer.Enable(TraceCodeGen, TraceOptimizeBytecode); err != nil {
		t.Fatal(err)
	}
	d := &Driver{
		Tracer: tracer,
		Verify: true,
		Optimizer: OptimizerFunc(func(env *vm.Env, code []vm.Instruction) []vm.Instruction {
			calls.Add(1)
			return code
		}),
	}

	res, err := d.Compile(context.Background(), testEnv(t), evenOdd())
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("optimizer ran %d times, want 2", calls.Load())
	}
	if len(res.Procedures) != 2 {
		t.Errorf("got %d procedures, want 2", len(res.Procedures))
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	if tracer.Enabled(TraceCodeGen) {
		t.Error("nil tracer reports a class enabled")
	}
	if got := tracer.Classes(); got != nil {
		t.Errorf("Classes() = %v, want nil", got)
	}
	if got := NewTracer().Classes(); len(got) == 0 {
		t.Error("new tracer registers no classes")
	}
}

func TestDriverVerifyRejectsBadOptimizer(t *testing.T) {
	d := &Driver{
		Verify: true,
		Optimizer: OptimizerFunc(func(env *vm.Env, code []vm.Instruction) []vm.Instruction {
			return append([]vm.Instruction{vm.Drop(5)}, code...)
		}),
	}
	_, err := d.Compile(context.Background(), testEnv(t), []ir.Declaration{{Name: "k", Value: ir.Nat(1)}})
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Errorf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestCompileDeclaration(t *testing.T) {
	pre := PreprocessorFunc(func(env *vm.Env, decl ir.Declaration) ([]ir.Declaration, error) {
		aux := ir.Declaration{Name: decl.Name + "._aux", Value: ir.Nat(5)}
		main := ir.Declaration{Name: decl.Name, Value: ir.Const(aux.Name)}
		return []ir.Declaration{main, aux}, nil
	})

	var d Driver
	res, err := d.CompileDeclaration(context.Background(), testEnv(t), pre, ir.Declaration{Name: "five"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"five", "five._aux"} {
		if _, ok := res.Env.Procedure(name); !ok {
			t.Errorf("%s not installed", name)
		}
	}

	failing := PreprocessorFunc(func(*vm.Env, ir.Declaration) ([]ir.Declaration, error) {
		return nil, errors.New("boom")
	})
	if _, err := d.CompileDeclaration(context.Background(), testEnv(t), failing, ir.Declaration{Name: "x"}); err == nil {
		t.Error("preprocessor error was swallowed")
	}
}

func TestTracer(t *testing.T) {
	tr := NewTracer()
	if tr.Enabled(TraceCodeGen) {
		t.Error("class enabled by default")
	}
	if err := tr.Enable("compiler.nonsense"); err == nil {
		t.Error("enabled an unregistered class")
	}
	if got := tr.Classes(); len(got) != 2 || got[0] != TraceCodeGen {
		t.Errorf("Classes() = %v", got)
	}

	var none *Tracer
	if none.Enabled(TraceCodeGen) {
		t.Error("nil tracer reports an enabled class")
	}
	none.Procedure(TraceCodeGen, nil, &vm.Procedure{})
}
