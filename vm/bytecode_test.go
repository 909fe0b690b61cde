package vm

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/chazu/vmgen/ir"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		branches bool
	}{
		{OpPush, "PUSH", false},
		{OpDrop, "DROP", false},
		{OpGoto, "GOTO", true},
		{OpCases2, "CASES2", true},
		{OpCasesN, "CASESN", true},
		{OpNatCases, "NAT_CASES", true},
		{OpBuiltinCases, "BUILTIN_CASES", true},
		{OpDestruct, "DESTRUCT", false},
		{OpApply, "APPLY", false},
		{OpClosure, "CLOSURE", false},
		{OpRet, "RET", false},
	}

	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.Branches != tt.branches {
			t.Errorf("%s: Branches = %v, want %v", tt.op, info.Branches, tt.branches)
		}
	}
}

func TestOpcodeUnknown(t *testing.T) {
	if got := Opcode(0xEE).String(); got != "UNKNOWN_EE" {
		t.Errorf("String() = %q, want UNKNOWN_EE", got)
	}
}

func TestInstructionCloneIsDeep(t *testing.T) {
	in := CasesN(3)
	in.Num = big.NewInt(5)
	c := in.Clone()
	c.PCs[0] = 9
	c.Num.SetInt64(6)
	if in.PCs[0] != 0 || in.Num.Int64() != 5 {
		t.Error("Clone shares state with the original")
	}
	if !in.Equal(in.Clone()) {
		t.Error("instruction not equal to its clone")
	}
}

// ---------------------------------------------------------------------------
// Builder tests
// ---------------------------------------------------------------------------

func expectPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		if msg, _ := r.(string); !strings.Contains(msg, want) {
			t.Fatalf("panic = %v, want it to contain %q", r, want)
		}
	}()
	fn()
}

func TestBuilderPatchOnce(t *testing.T) {
	b := NewBuilder()
	b.Emit(Push(0))
	g := b.Emit(Goto())
	b.Emit(Push(0))
	if b.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", b.Pending())
	}
	b.PatchTarget(g, 0, b.NextPC())
	if b.Pending() != 0 {
		t.Fatalf("Pending() = %d after patch, want 0", b.Pending())
	}
	b.Emit(Ret())
	code := b.Finalize()
	if code[g].PCs[0] != 3 {
		t.Errorf("goto target = %d, want 3", code[g].PCs[0])
	}

	expectPanic(t, "patched twice", func() { b.PatchTarget(g, 0, 3) })
}

func TestBuilderRejectsNonPlaceholder(t *testing.T) {
	b := NewBuilder()
	pc := b.Emit(Push(0))
	b.Emit(Ret())
	expectPanic(t, "no placeholder", func() { b.PatchTarget(pc, 0, 1) })
}

func TestBuilderRejectsBackwardTarget(t *testing.T) {
	b := NewBuilder()
	b.Emit(Push(0))
	g := b.Emit(Goto())
	expectPanic(t, "cannot target", func() { b.PatchTarget(g, 0, 0) })
}

func TestBuilderFinalizeWithPending(t *testing.T) {
	b := NewBuilder()
	b.Emit(Cases2())
	expectPanic(t, "unpatched", func() { b.Finalize() })
}

func TestBuilderEmitCopiesTargets(t *testing.T) {
	b := NewBuilder()
	in := CasesN(3)
	pc := b.Emit(in)
	in.PCs[0] = 99
	if b.At(pc).PCs[0] != 0 {
		t.Error("Emit aliased the caller's target slice")
	}
}

func TestBuilderSetFieldsOnce(t *testing.T) {
	b := NewBuilder()
	pc := b.Emit(Cases2())
	b.SetFields(pc, []uint32{0, 2})
	if got := b.At(pc).Fields; got[1] != 2 {
		t.Errorf("Fields = %v, want [0 2]", got)
	}
	expectPanic(t, "set twice", func() { b.SetFields(pc, []uint32{1, 1}) })
	expectPanic(t, "alternatives", func() { b.SetFields(b.Emit(CasesN(3)), []uint32{1}) })
}

// ---------------------------------------------------------------------------
// Env tests
// ---------------------------------------------------------------------------

func TestEnvFunctionalUpdate(t *testing.T) {
	base := NewEnv()
	withAdd, err := base.WithBuiltin("nat.add", 2, DeclBuiltin)
	if err != nil {
		t.Fatalf("WithBuiltin: %v", err)
	}
	if _, ok := base.Lookup("nat.add"); ok {
		t.Error("update leaked into the original table")
	}

	reserved, err := withAdd.Reserve([]Reservation{{"f", 1}, {"g", 0}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	f, ok := reserved.Lookup("f")
	if !ok || f.Index != 1 || f.Arity != 1 || f.Kind != DeclCompiled {
		t.Errorf("f = %+v, want index 1 arity 1 compiled", f)
	}
	if withAdd.Len() != 1 || reserved.Len() != 3 {
		t.Errorf("Len = %d/%d, want 1/3", withAdd.Len(), reserved.Len())
	}

	proc := &Procedure{Name: "f", Arity: 1, Code: []Instruction{Push(0), Ret()}}
	installed, err := reserved.Install([]*Procedure{proc})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, ok := reserved.Procedure("f"); ok {
		t.Error("install leaked into the reserved table")
	}
	if got, ok := installed.Procedure("f"); !ok || got != proc {
		t.Error("installed procedure not found")
	}
}

func TestEnvReserveReusesCompiledSlot(t *testing.T) {
	env, _ := NewEnv().Reserve([]Reservation{{"f", 1}})
	env, _ = env.Install([]*Procedure{{Name: "f", Arity: 1, Code: []Instruction{Push(0), Ret()}}})

	again, err := env.Reserve([]Reservation{{"f", 2}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	f, _ := again.Lookup("f")
	if f.Index != 0 || f.Arity != 2 {
		t.Errorf("f = %+v, want index 0 arity 2", f)
	}
	if _, ok := again.Procedure("f"); ok {
		t.Error("stale code survived re-reservation")
	}
}

func TestEnvErrors(t *testing.T) {
	env, _ := NewEnv().WithBuiltin("io.print", 1, DeclNative)

	if _, err := env.WithBuiltin("io.print", 1, DeclBuiltin); !errors.Is(err, ErrDuplicateDecl) {
		t.Errorf("duplicate builtin: err = %v", err)
	}
	if _, err := env.Reserve([]Reservation{{"io.print", 1}}); !errors.Is(err, ErrDuplicateDecl) {
		t.Errorf("reserving a native name: err = %v", err)
	}
	if _, err := env.Install([]*Procedure{{Name: "nope"}}); !errors.Is(err, ErrNotReserved) {
		t.Errorf("install unreserved: err = %v", err)
	}
	env, _ = env.Reserve([]Reservation{{"f", 2}})
	if _, err := env.Install([]*Procedure{{Name: "f", Arity: 1}}); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("install wrong arity: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// CasesTable tests
// ---------------------------------------------------------------------------

func TestCasesTable(t *testing.T) {
	ct := NewCasesTable()
	if err := ct.Register("string.cases_on", 0, 1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := ct.Register("string.cases_on", 1, 1); !errors.Is(err, ErrDuplicateDecl) {
		t.Errorf("duplicate: err = %v", err)
	}
	if err := ct.Register(ir.NatCasesOnName, 2, 2); err == nil {
		t.Error("nat.cases_on accepted as a builtin analyzer")
	}
	if err := ct.Register("empty.cases_on", 3, 0); err == nil {
		t.Error("zero alternatives accepted")
	}
	ct.Freeze()
	if err := ct.Register("char.cases_on", 4, 1); !errors.Is(err, ErrCasesFrozen) {
		t.Errorf("register after freeze: err = %v", err)
	}
	c, ok := ct.Lookup("string.cases_on")
	if !ok || c.NumAlts != 1 {
		t.Errorf("Lookup = %+v, %v", c, ok)
	}
	if in := BuiltinCases(c.Index, int(c.NumAlts)); in.Op != OpBuiltinCases || len(in.PCs) != 1 {
		t.Errorf("BuiltinCases(%d, %d) = %+v", c.Index, c.NumAlts, in)
	}
	if got := ct.Entries(); len(got) != 1 || got[0] != (CaseAnalyzer{Name: "string.cases_on", Index: 0, NumAlts: 1}) {
		t.Errorf("Entries = %+v", got)
	}

	var none *CasesTable
	if _, ok := none.Lookup("x"); ok {
		t.Error("nil table found an entry")
	}
}

// ---------------------------------------------------------------------------
// Disassembly tests
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	env, _ := NewEnv().Reserve([]Reservation{{"f", 2}})
	cases := Cases2()
	cases.PCs = []uint32{2, 4}
	cases.Fields = []uint32{0, 1}
	gt := Goto()
	gt.PCs[0] = 5
	code := []Instruction{
		Push(0),
		cases,
		Num(big.NewInt(0)),
		gt,
		Closure(0, 1),
		Ret(),
	}

	got := Disassemble(env, code)
	want := strings.Join([]string{
		"0000  PUSH 0",
		"0001  CASES2 [0002/0 0004/1]",
		"0002  NUM 0",
		"0003  GOTO 0005",
		"0004  CLOSURE 0 (f) args=1",
		"0005  RET",
	}, "\n")
	if got != want {
		t.Errorf("Disassemble:\n%s\nwant:\n%s", got, want)
	}
}

// ---------------------------------------------------------------------------
// Wire tests
// ---------------------------------------------------------------------------

func TestProcedureWire(t *testing.T) {
	nat := NatCases()
	nat.PCs = []uint32{2, 3}
	nat.Fields = []uint32{0, 1}
	p := &Procedure{Name: "pred", Arity: 1, Code: []Instruction{
		Push(0),
		nat,
		Num(big.NewInt(0)),
		Expr(ir.Const("x")),
		Ret(),
	}}

	data, err := MarshalProcedures([]*Procedure{p})
	if err != nil {
		t.Fatalf("MarshalProcedures: %v", err)
	}
	got, err := UnmarshalProcedures(data)
	if err != nil {
		t.Fatalf("UnmarshalProcedures: %v", err)
	}
	if len(got) != 1 || got[0].Name != "pred" || got[0].Arity != 1 {
		t.Fatalf("got %+v", got)
	}
	q := got[0].Code
	if q[1].Op != OpNatCases || q[1].PCs[1] != 3 || q[1].Fields[1] != 1 {
		t.Errorf("NAT_CASES = %+v", q[1])
	}
	if q[2].Num == nil || q[2].Num.Sign() != 0 {
		t.Errorf("NUM = %v, want 0", q[2].Num)
	}
	if c, ok := q[3].Expr.(*ir.Constant); !ok || c.Name != "x" {
		t.Errorf("EXPR = %v, want x", q[3].Expr)
	}
}

func TestUnmarshalCodeRejectsUnknownOpcode(t *testing.T) {
	data, err := MarshalCode([]Instruction{{Op: Opcode(0xEE)}})
	if err != nil {
		t.Fatalf("MarshalCode: %v", err)
	}
	if _, err := UnmarshalCode(data); err == nil {
		t.Error("unknown opcode accepted")
	}
}
