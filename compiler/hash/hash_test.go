package hash

import (
	"bytes"
	"testing"

	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

func TestSerializeVar(t *testing.T) {
	got := Serialize(ir.BVar(2))
	want := []byte{HashVersion, TagVar, 0, 0, 0, 2}
	if !bytes.Equal(got, want) {
		t.Errorf("Serialize = %x, want %x", got, want)
	}
}

func TestHashIgnoresBinderNames(t *testing.T) {
	a := ir.Lam([]string{"x", "y"}, ir.Mk(ir.Const("f"), ir.BVar(0), ir.BVar(1)))
	b := ir.Lam([]string{"p", "q"}, ir.Mk(ir.Const("f"), ir.BVar(0), ir.BVar(1)))
	if HashTerm(a) != HashTerm(b) {
		t.Error("alpha-equivalent terms hash differently")
	}
}

func TestHashKeepsQuotedBinderNames(t *testing.T) {
	a := ir.QuoteOf(ir.Lam([]string{"x"}, ir.BVar(0)))
	b := ir.QuoteOf(ir.Lam([]string{"y"}, ir.BVar(0)))
	if HashTerm(a) == HashTerm(b) {
		t.Error("quoted terms with different binder names hash alike")
	}
}

func TestHashFlattensSpines(t *testing.T) {
	f := ir.Const("f")
	nested := &ir.App{Fn: &ir.App{Fn: f, Args: []ir.Term{ir.Nat(1)}}, Args: []ir.Term{ir.Nat(2)}}
	flat := ir.Mk(f, ir.Nat(1), ir.Nat(2))
	if HashTerm(nested) != HashTerm(flat) {
		t.Error("nested and flat applications hash differently")
	}
}

func TestHashDistinguishesTerms(t *testing.T) {
	terms := []ir.Term{
		ir.BVar(0),
		ir.BVar(1),
		ir.Const("f"),
		ir.Cnstr(0),
		ir.Cnstr(1),
		ir.Proj(0),
		ir.Nat(0),
		ir.Nat(1),
		ir.Mk(ir.Const("f"), ir.Nat(1)),
		ir.Mk(ir.Const("f"), ir.Nat(1), ir.Nat(1)),
		ir.Lam([]string{"x"}, ir.BVar(0)),
		ir.LetIn(ir.BVar(0), ir.LetBinding{Name: "x", Value: ir.Nat(1)}),
		ir.QuoteOf(ir.Nat(1)),
		ir.Annotate("tag", ir.Nat(1)),
		&ir.Macro{Def: &ir.OpaqueMacro{Name: "m"}},
	}
	seen := make(map[[32]byte]int)
	for i, e := range terms {
		h := HashTerm(e)
		if j, ok := seen[h]; ok {
			t.Errorf("terms %d and %d collide", j, i)
		}
		seen[h] = i
	}
}

func TestProcedureKeyTracksReferencedDecls(t *testing.T) {
	body := ir.Lam([]string{"x"}, ir.Mk(ir.Const("g"), ir.BVar(0)))

	env1, _ := vm.NewEnv().Reserve([]vm.Reservation{{Name: "g", Arity: 1}})
	env2, _ := vm.NewEnv().Reserve([]vm.Reservation{{Name: "g", Arity: 2}})
	env3, _ := env1.Reserve([]vm.Reservation{{Name: "unrelated", Arity: 3}})

	k1 := ProcedureKey(body, env1, nil)
	if k1 != ProcedureKey(body, env1, nil) {
		t.Fatal("key is not deterministic")
	}
	if k1 == ProcedureKey(body, env2, nil) {
		t.Error("key ignores the arity of a referenced global")
	}
	if k1 != ProcedureKey(body, env3, nil) {
		t.Error("key depends on an unreferenced global")
	}
}

func TestProcedureKeyTracksCases(t *testing.T) {
	scrut := ir.Lam([]string{"s"}, ir.Mk(ir.Const("string.cases_on"), ir.BVar(0), ir.Nat(0)))
	env := vm.NewEnv()

	ct1 := vm.NewCasesTable()
	_ = ct1.Register("string.cases_on", 0, 1)
	ct2 := vm.NewCasesTable()
	_ = ct2.Register("string.cases_on", 7, 1)

	if ProcedureKey(scrut, env, ct1) == ProcedureKey(scrut, env, ct2) {
		t.Error("key ignores the case analyzer index")
	}
	if ProcedureKey(scrut, env, ct1) == ProcedureKey(scrut, env, nil) {
		t.Error("key ignores a missing case analyzer")
	}
}

func TestKeyString(t *testing.T) {
	var k Key
	k[0] = 0xAB
	if s := k.String(); len(s) != 64 || s[:2] != "ab" {
		t.Errorf("String() = %q", s)
	}
}
