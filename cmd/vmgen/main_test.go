package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/manifest"
	"github.com/chazu/vmgen/server"
	"github.com/chazu/vmgen/vm"
)

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(`
[compiler]
verify = true

[[builtin]]
name = "nat.add"
arity = 2
kind = "builtin"
`))
	if err != nil {
		t.Fatal(err)
	}
	m.Dir = t.TempDir()
	return m
}

func writeBatch(t *testing.T, dir, name string, decls ...ir.Declaration) string {
	t.Helper()
	data, err := ir.MarshalBatch(decls)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func double() ir.Declaration {
	return ir.Declaration{
		Name:  "double",
		Value: ir.Lam([]string{"x"}, ir.Mk(ir.Const("nat.add"), ir.BVar(0), ir.BVar(0))),
	}
}

func TestCompileAndDisassemble(t *testing.T) {
	m := testManifest(t)
	first := writeBatch(t, m.Dir, "1.cbor", double())
	second := writeBatch(t, m.Dir, "2.cbor", ir.Declaration{
		Name:  "four",
		Value: ir.Mk(ir.Const("double"), ir.Nat(2)),
	})
	out := filepath.Join(m.Dir, "procs.cbor")

	var listing bytes.Buffer
	if err := runCompile(&listing, m, []string{first, second}, out); err != nil {
		t.Fatalf("runCompile: %v", err)
	}
	for _, want := range []string{"double/1", "INVOKE_BUILTIN 0 (nat.add)", "four/0", "INVOKE_GLOBAL 1 (double)"} {
		if !strings.Contains(listing.String(), want) {
			t.Errorf("listing lacks %q:\n%s", want, listing.String())
		}
	}

	var dis bytes.Buffer
	if err := runDisassemble(&dis, m, out); err != nil {
		t.Fatalf("runDisassemble: %v", err)
	}
	if dis.String() != listing.String() {
		t.Errorf("disassembly of saved code differs:\n%s\nwant:\n%s", dis.String(), listing.String())
	}
}

func TestCompileErrors(t *testing.T) {
	m := testManifest(t)

	unknown := writeBatch(t, m.Dir, "unknown.cbor", ir.Declaration{Name: "g", Value: ir.Const("missing")})
	if err := runCompile(&bytes.Buffer{}, m, []string{unknown}, ""); err == nil ||
		!strings.Contains(err.Error(), "VM does not have code for 'missing'") {
		t.Errorf("err = %v, want unknown constant", err)
	}

	bad := writeBatch(t, m.Dir, "bad.cbor", ir.Declaration{
		Name:  "g",
		Value: ir.Lam([]string{"x"}, &ir.Sort{Level: "0"}),
	})
	err := runCompile(&bytes.Buffer{}, m, []string{bad}, "")
	var ie *compiler.InvariantError
	if !errors.As(err, &ie) {
		t.Errorf("err = %v, want *InvariantError", err)
	}

	garbage := filepath.Join(m.Dir, "garbage.cbor")
	if err := os.WriteFile(garbage, []byte("not cbor"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := runCompile(&bytes.Buffer{}, m, []string{garbage}, ""); err == nil {
		t.Error("garbage batch accepted")
	}
}

func TestRemote(t *testing.T) {
	m := testManifest(t)
	env, err := m.Env()
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(env)
	defer srv.Stop()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	batch := writeBatch(t, m.Dir, "1.cbor", double())
	var out bytes.Buffer
	if err := runRemote(&out, ts.URL, []string{batch}); err != nil {
		t.Fatalf("runRemote: %v", err)
	}
	if !strings.Contains(out.String(), "double/1") {
		t.Errorf("output:\n%s", out.String())
	}
	if _, ok := srv.Env().Procedure("double"); !ok {
		t.Error("remote compile did not install double")
	}
}

func TestRebuildEnvMismatch(t *testing.T) {
	m := testManifest(t)
	// A saved procedure that collides with a builtin cannot be placed.
	procs := []*vm.Procedure{{Name: "nat.add", Arity: 0, Code: []vm.Instruction{vm.SConstructor(0), vm.Ret()}}}
	if env := rebuildEnv(m, procs); env != nil {
		t.Error("rebuilt a table around a builtin collision")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList = %v", got)
	}
}
