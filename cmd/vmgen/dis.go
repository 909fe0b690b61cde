package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/vmgen/manifest"
	"github.com/chazu/vmgen/vm"
)

// runDisassemble prints every procedure saved in path. Global indices are
// named by rebuilding the table the file was compiled into: the configured
// builtins followed by the saved procedures in order.
func runDisassemble(w io.Writer, m *manifest.Manifest, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	procs, err := vm.UnmarshalProcedures(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	env := rebuildEnv(m, procs)
	for _, p := range procs {
		if err := writeProcedure(w, env, p); err != nil {
			return err
		}
	}
	return nil
}

// rebuildEnv returns nil when the saved procedures do not fit the
// configured builtins; listings then show unresolved indices.
func rebuildEnv(m *manifest.Manifest, procs []*vm.Procedure) *vm.Env {
	env, err := m.Env()
	if err != nil {
		return nil
	}
	rs := make([]vm.Reservation, len(procs))
	for i, p := range procs {
		rs[i] = vm.Reservation{Name: p.Name, Arity: p.Arity}
	}
	if env, err = env.Reserve(rs); err != nil {
		return nil
	}
	if env, err = env.Install(procs); err != nil {
		return nil
	}
	return env
}
