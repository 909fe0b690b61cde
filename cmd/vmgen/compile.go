package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/manifest"
	"github.com/chazu/vmgen/server"
	"github.com/chazu/vmgen/vm"
)

// readBatch loads one CBOR declaration batch.
func readBatch(path string) ([]ir.Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decls, err := ir.UnmarshalBatch(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return decls, nil
}

// runCompile compiles files in order against the configured table, writes
// a listing of each installed procedure to w and, if output is set, saves
// every procedure to output.
func runCompile(w io.Writer, m *manifest.Manifest, files []string, output string) (err error) {
	env, err := m.Env()
	if err != nil {
		return err
	}
	d, store, err := m.Driver()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); err == nil {
			err = cerr
		}
	}()

	ctx := context.Background()
	var installed []*vm.Procedure
	for _, path := range files {
		decls, err := readBatch(path)
		if err != nil {
			return err
		}
		res, err := compileBatch(ctx, d, env, decls)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		env = res.Env
		for _, p := range res.Procedures {
			if err := writeProcedure(w, env, p); err != nil {
				return err
			}
		}
		installed = append(installed, res.Procedures...)
	}

	if output == "" {
		return nil
	}
	data, err := vm.MarshalProcedures(installed)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

// compileBatch turns an invariant panic into an error for the command line.
func compileBatch(ctx context.Context, d *compiler.Driver, env *vm.Env, decls []ir.Declaration) (res *compiler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := compiler.AsInvariant(r)
			if !ok {
				panic(r)
			}
			err = ie
		}
	}()
	return d.Compile(ctx, env, decls)
}

func writeProcedure(w io.Writer, env *vm.Env, p *vm.Procedure) error {
	if _, err := fmt.Fprintf(w, "%s/%d\n", p.Name, p.Arity); err != nil {
		return err
	}
	if err := vm.WriteListing(w, env, p.Code); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// runRemote sends each batch to a compile service and prints the listings
// it returns.
func runRemote(w io.Writer, url string, files []string) error {
	client := server.NewClient(http.DefaultClient, url)
	ctx := context.Background()
	for _, path := range files {
		decls, err := readBatch(path)
		if err != nil {
			return err
		}
		resp, err := client.Compile(ctx, decls)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, p := range resp.Procedures {
			dis, err := client.Disassemble(ctx, p.Name)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s/%d\n%s\n\n", dis.Name, dis.Arity, dis.Listing); err != nil {
				return err
			}
		}
	}
	return nil
}
