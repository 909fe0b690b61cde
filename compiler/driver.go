package compiler

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/vmgen/cache"
	"github.com/chazu/vmgen/compiler/hash"
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Declaration driver
// ---------------------------------------------------------------------------

// Optimizer rewrites generated code before it is installed.
type Optimizer interface {
	Optimize(env *vm.Env, code []vm.Instruction) []vm.Instruction
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(env *vm.Env, code []vm.Instruction) []vm.Instruction

// Optimize calls f.
func (f OptimizerFunc) Optimize(env *vm.Env, code []vm.Instruction) []vm.Instruction {
	return f(env, code)
}

// Preprocessor turns one user declaration into the batch of closed, erased
// (name, term) pairs that implement it.
type Preprocessor interface {
	Preprocess(env *vm.Env, decl ir.Declaration) ([]ir.Declaration, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(env *vm.Env, decl ir.Declaration) ([]ir.Declaration, error)

// Preprocess calls f.
func (f PreprocessorFunc) Preprocess(env *vm.Env, decl ir.Declaration) ([]ir.Declaration, error) {
	return f(env, decl)
}

// ErrDuplicateInBatch is returned when a batch names the same global twice.
var ErrDuplicateInBatch = errors.New("declaration appears twice in batch")

// Driver compiles batches of declarations into a new declaration table.
// The zero value compiles serially with no cache, optimizer or tracing.
type Driver struct {
	Cases     *vm.CasesTable
	Optimizer Optimizer
	Tracer    *Tracer
	Cache     cache.Store

	// Jobs bounds the number of bodies compiled at once. Zero means
	// GOMAXPROCS.
	Jobs int

	// Verify runs the stack-balance verifier on every installed procedure.
	Verify bool
}

// Result is the outcome of compiling one batch.
type Result struct {
	// Env is the table with every procedure of the batch installed.
	Env *vm.Env
	// Procedures holds the installed code, in batch order.
	Procedures []*vm.Procedure
	// CacheHits counts bodies taken from the cache instead of generated.
	CacheHits int
}

// Compile reserves a slot for every declaration of batch, compiles each
// body against the reserved table, and installs all of them at once.
// On error env is left as it was and no table is returned.
//
// An invariant violation in any body panics with *InvariantError on the
// calling goroutine.
func Compile(ctx context.Context, env *vm.Env, batch []ir.Declaration) (*Result, error) {
	var d Driver
	return d.Compile(ctx, env, batch)
}

type bodyResult struct {
	generated *vm.Procedure // as generated, before optimization
	final     *vm.Procedure
	hit       bool
	panicked  interface{}
}

// Compile is the Driver form of the package-level Compile.
func (d *Driver) Compile(ctx context.Context, env *vm.Env, batch []ir.Declaration) (*Result, error) {
	// Phase 1: reserve
	seen := make(map[string]struct{}, len(batch))
	rs := make([]vm.Reservation, len(batch))
	for i, decl := range batch {
		if _, dup := seen[decl.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInBatch, decl.Name)
		}
		seen[decl.Name] = struct{}{}
		rs[i] = vm.Reservation{Name: decl.Name, Arity: ir.Arity(decl.Value)}
	}
	reserved, err := env.Reserve(rs)
	if err != nil {
		return nil, err
	}

	// Phase 2: compile bodies against the frozen reserved table
	results := make([]bodyResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.jobs())
	for i := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.compileBody(gctx, reserved, batch[i], rs[i].Arity, &results[i])
		})
	}
	werr := g.Wait()
	for i := range results {
		if results[i].panicked != nil {
			panic(results[i].panicked)
		}
	}
	if werr != nil {
		return nil, werr
	}

	res := &Result{Procedures: make([]*vm.Procedure, len(batch))}
	for i, r := range results {
		d.Tracer.Procedure(TraceCodeGen, reserved, r.generated)
		d.Tracer.Procedure(TraceOptimizeBytecode, reserved, r.final)
		res.Procedures[i] = r.final
		if r.hit {
			res.CacheHits++
		}
	}

	res.Env, err = reserved.Install(res.Procedures)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CompileDeclaration preprocesses decl into a batch and compiles it.
func (d *Driver) CompileDeclaration(ctx context.Context, env *vm.Env, pre Preprocessor, decl ir.Declaration) (*Result, error) {
	batch, err := pre.Preprocess(env, decl)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", decl.Name, err)
	}
	return d.Compile(ctx, env, batch)
}

func (d *Driver) jobs() int {
	if d.Jobs > 0 {
		return d.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

func (d *Driver) compileBody(ctx context.Context, env *vm.Env, decl ir.Declaration, arity uint32, out *bodyResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := AsInvariant(r); ok && ie.Decl == "" {
				ie.Decl = decl.Name
			}
			out.panicked = r
			err = fmt.Errorf("%s: code generation aborted", decl.Name)
		}
	}()

	var key string
	if d.Cache != nil {
		key = hash.ProcedureKey(decl.Value, env, d.Cases).String()
		cached, ok, err := d.Cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%s: cache: %w", decl.Name, err)
		}
		if ok {
			out.generated = cached.Clone()
			out.generated.Name = decl.Name
			out.hit = true
		}
	}

	if out.generated == nil {
		p, err := NewCompiler(env, d.Cases).CompileProcedure(decl.Name, decl.Value)
		if err != nil {
			return err
		}
		out.generated = p
		if d.Cache != nil {
			if err := d.Cache.Put(ctx, key, p); err != nil {
				return fmt.Errorf("%s: cache: %w", decl.Name, err)
			}
		}
	}

	if out.generated.Arity != arity {
		return fmt.Errorf("%w: %s reserved with %d, compiled with %d",
			ErrArityMismatch, decl.Name, arity, out.generated.Arity)
	}

	final := out.generated
	if d.Optimizer != nil {
		final = out.generated.Clone()
		final.Code = d.Optimizer.Optimize(env, final.Code)
	}
	if d.Verify {
		if err := vm.Verify(env, final); err != nil {
			return err
		}
	}
	out.final = final
	return nil
}
