package compiler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Trace classes
// ---------------------------------------------------------------------------

const (
	// TraceCodeGen logs each procedure right after code generation.
	TraceCodeGen = "compiler.code_gen"
	// TraceOptimizeBytecode logs each procedure after the optimizer ran.
	TraceOptimizeBytecode = "compiler.optimize_bytecode"
)

type traceClass struct {
	enabled bool
	log     commonlog.Logger
}

// Tracer holds the registered trace classes and which of them are enabled.
// A nil *Tracer traces nothing.
type Tracer struct {
	mu      sync.RWMutex
	classes map[string]*traceClass
}

// NewTracer returns a tracer with the compiler's classes registered and
// none enabled.
func NewTracer() *Tracer {
	t := &Tracer{classes: make(map[string]*traceClass)}
	t.Register(TraceCodeGen)
	t.Register(TraceOptimizeBytecode)
	return t
}

// Register adds a trace class. Registering twice is a no-op.
func (t *Tracer) Register(class string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.classes[class]; ok {
		return
	}
	t.classes[class] = &traceClass{log: commonlog.GetLogger("vmgen." + class)}
}

// Enable turns on the given classes.
func (t *Tracer) Enable(classes ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, class := range classes {
		tc, ok := t.classes[class]
		if !ok {
			return fmt.Errorf("unknown trace class %q", class)
		}
		tc.enabled = true
	}
	return nil
}

// Enabled reports whether class is on.
func (t *Tracer) Enabled(class string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	tc, ok := t.classes[class]
	return ok && tc.enabled
}

// Classes returns the registered class names, sorted.
func (t *Tracer) Classes() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.classes))
	for name := range t.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Procedure logs the listing of p under class when the class is enabled.
func (t *Tracer) Procedure(class string, env *vm.Env, p *vm.Procedure) {
	if !t.Enabled(class) {
		return
	}
	t.mu.RLock()
	log := t.classes[class].log
	t.mu.RUnlock()
	if !log.AllowLevel(commonlog.Debug) {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, " %s %d\n", p.Name, p.Arity)
	_ = vm.WriteListing(&sb, env, p.Code)
	log.Debug(strings.TrimSuffix(sb.String(), "\n"))
}
