package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/vmgen/ir"
)

// ---------------------------------------------------------------------------
// CasesTable: built-in case analyzers
// ---------------------------------------------------------------------------

// CaseAnalyzer describes a case analyzer the runtime implements natively
// for a built-in inductive type.
type CaseAnalyzer struct {
	Name    string // name of the cases_on constant
	Index   uint32 // runtime case-analyzer index
	NumAlts uint32 // number of constructors
}

// ErrCasesFrozen is returned by Register after Freeze.
var ErrCasesFrozen = errors.New("vm: cases table is frozen")

// CasesTable maps cases_on constants to the runtime analyzers that handle
// them. It is populated by the embedder, frozen, and then shared read-only
// by every compilation.
type CasesTable struct {
	mu      sync.RWMutex
	entries map[string]CaseAnalyzer
	frozen  bool
}

// NewCasesTable returns an empty, unfrozen table.
func NewCasesTable() *CasesTable {
	return &CasesTable{entries: make(map[string]CaseAnalyzer)}
}

// Register adds an analyzer.
func (t *CasesTable) Register(name string, idx, numAlts uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrCasesFrozen
	}
	if name == ir.NatCasesOnName {
		return fmt.Errorf("vm: %s is handled by NAT_CASES", name)
	}
	if numAlts == 0 {
		return fmt.Errorf("vm: case analyzer %s needs at least one alternative", name)
	}
	if _, ok := t.entries[name]; ok {
		return fmt.Errorf("%w: case analyzer %s", ErrDuplicateDecl, name)
	}
	t.entries[name] = CaseAnalyzer{Name: name, Index: idx, NumAlts: numAlts}
	return nil
}

// Freeze stops further registration.
func (t *CasesTable) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Lookup returns the analyzer registered for name. A nil table has none.
func (t *CasesTable) Lookup(name string) (CaseAnalyzer, bool) {
	if t == nil {
		return CaseAnalyzer{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.entries[name]
	return c, ok
}

// Entries returns every analyzer sorted by name.
func (t *CasesTable) Entries() []CaseAnalyzer {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CaseAnalyzer, 0, len(t.entries))
	for _, c := range t.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
