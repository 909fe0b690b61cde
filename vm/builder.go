package vm

import "fmt"

// ---------------------------------------------------------------------------
// Builder: append-only instruction buffer with checked backpatching
// ---------------------------------------------------------------------------

// patchSlot addresses one forward-reference field: target slot of the
// instruction at pc.
type patchSlot struct {
	pc   int
	slot int
}

// Builder accumulates instructions for one procedure. Instructions are
// addressed by program counter. Forward targets are emitted as placeholders
// and each one must be patched exactly once before Finalize.
type Builder struct {
	code      []Instruction
	pending   map[patchSlot]struct{}
	patched   map[patchSlot]struct{}
	fieldsSet map[int]struct{}
	finalized bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		code:      make([]Instruction, 0, 32),
		pending:   make(map[patchSlot]struct{}),
		patched:   make(map[patchSlot]struct{}),
		fieldsSet: make(map[int]struct{}),
	}
}

// NextPC returns the program counter the next Emit will use.
func (b *Builder) NextPC() int {
	return len(b.code)
}

// Emit appends an instruction and returns its program counter. Every target
// slot of a branching instruction becomes a pending placeholder.
func (b *Builder) Emit(i Instruction) int {
	if b.finalized {
		panic("vm: emit after finalize")
	}
	pc := len(b.code)
	i = i.Clone()
	b.code = append(b.code, i)
	if i.Op.Info().Branches {
		for slot := range i.PCs {
			b.pending[patchSlot{pc, slot}] = struct{}{}
		}
	}
	return pc
}

// PatchTarget sets target slot of the instruction at pc. It panics if the
// slot is not an outstanding placeholder or if target does not lie after pc.
func (b *Builder) PatchTarget(pc, slot, target int) {
	key := patchSlot{pc, slot}
	if _, done := b.patched[key]; done {
		panic(fmt.Sprintf("vm: target %d of pc %d patched twice", slot, pc))
	}
	if _, ok := b.pending[key]; !ok {
		panic(fmt.Sprintf("vm: pc %d has no placeholder target %d", pc, slot))
	}
	if target <= pc || target > len(b.code) {
		panic(fmt.Sprintf("vm: pc %d cannot target %d", pc, target))
	}
	b.code[pc].PCs[slot] = uint32(target)
	delete(b.pending, key)
	b.patched[key] = struct{}{}
}

// SetFields records how many values each alternative of the branching
// instruction at pc receives. It may be called once per instruction.
func (b *Builder) SetFields(pc int, fields []uint32) {
	if _, done := b.fieldsSet[pc]; done {
		panic(fmt.Sprintf("vm: fields of pc %d set twice", pc))
	}
	in := &b.code[pc]
	if len(fields) != len(in.Fields) {
		panic(fmt.Sprintf("vm: pc %d has %d alternatives, got %d field counts", pc, len(in.Fields), len(fields)))
	}
	copy(in.Fields, fields)
	b.fieldsSet[pc] = struct{}{}
}

// At returns a copy of the instruction at pc.
func (b *Builder) At(pc int) Instruction {
	return b.code[pc].Clone()
}

// Pending returns the number of placeholders not yet patched.
func (b *Builder) Pending() int {
	return len(b.pending)
}

// Finalize returns the finished instruction sequence. It panics if any
// placeholder is still outstanding.
func (b *Builder) Finalize() []Instruction {
	if len(b.pending) > 0 {
		panic(fmt.Sprintf("vm: finalize with %d unpatched targets", len(b.pending)))
	}
	b.finalized = true
	return b.code
}
