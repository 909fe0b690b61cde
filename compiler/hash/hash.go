package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// Key identifies compiled code in a procedure cache.
type Key [32]byte

// String returns the lowercase hex form of k.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// HashTerm computes the SHA-256 content hash of an erased term.
//
// Two terms that differ only in binder names outside quotations produce the
// same hash.
func HashTerm(e ir.Term) [32]byte {
	return sha256.Sum256(Serialize(e))
}

// ProcedureKey computes the cache key for compiling value against env and
// cases. Besides the term it covers the table record of every constant the
// term references and every case analyzer registered for one of them, so a
// key changes whenever an index, arity or kind the emitted code depends on
// changes.
func ProcedureKey(value ir.Term, env *vm.Env, cases *vm.CasesTable) Key {
	s := newSerializer()
	s.writeByte(TagKey)
	s.writeTerm(value)

	seen := make(map[string]struct{})
	var names []string
	ir.Constants(value, func(c *ir.Constant) {
		if c.Marker.Kind != ir.NoMarker {
			return
		}
		if _, ok := seen[c.Name]; ok {
			return
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	})
	sort.Strings(names)

	s.writeLen(len(names))
	for _, name := range names {
		s.writeString(name)
		if d, ok := env.Lookup(name); ok {
			s.writeByte(TagDeclRecord)
			s.writeByte(byte(d.Kind))
			s.writeUint32(d.Index)
			s.writeUint32(d.Arity)
		} else {
			s.writeByte(TagAbsentRecord)
		}
		if c, ok := cases.Lookup(name); ok {
			s.writeByte(TagCasesRecord)
			s.writeUint32(c.Index)
			s.writeUint32(c.NumAlts)
		} else {
			s.writeByte(TagAbsentRecord)
		}
	}
	return Key(sha256.Sum256(s.buf))
}
