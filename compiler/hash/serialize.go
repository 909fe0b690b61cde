package hash

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/vmgen/ir"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of erased terms.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (uint32=4B, uint64=8B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Child nodes: serialized inline (flat)
//   - Applications are flattened to their spine, so nested and flat
//     application chains with the same head and arguments serialize alike
//   - Binder names are omitted outside quotations; inside a quotation the
//     term is runtime data and names are kept
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a term.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(e ir.Term) []byte {
	s := newSerializer()
	s.writeTerm(e)
	return s.buf
}

type serializer struct {
	buf    []byte
	quoted int
}

func newSerializer() *serializer {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	return s
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeLen(n int) {
	s.writeUint32(uint32(n))
}

func (s *serializer) writeTerm(e ir.Term) {
	switch t := e.(type) {
	case *ir.Var:
		s.writeByte(TagVar)
		s.writeUint32(t.Index)

	case *ir.Sort:
		s.writeByte(TagSort)
		s.writeString(t.Level)

	case *ir.Meta:
		s.writeByte(TagMeta)
		s.writeString(t.Name)

	case *ir.Constant:
		s.writeByte(TagConstant)
		s.writeString(t.Name)
		s.writeByte(byte(t.Marker.Kind))
		s.writeUint32(t.Marker.Index)

	case *ir.Local:
		s.writeByte(TagLocal)
		s.writeUint64(uint64(t.ID))

	case *ir.App:
		head, args := ir.Spine(t)
		s.writeByte(TagApp)
		s.writeLen(len(args))
		s.writeTerm(head)
		for _, a := range args {
			s.writeTerm(a)
		}

	case *ir.Lambda:
		if s.quoted > 0 {
			s.writeByte(TagNamedLambda)
			s.writeString(t.Binder)
		} else {
			s.writeByte(TagLambda)
		}
		s.writeTerm(t.Body)

	case *ir.Pi:
		if s.quoted > 0 {
			s.writeByte(TagNamedPi)
			s.writeString(t.Binder)
		} else {
			s.writeByte(TagPi)
		}
		s.writeTerm(t.Domain)
		s.writeTerm(t.Body)

	case *ir.Let:
		if s.quoted > 0 {
			s.writeByte(TagNamedLet)
		} else {
			s.writeByte(TagLet)
		}
		s.writeLen(len(t.Bindings))
		for _, b := range t.Bindings {
			if s.quoted > 0 {
				s.writeString(b.Name)
			}
			s.writeTerm(b.Value)
		}
		s.writeTerm(t.Body)

	case *ir.Macro:
		s.writeMacro(t.Def)

	default:
		panic(fmt.Sprintf("hash: unhandled term type %T", e))
	}
}

func (s *serializer) writeMacro(d ir.MacroDef) {
	switch m := d.(type) {
	case *ir.NatLit:
		s.writeByte(TagNatLit)
		s.writeString(m.Value.String())

	case *ir.Quote:
		s.writeByte(TagQuote)
		s.quoted++
		s.writeTerm(m.Expr)
		s.quoted--

	case *ir.Annotation:
		s.writeByte(TagAnnotation)
		s.writeString(m.Name)
		s.writeTerm(m.Arg)

	case *ir.OpaqueMacro:
		s.writeByte(TagOpaqueMacro)
		s.writeString(m.Name)
		s.writeLen(len(m.Args))
		for _, a := range m.Args {
			s.writeTerm(a)
		}

	default:
		panic(fmt.Sprintf("hash: unhandled macro type %T", d))
	}
}
