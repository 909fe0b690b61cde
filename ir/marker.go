package ir

import "fmt"

// ---------------------------------------------------------------------------
// Erasure markers
// ---------------------------------------------------------------------------

// MarkerKind classifies the tag the erasure pass attaches to a constant.
type MarkerKind uint8

const (
	NoMarker MarkerKind = iota
	MarkerConstructor
	MarkerProjection
	MarkerCases
	MarkerNeutral
	MarkerUnreachable
)

// Marker is attached to a Constant. Index is the constructor index, the
// field index or the number of alternatives, depending on Kind.
type Marker struct {
	Kind  MarkerKind
	Index uint32
}

func (m Marker) String() string {
	switch m.Kind {
	case NoMarker:
		return ""
	case MarkerConstructor:
		return fmt.Sprintf("_cnstr.%d", m.Index)
	case MarkerProjection:
		return fmt.Sprintf("_proj.%d", m.Index)
	case MarkerCases:
		return fmt.Sprintf("_cases.%d", m.Index)
	case MarkerNeutral:
		return "_neutral"
	case MarkerUnreachable:
		return "_unreachable"
	}
	return fmt.Sprintf("_marker(%d)", m.Kind)
}

// Reserved global names the compiler recognizes without a table lookup.
const (
	NatZeroName    = "nat.zero"
	NatCasesOnName = "nat.cases_on"
)

func marked(kind MarkerKind, idx uint32) *Constant {
	m := Marker{Kind: kind, Index: idx}
	return &Constant{Name: m.String(), Marker: m}
}

// Cnstr returns the internal constructor head with index idx.
func Cnstr(idx uint32) *Constant { return marked(MarkerConstructor, idx) }

// Proj returns the internal projection head for field idx.
func Proj(idx uint32) *Constant { return marked(MarkerProjection, idx) }

// Cases returns the internal case-analysis head over numAlts alternatives.
func Cases(numAlts uint32) *Constant { return marked(MarkerCases, numAlts) }

// Neutral returns the placeholder left where an irrelevant value was erased.
func Neutral() *Constant { return marked(MarkerNeutral, 0) }

// Unreachable returns the marker for a branch erasure proved dead.
func Unreachable() *Constant { return marked(MarkerUnreachable, 0) }

func markerOf(e Term, kind MarkerKind) (uint32, bool) {
	c, ok := e.(*Constant)
	if !ok || c.Marker.Kind != kind {
		return 0, false
	}
	return c.Marker.Index, true
}

// IsInternalCnstr reports the constructor index if e is a constructor head.
func IsInternalCnstr(e Term) (uint32, bool) { return markerOf(e, MarkerConstructor) }

// IsInternalProj reports the field index if e is a projection head.
func IsInternalProj(e Term) (uint32, bool) { return markerOf(e, MarkerProjection) }

// IsInternalCases reports the number of alternatives if e is a cases head.
func IsInternalCases(e Term) (uint32, bool) { return markerOf(e, MarkerCases) }

// IsNeutral reports whether e is the neutral placeholder.
func IsNeutral(e Term) bool {
	_, ok := markerOf(e, MarkerNeutral)
	return ok
}

// IsUnreachable reports whether e is the unreachable marker.
func IsUnreachable(e Term) bool {
	_, ok := markerOf(e, MarkerUnreachable)
	return ok
}

// IsConstant reports whether e is an unmarked constant named name.
func IsConstant(e Term, name string) bool {
	c, ok := e.(*Constant)
	return ok && c.Marker.Kind == NoMarker && c.Name == name
}
