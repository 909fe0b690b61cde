package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the term hashing format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cached procedure keyed by a previous hash.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing cache keys.
const HashVersion byte = 1

// Term node tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Leaves
	TagVar      byte = 0x01
	TagSort     byte = 0x02
	TagMeta     byte = 0x03
	TagConstant byte = 0x04
	TagLocal    byte = 0x05

	// Binders and applications
	TagApp         byte = 0x10
	TagLambda      byte = 0x11
	TagPi          byte = 0x12
	TagLet         byte = 0x13
	TagNamedLambda byte = 0x14 // lambda inside a quotation
	TagNamedPi     byte = 0x15
	TagNamedLet    byte = 0x16

	// Macros
	TagNatLit      byte = 0x20
	TagQuote       byte = 0x21
	TagAnnotation  byte = 0x22
	TagOpaqueMacro byte = 0x23

	// Cache key records
	TagKey          byte = 0x30
	TagDeclRecord   byte = 0x31
	TagCasesRecord  byte = 0x32
	TagAbsentRecord byte = 0x33

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagVar, TagSort, TagMeta, TagConstant, TagLocal,
	TagApp, TagLambda, TagPi, TagLet, TagNamedLambda, TagNamedPi, TagNamedLet,
	TagNatLit, TagQuote, TagAnnotation, TagOpaqueMacro,
	TagKey, TagDeclRecord, TagCasesRecord, TagAbsentRecord,
}
