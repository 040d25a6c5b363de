// Package schema implements the recursive tagged schema tree (spec.md §3,
// Type) and its textual form (spec.md §6). A Type is an immutable,
// dispatch-by-Kind description of a binary layout; the codec package walks
// it against a bitio.Reader/Writer and an env.Env.
package schema

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind tags which case of the schema tree a Type is. The string values
// double as the "type" discriminator used in the text form (spec §6).
type Kind string

const (
	KindUint8   Kind = "Uint8"
	KindUint16  Kind = "Uint16"
	KindUint32  Kind = "Uint32"
	KindUint64  Kind = "Uint64"
	KindInt8    Kind = "Int8"
	KindInt16   Kind = "Int16"
	KindInt32   Kind = "Int32"
	KindInt64   Kind = "Int64"
	KindFloat32 Kind = "Float32"
	KindFloat64 Kind = "Float64"

	KindBin       Kind = "Bin"
	KindString    Kind = "String"
	KindMagic     Kind = "Magic"
	KindStruct    Kind = "Struct"
	KindArray     Kind = "Array"
	KindEnum      Kind = "Enum"
	KindChecksum  Kind = "Checksum"
	KindConverter Kind = "Converter"
	KindEncrypt   Kind = "Encrypt"
	KindSign      Kind = "Sign"
)

// IsFixedWidth reports whether k is one of the fixed-width integer/float
// leaf kinds, whose bit width is determined by the kind alone.
func (k Kind) IsFixedWidth() bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64,
		KindInt8, KindInt16, KindInt32, KindInt64,
		KindFloat32, KindFloat64:
		return true
	}
	return false
}

// BitWidth returns the fixed bit width of a numeric kind, or 0 if k is not
// fixed-width.
func (k Kind) BitWidth() int {
	switch k {
	case KindUint8, KindInt8:
		return 8
	case KindUint16, KindInt16:
		return 16
	case KindUint32, KindInt32, KindFloat32:
		return 32
	case KindUint64, KindInt64, KindFloat64:
		return 64
	}
	return 0
}

// IsSignedInt reports whether k is one of the signed integer kinds.
func (k Kind) IsSignedInt() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsUnsignedInt reports whether k is one of the unsigned integer kinds.
func (k Kind) IsUnsignedInt() bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	}
	return false
}

// IsFloat reports whether k is a floating-point kind.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Endian selects byte order for a fixed-width numeric node. Default is Big,
// per spec §6; Little is the forward-compatible extension point spec §9(a)
// calls for.
type Endian string

const (
	BigEndian    Endian = "big"
	LittleEndian Endian = "little"
)

// Field is one named member of a Struct, carrying both its Type and
// whether it participates in the struct's bit-packed optional-presence
// vector (a supplemented feature recovered from the teacher's
// MessageField.Optional; see SPEC_FULL.md §4).
type Field struct {
	Type     *Type
	Optional bool
}

// FieldList is the insertion-ordered field table backing Struct, so that
// both binary layout order and text-form round-tripping are preserved.
type FieldList = orderedmap.OrderedMap[string, *Field]

// NewFieldList returns an empty, insertion-ordered field table.
func NewFieldList() *FieldList {
	return orderedmap.New[string, *Field]()
}

// CaseList is the insertion-ordered discriminant-to-Type table backing
// Enum.
type CaseList = orderedmap.OrderedMap[string, *Type]

// NewCaseList returns an empty, insertion-ordered enum case table.
func NewCaseList() *CaseList {
	return orderedmap.New[string, *Type]()
}

// ConverterSpec is one side (read or write) of a Converter pipeline: three
// optional expressions sharing the free variable self (spec §3).
type ConverterSpec struct {
	BeforeValid string
	Convert     string
	AfterValid  string
}

// Type is the recursive tagged schema node. Exactly the fields relevant to
// Kind are populated; dispatch is by Kind, not by a Go interface hierarchy,
// per spec.md §9's "avoid class hierarchies" design note.
type Type struct {
	Kind   Kind
	Endian Endian // numeric kinds only; "" normalizes to BigEndian

	// Bin / String
	Size     *SizeExpr
	Encoding string // String only: "utf-8", "ascii", "utf-16le", "utf-16be"

	// Magic
	MagicBytes []byte

	// Struct
	Fields *FieldList

	// Array
	Element     *Type
	ArraySize   *SizeExpr // byte count, optional
	ArrayLength *SizeExpr // element count, optional

	// Enum
	By    string
	Cases *CaseList

	// Checksum
	Method    ChecksumMethod
	StartKey  string
	EndKey    string
	TargetKey string

	// Converter
	Original *Type
	OnRead   *ConverterSpec
	OnWrite  *ConverterSpec

	// Encrypt
	Inner      *Type
	KeyName    string
	CipherSize *SizeExpr

	// Sign
	HasherName        string
	SignatureKey      string
	SignaturePosition string
}

// ChecksumMethod enumerates the minimum checksum method set spec §4.6
// requires.
type ChecksumMethod string

const (
	Sum8       ChecksumMethod = "Sum8"
	Sum16      ChecksumMethod = "Sum16"
	Sum32      ChecksumMethod = "Sum32"
	Xor8       ChecksumMethod = "Xor8"
	Complement ChecksumMethod = "Complement"
)

// Width returns the byte width of the recorded checksum value for m.
func (m ChecksumMethod) Width() int {
	switch m {
	case Sum8, Xor8, Complement:
		return 1
	case Sum16:
		return 2
	case Sum32:
		return 4
	default:
		return 0
	}
}

// ResolvedEndian returns t.Endian, defaulting to BigEndian.
func (t *Type) ResolvedEndian() Endian {
	if t.Endian == "" {
		return BigEndian
	}
	return t.Endian
}
