// Package codec implements the recursive read and write engines (spec.md
// §4.2, §4.3) that walk a schema.Type against a bitio buffer and an env.Env,
// plus the struct finalize pass (spec §4.7) that resolves back-patches and
// splices checksums, signatures, and encryption.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the error taxonomy spec.md §7 defines. It is not an error
// itself; PathError.Kind carries one of these.
type Kind int

const (
	Truncation Kind = iota
	MagicErr
	SizeMismatch
	EnumErr
	EncodingErr
	RangeErr
	MissingField
	EvalExprErr
	ChecksumErr
	SecureErr
)

func (k Kind) String() string {
	switch k {
	case Truncation:
		return "Truncation"
	case MagicErr:
		return "MagicError"
	case SizeMismatch:
		return "SizeMismatch"
	case EnumErr:
		return "EnumError"
	case EncodingErr:
		return "EncodingError"
	case RangeErr:
		return "RangeError"
	case MissingField:
		return "MissingField"
	case EvalExprErr:
		return "EvalExprError"
	case ChecksumErr:
		return "ChecksumError"
	case SecureErr:
		return "SecureError"
	default:
		return "UnknownError"
	}
}

// PathSegment is one step of the breadcrumb spec.md §7 requires: a field
// name or an array index.
type PathSegment struct {
	Field string
	Index int
	IsIdx bool
}

func (s PathSegment) String() string {
	if s.IsIdx {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Field
}

// PathError is the error type every codec failure surfaces as: a Kind plus
// the path of field names/array indices accumulated as the error bubbles up
// through enclosing Struct/Array nodes (spec §7).
type PathError struct {
	PathKind Kind
	Path     []PathSegment
	Err      error
}

func (e *PathError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %v", e.PathKind, e.Err)
	}
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s at %s: %v", e.PathKind, strings.Join(parts, "."), e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Is supports errors.Is(err, codec.Sentinel(codec.Truncation)) and similar
// by comparing Kind to the kind carried by a kindSentinel.
func (e *PathError) Is(target error) bool {
	var ks *kindSentinel
	if errors.As(target, &ks) {
		return e.PathKind == ks.kind
	}
	return false
}

type kindSentinel struct{ kind Kind }

func (k *kindSentinel) Error() string { return k.kind.String() }

// Sentinel returns a value usable with errors.Is to test a PathError's Kind,
// e.g. errors.Is(err, codec.Sentinel(codec.Truncation)).
func Sentinel(k Kind) error { return &kindSentinel{kind: k} }

func newErr(kind Kind, format string, args ...any) *PathError {
	return &PathError{PathKind: kind, Err: fmt.Errorf(format, args...)}
}

func wrapErr(kind Kind, err error) *PathError {
	if pe, ok := err.(*PathError); ok {
		return pe
	}
	return &PathError{PathKind: kind, Err: err}
}

// prepend adds a path segment at the front, used as an error bubbles up
// through an enclosing node (spec §4.2: "propagate upward with a path of
// field names prepended").
func prepend(err error, seg PathSegment) error {
	var pe *PathError
	if errors.As(err, &pe) {
		pe.Path = append([]PathSegment{seg}, pe.Path...)
		return pe
	}
	return &PathError{PathKind: Truncation, Path: []PathSegment{seg}, Err: err}
}

func fieldSeg(name string) PathSegment  { return PathSegment{Field: name} }
func indexSeg(i int) PathSegment        { return PathSegment{Index: i, IsIdx: true} }
