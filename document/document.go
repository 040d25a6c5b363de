// Package document implements the tagged value variant that is both the
// output of a read and the input to a write: the structured document model
// described by spec.md §3, representable as JSON.
package document

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind tags the variant carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Object is an insertion-ordered string-to-Value mapping, the backing store
// for KindObject values and for a Struct's field order.
type Object = orderedmap.OrderedMap[string, Value]

// NewObject returns an empty, insertion-ordered object.
func NewObject() *Object {
	return orderedmap.New[string, Value]()
}

// Value is the document leaf/composite variant. Exactly one of the typed
// fields is meaningful, selected by Kind; integer and float are kept
// distinct so that a document value of 1.0 round-trips through a float
// field and 1 round-trips through an integer field (spec §4.5).
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Uint   uint64
	Float  float64
	Str    string
	Bytes  []byte
	Array  []Value
	Object *Object
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func Uint(u uint64) Value          { return Value{Kind: KindUint, Uint: u} }
func Float(f float64) Value        { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value         { return Value{Kind: KindBytes, Bytes: b} }
func Array(vs []Value) Value       { return Value{Kind: KindArray, Array: vs} }
func ObjectValue(o *Object) Value  { return Value{Kind: KindObject, Object: o} }

// IsNumeric reports whether v carries one of the numeric kinds.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindUint || v.Kind == KindFloat
}

// AsInt64 widens a numeric value to int64, losslessly for Int and in-range
// Uint/Float values. It is used by the read/write engines' integer nodes,
// not by the expression engine (which keeps its own wider representation).
func (v Value) AsInt64() (int64, error) {
	switch v.Kind {
	case KindInt:
		return v.Int, nil
	case KindUint:
		if v.Uint > 1<<63-1 {
			return 0, fmt.Errorf("document: uint %d overflows int64", v.Uint)
		}
		return int64(v.Uint), nil
	case KindFloat:
		if v.Float != float64(int64(v.Float)) {
			return 0, fmt.Errorf("document: float %v is not integer-valued", v.Float)
		}
		return int64(v.Float), nil
	default:
		return 0, fmt.Errorf("document: %s is not numeric", v.Kind)
	}
}

// AsUint64 widens a numeric value to uint64 without int64's signed ceiling,
// so a full-width Uint64 field (e.g. 0xFFFFFFFFFFFFFFFF) round-trips; used
// by the write engine's unsigned-width numeric path instead of AsInt64.
func (v Value) AsUint64() (uint64, error) {
	switch v.Kind {
	case KindUint:
		return v.Uint, nil
	case KindInt:
		if v.Int < 0 {
			return 0, fmt.Errorf("document: int %d is negative, cannot widen to uint64", v.Int)
		}
		return uint64(v.Int), nil
	case KindFloat:
		if v.Float != float64(uint64(v.Float)) {
			return 0, fmt.Errorf("document: float %v is not integer-valued", v.Float)
		}
		return uint64(v.Float), nil
	default:
		return 0, fmt.Errorf("document: %s is not numeric", v.Kind)
	}
}

// AsFloat64 widens a numeric value to float64, accepting integer-valued
// documents for a float field per spec §4.3.
func (v Value) AsFloat64() (float64, error) {
	switch v.Kind {
	case KindFloat:
		return v.Float, nil
	case KindInt:
		return float64(v.Int), nil
	case KindUint:
		return float64(v.Uint), nil
	default:
		return 0, fmt.Errorf("document: %s is not numeric", v.Kind)
	}
}

// MarshalJSON renders the tagged value as plain JSON, using
// segmentio/encoding/json for the leaf scalars in place of the stdlib
// codec, matching the JSON stack the teacher pack favors for wire-adjacent
// data (see SPEC_FULL.md §3).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindUint:
		return json.Marshal(v.Uint)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	case KindBytes:
		return json.Marshal(v.Bytes)
	case KindArray:
		return json.Marshal(v.Array)
	case KindObject:
		return marshalObject(v.Object)
	default:
		return nil, fmt.Errorf("document: cannot marshal kind %s", v.Kind)
	}
}

func marshalObject(o *Object) ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	buf := []byte{'{'}
	first := true
	for pair := o.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		key, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		val, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Get looks up name in an object-kind value's fields, mirroring the
// teacher's fieldMap style lookup but over a Value rather than a
// reflect.Value.
func (v Value) Get(name string) (Value, bool) {
	if v.Kind != KindObject || v.Object == nil {
		return Value{}, false
	}
	return v.Object.Get(name)
}
