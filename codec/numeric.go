package codec

import (
	"encoding/binary"
	"math"

	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/schema"
)

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func bytesForNumeric(t *schema.Type, raw []byte) []byte {
	if t.ResolvedEndian() == schema.LittleEndian {
		return reversed(raw)
	}
	return raw
}

// decodeNumeric interprets a big-endian-normalized byte slice of the exact
// width implied by t.Kind, per spec.md §4.2.
func decodeNumeric(t *schema.Type, raw []byte) document.Value {
	buf := bytesForNumeric(t, raw)
	switch t.Kind.BitWidth() {
	case 8:
		if t.Kind.IsSignedInt() {
			return document.Int(int64(int8(buf[0])))
		}
		return document.Uint(uint64(buf[0]))
	case 16:
		u := binary.BigEndian.Uint16(buf)
		if t.Kind.IsSignedInt() {
			return document.Int(int64(int16(u)))
		}
		return document.Uint(uint64(u))
	case 32:
		u := binary.BigEndian.Uint32(buf)
		if t.Kind.IsFloat() {
			return document.Float(float64(math.Float32frombits(u)))
		}
		if t.Kind.IsSignedInt() {
			return document.Int(int64(int32(u)))
		}
		return document.Uint(uint64(u))
	case 64:
		u := binary.BigEndian.Uint64(buf)
		if t.Kind.IsFloat() {
			return document.Float(math.Float64frombits(u))
		}
		if t.Kind.IsSignedInt() {
			return document.Int(int64(u))
		}
		return document.Uint(u)
	}
	return document.Null()
}

// encodeNumeric renders v as exactly t.Kind.BitWidth()/8 big-endian bytes,
// then re-orders for little-endian nodes, range-checking against the
// target width (spec §4.3, §7 RangeError).
func encodeNumeric(t *schema.Type, v document.Value) ([]byte, error) {
	width := t.Kind.BitWidth()
	buf := make([]byte, width/8)

	if t.Kind.IsFloat() {
		f, err := v.AsFloat64()
		if err != nil {
			return nil, wrapErr(RangeErr, err)
		}
		if t.Kind == schema.KindFloat32 {
			binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		} else {
			binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		}
		return bytesForNumeric(t, buf), nil
	}

	if t.Kind.IsUnsignedInt() {
		u, err := v.AsUint64()
		if err != nil {
			return nil, wrapErr(RangeErr, err)
		}
		if !fitsWidthUnsigned(u, width) {
			return nil, newErr(RangeErr, "value %d does not fit %s", u, t.Kind)
		}
		switch width {
		case 8:
			buf[0] = byte(u)
		case 16:
			binary.BigEndian.PutUint16(buf, uint16(u))
		case 32:
			binary.BigEndian.PutUint32(buf, uint32(u))
		case 64:
			binary.BigEndian.PutUint64(buf, u)
		}
		return bytesForNumeric(t, buf), nil
	}

	i, err := v.AsInt64()
	if err != nil {
		return nil, wrapErr(RangeErr, err)
	}
	if !fitsWidth(i, width) {
		return nil, newErr(RangeErr, "value %d does not fit %s", i, t.Kind)
	}

	switch width {
	case 8:
		buf[0] = byte(i)
	case 16:
		binary.BigEndian.PutUint16(buf, uint16(i))
	case 32:
		binary.BigEndian.PutUint32(buf, uint32(i))
	case 64:
		binary.BigEndian.PutUint64(buf, uint64(i))
	}
	return bytesForNumeric(t, buf), nil
}

// fitsWidth reports whether a signed integer fits in a two's-complement
// field of width bits.
func fitsWidth(i int64, width int) bool {
	min := -(int64(1) << (width - 1))
	max := int64(1)<<(width-1) - 1
	return i >= min && i <= max
}

// fitsWidthUnsigned reports whether an unsigned integer fits in an unsigned
// field of width bits, without the int64 ceiling fitsWidth's signed path
// carries (so a full-width Uint64 value is representable).
func fitsWidthUnsigned(u uint64, width int) bool {
	if width >= 64 {
		return true
	}
	return u < uint64(1)<<width
}
