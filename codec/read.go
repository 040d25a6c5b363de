package codec

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/finnur-hlynsson/bitspec/bitio"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/expr"
	"github.com/finnur-hlynsson/bitspec/schema"
)

// Read decodes data against t, returning the produced document value and
// whatever bytes were not consumed (spec.md §4.1, decode(schema, bytes) →
// (Document, Error)). A non-empty remainder is not itself an error: callers
// composing multiple top-level messages from one buffer consume the
// remainder themselves.
func Read(t *schema.Type, data []byte, opts *Options) (document.Value, []byte, error) {
	opts = opts.withTrace(newTraceID())
	r := bitio.NewReader(data)
	e := env.New()
	v, err := readNode(t, r, e, opts, 0)
	if err != nil {
		return document.Value{}, nil, err
	}
	return v, r.Remainder(), nil
}

func readNode(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	if depth > maxDepth {
		return document.Value{}, newErr(Truncation, "schema nesting exceeds maximum depth %d", maxDepth)
	}

	switch {
	case t.Kind.IsFixedWidth():
		raw, err := r.TakeBits(uint64(t.Kind.BitWidth()))
		if err != nil {
			return document.Value{}, wrapErr(Truncation, err)
		}
		return decodeNumeric(t, raw), nil
	}

	switch t.Kind {
	case schema.KindBin:
		return readBin(t, r, e)
	case schema.KindString:
		return readString(t, r, e)
	case schema.KindMagic:
		return readMagic(t, r)
	case schema.KindStruct:
		return readStruct(t, r, e, opts, depth)
	case schema.KindArray:
		return readArray(t, r, e, opts, depth)
	case schema.KindEnum:
		return readEnum(t, r, e, opts, depth)
	case schema.KindChecksum:
		return readChecksum(t, r)
	case schema.KindConverter:
		return readConverter(t, r, e, opts, depth)
	case schema.KindEncrypt:
		return readEncrypt(t, r, e, opts, depth)
	case schema.KindSign:
		return readNode(t.Inner, r, e, opts, depth+1)
	default:
		return document.Value{}, newErr(EncodingErr, "unknown schema kind %q", t.Kind)
	}
}

func readBin(t *schema.Type, r *bitio.Reader, e *env.Env) (document.Value, error) {
	n, err := t.Size.Resolve(e)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}
	b, err := r.TakeBytes(n)
	if err != nil {
		return document.Value{}, wrapErr(Truncation, err)
	}
	return document.Bytes(b), nil
}

func readString(t *schema.Type, r *bitio.Reader, e *env.Env) (document.Value, error) {
	n, err := t.Size.Resolve(e)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}
	b, err := r.TakeBytes(n)
	if err != nil {
		return document.Value{}, wrapErr(Truncation, err)
	}
	s, err := decodeString(t.Encoding, b)
	if err != nil {
		return document.Value{}, wrapErr(EncodingErr, err)
	}
	return document.String(s), nil
}

func decodeString(encoding string, b []byte) (string, error) {
	switch encoding {
	case "", "utf-8":
		if !utf8.Valid(b) {
			return "", errors.New("codec: invalid utf-8")
		}
		return string(b), nil
	case "ascii":
		for _, c := range b {
			if c > 127 {
				return "", errors.New("codec: byte out of ascii range")
			}
		}
		return string(b), nil
	case "utf-16le", "utf-16be":
		if len(b)%2 != 0 {
			return "", errors.New("codec: utf-16 data has an odd byte length")
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			if encoding == "utf-16le" {
				units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
			} else {
				units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
			}
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", errors.New("codec: unknown string encoding " + encoding)
	}
}

func readMagic(t *schema.Type, r *bitio.Reader) (document.Value, error) {
	b, err := r.TakeBytes(uint64(len(t.MagicBytes)))
	if err != nil {
		return document.Value{}, wrapErr(Truncation, err)
	}
	for i, want := range t.MagicBytes {
		if b[i] != want {
			return document.Value{}, newErr(MagicErr, "magic mismatch: got % x, want % x", b, t.MagicBytes)
		}
	}
	return document.Bytes(b), nil
}

func readEnum(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	disc, err := e.Lookup(t.By)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}
	ev, err := expr.FromDocument(disc)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}
	key := ev.CanonicalKey()
	inner, ok := t.Cases.Get(key)
	if !ok {
		return document.Value{}, newErr(EnumErr, "no enum case for discriminant %q", key)
	}
	return readNode(inner, r, e, opts, depth+1)
}

func readConverter(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	v, err := readNode(t.Original, r, e, opts, depth+1)
	if err != nil {
		return document.Value{}, err
	}
	if t.OnRead == nil {
		return v, nil
	}
	return applyConverter(t.OnRead, v)
}

func applyConverter(spec *schema.ConverterSpec, v document.Value) (document.Value, error) {
	self, err := expr.FromDocument(v)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}

	if spec.BeforeValid != "" {
		ok, err := evalBool(spec.BeforeValid, self)
		if err != nil {
			return document.Value{}, wrapErr(EvalExprErr, err)
		}
		if !ok {
			return document.Value{}, newErr(EvalExprErr, "before_valid failed for %v", v)
		}
	}

	cur := self
	if spec.Convert != "" {
		cur, err = expr.Eval(spec.Convert, expr.Vars{"self": self})
		if err != nil {
			return document.Value{}, wrapErr(EvalExprErr, err)
		}
	}

	if spec.AfterValid != "" {
		ok, err := evalBool(spec.AfterValid, cur)
		if err != nil {
			return document.Value{}, wrapErr(EvalExprErr, err)
		}
		if !ok {
			return document.Value{}, newErr(EvalExprErr, "after_valid failed")
		}
	}

	return cur.ToDocument()
}

func evalBool(src string, self expr.Value) (bool, error) {
	v, err := expr.Eval(src, expr.Vars{"self": self})
	if err != nil {
		return false, err
	}
	return v.ToBool()
}

func readEncrypt(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	n, err := t.CipherSize.Resolve(e)
	if err != nil {
		return document.Value{}, wrapErr(EvalExprErr, err)
	}
	cipher, err := r.TakeBytes(n)
	if err != nil {
		return document.Value{}, wrapErr(Truncation, err)
	}
	key, err := opts.keys().Lookup(t.KeyName)
	if err != nil {
		return document.Value{}, wrapErr(SecureErr, err)
	}
	plain, err := key.Decrypt(cipher)
	if err != nil {
		return document.Value{}, wrapErr(SecureErr, err)
	}
	sub := bitio.NewReader(plain)
	v, err := readNode(t.Inner, sub, e, opts, depth+1)
	if err != nil {
		return document.Value{}, err
	}
	if sub.Remaining() != 0 {
		return document.Value{}, newErr(SizeMismatch, "%d bits left unread inside Encrypt node", sub.Remaining())
	}
	return v, nil
}

func readChecksum(t *schema.Type, r *bitio.Reader) (document.Value, error) {
	width := t.Method.Width()
	b, err := r.TakeBytes(uint64(width))
	if err != nil {
		return document.Value{}, wrapErr(Truncation, err)
	}
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return document.Uint(u), nil
}

func isTruncation(err error) bool {
	return errors.Is(err, Sentinel(Truncation))
}
