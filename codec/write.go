package codec

import (
	"unicode/utf16"

	"github.com/finnur-hlynsson/bitspec/bitio"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/expr"
	"github.com/finnur-hlynsson/bitspec/schema"
)

// Write encodes v against t (spec.md §4.1, encode(schema, Document) →
// (bytes, Error)).
func Write(t *schema.Type, v document.Value, opts *Options) ([]byte, error) {
	w := bitio.NewWriter()
	ctx := &wctx{w: w, e: env.New(), opts: opts.withTrace(newTraceID())}
	if err := writeNode(t, v, true, ctx); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeNode(t *schema.Type, val document.Value, present bool, ctx *wctx) error {
	if ctx.depth > maxDepth {
		return newErr(Truncation, "schema nesting exceeds maximum depth %d", maxDepth)
	}

	if t.Kind.IsFixedWidth() {
		bits, err := encodeNumeric(t, val)
		if err != nil {
			return err
		}
		ctx.w.AppendBytes(bits)
		return nil
	}

	switch t.Kind {
	case schema.KindBin:
		return writeBin(t, val, ctx)
	case schema.KindString:
		return writeString(t, val, ctx)
	case schema.KindMagic:
		ctx.w.AppendBytes(t.MagicBytes)
		return nil
	case schema.KindStruct:
		return writeStruct(t, val, ctx)
	case schema.KindArray:
		return writeArray(t, val, ctx)
	case schema.KindEnum:
		return writeEnum(t, val, ctx)
	case schema.KindChecksum:
		ctx.w.AppendBytes(make([]byte, t.Method.Width()))
		return nil
	case schema.KindConverter:
		cur := val
		if t.OnWrite != nil {
			var err error
			cur, err = applyConverter(t.OnWrite, val)
			if err != nil {
				return err
			}
		}
		return writeNode(t.Original, cur, true, ctx)
	case schema.KindEncrypt:
		return writeEncrypt(t, val, ctx)
	case schema.KindSign:
		n, err := resolveInnerWidth(t.Inner, ctx.e)
		if err != nil {
			return wrapErr(SecureErr, err)
		}
		ctx.w.AppendBytes(make([]byte, n))
		return nil
	default:
		return newErr(EncodingErr, "unknown schema kind %q", t.Kind)
	}
}

func writeBin(t *schema.Type, val document.Value, ctx *wctx) error {
	if val.Kind != document.KindBytes {
		return newErr(EncodingErr, "expected bytes for a Bin field, got %s", val.Kind)
	}
	actual := uint64(len(val.Bytes))
	n, usedActual, err := ctx.sizeForWrite(t.Size, actual)
	if err != nil {
		return wrapErr(EvalExprErr, err)
	}
	if !usedActual && actual != n {
		return newErr(SizeMismatch, "Bin: value is %d bytes, schema requires %d", actual, n)
	}
	ctx.w.AppendBytes(val.Bytes)
	if usedActual {
		ctx.resolvePending(t.Size.RefName(), actual)
	}
	return nil
}

func writeString(t *schema.Type, val document.Value, ctx *wctx) error {
	if val.Kind != document.KindString {
		return newErr(EncodingErr, "expected a string value, got %s", val.Kind)
	}
	encoded, err := encodeString(t.Encoding, val.Str)
	if err != nil {
		return wrapErr(EncodingErr, err)
	}
	actual := uint64(len(encoded))
	n, usedActual, err := ctx.sizeForWrite(t.Size, actual)
	if err != nil {
		return wrapErr(EvalExprErr, err)
	}
	if !usedActual && actual != n {
		return newErr(SizeMismatch, "String: encoded value is %d bytes, schema requires %d", actual, n)
	}
	ctx.w.AppendBytes(encoded)
	if usedActual {
		ctx.resolvePending(t.Size.RefName(), actual)
	}
	return nil
}

func encodeString(encoding, s string) ([]byte, error) {
	switch encoding {
	case "", "utf-8":
		return []byte(s), nil
	case "ascii":
		b := []byte(s)
		for _, c := range b {
			if c > 127 {
				return nil, newErr(EncodingErr, "string contains a non-ascii byte")
			}
		}
		return b, nil
	case "utf-16le", "utf-16be":
		units := utf16.Encode([]rune(s))
		out := make([]byte, 0, len(units)*2)
		for _, u := range units {
			if encoding == "utf-16le" {
				out = append(out, byte(u), byte(u>>8))
			} else {
				out = append(out, byte(u>>8), byte(u))
			}
		}
		return out, nil
	default:
		return nil, newErr(EncodingErr, "unknown string encoding %q", encoding)
	}
}

func writeEnum(t *schema.Type, val document.Value, ctx *wctx) error {
	disc, err := ctx.e.Lookup(t.By)
	if err != nil {
		return wrapErr(EvalExprErr, err)
	}
	ev, err := expr.FromDocument(disc)
	if err != nil {
		return wrapErr(EvalExprErr, err)
	}
	key := ev.CanonicalKey()
	inner, ok := t.Cases.Get(key)
	if !ok {
		return newErr(EnumErr, "no enum case for discriminant %q", key)
	}
	return writeNode(inner, val, true, ctx)
}

func writeEncrypt(t *schema.Type, val document.Value, ctx *wctx) error {
	sub := bitio.NewWriter()
	childCtx := ctx.child()
	childCtx.w = sub
	if err := writeNode(t.Inner, val, true, childCtx); err != nil {
		return err
	}
	key, err := ctx.opts.keys().Lookup(t.KeyName)
	if err != nil {
		return wrapErr(SecureErr, err)
	}
	cipher, err := key.Encrypt(sub.Bytes())
	if err != nil {
		return wrapErr(SecureErr, err)
	}
	actual := uint64(len(cipher))
	n, usedActual, err := ctx.sizeForWrite(t.CipherSize, actual)
	if err != nil {
		return wrapErr(EvalExprErr, err)
	}
	if !usedActual && actual != n {
		return newErr(SizeMismatch, "Encrypt: ciphertext is %d bytes, schema requires %d", actual, n)
	}
	ctx.w.AppendBytes(cipher)
	if usedActual {
		ctx.resolvePending(t.CipherSize.RefName(), actual)
	}
	return nil
}

func resolveInnerWidth(inner *schema.Type, e *env.Env) (uint64, error) {
	if inner.Kind != schema.KindBin {
		return 0, newErr(SecureErr, "Sign inner must be Bin, got %s", inner.Kind)
	}
	return inner.Size.Resolve(e)
}
