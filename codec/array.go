package codec

import (
	"github.com/finnur-hlynsson/bitspec/bitio"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/schema"
)

// readArray implements the two-exit-condition loop of spec.md §4.2.
func readArray(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	sub := r
	sizeBound := false
	if t.ArraySize != nil {
		n, err := t.ArraySize.Resolve(e)
		if err != nil {
			return document.Value{}, wrapErr(EvalExprErr, err)
		}
		b, err := r.TakeBytes(n)
		if err != nil {
			return document.Value{}, wrapErr(Truncation, err)
		}
		sub = bitio.NewReader(b)
		sizeBound = true
	}

	var elements []document.Value

	if t.ArrayLength != nil {
		length, err := t.ArrayLength.Resolve(e)
		if err != nil {
			return document.Value{}, wrapErr(EvalExprErr, err)
		}
		for i := uint64(0); i < length; i++ {
			val, err := readNode(t.Element, sub, e, opts, depth+1)
			if err != nil {
				return document.Value{}, prepend(err, indexSeg(int(i)))
			}
			elements = append(elements, val)
		}
		if sizeBound && sub.Remaining() != 0 {
			return document.Value{}, newErr(SizeMismatch, "array: %d bits remain after %d elements satisfying length", sub.Remaining(), length)
		}
	} else {
		i := 0
		for sub.Remaining() > 0 {
			val, err := readNode(t.Element, sub, e, opts, depth+1)
			if err != nil {
				if isTruncation(err) {
					return document.Value{}, newErr(SizeMismatch, "array: element %d left a partial trailing element (%v)", i, err)
				}
				return document.Value{}, prepend(err, indexSeg(i))
			}
			elements = append(elements, val)
			i++
		}
	}

	if elements == nil {
		elements = []document.Value{}
	}
	return document.Array(elements), nil
}

// writeArray mirrors readArray for the write walk (spec.md §4.3): elements
// are written into a byte-counting sub-writer when size is present (so the
// exact byte count is known without re-measuring the parent writer), or
// directly into the parent writer otherwise. Afterward, a bare
// size/length reference to a still-unresolved sibling is back-patched with
// the actual count; a bound reference is checked for an exact match.
func writeArray(t *schema.Type, val document.Value, ctx *wctx) error {
	if val.Kind != document.KindArray {
		return newErr(EncodingErr, "expected an array value, got %s", val.Kind)
	}

	elemCtx := ctx.child()
	var sub *bitio.Writer
	if t.ArraySize != nil {
		sub = bitio.NewWriter()
		elemCtx.w = sub
	}

	for i, el := range val.Array {
		if err := writeNode(t.Element, el, true, elemCtx); err != nil {
			return prepend(err, indexSeg(i))
		}
	}

	elementCount := uint64(len(val.Array))
	var byteCount uint64
	if sub != nil {
		byteCount = uint64(len(sub.Bytes()))
		ctx.w.AppendBytes(sub.Bytes())
	}

	if t.ArraySize != nil {
		n, usedActual, err := ctx.sizeForWrite(t.ArraySize, byteCount)
		if err != nil {
			return wrapErr(EvalExprErr, err)
		}
		if !usedActual && byteCount != n {
			return newErr(SizeMismatch, "array: wrote %d bytes, schema size requires %d", byteCount, n)
		}
		if usedActual {
			ctx.resolvePending(t.ArraySize.RefName(), byteCount)
		}
	}
	if t.ArrayLength != nil {
		n, usedActual, err := ctx.sizeForWrite(t.ArrayLength, elementCount)
		if err != nil {
			return wrapErr(EvalExprErr, err)
		}
		if !usedActual && elementCount != n {
			return newErr(SizeMismatch, "array: wrote %d elements, schema length requires %d", elementCount, n)
		}
		if usedActual {
			ctx.resolvePending(t.ArrayLength.RefName(), elementCount)
		}
	}

	return nil
}
