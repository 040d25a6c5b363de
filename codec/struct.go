package codec

import (
	"github.com/finnur-hlynsson/bitspec/bitio"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/schema"
)

func readStruct(t *schema.Type, r *bitio.Reader, e *env.Env, opts *Options, depth int) (document.Value, error) {
	nOpt := countOptional(t)
	var presence []byte
	if nOpt > 0 {
		b, err := r.TakeBytes(uint64(presenceVectorBytes(nOpt)))
		if err != nil {
			return document.Value{}, wrapErr(Truncation, err)
		}
		presence = b
	}

	frame := e.Push()
	defer e.Pop()

	obj := document.NewObject()
	spans := make(map[string]fieldSpan)
	var checksumFields, signFields []string

	optIdx := 0
	for pair := t.Fields.Oldest(); pair != nil; pair = pair.Next() {
		name, field := pair.Key, pair.Value
		if field.Optional {
			present := getPresenceBit(presence, optIdx)
			optIdx++
			if !present {
				continue
			}
		}

		startByte, aligned := r.BytePos()
		val, err := readNode(field.Type, r, e, opts, depth+1)
		if err != nil {
			return document.Value{}, prepend(err, fieldSeg(name))
		}
		endByte, _ := r.BytePos()
		if aligned {
			spans[name] = fieldSpan{startByte, endByte}
		}

		frame.Set(name, val)
		obj.Set(name, val)

		switch field.Type.Kind {
		case schema.KindChecksum:
			checksumFields = append(checksumFields, name)
		case schema.KindSign:
			signFields = append(signFields, name)
		}
	}

	if err := verifyChecksums(t, r.RawBytes, obj, spans, checksumFields, opts); err != nil {
		return document.Value{}, err
	}
	if err := verifySignatures(t, r.RawBytes, obj, spans, signFields, opts); err != nil {
		return document.Value{}, err
	}

	return document.ObjectValue(obj), nil
}

// writeStruct implements the write-side of spec.md §4.3: write the
// presence vector, then each field in order (synthesizing Magic/Checksum/
// Sign placeholders and deferring fixed-width fields whose value is
// missing but determinable from a later sibling), then apply struct
// finalize (back-patches already applied inline via wctx.resolvePending;
// here only checksum/signature splicing remains, spec §4.7).
func writeStruct(t *schema.Type, val document.Value, ctx *wctx) error {
	if val.Kind != document.KindObject {
		return newErr(MissingField, "expected an object for a Struct, got %s", val.Kind)
	}
	obj := val.Object

	nOpt := countOptional(t)
	presentMap := make(map[string]bool)
	presence := make([]byte, presenceVectorBytes(nOpt))
	optIdx := 0
	for pair := t.Fields.Oldest(); pair != nil; pair = pair.Next() {
		name, field := pair.Key, pair.Value
		_, ok := obj.Get(name)
		presentMap[name] = ok
		if field.Optional {
			setPresenceBit(presence, optIdx, ok)
			optIdx++
		}
	}
	if nOpt > 0 {
		ctx.w.AppendBytes(presence)
	}

	frame := ctx.e.Push()
	defer ctx.e.Pop()

	childCtx := &wctx{
		w:       ctx.w,
		e:       ctx.e,
		opts:    ctx.opts,
		depth:   ctx.depth + 1,
		pending: make(map[string]*placeholder),
		spans:   make(map[string]fieldSpan),
	}

	var checksumFields, signFields []string

	for pair := t.Fields.Oldest(); pair != nil; pair = pair.Next() {
		name, field := pair.Key, pair.Value
		if field.Optional && !presentMap[name] {
			continue
		}
		fval, hasVal := obj.Get(name)

		startByte, aligned := ctx.w.BytePos()

		switch field.Type.Kind {
		case schema.KindMagic:
			ctx.w.AppendBytes(field.Type.MagicBytes)
			fval = document.Bytes(field.Type.MagicBytes)

		case schema.KindChecksum:
			off := ctx.w.BitLen()
			width := field.Type.Method.Width()
			ctx.w.AppendBytes(make([]byte, width))
			childCtx.pending[name] = &placeholder{bitOffset: off, width: uint64(width) * 8, resolved: true}
			fval = document.Uint(0)
			checksumFields = append(checksumFields, name)

		case schema.KindSign:
			n, err := resolveInnerWidth(field.Type.Inner, ctx.e)
			if err != nil {
				return prepend(wrapErr(SecureErr, err), fieldSeg(name))
			}
			ctx.w.AppendBytes(make([]byte, n))
			fval = document.Bytes(make([]byte, n))
			signFields = append(signFields, name)

		default:
			if !hasVal {
				if !field.Type.Kind.IsFixedWidth() {
					return prepend(newErr(MissingField, "field %q is missing and cannot be synthesized", name), fieldSeg(name))
				}
				width := uint64(field.Type.Kind.BitWidth())
				off := ctx.w.BitLen()
				ctx.w.AppendBits(make([]byte, (width+7)/8), width)
				childCtx.pending[name] = &placeholder{bitOffset: off, width: width}
				continue
			}
			if err := writeNode(field.Type, fval, true, childCtx); err != nil {
				return prepend(err, fieldSeg(name))
			}
		}

		endByte, _ := ctx.w.BytePos()
		if aligned {
			childCtx.spans[name] = fieldSpan{startByte, endByte}
		}
		frame.Set(name, fval)
	}

	for name, ph := range childCtx.pending {
		if !ph.resolved {
			return newErr(MissingField, "field %q is missing and no later field determined its value", name)
		}
	}

	checksumPatches, err := computeChecksums(t, ctx.w.RawBytes, childCtx.spans, checksumFields, ctx.opts)
	if err != nil {
		return err
	}
	for name, bytes := range checksumPatches {
		ph := childCtx.pending[name]
		ctx.w.PatchBits(ph.bitOffset, bytes, ph.width)
	}

	signPatches, err := computeSignatures(t, ctx.w.RawBytes, childCtx.spans, signFields, ctx.opts)
	if err != nil {
		return err
	}
	for name, bytes := range signPatches {
		span := childCtx.spans[name]
		ctx.w.PatchBits(span.start*8, bytes, (span.end-span.start)*8)
	}

	return nil
}
