package codec

import (
	"github.com/finnur-hlynsson/bitspec/bitio"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/schema"
)

// placeholder records a reserved-but-not-yet-known field written as zero
// bits because its value wasn't supplied and depends on a sibling written
// later (spec.md §4.3's forward-reference back-patch, e.g. a length prefix
// preceding the payload it describes).
type placeholder struct {
	bitOffset uint64
	width     uint64 // bits; always the reserving field's fixed bit width
	resolved  bool
}

// wctx threads the write walk's mutable state: the bit writer, the
// reference environment, options, recursion depth, and the enclosing
// struct's pending back-patches/field spans. pending and spans are nil
// outside of a struct's own field loop (e.g. while writing array elements
// or an Encrypt node's inner value), since those contexts cannot
// back-patch into an outer struct.
type wctx struct {
	w       *bitio.Writer
	e       *env.Env
	opts    *Options
	depth   int
	pending map[string]*placeholder
	spans   map[string]fieldSpan
}

func (ctx *wctx) child() *wctx {
	return &wctx{w: ctx.w, e: ctx.e, opts: ctx.opts, depth: ctx.depth + 1}
}

// sizeForWrite resolves a SizeExpr for writing. When s is a bare reference
// to a still-unresolved sibling placeholder, the actual size being written
// is used instead of trying to resolve the (not yet determined) reference,
// and the caller is expected to settle the back-patch via resolvePending.
func (ctx *wctx) sizeForWrite(s *schema.SizeExpr, actual uint64) (resolved uint64, usedActual bool, err error) {
	if s.IsBareRef() {
		if ph, ok := ctx.pending[s.RefName()]; ok && !ph.resolved {
			return actual, true, nil
		}
	}
	n, err := s.Resolve(ctx.e)
	return n, false, err
}

// resolvePending splices count into the reserved placeholder for name,
// binds the resolved value into the current struct frame, and records the
// field's final byte span so a later Checksum/Sign window can include it.
func (ctx *wctx) resolvePending(name string, count uint64) {
	ph, ok := ctx.pending[name]
	if !ok || ph.resolved {
		return
	}
	nBytes := int(ph.width / 8)
	buf := make([]byte, nBytes)
	v := count
	for i := nBytes - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	ctx.w.PatchBits(ph.bitOffset, buf, ph.width)
	ph.resolved = true

	startByte := ph.bitOffset / 8
	if ctx.spans != nil {
		ctx.spans[name] = fieldSpan{startByte, startByte + uint64(nBytes)}
	}
	if f := ctx.e.Current(); f != nil {
		f.Set(name, document.Uint(count))
	}
}
