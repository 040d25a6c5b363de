package codec

import (
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/schema"
	"github.com/finnur-hlynsson/bitspec/secure"
)

// fieldSpan is the byte-inclusive window a struct field occupied in the
// enclosing struct's raw bytes, recorded as each field is processed so that
// Checksum/Sign nodes can recompute over an arbitrary sibling-bounded
// window at finalize (spec.md §4.7).
type fieldSpan struct {
	start, end uint64
}

// checksumWindow resolves a Checksum node's start_key/end_key into a byte
// span within the enclosing struct.
func checksumWindow(spans map[string]fieldSpan, t *schema.Type) (fieldSpan, error) {
	s, ok := spans[t.StartKey]
	if !ok {
		return fieldSpan{}, newErr(ChecksumErr, "checksum start_key %q is not a byte-aligned sibling field", t.StartKey)
	}
	e, ok := spans[t.EndKey]
	if !ok {
		return fieldSpan{}, newErr(ChecksumErr, "checksum end_key %q is not a byte-aligned sibling field", t.EndKey)
	}
	return fieldSpan{s.start, e.end}, nil
}

// signWindow resolves a Sign node's window. signature_position names the
// sibling field the signed window ends at (that field's last byte included);
// when it is empty the window ends where the signature field itself starts.
// signature_key, when present,
// names the sibling the window starts at, else the window starts at the
// beginning of the struct. This reading is an Open Question resolution
// recorded in DESIGN.md, since spec.md leaves both fields as opaque
// placeholders.
func signWindow(spans map[string]fieldSpan, t *schema.Type, ownField string) (fieldSpan, error) {
	var start uint64
	if t.SignatureKey != "" {
		s, ok := spans[t.SignatureKey]
		if !ok {
			return fieldSpan{}, newErr(SecureErr, "signature_key %q is not a byte-aligned sibling field", t.SignatureKey)
		}
		start = s.start
	}
	var end uint64
	if t.SignaturePosition != "" {
		e, ok := spans[t.SignaturePosition]
		if !ok {
			return fieldSpan{}, newErr(SecureErr, "signature_position %q is not a byte-aligned sibling field", t.SignaturePosition)
		}
		end = e.end
	} else {
		own, ok := spans[ownField]
		if !ok {
			return fieldSpan{}, newErr(SecureErr, "signature field %q has no recorded span", ownField)
		}
		end = own.start
	}
	return fieldSpan{start, end}, nil
}

// verifyChecksums re-computes every pending Checksum field's value over its
// declared window and compares it to the value produced while reading
// (read-side struct finalize, spec §4.2).
func verifyChecksums(t *schema.Type, raw func(start, end uint64) []byte, obj *document.Object, spans map[string]fieldSpan, names []string, opts *Options) error {
	for _, name := range names {
		field, _ := t.Fields.Get(name)
		win, err := checksumWindow(spans, field.Type)
		if err != nil {
			return prepend(err, fieldSeg(name))
		}
		computed, err := secure.Checksum(field.Type.Method, raw(win.start, win.end))
		if err != nil {
			return prepend(wrapErr(ChecksumErr, err), fieldSeg(name))
		}
		stored, ok := obj.Get(name)
		if !ok {
			continue
		}
		storedI, err := stored.AsInt64()
		if err != nil {
			return prepend(wrapErr(ChecksumErr, err), fieldSeg(name))
		}
		if uint64(storedI) != computed {
			return prepend(newErr(ChecksumErr, "checksum mismatch for %q: got %d, want %d", name, storedI, computed), fieldSeg(name))
		}
		opts.logger().Printf("[%s] recomputed checksum for field %q, matches", opts.traceID(), name)
	}
	return nil
}

// verifySignatures mirrors verifyChecksums for Sign fields.
func verifySignatures(t *schema.Type, raw func(start, end uint64) []byte, obj *document.Object, spans map[string]fieldSpan, names []string, opts *Options) error {
	for _, name := range names {
		field, _ := t.Fields.Get(name)
		win, err := signWindow(spans, field.Type, name)
		if err != nil {
			return prepend(err, fieldSeg(name))
		}
		hasher, err := opts.hashers().Lookup(field.Type.HasherName)
		if err != nil {
			return prepend(wrapErr(SecureErr, err), fieldSeg(name))
		}
		stored, ok := obj.Get(name)
		if !ok || stored.Kind != document.KindBytes {
			return prepend(newErr(SecureErr, "signature field %q did not produce raw bytes", name), fieldSeg(name))
		}
		if !secure.Verify(hasher, raw(win.start, win.end), stored.Bytes) {
			return prepend(newErr(SecureErr, "signature mismatch for %q", name), fieldSeg(name))
		}
		opts.logger().Printf("[%s] recomputed signature for field %q, matches", opts.traceID(), name)
	}
	return nil
}

// computeChecksums recomputes every pending Checksum field's value over its
// declared window at write time and returns the big-endian bytes to splice
// into that field's placeholder (write-side struct finalize, spec §4.7).
func computeChecksums(t *schema.Type, raw func(start, end uint64) []byte, spans map[string]fieldSpan, names []string, opts *Options) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		field, _ := t.Fields.Get(name)
		win, err := checksumWindow(spans, field.Type)
		if err != nil {
			return nil, prepend(err, fieldSeg(name))
		}
		sum, err := secure.Checksum(field.Type.Method, raw(win.start, win.end))
		if err != nil {
			return nil, prepend(wrapErr(ChecksumErr, err), fieldSeg(name))
		}
		width := field.Type.Method.Width()
		buf := make([]byte, width)
		for i := width - 1; i >= 0; i-- {
			buf[i] = byte(sum)
			sum >>= 8
		}
		out[name] = buf
		opts.logger().Printf("[%s] computed checksum for field %q", opts.traceID(), name)
	}
	return out, nil
}

// computeSignatures mirrors computeChecksums for Sign fields.
func computeSignatures(t *schema.Type, raw func(start, end uint64) []byte, spans map[string]fieldSpan, names []string, opts *Options) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		field, _ := t.Fields.Get(name)
		win, err := signWindow(spans, field.Type, name)
		if err != nil {
			return nil, prepend(err, fieldSeg(name))
		}
		hasher, err := opts.hashers().Lookup(field.Type.HasherName)
		if err != nil {
			return nil, prepend(wrapErr(SecureErr, err), fieldSeg(name))
		}
		out[name] = secure.Sign(hasher, raw(win.start, win.end))
		opts.logger().Printf("[%s] computed signature for field %q", opts.traceID(), name)
	}
	return out, nil
}
