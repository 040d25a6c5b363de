package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/schema"
	"github.com/finnur-hlynsson/bitspec/secure"
)

func u8(n uint64) *schema.Type  { return &schema.Type{Kind: schema.KindUint8} }
func u16() *schema.Type         { return &schema.Type{Kind: schema.KindUint16} }
func bin(size *schema.SizeExpr) *schema.Type {
	return &schema.Type{Kind: schema.KindBin, Size: size}
}

func field(t *schema.Type) *schema.Field { return &schema.Field{Type: t} }

func TestStructWithMagicChecksumArrayOfEnum(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("magic", field(&schema.Type{Kind: schema.KindMagic, MagicBytes: []byte{0xAA, 0xBB}}))
	fields.Set("tag", field(&schema.Type{Kind: schema.KindUint8}))

	cases := schema.NewCaseList()
	cases.Set("1", &schema.Type{Kind: schema.KindUint8})
	cases.Set("2", &schema.Type{Kind: schema.KindUint16})
	fields.Set("items", field(&schema.Type{
		Kind:        schema.KindArray,
		Element:     &schema.Type{Kind: schema.KindEnum, By: "tag", Cases: cases},
		ArrayLength: schema.Lit(2),
	}))

	fields.Set("data", field(bin(schema.Lit(2))))
	fields.Set("sum", field(&schema.Type{
		Kind: schema.KindChecksum, Method: schema.Sum8,
		StartKey: "data", EndKey: "data", TargetKey: "sum",
	}))

	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("tag", document.Uint(1))
	obj.Set("items", document.Array([]document.Value{document.Uint(10), document.Uint(20)}))
	obj.Set("data", document.Bytes([]byte{3, 4}))

	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, remainder, err := Read(root, out, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("unexpected remainder: % x", remainder)
	}

	tagVal, _ := got.Get("tag")
	if tagVal.Uint != 1 {
		t.Fatalf("tag = %d, want 1", tagVal.Uint)
	}
	items, _ := got.Get("items")
	if len(items.Array) != 2 || items.Array[0].Uint != 10 || items.Array[1].Uint != 20 {
		t.Fatalf("items = %v, want [10 20]", items.Array)
	}
	sum, _ := got.Get("sum")
	if sum.Uint != uint64(byte(3+4)) {
		t.Fatalf("sum = %d, want %d", sum.Uint, byte(3+4))
	}
}

func TestArraySizeAndLengthBothSatisfied(t *testing.T) {
	arr := &schema.Type{Kind: schema.KindArray, Element: u8(0), ArraySize: schema.Lit(3), ArrayLength: schema.Lit(3)}
	val := document.Array([]document.Value{document.Uint(1), document.Uint(2), document.Uint(3)})

	out, err := Write(arr, val, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _, err := Read(arr, out, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Array) != 3 {
		t.Fatalf("got %d elements, want 3", len(got.Array))
	}
}

func TestArraySizeAndLengthMismatch(t *testing.T) {
	arr := &schema.Type{Kind: schema.KindArray, Element: u8(0), ArraySize: schema.Lit(3), ArrayLength: schema.Lit(4)}
	val := document.Array([]document.Value{document.Uint(1), document.Uint(2), document.Uint(3)})

	if _, err := Write(arr, val, nil); err == nil {
		t.Fatal("expected a SizeMismatch error when size and length disagree")
	} else if !errors.Is(err, Sentinel(SizeMismatch)) {
		t.Fatalf("got %v, want SizeMismatch", err)
	}
}

func TestConverterValidateAndTransform(t *testing.T) {
	conv := &schema.Type{
		Kind:     schema.KindConverter,
		Original: u8(0),
		OnRead:   &schema.ConverterSpec{Convert: "self * 2"},
		OnWrite:  &schema.ConverterSpec{Convert: "self / 2"},
	}

	out, err := Write(conv, document.Int(10), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(out, []byte{5}) {
		t.Fatalf("got % x, want 05", out)
	}

	got, _, err := Read(conv, out, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	i, _ := got.AsInt64()
	if i != 10 {
		t.Fatalf("got %d, want 10", i)
	}
}

func TestConverterBeforeValidRejectsOutOfRange(t *testing.T) {
	conv := &schema.Type{
		Kind:     schema.KindConverter,
		Original: u8(0),
		OnWrite:  &schema.ConverterSpec{BeforeValid: "self < 100", Convert: "self / 2"},
	}
	if _, err := Write(conv, document.Int(200), nil); err == nil {
		t.Fatal("expected before_valid to reject an out-of-range value")
	}
}

func TestConverterAfterValidRejectsBadResult(t *testing.T) {
	conv := &schema.Type{
		Kind:     schema.KindConverter,
		Original: u8(0),
		OnRead:   &schema.ConverterSpec{Convert: "self * 2", AfterValid: "self < 10"},
	}
	if _, _, err := Read(conv, []byte{10}, nil); err == nil {
		t.Fatal("expected after_valid to reject a converted value of 20")
	}
}

func TestForwardReferenceBackPatchOmittedLength(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("len", field(u16()))
	fields.Set("payload", field(bin(schema.Ref("len"))))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("payload", document.Bytes([]byte{9, 9, 9}))

	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _, err := Read(root, out, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	lenVal, _ := got.Get("len")
	if lenVal.Uint != 3 {
		t.Fatalf("back-patched len = %d, want 3", lenVal.Uint)
	}
	payload, _ := got.Get("payload")
	if !bytes.Equal(payload.Bytes, []byte{9, 9, 9}) {
		t.Fatalf("payload = % x, want 09 09 09", payload.Bytes)
	}
}

func TestForwardReferenceExplicitLengthMustMatch(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("len", field(u16()))
	fields.Set("payload", field(bin(schema.Ref("len"))))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("len", document.Uint(5))
	obj.Set("payload", document.Bytes([]byte{9, 9, 9}))

	if _, err := Write(root, document.ObjectValue(obj), nil); err == nil {
		t.Fatal("expected a SizeMismatch error when the supplied len disagrees with the payload")
	} else if !errors.Is(err, Sentinel(SizeMismatch)) {
		t.Fatalf("got %v, want SizeMismatch", err)
	}
}

func TestMagicWriteIgnoresInputValue(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("magic", field(&schema.Type{Kind: schema.KindMagic, MagicBytes: []byte{0xAA, 0xBB}}))
	fields.Set("x", field(u8(0)))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("magic", document.Bytes([]byte{0, 0})) // wrong value; must be ignored on write
	obj.Set("x", document.Uint(5))

	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(out, []byte{0xAA, 0xBB, 5}) {
		t.Fatalf("got % x, want AA BB 05", out)
	}
}

func TestChecksumWriteThenReadRoundTrip(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("data", field(bin(schema.Lit(3))))
	fields.Set("sum", field(&schema.Type{
		Kind: schema.KindChecksum, Method: schema.Sum8,
		StartKey: "data", EndKey: "data", TargetKey: "sum",
	}))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("data", document.Bytes([]byte{1, 2, 3}))

	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := Read(root, out, nil); err != nil {
		t.Fatalf("Read of a freshly written checksum should pass: %v", err)
	}
}

func TestChecksumReadDetectsTamperedData(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("data", field(bin(schema.Lit(3))))
	fields.Set("sum", field(&schema.Type{
		Kind: schema.KindChecksum, Method: schema.Sum8,
		StartKey: "data", EndKey: "data", TargetKey: "sum",
	}))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("data", document.Bytes([]byte{1, 2, 3}))
	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	tampered := append([]byte(nil), out...)
	tampered[0] ^= 0xFF

	if _, _, err := Read(root, tampered, nil); err == nil {
		t.Fatal("expected a ChecksumError for tampered data")
	} else if !errors.Is(err, Sentinel(ChecksumErr)) {
		t.Fatalf("got %v, want ChecksumError", err)
	}
}

func TestReadTruncation(t *testing.T) {
	if _, _, err := Read(u16(), []byte{1}, nil); err == nil {
		t.Fatal("expected a Truncation error for a short buffer")
	} else if !errors.Is(err, Sentinel(Truncation)) {
		t.Fatalf("got %v, want Truncation", err)
	}
}

func TestReadMagicMismatch(t *testing.T) {
	m := &schema.Type{Kind: schema.KindMagic, MagicBytes: []byte{0xDE, 0xAD}}
	if _, _, err := Read(m, []byte{0x00, 0x00}, nil); err == nil {
		t.Fatal("expected a MagicError")
	} else if !errors.Is(err, Sentinel(MagicErr)) {
		t.Fatalf("got %v, want MagicError", err)
	}
}

func TestWriteRangeError(t *testing.T) {
	if _, err := Write(u8(0), document.Int(1000), nil); err == nil {
		t.Fatal("expected a RangeError for a value exceeding Uint8's width")
	} else if !errors.Is(err, Sentinel(RangeErr)) {
		t.Fatalf("got %v, want RangeError", err)
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	key, err := secure.NewKey([]byte("a secret of any length"))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	opts := &Options{Keys: secure.KeyRegistry{"primary": key}}

	enc := &schema.Type{
		Kind:       schema.KindEncrypt,
		Inner:      bin(schema.Lit(4)),
		KeyName:    "primary",
		CipherSize: schema.Ref("cipherLen"),
	}
	fields := schema.NewFieldList()
	fields.Set("cipherLen", field(u16()))
	fields.Set("secret", field(enc))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("secret", document.Bytes([]byte{1, 2, 3, 4}))

	out, err := Write(root, document.ObjectValue(obj), opts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, _, err := Read(root, out, opts)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	secretVal, ok := got.Get("secret")
	if !ok || !bytes.Equal(secretVal.Bytes, []byte{1, 2, 3, 4}) {
		t.Fatalf("secret = %v, %v, want [1 2 3 4], true", secretVal, ok)
	}
}

func TestEncryptReadFailsWithoutKey(t *testing.T) {
	key, err := secure.NewKey([]byte("a secret of any length"))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	enc := &schema.Type{
		Kind:       schema.KindEncrypt,
		Inner:      bin(schema.Lit(4)),
		KeyName:    "primary",
		CipherSize: schema.Ref("cipherLen"),
	}
	fields := schema.NewFieldList()
	fields.Set("cipherLen", field(u16()))
	fields.Set("secret", field(enc))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("secret", document.Bytes([]byte{1, 2, 3, 4}))

	out, err := Write(root, document.ObjectValue(obj), &Options{Keys: secure.KeyRegistry{"primary": key}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, _, err := Read(root, out, nil); err == nil {
		t.Fatal("expected a SecureError when no key is registered for Read")
	} else if !errors.Is(err, Sentinel(SecureErr)) {
		t.Fatalf("got %v, want SecureError", err)
	}
}

func TestSignRoundTrip(t *testing.T) {
	hasher, err := secure.NewHasher([]byte("a mac key"))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	opts := &Options{Hashers: secure.HasherRegistry{"primary": hasher}}

	fields := schema.NewFieldList()
	fields.Set("data", field(bin(schema.Lit(3))))
	fields.Set("mac", field(&schema.Type{
		Kind:              schema.KindSign,
		Inner:             bin(schema.Lit(32)),
		HasherName:        "primary",
		SignaturePosition: "data",
	}))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("data", document.Bytes([]byte{1, 2, 3}))

	out, err := Write(root, document.ObjectValue(obj), opts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := Read(root, out, opts); err != nil {
		t.Fatalf("Read of a freshly signed struct should pass: %v", err)
	}
}

func TestSignReadDetectsTamperedData(t *testing.T) {
	hasher, err := secure.NewHasher([]byte("a mac key"))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	opts := &Options{Hashers: secure.HasherRegistry{"primary": hasher}}

	fields := schema.NewFieldList()
	fields.Set("data", field(bin(schema.Lit(3))))
	fields.Set("mac", field(&schema.Type{
		Kind:              schema.KindSign,
		Inner:             bin(schema.Lit(32)),
		HasherName:        "primary",
		SignaturePosition: "data",
	}))
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("data", document.Bytes([]byte{1, 2, 3}))

	out, err := Write(root, document.ObjectValue(obj), opts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	tampered := append([]byte(nil), out...)
	tampered[0] ^= 0xFF

	if _, _, err := Read(root, tampered, opts); err == nil {
		t.Fatal("expected a SecureError for a tampered signed field")
	} else if !errors.Is(err, Sentinel(SecureErr)) {
		t.Fatalf("got %v, want SecureError", err)
	}
}

func TestOptionalFieldPresenceRoundTrip(t *testing.T) {
	fields := schema.NewFieldList()
	fields.Set("a", &schema.Field{Type: u8(0), Optional: true})
	fields.Set("b", &schema.Field{Type: u8(0), Optional: true})
	root := &schema.Type{Kind: schema.KindStruct, Fields: fields}

	obj := document.NewObject()
	obj.Set("b", document.Uint(7))

	out, err := Write(root, document.ObjectValue(obj), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _, err := Read(root, out, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := got.Get("a"); ok {
		t.Fatal("field a should be absent")
	}
	b, ok := got.Get("b")
	if !ok || b.Uint != 7 {
		t.Fatalf("field b = %v, %v, want 7, true", b, ok)
	}
}
