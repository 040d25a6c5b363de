package bitio

import (
	"bytes"
	"testing"
)

func TestReaderTakeBits(t *testing.T) {
	r := NewReader([]byte{0b10110000})
	b, err := r.TakeBits(4)
	if err != nil {
		t.Fatalf("TakeBits: %v", err)
	}
	if b[0] != 0b10110000 {
		t.Fatalf("got %08b, want left-justified 1011", b[0])
	}
	if r.Remaining() != 4 {
		t.Fatalf("Remaining() = %d, want 4", r.Remaining())
	}
}

func TestReaderTakeBytesEOF(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.TakeBytes(3); err != ErrEOF {
		t.Fatalf("got err %v, want ErrEOF", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.AppendBits([]byte{0b10110000}, 4)
	w.AppendBytes([]byte{0xFF})
	got := w.Bytes()
	want := []byte{0b10111111, 0b11110000}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % 08b, want % 08b", got, want)
	}
}

func TestPatchBits(t *testing.T) {
	w := NewWriter()
	w.AppendBytes([]byte{0, 0})
	w.PatchBits(0, []byte{0xAB}, 8)
	if got := w.Bytes(); got[0] != 0xAB {
		t.Fatalf("PatchBits did not splice: got % x", got)
	}
}

func TestRawBytesRoundsTripThroughWriter(t *testing.T) {
	w := NewWriter()
	w.AppendBytes([]byte{1, 2, 3, 4})
	if got := w.RawBytes(1, 3); !bytes.Equal(got, []byte{2, 3}) {
		t.Fatalf("RawBytes(1,3) = % x, want 02 03", got)
	}
}
