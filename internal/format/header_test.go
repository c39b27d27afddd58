package format

import (
	"testing"
)

func TestHeaderEncode(t *testing.T) {
	h := Header{Type: TypeSegment, Version: 1, Flags: FlagCompressed}
	buf := h.Encode()

	if buf[0] != Signature {
		t.Errorf("expected signature 0x%02x, got 0x%02x", Signature, buf[0])
	}
	if buf[1] != TypeSegment {
		t.Errorf("expected type 0x%02x, got 0x%02x", TypeSegment, buf[1])
	}
	if buf[2] != 1 {
		t.Errorf("expected version 1, got %d", buf[2])
	}
	if buf[3] != FlagCompressed {
		t.Errorf("expected flags 0x%02x, got 0x%02x", FlagCompressed, buf[3])
	}
}

func TestDecode(t *testing.T) {
	h, err := Decode([]byte{Signature, TypeManifest, 3, 0x10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Header{Type: TypeManifest, Version: 3, Flags: 0x10}
	if h != want {
		t.Errorf("expected %+v, got %+v", want, h)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"too small", []byte{Signature, TypeSegment, 1}, ErrHeaderTooSmall},
		{"empty", nil, ErrHeaderTooSmall},
		{"bad signature", []byte{'i', TypeSegment, 1, 0}, ErrSignatureMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.buf); err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	buf := []byte{Signature, TypeSegment, 1, 0}

	if _, err := DecodeAndValidate(buf, TypeSegment, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := DecodeAndValidate(buf, TypeManifest, 1); err != ErrTypeMismatch {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := DecodeAndValidate(buf, TypeSegment, 2); err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	original := Header{Type: TypeManifest, Version: 5, Flags: 0xAB}
	buf := original.Encode()
	decoded, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip failed: expected %+v, got %+v", original, decoded)
	}
}
