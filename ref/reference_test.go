package ref

import (
	"bytes"
	"testing"
)

func TestIsMetadata(t *testing.T) {
	cases := map[string]bool{
		".zmetadata":      true,
		".zarray":         true,
		"field/.zarray":   true,
		"field/a/.zattrs": true,
		"field/1.2.3":     false,
		"a/b/c":           false,
		".ztop/sub":       true,
	}
	for path, want := range cases {
		if got := IsMetadata(path); got != want {
			t.Errorf("IsMetadata(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDecodeInlineBytes(t *testing.T) {
	b, err := DecodeInline([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte("hello")) {
		t.Errorf("got %q", b)
	}
}

func TestDecodeInlinePlainString(t *testing.T) {
	b, err := DecodeInline("hello")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte("hello")) {
		t.Errorf("got %q", b)
	}
}

func TestDecodeInlineBase64(t *testing.T) {
	b, err := DecodeInline("base64:aGVsbG8=")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte("hello")) {
		t.Errorf("got %q", b)
	}
}

func TestDecodeInlineBadType(t *testing.T) {
	_, err := DecodeInline(42)
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestEncodeInlineRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		{0xff, 0x00, 0x80, 0x10},
		[]byte(""),
	}
	for _, data := range cases {
		enc := EncodeInline(data)
		var v any = enc
		dec, err := DecodeInline(v)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(dec, data) {
			t.Errorf("round trip mismatch: %v -> %q -> %v", data, enc, dec)
		}
	}
}
