package encoding

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewTextEncoder()
	tests := []struct {
		name   string
		text   string
		coding uint8
	}{
		{"gsm basic", "Hello @ world!", CodingGSM7},
		{"gsm extended", "price: 5€ {ok}", CodingGSM7},
		{"ucs2", "Привет, 世界", CodingUCS2},
		{"ucs2 surrogate pair", "ok 😀", CodingUCS2},
		{"latin1", "café crème", CodingLatin1},
		{"ia5", "plain ascii", CodingIA5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := e.Encode(tt.text, tt.coding)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := e.Decode(data, tt.coding)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.text {
				t.Errorf("round trip = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestEncodeGSM7Bit(t *testing.T) {
	e := NewTextEncoder()
	if got := e.EncodeGSM7Bit("@€"); !bytes.Equal(got, []byte{0x00, 0x1B, 0x65}) {
		t.Errorf("EncodeGSM7Bit = %x", got)
	}
	if got := e.EncodeGSM7Bit("日"); !bytes.Equal(got, []byte{0x3F}) {
		t.Errorf("unmapped rune encoded as %x, want 3f", got)
	}
}

func TestLatin1RejectsUnrepresentableText(t *testing.T) {
	if _, err := NewTextEncoder().EncodeLatin1("日本"); err == nil {
		t.Error("EncodeLatin1 accepted CJK text")
	}
}

func TestDecodeUCS2OddLength(t *testing.T) {
	if _, err := NewTextEncoder().DecodeUCS2([]byte{0x00}); err == nil {
		t.Error("DecodeUCS2 accepted odd length input")
	}
}

func TestUnsupportedCoding(t *testing.T) {
	e := NewTextEncoder()
	if _, err := e.Encode("x", 0xF5); err == nil {
		t.Error("Encode accepted data_coding 0xF5")
	}
	if _, err := e.Decode([]byte("x"), 0xF5); err == nil {
		t.Error("Decode accepted data_coding 0xF5")
	}
}

func TestDetectOptimalEncoding(t *testing.T) {
	e := NewTextEncoder()
	if got := e.DetectOptimalEncoding("Hello [world]"); got != CodingGSM7 {
		t.Errorf("GSM text detected as 0x%02X", got)
	}
	if got := e.DetectOptimalEncoding("Hello 世界"); got != CodingUCS2 {
		t.Errorf("CJK text detected as 0x%02X", got)
	}
}
