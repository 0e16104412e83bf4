package asset

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	binary := make([]byte, 256)
	for i := range binary {
		binary[i] = byte(i)
	}

	tests := []struct {
		name  string
		asset Asset
	}{
		{"empty", Asset{MediaType: "audio/webm", Data: []byte{}}},
		{"nil data", Asset{MediaType: "audio/webm"}},
		{"one byte", Asset{MediaType: "audio/webm", Data: []byte{0}}},
		{"all byte values", Asset{MediaType: "audio/ogg", Data: binary}},
		{"codec parameter", Asset{MediaType: "audio/webm;codecs=opus", Data: []byte("OggS\x00\x02")}},
		{"padding length 2", Asset{MediaType: "audio/mp4", Data: []byte("ab")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Encode(tt.asset)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(token)
			if err != nil {
				t.Fatalf("Decode(%q): %v", token, err)
			}
			if !bytes.Equal(got.Data, tt.asset.Data) {
				t.Errorf("data = %v, want %v", got.Data, tt.asset.Data)
			}
			if got.Data == nil {
				t.Error("decoded data must not be nil")
			}
			if got.MediaType != tt.asset.MediaType {
				t.Errorf("media type = %q, want %q", got.MediaType, tt.asset.MediaType)
			}
		})
	}
}

func TestEncode_Format(t *testing.T) {
	token, err := Encode(Asset{MediaType: "audio/webm", Data: []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if token != "data:audio/webm;base64,aGk=" {
		t.Errorf("token = %q", token)
	}

	empty, err := Encode(Asset{MediaType: "audio/webm"})
	if err != nil {
		t.Fatal(err)
	}
	if empty != "data:audio/webm;base64," {
		t.Errorf("empty token = %q", empty)
	}
}

func TestEncode_SniffsMissingMediaType(t *testing.T) {
	token, err := Encode(Asset{Data: []byte("%PDF-1.4\n%âãÏÓ\n")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(token, "data:application/pdf;base64,") {
		t.Errorf("token = %q, want sniffed application/pdf", token)
	}

	token, err = Encode(Asset{})
	if err != nil {
		t.Fatal(err)
	}
	if token != "data:audio/webm;base64," {
		t.Errorf("empty untyped token = %q", token)
	}
}

func TestEncode_RejectsBadMediaType(t *testing.T) {
	for _, mt := range []string{"audio/webm,evil", "not a type", "audio/"} {
		if _, err := Encode(Asset{MediaType: mt, Data: []byte{1}}); err == nil {
			t.Errorf("Encode with media type %q should fail", mt)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"data:audio/webm",
		"data:audio/webm,cGxhaW4=",
		"data:audio/webm;base64,@@@",
		"blob:http://localhost/1234",
	}
	for _, token := range tests {
		_, err := Decode(token)
		if !errors.Is(err, ErrInvalidDataURI) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidDataURI", token, err)
		}
	}
}

func TestDecode_BrowserToken(t *testing.T) {
	// FileReader.readAsDataURL output for a tiny recording.
	got, err := Decode("data:audio/webm;codecs=opus;base64,GkXfow==")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, []byte{0x1a, 0x45, 0xdf, 0xa3}) {
		t.Errorf("data = %x", got.Data)
	}
	if got.MediaType != "audio/webm;codecs=opus" {
		t.Errorf("media type = %q", got.MediaType)
	}
}

func TestLen_NilSafe(t *testing.T) {
	var a *Asset
	if a.Len() != 0 {
		t.Error("nil asset should have zero length")
	}
}
