// Package asset converts binary voice memos to and from base64 data
// URIs so they can travel inside JSON backup files.
//
// The encoding is the one browsers produce for FileReader.readAsDataURL:
//
//	data:<media type>;base64,<payload>
//
// Decode(Encode(a)) reproduces a's bytes exactly, including for
// zero-length assets.
package asset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMediaType is the type browsers record voice memos in.
const DefaultMediaType = "audio/webm"

const (
	dataPrefix   = "data:"
	base64Suffix = ";base64"
)

// ErrInvalidDataURI is returned by Decode when the token is not a
// base64 data URI or its payload is corrupt.
var ErrInvalidDataURI = errors.New("invalid data uri")

// Asset is an opaque binary attachment with its media type.
type Asset struct {
	MediaType string
	Data      []byte
}

// Len returns the payload size in bytes.
func (a *Asset) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Encode renders a as a data URI. When a carries no media type one is
// sniffed from the payload; an empty payload falls back to
// DefaultMediaType.
func Encode(a Asset) (string, error) {
	mt := a.MediaType
	if mt == "" {
		mt = sniff(a.Data)
	}
	if strings.Contains(mt, ",") {
		return "", fmt.Errorf("encode asset: media type %q contains a comma", mt)
	}
	if _, _, err := mime.ParseMediaType(mt); err != nil {
		return "", fmt.Errorf("encode asset: media type %q: %w", mt, err)
	}

	var b strings.Builder
	b.Grow(len(dataPrefix) + len(mt) + len(base64Suffix) + 1 + base64.StdEncoding.EncodedLen(len(a.Data)))
	b.WriteString(dataPrefix)
	b.WriteString(mt)
	b.WriteString(base64Suffix)
	b.WriteByte(',')
	b.WriteString(base64.StdEncoding.EncodeToString(a.Data))
	return b.String(), nil
}

// Decode parses a data URI produced by Encode (or a browser) back into
// an Asset. The returned Data is never nil, even for empty payloads.
func Decode(token string) (*Asset, error) {
	if !strings.HasPrefix(token, dataPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidDataURI, dataPrefix)
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(token, dataPrefix), ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	if !strings.HasSuffix(header, base64Suffix) {
		return nil, fmt.Errorf("%w: payload is not base64 encoded", ErrInvalidDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if data == nil {
		data = []byte{}
	}

	mt := strings.TrimSuffix(header, base64Suffix)
	if mt == "" {
		// RFC 2397 default.
		mt = "text/plain;charset=US-ASCII"
	}
	return &Asset{MediaType: mt, Data: data}, nil
}

func sniff(data []byte) string {
	if len(data) == 0 {
		return DefaultMediaType
	}
	// Detect appends parameters ("; charset=utf-8") for text types;
	// only the bare type is kept.
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mt
}
