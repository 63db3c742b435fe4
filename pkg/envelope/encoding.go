package envelope

import (
	"encoding/base64"
	"strings"
)

// EncodeString encodes binary data as padded URL-safe base64.
func EncodeString(data []byte) string {
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeString decodes URL-safe base64, with or without padding.
// Line breaks and surrounding whitespace are ignored, since some encoders wrap long output.
func DecodeString(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
