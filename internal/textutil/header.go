package textutil

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
)

// headerDecoder resolves encoded-words in any charset go-message knows about,
// not only the UTF-8/ASCII/Latin-1 set the standard library handles.
var headerDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes RFC 2047 encoded-words in a raw header value and
// repairs the result to valid UTF-8. When decoding fails the raw value is
// kept, so a malformed header never loses its text.
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	out := raw
	if strings.Contains(raw, "=?") {
		if decoded, err := headerDecoder.DecodeHeader(raw); err == nil {
			out = decoded
		}
	}
	return EnsureUTF8(out)
}
