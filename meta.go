package gemini

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MetaMaxLen is the maximum length of the meta field in bytes.
const MetaMaxLen = 1024

// ErrMeta is wrapped by every error reporting an invalid meta value.
var ErrMeta = errors.New("invalid meta")

// Meta is the text following the status code of a response header.
// It is at most MetaMaxLen bytes of UTF-8 and never contains a line break.
type Meta struct {
	s string
}

// NewMeta returns text as a Meta, failing if it is too long, contains
// CR or LF, or is not valid UTF-8.
func NewMeta(text string) (Meta, error) {
	if len(text) > MetaMaxLen {
		return Meta{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMeta, len(text), MetaMaxLen)
	}
	if strings.ContainsAny(text, "\r\n") {
		return Meta{}, fmt.Errorf("%w: contains a line break", ErrMeta)
	}
	if !utf8.ValidString(text) {
		return Meta{}, fmt.Errorf("%w: not valid UTF-8", ErrMeta)
	}
	return Meta{s: text}, nil
}

// NewMetaLossy never fails. Invalid UTF-8 is replaced, the text is cut
// before its first CR or LF and then truncated to MetaMaxLen bytes
// without splitting a character.
func NewMetaLossy(text string) Meta {
	text = strings.ToValidUTF8(text, "\uFFFD")
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	if len(text) > MetaMaxLen {
		cut := MetaMaxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return Meta{s: text}
}

func (m Meta) String() string { return m.s }

// Len returns the length of the meta in bytes.
func (m Meta) Len() int { return len(m.s) }
