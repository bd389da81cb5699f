package gemini

import (
	"fmt"
	"mime"
	"strings"
)

// MediaType is a MIME type that is known to be valid as the meta of a
// success response.
type MediaType struct {
	meta Meta
}

// Media types every Gemini server needs.
var (
	MediaTypeGemini      = MustParseMediaType("text/gemini")
	MediaTypePlain       = MustParseMediaType("text/plain")
	MediaTypeOctetStream = MustParseMediaType("application/octet-stream")
)

// ParseMediaType validates s as a MIME type, parameters included.
// The text is kept as given so that it is written back unchanged.
func ParseMediaType(s string) (MediaType, error) {
	m, err := NewMeta(s)
	if err != nil {
		return MediaType{}, err
	}
	if _, _, err := mime.ParseMediaType(s); err != nil {
		return MediaType{}, fmt.Errorf("%w: %q is not a MIME type: %v", ErrMeta, s, err)
	}
	if !strings.Contains(strings.SplitN(s, ";", 2)[0], "/") {
		return MediaType{}, fmt.Errorf("%w: %q is missing a subtype", ErrMeta, s)
	}
	return MediaType{meta: m}, nil
}

// MustParseMediaType is like ParseMediaType but panics on error.
func MustParseMediaType(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return mt
}

// NewMIMEMeta is the strict Meta constructor for a MIME-typed context.
func NewMIMEMeta(s string) (Meta, error) {
	mt, err := ParseMediaType(s)
	if err != nil {
		return Meta{}, err
	}
	return mt.meta, nil
}

// Essence returns the lower-cased type/subtype without parameters.
func (mt MediaType) Essence() string {
	essence := strings.SplitN(mt.meta.s, ";", 2)[0]
	return strings.ToLower(strings.TrimSpace(essence))
}

// Meta returns the media type as a meta value.
func (mt MediaType) Meta() Meta { return mt.meta }

func (mt MediaType) String() string { return mt.meta.s }

// IsZero reports whether mt was not produced by ParseMediaType.
func (mt MediaType) IsZero() bool { return mt.meta.s == "" }
