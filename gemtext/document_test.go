package gemtext

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyDocument(t *testing.T) {
	require.Equal(t, "", NewDocument().String())
}

func TestDocumentLines(t *testing.T) {
	for want, doc := range map[string]*Document{
		"\n":                                   NewDocument().AddBlankLine(),
		"hello\n * world!\n":                   NewDocument().AddText("hello\n* world!"),
		"=> https://wikipedia.org Wiki Wiki\n": NewDocument().AddLink("https://wikipedia.org", "Wiki\n\nWiki"),
		"=> https://wikipedia.org\n":           NewDocument().AddLinkWithoutLabel("https://wikipedia.org"),
		"```\na\n b\n  c\n```\n":               NewDocument().AddPreformatted("a\n b\n  c"),
		"```rust\nfn main() {\n}\n```\n":       NewDocument().AddPreformattedWithAlt("rust", "fn main() {\n}\n"),
		"# Welcome!\n":                         NewDocument().AddHeading(H1, "Welcome!"),
		"### Deep\n":                           NewDocument().AddHeading(H3, "Deep"),
		"* milk\n* eggs\n":                     NewDocument().AddUnorderedListItem("milk").AddUnorderedListItem("eggs"),
		"> I think,\n> therefore I am\n":       NewDocument().AddQuote("I think,\ntherefore I am"),
	} {
		require.Equal(t, want, doc.String())
	}
}

func TestTextEscaping(t *testing.T) {
	doc := NewDocument().AddText("=> not a link\n```\n# not a heading\n> not a quote\nplain\r\nend")
	require.Equal(t, " => not a link\n ```\n # not a heading\n > not a quote\nplain\nend\n", doc.String())
}

func TestPreformattedEscaping(t *testing.T) {
	doc := NewDocument().AddPreformattedWithAlt("go\nlang", "# kept\n```\n=> kept")
	require.Equal(t, "```go lang\n# kept\n ```\n=> kept\n```\n", doc.String())
}

func TestHeadingsAndItemsStayOnOneLine(t *testing.T) {
	doc := NewDocument().
		AddHeading(H2, "two\nlines").
		AddUnorderedListItem("one\r\ntwo").
		AddHeading(HeadingLevel(7), "clamped").
		AddHeading(HeadingLevel(0), "clamped")
	require.Equal(t, "## two lines\n* one two\n### clamped\n# clamped\n", doc.String())
}

func TestInvalidLinks(t *testing.T) {
	doc := NewDocument().
		AddLink("", "empty").
		AddLink("has space", "space").
		AddLink("%zz", "escape").
		AddLink("/relative/path", "ok")
	require.Equal(t, "=> . empty\n=> . space\n=> . escape\n=> /relative/path ok\n", doc.String())
}

func TestWriteTo(t *testing.T) {
	doc := NewDocument().AddHeading(H1, "Title").AddBlankLine().AddText("body")

	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "# Title\n\nbody\n", buf.String())
	require.Equal(t, buf.Bytes(), doc.Bytes())
}
