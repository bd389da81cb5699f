// Package gemtext builds documents in Gemini's text/gemini markup.
//
// Every method takes arbitrary text and escapes it so that it renders as
// the kind of line it was added as:
//
//	doc := gemtext.NewDocument().
//		AddHeading(gemtext.H1, "Heading 1").
//		AddText("text").
//		AddLink("gemini://gemini.circumlunar.space", "Project Gemini")
//
// A Document is independent of the protocol; use its String or WriteTo
// methods to produce a response body.
package gemtext

import (
	"bytes"
	"io"
	"net/url"
	"strings"
)

// Line starts with a meaning in text/gemini.
const (
	linkStart         = "=>"
	preformattedStart = "```"
	headingStart      = "#"
	listItemStart     = "*"
	quoteStart        = ">"
)

var specialStarts = []string{linkStart, preformattedStart, headingStart, listItemStart, quoteStart}

// HeadingLevel is the level of a heading line.
type HeadingLevel int

const (
	H1 HeadingLevel = iota + 1 // #
	H2                         // ##
	H3                         // ###
)

// Document represents a Gemini document as a sequence of lines.
type Document struct {
	items []item
}

type itemKind int

const (
	kindText itemKind = iota
	kindLink
	kindPreformatted
	kindHeading
	kindListItem
	kindQuote
)

type item struct {
	kind  itemKind
	text  string   // text, label, alt text or heading text
	uri   string   // links only
	lines []string // preformatted only
	level HeadingLevel
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return new(Document)
}

func (d *Document) add(items ...item) *Document {
	d.items = append(d.items, items...)
	return d
}

// AddBlankLine adds an empty line.
func (d *Document) AddBlankLine() *Document {
	return d.add(item{kind: kindText})
}

// AddText adds one text line per line of text. A line that would
// otherwise be read as a link, heading, list item, quote or
// preformatting toggle is prefixed with a space.
func (d *Document) AddText(text string) *Document {
	for _, line := range lines(text) {
		d.add(item{kind: kindText, text: escapeLine(line, specialStarts...)})
	}
	return d
}

// AddLink adds a link line. A uri that does not parse is replaced by
// ".". Line breaks in label are collapsed into single spaces.
func (d *Document) AddLink(uri, label string) *Document {
	return d.add(item{kind: kindLink, uri: linkURI(uri), text: stripNewlines(label)})
}

// AddLinkWithoutLabel adds a link line showing only the URI.
func (d *Document) AddLinkWithoutLabel(uri string) *Document {
	return d.add(item{kind: kindLink, uri: linkURI(uri)})
}

// AddPreformatted adds a block of preformatted text.
func (d *Document) AddPreformatted(text string) *Document {
	return d.AddPreformattedWithAlt("", text)
}

// AddPreformattedWithAlt adds a block of preformatted text whose opening
// toggle carries alt, e.g. a language name. Lines of text starting with
// ``` are prefixed with a space so that they do not close the block.
func (d *Document) AddPreformattedWithAlt(alt, text string) *Document {
	src := lines(text)
	escaped := make([]string, len(src))
	for i, line := range src {
		escaped[i] = escapeLine(line, preformattedStart)
	}
	return d.add(item{kind: kindPreformatted, text: stripNewlines(alt), lines: escaped})
}

// AddHeading adds a heading. Line breaks in text are collapsed.
func (d *Document) AddHeading(level HeadingLevel, text string) *Document {
	if level < H1 {
		level = H1
	}
	if level > H3 {
		level = H3
	}
	return d.add(item{kind: kindHeading, level: level, text: stripNewlines(text)})
}

// AddUnorderedListItem adds a list item. Line breaks in text are collapsed.
func (d *Document) AddUnorderedListItem(text string) *Document {
	return d.add(item{kind: kindListItem, text: stripNewlines(text)})
}

// AddQuote adds one quote line per line of text.
func (d *Document) AddQuote(text string) *Document {
	for _, line := range lines(text) {
		d.add(item{kind: kindQuote, text: line})
	}
	return d
}

// WriteTo writes the document as text/gemini, one LF after every line.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, it := range d.items {
		switch it.kind {
		case kindText:
			buf.WriteString(it.text)
		case kindLink:
			buf.WriteString(linkStart + " " + it.uri)
			if it.text != "" {
				buf.WriteString(" " + it.text)
			}
		case kindPreformatted:
			buf.WriteString(preformattedStart + it.text + "\n")
			for _, line := range it.lines {
				buf.WriteString(line + "\n")
			}
			buf.WriteString(preformattedStart)
		case kindHeading:
			buf.WriteString(strings.Repeat(headingStart, int(it.level)) + " " + it.text)
		case kindListItem:
			buf.WriteString(listItemStart + " " + it.text)
		case kindQuote:
			buf.WriteString(quoteStart + " " + it.text)
		}
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

// Bytes returns the rendered document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	d.WriteTo(&buf)
	return buf.Bytes()
}

func (d *Document) String() string {
	return string(d.Bytes())
}

// lines splits text into lines the way a reader would: LF or CRLF
// terminated, no empty line after a final terminator.
func lines(text string) []string {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func escapeLine(line string, starts ...string) string {
	line = strings.TrimSuffix(line, "\r")
	for _, start := range starts {
		if strings.HasPrefix(line, start) {
			return " " + line
		}
	}
	return line
}

func stripNewlines(text string) string {
	if !strings.ContainsAny(text, "\r\n") {
		return text
	}
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' })
	return strings.Join(parts, " ")
}

func linkURI(uri string) string {
	if uri == "" || strings.ContainsAny(uri, " \t\r\n") {
		return "."
	}
	if _, err := url.Parse(uri); err != nil {
		return "."
	}
	return uri
}
