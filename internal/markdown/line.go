package markdown

import (
	"regexp"
	"strings"
)

var (
	headerRe    = regexp.MustCompile(`^(#+)\s(\S.*)$`)
	lineBreakRe = regexp.MustCompile(`\r\n|\r|\n`)
)

// reverseMarker is the header text that flips front and back of a card.
const reverseMarker = "<>"

type lineKind int

const (
	lineContent lineKind = iota
	lineHeader
	lineReverse
)

// line is one classified physical line. depth and text are only meaningful
// for header and reverse-marker lines; content lines keep their raw text.
type line struct {
	kind  lineKind
	depth int
	text  string
}

func (l line) boundary() bool {
	return l.kind != lineContent
}

// classify tags raw as a header, a reverse marker or content. Anything that
// does not look exactly like a header is content.
func classify(raw string) line {
	m := headerRe.FindStringSubmatch(raw)
	if m == nil {
		return line{kind: lineContent, text: raw}
	}
	text := strings.TrimSpace(m[2])
	kind := lineHeader
	if text == reverseMarker {
		kind = lineReverse
	}
	return line{kind: kind, depth: len(m[1]), text: text}
}

func splitLines(text string) []string {
	return lineBreakRe.Split(text, -1)
}
