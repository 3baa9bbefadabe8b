package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is a run of display text, either a query match or not
type Segment struct {
	Text  string
	Match bool
}

// Marker wraps matched text for display
type Marker struct {
	Open  string
	Close string
}

// Bold is the marker used for terminal output
var Bold = Marker{Open: "**", Close: "**"}

// Segments splits text around every case-insensitive occurrence of the
// literal q, scanning left to right without overlap. An empty q yields the
// whole text as a single unmatched segment.
func Segments(text, q string) []Segment {
	if text == "" {
		return nil
	}
	if q == "" {
		return []Segment{{Text: text}}
	}

	var segs []Segment
	start := 0
	for i := 0; i < len(text); {
		if n := foldPrefix(text[i:], q); n > 0 {
			if i > start {
				segs = append(segs, Segment{Text: text[start:i]})
			}
			segs = append(segs, Segment{Text: text[i : i+n], Match: true})
			i += n
			start = i
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if start < len(text) {
		segs = append(segs, Segment{Text: text[start:]})
	}

	return segs
}

// Render joins segs back into text, wrapping each match with m
func Render(segs []Segment, m Marker) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Match {
			b.WriteString(m.Open)
			b.WriteString(s.Text)
			b.WriteString(m.Close)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// foldPrefix returns the byte length of the prefix of s that equals q under
// simple case folding, or 0 if s does not start with q
func foldPrefix(s, q string) int {
	n := 0
	for q != "" {
		if s == "" {
			return 0
		}
		sr, ss := utf8.DecodeRuneInString(s)
		qr, qs := utf8.DecodeRuneInString(q)
		if !equalFold(sr, qr) {
			return 0
		}
		s, q = s[ss:], q[qs:]
		n += ss
	}
	return n
}

func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
