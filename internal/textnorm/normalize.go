// Package textnorm cleans up transcribed letter text for display.
//
// Transcripts are stored verbatim; Normalize is applied when a letter is
// read, so the stored original is never lossily rewritten.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var typographic = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'", // low single quote
	"‛", "'", // reversed single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`, // low double quote
	"‟", `"`, // reversed double quote
	"–", "-", // en dash
	"—", "-", // em dash
)

// OCR often drops the space in runs like "page2"
var letterDigit = regexp.MustCompile(`([A-Za-z])([0-9])`)

// Normalize returns text with typographic quotes and dashes made ASCII,
// letter-digit runs split, every other non-ASCII character replaced by a
// space, whitespace collapsed and at most one blank line between paragraphs.
// Normalize(Normalize(s)) == Normalize(s) for any s.
func Normalize(text string) string {
	text = typographic.Replace(text)
	text = letterDigit.ReplaceAllString(text, "$1 $2")
	text = toASCII(text)
	text = collapseWhitespace(text)
	return strings.TrimSpace(text)
}

// toASCII replaces each non-ASCII rune, and each invalid byte, with a space
func toASCII(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		if r >= utf8.RuneSelf {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseWhitespace squeezes horizontal whitespace and blank-line runs
func collapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.TrimRight(squeeze(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// squeeze turns each run of spaces, tabs, form feeds and vertical tabs into one space
func squeeze(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	space := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; c {
		case ' ', '\t', '\f', '\v':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteByte(c)
			space = false
		}
	}
	return b.String()
}
