// Package sanitize cleans text received from the export server before it
// is shown in a terminal or returned to an MCP client. Error bodies can
// carry colour codes, control characters and multi-line HTML pages.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// CSI sequences (\x1b[...X) and OSC sequences (\x1b]...BEL)
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b\][^\x07]*\x07`)

	whitespace = regexp.MustCompile(`\s+`)
)

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Text strips escape sequences and every control character except
// newline and tab.
func Text(s string) string {
	s = StripANSI(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// OneLine cleans s, collapses whitespace runs to single spaces and cuts the
// result to at most max runes. max <= 0 means no limit.
func OneLine(s string, max int) string {
	s = strings.TrimSpace(whitespace.ReplaceAllString(Text(s), " "))
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
