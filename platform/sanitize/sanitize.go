// Package sanitize cleans free text typed into the dashboards before it is
// stored or exported.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// MaxRemarksLength bounds stored remarks, in runes.
const MaxRemarksLength = 1000

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
	).Replace(result)
	// entity decoding can produce new tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips HTML and collapses runs of whitespace.
func Text(s string) string {
	return whitespaceRegex.ReplaceAllString(StripHTML(s), " ")
}

// Remarks is Text truncated to MaxRemarksLength runes.
func Remarks(s string) string {
	out := Text(s)
	if utf8.RuneCountInString(out) <= MaxRemarksLength {
		return out
	}
	return string([]rune(out)[:MaxRemarksLength])
}

// CSVCell neutralizes values a spreadsheet would evaluate as a formula.
func CSVCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
