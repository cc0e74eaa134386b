// Package sanitize normalizes generated document text into the subset
// the PDF renderer can encode (Latin-1, explicit newlines, no markup).
// Sanitize is pure and idempotent: running it over its own output is a
// no-op, which keeps re-renders byte-stable.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

type Mode string

const (
	// FromMarkup converts block-level markup boundaries to newlines and
	// strips the remaining tags before normalizing.
	FromMarkup Mode = "markup"
	// FromPlain skips markup handling and only normalizes characters.
	FromPlain Mode = "plain"
)

var (
	paragraphEndRE = regexp.MustCompile(`(?i)</(p|div|h[1-6]|tr|blockquote)\s*>`)
	lineBreakRE    = regexp.MustCompile(`(?i)<br\s*/?>|</li\s*>`)
	tagRE          = regexp.MustCompile(`<[^<>]+>`)
	headingRE      = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	blankRunRE  = regexp.MustCompile(`\n{3,}`)
	asciiOnlyRE = regexp.MustCompile(`[^\x20-\x7e\n]`)
)

// Typographic punctuation and glyphs mapped to their nearest ASCII
// equivalent before the Latin-1 cut is applied.
var punctuation = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-",
	"—", "-", "−", "-",
	"‘", "'", "’", "'", "‚", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"…", "...",
	"•", "-", "·", "-", "▪", "-", "●", "-",
	"☐", "[ ]", "☑", "[x]", "☒", "[x]",
	"✓", "x", "✔", "x",
	" ", " ",
	"\t", " ",
)

// Sanitize applies a fixed, ordered set of substitution rules. The
// ordering matters: entities are decoded before tags are stripped so a
// literal "&lt;p&gt;" cannot survive one pass and become a tag the next.
func Sanitize(raw string, mode Mode) string {
	s := normalizeNewlines(raw)
	s = decodeEntities(s)
	if mode == FromMarkup {
		s = markupToPlain(s)
	}
	s = punctuation.Replace(s)
	s = dropUnencodable(s)
	s = collapseBlankLines(s)
	s = strings.TrimSpace(s)
	if !encodable(s) {
		return stripAggressively(s)
	}
	return s
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// decodeEntities unescapes to a fixpoint so multiply-encoded input
// ("&amp;amp;nbsp;") cannot leave a decodable entity in the output.
// Every successful unescape strictly shrinks the string, so the loop
// terminates without a depth cap.
func decodeEntities(s string) string {
	for {
		next := html.UnescapeString(s)
		if next == s {
			return s
		}
		s = next
	}
}

func markupToPlain(s string) string {
	s = paragraphEndRE.ReplaceAllString(s, "\n\n")
	s = lineBreakRE.ReplaceAllString(s, "\n")
	s = tagRE.ReplaceAllString(s, "")
	s = headingRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return s
}

// dropUnencodable removes every rune the target code page cannot carry:
// anything above U+00FF plus control characters other than newline.
func dropUnencodable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		case r >= 0xa1 && r <= 0xff:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return blankRunRE.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

func encodable(s string) bool {
	for _, r := range s {
		if r > 0xff {
			return false
		}
	}
	return true
}

// stripAggressively is the sanitization-failure fallback: keep only
// printable ASCII and newlines. It should not trigger in practice.
func stripAggressively(s string) string {
	return strings.TrimSpace(asciiOnlyRE.ReplaceAllString(s, ""))
}
