// Package page is the decoded, navigable representation of a fetched
// response: a sequence of display lines, each plain text, a preformatted
// block line, or a link with a target URL and optional label.
package page

import (
	"regexp"
	"time"

	"github.com/jansc/ncgopher/internal/gurl"
)

// LineKind records a Link line's origin (gopher menu entry, gemini link,
// autolink or www). The controller renders every link the same way,
// whatever its kind.
type LineKind int

const (
	KindNone LineKind = iota
	KindGopherMenuEntry
	KindGeminiLink
	KindAutolink
	KindWWW
)

// Line is one row of a rendered Page. Exactly one of Text/Preformatted is
// meaningful unless Kind != KindNone, in which case Target and Label apply.
type Line struct {
	Text         string
	Preformatted bool
	Target       *gurl.URL
	Label        string
	Kind         LineKind
}

// IsLink reports whether this line carries a navigable target.
func (l Line) IsLink() bool { return l.Target != nil }

// TextLine constructs a plain text display line.
func TextLine(s string) Line { return Line{Text: s} }

// PreformattedLine constructs a verbatim, never-wrapped display line.
func PreformattedLine(s string) Line { return Line{Text: s, Preformatted: true} }

// LinkLine constructs a navigable line.
func LinkLine(target gurl.URL, label string, kind LineKind) Line {
	return Line{Text: label, Target: &target, Label: label, Kind: kind}
}

// Page is the fully decoded representation of one fetched resource.
type Page struct {
	URL       gurl.URL
	Title     string
	Lines     []Line
	FetchedAt time.Time
}

var autolinkPattern = regexp.MustCompile(`(gopher|gemini|finger|https?)://[^\s<>"']+`)

// ExtractAutolinks scans a plain text line for bare protocol URLs and
// returns it split into Text/Link line fragments in left-to-right order.
// Idempotent: re-running over an already-split slice's concatenated text
// reproduces the same split.
func ExtractAutolinks(text string) []Line {
	matches := autolinkPattern.FindAllStringIndex(text, -1)
	if matches == nil {
		return []Line{TextLine(text)}
	}

	var out []Line
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > pos {
			out = append(out, TextLine(text[pos:start]))
		}
		raw := text[start:end]
		u, err := gurl.Parse(raw)
		if err != nil {
			// Not actually parseable despite matching the prefix regex;
			// keep it as plain text rather than emit a dangling link.
			out = append(out, TextLine(raw))
		} else {
			out = append(out, LinkLine(u, raw, KindAutolink))
		}
		pos = end
	}
	if pos < len(text) {
		out = append(out, TextLine(text[pos:]))
	}
	return out
}

// Wrap soft-wraps non-preformatted lines to width columns (0 = no wrap). It
// is a pure function of (lines, width); preformatted lines pass through
// verbatim.
func Wrap(lines []Line, width int) []Line {
	if width <= 0 {
		return lines
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Preformatted || l.IsLink() || len(l.Text) <= width {
			out = append(out, l)
			continue
		}
		for _, chunk := range wrapText(l.Text, width) {
			out = append(out, TextLine(chunk))
		}
	}
	return out
}

func wrapText(s string, width int) []string {
	words := splitWords(s)
	if len(words) == 0 {
		return []string{s}
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur = cur + " " + w
	}
	lines = append(lines, cur)
	return lines
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}
