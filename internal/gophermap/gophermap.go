// Package gophermap parses the tab-separated Gopher menu format into a
// page.Page. Each line is "<type><display>\t<selector>\t<host>\t<port>",
// terminated by a lone "." line; malformed lines degrade to info text
// rather than aborting the parse.
package gophermap

import (
	"strconv"
	"strings"
	"time"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
)

// Parse turns gophermap bytes served in response to u into a Page. It never
// returns an error: any line that doesn't fit the expected shape is rendered
// as plain info text, and a missing terminator is tolerated.
func Parse(u gurl.URL, body []byte) page.Page {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	rawLines := strings.Split(text, "\n")

	p := page.Page{URL: u, FetchedAt: time.Now().UTC()}
	for _, raw := range rawLines {
		if raw == "." {
			break
		}
		if raw == "" {
			continue
		}
		line, ok := parseLine(raw)
		if !ok {
			p.Lines = append(p.Lines, page.TextLine(raw))
			continue
		}
		p.Lines = append(p.Lines, line)
	}
	if p.Title == "" {
		p.Title = u.Unicode()
	}
	return p
}

// parseLine parses a single gophermap entry line. ok is false when the line
// doesn't have the minimum tab-separated shape; callers fall back to
// rendering it as plain text.
func parseLine(raw string) (line page.Line, ok bool) {
	if raw == "" {
		return page.Line{}, false
	}
	itemType := gurl.Decode(raw[0])
	rest := raw[1:]
	fields := strings.Split(rest, "\t")

	display := fields[0]
	if itemType.IsInline() && len(fields) == 1 {
		return page.TextLine(stripANSI(display)), true
	}
	if len(fields) < 4 {
		return page.Line{}, false
	}

	selector := fields[1]
	host := fields[2]
	portStr := strings.TrimRight(fields[3], "\r")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return page.Line{}, false
	}

	if itemType == gurl.ItemInfo {
		return page.TextLine(stripANSI(display)), true
	}

	target := gurl.URL{
		Scheme:   "gopher",
		Host:     host,
		Port:     port,
		ItemType: itemType,
		Path:     selector,
	}
	label := itemType.Label()
	if label != "" {
		display = label + " " + display
	}
	return page.LinkLine(target, display, page.KindGopherMenuEntry), true
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inEscape {
			if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				inEscape = false
			}
			continue
		}
		if c == 0x1b {
			inEscape = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
