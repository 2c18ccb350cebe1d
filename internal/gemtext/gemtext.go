// Package gemtext parses the Gemini line-oriented hypertext format
// (MIME type text/gemini) into a page.Page. No gemtext library exists
// anywhere in the wider ecosystem this client draws on, so the parser is a
// small hand-written state machine, mirroring the structure of the other
// hand-rolled line-oriented parser in this codebase (gophermap).
package gemtext

import (
	"strings"
	"time"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
)

// Parse turns gemtext bytes served for u into a Page. Relative links are
// resolved against u. The title is the text of the first level-1 heading
// encountered, or the URL's display form if none is present.
func Parse(u gurl.URL, body []byte) page.Page {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	// A final line terminator ends the last line; it does not start a new one.
	text = strings.TrimSuffix(text, "\n")
	rawLines := strings.Split(text, "\n")

	p := page.Page{URL: u, FetchedAt: time.Now().UTC()}
	preformatted := false

	for _, raw := range rawLines {
		if strings.HasPrefix(raw, "```") {
			preformatted = !preformatted
			continue
		}
		if preformatted {
			p.Lines = append(p.Lines, page.PreformattedLine(raw))
			continue
		}
		if raw == "" {
			p.Lines = append(p.Lines, page.TextLine(""))
			continue
		}

		switch {
		case strings.HasPrefix(raw, "=>"):
			target, label := parseLink(raw)
			resolved, err := gurl.ResolveRelative(u, target)
			if err != nil {
				p.Lines = append(p.Lines, page.TextLine(raw))
				continue
			}
			if label == "" {
				label = target
			}
			p.Lines = append(p.Lines, page.LinkLine(resolved, label, page.KindGeminiLink))
		case strings.HasPrefix(raw, "###"):
			heading := strings.TrimSpace(strings.TrimPrefix(raw, "###"))
			p.Lines = append(p.Lines, page.TextLine(heading))
		case strings.HasPrefix(raw, "##"):
			heading := strings.TrimSpace(strings.TrimPrefix(raw, "##"))
			p.Lines = append(p.Lines, page.TextLine(heading))
		case strings.HasPrefix(raw, "#"):
			heading := strings.TrimSpace(strings.TrimPrefix(raw, "#"))
			if p.Title == "" {
				p.Title = heading
			}
			p.Lines = append(p.Lines, page.TextLine(heading))
		case strings.HasPrefix(raw, "*"):
			item := strings.TrimSpace(strings.TrimPrefix(raw, "*"))
			p.Lines = append(p.Lines, page.TextLine("* "+item))
		case strings.HasPrefix(raw, ">"):
			quote := strings.TrimSpace(strings.TrimPrefix(raw, ">"))
			p.Lines = append(p.Lines, page.TextLine("> "+quote))
		default:
			p.Lines = append(p.Lines, page.ExtractAutolinks(raw)...)
		}
	}

	if p.Title == "" {
		p.Title = u.Unicode()
	}
	return p
}

// parseLink splits a "=> URL label" line into its whitespace-delimited URL
// and remainder label (label may be empty).
func parseLink(raw string) (target, label string) {
	rest := strings.TrimSpace(strings.TrimPrefix(raw, "=>"))
	i := strings.IndexAny(rest, " \t")
	if i < 0 {
		return rest, ""
	}
	return rest[:i], strings.TrimSpace(rest[i+1:])
}
