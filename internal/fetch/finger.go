package fetch

import (
	"context"
	"io"
	"net"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
)

// Finger connects to u's host, sends the path segment as the finger "user"
// (or nothing, for a full host listing) followed by CRLF, and interprets
// the response as plain text with autolink extraction.
func Finger(ctx context.Context, u gurl.URL) (Result, error) {
	dialer := &net.Dialer{Timeout: DefaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", u.HostPort())
	if err != nil {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if _, err := conn.Write([]byte(u.Path + "\r\n")); err != nil {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}

	body, err := io.ReadAll(conn)
	if err != nil && !isCleanEOF(err) {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}

	p := page.Page{URL: u, Title: u.Unicode()}
	for _, line := range splitTextLines(body) {
		p.Lines = append(p.Lines, page.ExtractAutolinks(line)...)
	}
	return Result{Kind: ResultPage, Page: p}, nil
}
