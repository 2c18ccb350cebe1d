package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/jansc/ncgopher/internal/gophermap"
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
	"github.com/jansc/ncgopher/internal/trust"
)

// DefaultTimeout bounds worker lifetime for connect/read/write, per the
// concurrency model's suspension-point budget.
const DefaultTimeout = 10 * time.Second

// Gopher fetches u, a gopher-scheme URL. If u.Port != 70 it first attempts
// TLS and falls back to plaintext on handshake failure, matching the
// source client's opportunistic-TLS convention for non-standard ports.
func Gopher(ctx context.Context, u gurl.URL, store *trust.Store, decide TrustDecider, sink io.Writer, progress ProgressFunc) (Result, error) {
	if u.ItemType.IsQuery() && u.Query == "" {
		return Result{Kind: ResultNeedQuery, QueryPrompt: "Search", QueryURL: u}, nil
	}

	wire, err := u.Wire()
	if err != nil {
		return Result{}, Wrap(KindURLParse, u.String(), err)
	}

	dialer := &net.Dialer{Timeout: DefaultTimeout}
	addr := u.HostPort()

	var conn net.Conn
	if u.Port != 70 {
		tlsConn, tlsErr := tryTLS(ctx, dialer, addr, u, store, decide)
		if tlsErr == nil {
			conn = tlsConn
		}
	}
	if conn == nil {
		plainConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return Result{}, Wrap(KindNetwork, u.String(), err)
		}
		conn = plainConn
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	if _, err := conn.Write(wire); err != nil {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}

	if u.ItemType.IsDownload() {
		n, err := io.Copy(progressWriter{sink, progress}, conn)
		if err != nil && !isCleanEOF(err) {
			return Result{}, Wrap(KindNetwork, u.String(), err)
		}
		return Result{Kind: ResultDownloadDone, BytesWritten: n}, nil
	}

	body, err := io.ReadAll(conn)
	if err != nil && !isCleanEOF(err) {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}

	if u.ItemType.IsDir() || u.ItemType.IsQuery() {
		return Result{Kind: ResultPage, Page: gophermap.Parse(u, body)}, nil
	}

	p := page.Page{URL: u, Title: u.Unicode()}
	for _, line := range splitTextLines(body) {
		p.Lines = append(p.Lines, page.ExtractAutolinks(line)...)
	}
	return Result{Kind: ResultPage, Page: p}, nil
}

// tryTLS attempts a TLS handshake for non-standard-port gopher ("gophers"
// convention), consulting the trust store exactly as the Gemini fetcher
// does. Any failure here is swallowed by the caller, which falls back to
// plaintext.
func tryTLS(ctx context.Context, dialer *net.Dialer, addr string, u gurl.URL, store *trust.Store, decide TrustDecider) (net.Conn, error) {
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         u.Host,
	})
	if err != nil {
		return nil, err
	}
	if err := verifyPinned(conn.ConnectionState(), u.Host, u.Port, store, decide); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func verifyPinned(state tls.ConnectionState, host string, port int, store *trust.Store, decide TrustDecider) error {
	if len(state.PeerCertificates) == 0 {
		return Wrap(KindTLS, host, errNoPeerCert)
	}
	leaf := state.PeerCertificates[0]
	verdict, fp := store.Check(host, port, leaf.Raw)
	switch verdict {
	case trust.Ok:
		return nil
	case trust.New:
		if decide(host, port, nil, fp) {
			return store.Commit(host, port, fp)
		}
		return Wrap(KindTrustReject, host, errTrustRejected)
	case trust.Mismatch:
		old, _ := store.Existing(host, port)
		if decide(host, port, &old, fp) {
			return store.Commit(host, port, fp)
		}
		return Wrap(KindTrustReject, host, errTrustRejected)
	}
	return nil
}

func splitTextLines(body []byte) []string {
	var lines []string
	start := 0
	for i := 0; i < len(body); i++ {
		if body[i] == '\n' {
			end := i
			if end > start && body[end-1] == '\r' {
				end--
			}
			lines = append(lines, string(body[start:end]))
			start = i + 1
		}
	}
	if start < len(body) {
		lines = append(lines, string(body[start:]))
	}
	return lines
}

func isCleanEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

type progressWriter struct {
	w        io.Writer
	progress ProgressFunc
}

func (p progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if p.progress != nil && n > 0 {
		p.progress(int64(n))
	}
	return n, err
}
