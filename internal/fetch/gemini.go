package fetch

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/jansc/ncgopher/internal/applog"
	"github.com/jansc/ncgopher/internal/gemtext"
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
	"github.com/jansc/ncgopher/internal/trust"
	"golang.org/x/text/encoding/htmlindex"
)

const maxRedirects = 5

// ClientCert is an identity offered during the TLS handshake for requests
// whose URL starts with Prefix. The longest matching prefix wins.
type ClientCert struct {
	Prefix string
	Cert   tls.Certificate
}

// ClientCertStore resolves the identity to present for a given URL.
type ClientCertStore interface {
	// Lookup returns the certificate to offer for u, or ok=false if none
	// of the configured bindings' prefixes match.
	Lookup(u gurl.URL) (tls.Certificate, bool)
}

// Gemini fetches u following the status/redirect/charset rules of the
// Gemini protocol. certs may be nil (no client identities configured).
func Gemini(ctx context.Context, u gurl.URL, store *trust.Store, decide TrustDecider, certs ClientCertStore, sink io.Writer, progress ProgressFunc) (Result, error) {
	return geminiChain(ctx, u, store, decide, certs, sink, progress, nil)
}

func geminiChain(ctx context.Context, u gurl.URL, store *trust.Store, decide TrustDecider, certs ClientCertStore, sink io.Writer, progress ProgressFunc, chain []string) (Result, error) {
	for _, seen := range chain {
		if seen == u.String() {
			return Result{}, Wrap(KindRedirect, u.String(), errRedirectLoop)
		}
	}
	if len(chain) > maxRedirects {
		return Result{}, Wrap(KindRedirect, u.String(), errTooManyRedirects)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         u.Host,
	}
	if certs != nil {
		if cert, ok := certs.Lookup(u); ok {
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	dialer := &net.Dialer{Timeout: DefaultTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", u.HostPort(), tlsConfig)
	if err != nil {
		return Result{}, Wrap(KindTLS, u.String(), err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	if err := verifyPinned(conn.ConnectionState(), u.Host, u.Port, store, decide); err != nil {
		return Result{}, err
	}

	wire, err := u.Wire()
	if err != nil {
		return Result{}, Wrap(KindProtocol, u.String(), err)
	}
	if _, err := conn.Write(wire); err != nil {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}

	reader := bufio.NewReader(conn)
	header, err := reader.ReadString('\n')
	if err != nil {
		return Result{}, Wrap(KindProtocol, u.String(), fmt.Errorf("%w: %v", errMalformedHeader, err))
	}
	header = strings.TrimRight(header, "\r\n")
	if len(header) < 2 {
		return Result{}, Wrap(KindProtocol, u.String(), errMalformedHeader)
	}
	status := header[:2]
	meta := strings.TrimSpace(header[2:])
	if _, err := parseStatus(status); err != nil {
		return Result{}, Wrap(KindProtocol, u.String(), errMalformedHeader)
	}

	switch status[0] {
	case '1':
		return Result{Kind: ResultNeedQuery, QueryPrompt: meta, QueryURL: u}, nil

	case '2':
		return handleSuccess(u, meta, reader, sink, progress)

	case '3':
		target, err := gurl.ResolveRelative(u, meta)
		if err != nil {
			return Result{}, Wrap(KindRedirect, u.String(), err)
		}
		return geminiChain(ctx, target, store, decide, certs, sink, progress, append(chain, u.String()))

	case '4', '5', '6':
		return Result{}, Wrap(KindProtocol, u.String(), fmt.Errorf("server status %s: %s", status, meta))

	default:
		return Result{}, Wrap(KindProtocol, u.String(), errMalformedHeader)
	}
}

func parseStatus(status string) (int, error) {
	if len(status) != 2 || status[0] < '1' || status[0] > '6' {
		return 0, errMalformedHeader
	}
	return int(status[0] - '0'), nil
}

func handleSuccess(u gurl.URL, meta string, reader *bufio.Reader, sink io.Writer, progress ProgressFunc) (Result, error) {
	mediaType, params, err := mime.ParseMediaType(meta)
	if err != nil {
		mediaType, params = meta, nil
	}

	if mediaType == "text/gemini" {
		body, err := readAllLenient(reader)
		if err != nil {
			return Result{}, Wrap(KindNetwork, u.String(), err)
		}
		return Result{Kind: ResultPage, Page: gemtext.Parse(u, body)}, nil
	}

	if strings.HasPrefix(mediaType, "text/") {
		if err := gateCharset(params["charset"]); err != nil {
			return Result{}, Wrap(KindCharset, u.String(), fmt.Errorf("%s: %w", meta, err))
		}
		body, err := readAllLenient(reader)
		if err != nil {
			return Result{}, Wrap(KindNetwork, u.String(), err)
		}
		p := page.Page{URL: u, Title: u.Unicode()}
		for _, line := range splitTextLines(body) {
			p.Lines = append(p.Lines, page.ExtractAutolinks(line)...)
		}
		return Result{Kind: ResultPage, Page: p}, nil
	}

	n, err := io.Copy(progressWriter{sink, progress}, reader)
	if err != nil && !isCleanEOF(err) {
		return Result{}, Wrap(KindNetwork, u.String(), err)
	}
	return Result{Kind: ResultDownloadDone, BytesWritten: n}, nil
}

// gateCharset rejects any declared charset other than utf-8/us-ascii. The
// spellings "utf-8", "utf8", "us-ascii" and "ascii" are matched
// case-insensitively; any other name is resolved through htmlindex and
// accepted only if it resolves to utf-8.
func gateCharset(charset string) error {
	if charset == "" {
		return nil
	}
	norm := strings.ToLower(strings.TrimSpace(charset))
	if norm == "utf-8" || norm == "utf8" || norm == "us-ascii" || norm == "ascii" {
		return nil
	}
	if enc, err := htmlindex.Get(charset); err == nil {
		if canonical, err := htmlindex.Name(enc); err == nil && canonical == "utf-8" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errUnsupportedCharset, charset)
}

// readAllLenient tolerates a TLS session closing without close_notify after
// at least one byte has been read — the source client's documented
// leniency toward truncated Gemini streams. The condition is logged, not
// surfaced as an error.
func readAllLenient(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		if isCleanEOF(err) || strings.Contains(err.Error(), "unexpected EOF") {
			if len(body) > 0 {
				applog.Warn("gemini.truncated_close", "bytes", len(body))
				return body, nil
			}
		}
		return nil, err
	}
	return body, nil
}
