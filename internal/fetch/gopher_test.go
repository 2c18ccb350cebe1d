package fetch

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveGopherPlaintext listens on a loopback port and answers every
// connection with respond. Gopher() on a non-standard port probes TLS
// before falling back to plaintext, so the first accepted connection (the
// doomed TLS attempt) is read and closed without a reply; the second
// (the plaintext fallback) gets the real response.
func serveGopherPlaintext(t *testing.T, respond func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		tlsProbe, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 256)
		tlsProbe.Read(buf)
		tlsProbe.Close()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		respond(conn)
	}()
	return ln.Addr().String()
}

func TestGopherFetchMenuFallsBackToPlaintext(t *testing.T) {
	addr := serveGopherPlaintext(t, func(conn net.Conn) {
		buf := make([]byte, 256)
		conn.Read(buf)
		conn.Write([]byte("i Welcome\t\texample.org\t70\r\n1About\t/about\texample.org\t70\r\n.\r\n"))
	})
	host, port := splitHostPortForTest(t, addr)

	u := gurl.URL{Scheme: "gopher", Host: host, Port: port, ItemType: gurl.ItemMenu, Path: ""}

	store, err := trust.Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	result, err := Gopher(context.Background(), u, store, func(string, int, *string, string) bool { return true }, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultPage, result.Kind)
	assert.Len(t, result.Page.Lines, 2)
}

func TestGopherFetchTextItem(t *testing.T) {
	addr := serveGopherPlaintext(t, func(conn net.Conn) {
		buf := make([]byte, 256)
		conn.Read(buf)
		conn.Write([]byte("hello world\nsecond line\n"))
	})
	host, port := splitHostPortForTest(t, addr)

	u := gurl.URL{Scheme: "gopher", Host: host, Port: port, ItemType: gurl.ItemText, Path: "readme.txt"}
	store, err := trust.Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	result, err := Gopher(context.Background(), u, store, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultPage, result.Kind)
	assert.Equal(t, "hello world", result.Page.Lines[0].Text)
}

func TestGopherDownloadStreamsToSink(t *testing.T) {
	addr := serveGopherPlaintext(t, func(conn net.Conn) {
		buf := make([]byte, 256)
		conn.Read(buf)
		conn.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	})
	host, port := splitHostPortForTest(t, addr)

	u := gurl.URL{Scheme: "gopher", Host: host, Port: port, ItemType: gurl.ItemBinary, Path: "file.bin"}
	store, err := trust.Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	var sink bytes.Buffer
	result, err := Gopher(context.Background(), u, store, nil, &sink, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultDownloadDone, result.Kind)
	assert.Equal(t, int64(4), result.BytesWritten)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, sink.Bytes())
}

func TestGopherQueryWithoutTermNeedsQuery(t *testing.T) {
	u := gurl.URL{Scheme: "gopher", Host: "example.org", Port: 70, ItemType: gurl.ItemSearch, Path: "search"}
	result, err := Gopher(context.Background(), u, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultNeedQuery, result.Kind)
}

func splitHostPortForTest(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return host, port
}
