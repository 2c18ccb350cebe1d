package fetch

import (
	"context"
	"net"
	"testing"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerFetchesPlainTextReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		assert.Equal(t, "jrandom\r\n", string(buf[:n]))
		conn.Write([]byte("Login: jrandom\nPlan: hello there\n"))
	}()

	host, port := splitHostPortForTest(t, ln.Addr().String())
	u := gurl.URL{Scheme: "finger", Host: host, Port: port, Path: "jrandom"}

	result, err := Finger(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, ResultPage, result.Kind)
	require.Len(t, result.Page.Lines, 2)
	assert.Equal(t, "Login: jrandom", result.Page.Lines[0].Text)
}

func TestFingerEmptyPathRequestsHostListing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		assert.Equal(t, "\r\n", string(buf[:n]))
		conn.Write([]byte("jrandom  Active  pts/0\n"))
	}()

	host, port := splitHostPortForTest(t, ln.Addr().String())
	u := gurl.URL{Scheme: "finger", Host: host, Port: port, Path: ""}

	result, err := Finger(context.Background(), u)
	require.NoError(t, err)
	assert.Len(t, result.Page.Lines, 1)
}
