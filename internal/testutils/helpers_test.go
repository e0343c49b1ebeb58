package testutils

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempRoot(t *testing.T) {
	root := CreateTempRoot(t, map[string]string{
		"index.html":               "<p>hi</p>",
		"private/pages/home.smscr": "bg",
	})

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(data))

	info, err := os.Stat(filepath.Join(root, "private", "pages"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSplitResponse(t *testing.T) {
	header, body := SplitResponse(t, "HTTP/1.1 200 OK\r\nA: b\r\n\r\nbody\r\n\r\nmore")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nA: b", header)
	assert.Equal(t, "body\r\n\r\nmore", body)
}

func TestRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(append([]byte("echo:"), buf[:n]...))
	}()

	assert.Equal(t, "echo:ping", RoundTrip(t, ln.Addr().String(), "ping"))
}
