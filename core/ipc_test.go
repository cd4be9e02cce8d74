package core

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPCReply(t *testing.T) {
	r, _, _ := newTestRouter(t, addrA, testProtocol())
	_, _ = r.RouteOutput(addrC)

	res := IPCReply(r, "inspect")
	assert.Contains(t, res, "Seqno: 3")
	assert.Contains(t, res, "Neighbours:\n (none)")
	assert.Contains(t, res, " - 10.0.0.3\n")
	assert.Contains(t, res, "Route Table:")

	assert.NotContains(t, IPCReply(r, "routes"), "Neighbours")
	assert.True(t, strings.HasPrefix(IPCReply(r, "bogus"), "error: "))
}

func TestIPCRoundTrip(t *testing.T) {
	IPCDir = t.TempDir()
	path := IPCSocketPath("a")
	assert.Equal(t, filepath.Join(IPCDir, "a.sock"), path)

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
		done <- HandleIPCGet(rw, func(cmd string) (string, error) {
			return "got " + cmd + "\n", nil
		})
	}()

	res, err := IPCGet("a", "routes")
	require.NoError(t, err)
	assert.Equal(t, "got routes\n", res)
	require.NoError(t, <-done)
}

func TestIPCGetNoNode(t *testing.T) {
	IPCDir = t.TempDir()
	_, err := IPCGet("missing", "inspect")
	assert.Error(t, err)
}
