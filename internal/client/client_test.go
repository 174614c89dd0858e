package client

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// fakeDaemon answers every request with the handler's response, echoing
// the request id.
func fakeDaemon(t *testing.T, handle func(req protocol.Request) protocol.Response) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				codec := protocol.NewCodec(conn, 0)
				req, err := codec.ReadRequest()
				if err != nil {
					return
				}
				codec.WriteResponse(handle(req)) //nolint:errcheck // test server
			}(conn)
		}
	}()
	return socketPath
}

func TestCall(t *testing.T) {
	t.Parallel()

	socketPath := fakeDaemon(t, func(req protocol.Request) protocol.Response {
		if req.Method != "health" {
			return protocol.Err(req.ID, protocol.KindUnknownMethod, "nope")
		}
		return protocol.OK(req.ID, map[string]any{"status": "ok"})
	})

	c := New(socketPath)
	require.True(t, c.Ping())

	resp, err := c.Call("health", nil)
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestCallSendsParams(t *testing.T) {
	t.Parallel()

	socketPath := fakeDaemon(t, func(req protocol.Request) protocol.Response {
		var limit int
		if err := json.Unmarshal(req.Params["limit"], &limit); err != nil {
			return protocol.Err(req.ID, protocol.KindInvalidParams, err.Error())
		}
		return protocol.OK(req.ID, map[string]any{"limit": limit, "v": req.V})
	})

	resp, err := New(socketPath).Call("list_projects", map[string]any{"limit": 5})
	require.NoError(t, err)
	require.True(t, resp.OK)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(5), result["limit"])
	require.Equal(t, float64(protocol.Version), result["v"])
}

func TestCallRejectsMismatchedID(t *testing.T) {
	t.Parallel()

	socketPath := fakeDaemon(t, func(req protocol.Request) protocol.Response {
		return protocol.OK("someone-else", nil)
	})

	_, err := New(socketPath).Call("health", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func TestPingNoDaemon(t *testing.T) {
	t.Parallel()

	c := New(filepath.Join(t.TempDir(), "missing.sock"))
	require.False(t, c.Ping())

	_, err := c.Call("health", nil)
	require.Error(t, err)
}
