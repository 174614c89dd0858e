// Package client is a minimal caller for the daemon's local protocol,
// used by the status and doctor commands and by external tooling tests.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// DefaultDialTimeout bounds the connect probe; a daemon that cannot
// accept within this window is treated as not running.
const DefaultDialTimeout = 500 * time.Millisecond

// Client issues one request per connection, matching the documented
// protocol usage.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
	callTimeout time.Duration
}

// New builds a client for the daemon at socketPath.
func New(socketPath string) *Client {
	return &Client{
		socketPath:  socketPath,
		dialTimeout: DefaultDialTimeout,
		callTimeout: 30 * time.Second,
	}
}

// Ping reports whether a live daemon answers on the socket.
func (c *Client) Ping() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Call sends one request and waits for the matching response. The id is
// generated per call and verified on the way back.
func (c *Client) Call(method string, params map[string]any) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	id := uuid.NewString()
	frame, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.callTimeout)
	conn.SetDeadline(deadline) //nolint:errcheck // unix sockets accept deadlines

	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("response id %q does not match request id %q", resp.ID, id)
	}
	return &resp, nil
}

func encodeRequest(id, method string, params map[string]any) ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(params))
	for k, v := range params {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode param %s: %w", k, err)
		}
		raw[k] = data
	}
	req := protocol.Request{ID: id, V: protocol.Version, Method: method, Params: raw}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(data, '\n'), nil
}
