package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fast-gateway-protocol/vercel/internal/config"
	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// fakeVercel serves just enough of the Vercel API for daemon tests.
func fakeVercel(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v9/projects", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"projects":[{"id":"prj_1","name":"web"},{"id":"prj_2","name":"api"},{"id":"prj_3","name":"docs"}]}`)
	})
	mux.HandleFunc("/v9/projects/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "prj_missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"not_found","message":"project not found"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"prj_1","name":"web"}`)
	})
	mux.HandleFunc("/v6/deployments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"deployments":[{"uid":"dpl_1","state":"READY","url":"web-abc.vercel.app"}]}`)
	})
	mux.HandleFunc("/v2/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok_good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"forbidden","message":"invalid token"}}`)
			return
		}
		fmt.Fprint(w, `{"user":{"uid":"usr_1","username":"dev"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Service: config.ServiceConfig{Name: "vercel"},
		Socket: config.SocketConfig{
			Path:                 filepath.Join(t.TempDir(), "daemon.sock"),
			MaxMessageBytes:      4096,
			ShutdownGraceSeconds: 2,
		},
		Vercel:  config.VercelConfig{BaseURL: upstreamURL, TimeoutSeconds: 5},
		Logging: config.LoggingConfig{Level: "error", Format: "console"},
	}
}

// startDaemon runs a server until the test ends and blocks until the
// socket accepts connections.
func startDaemon(t *testing.T, cfg *config.Config) (*Server, context.CancelFunc, chan error) {
	t.Helper()

	server, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()
	t.Cleanup(cancel)

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("unix", cfg.Socket.Path, 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond, "daemon did not start listening")

	return server, cancel, errCh
}

// call opens a fresh connection, sends one frame, and reads one response.
func call(t *testing.T, socketPath, frame string) protocol.Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()
	return callOn(t, conn, frame)
}

func callOn(t *testing.T, conn net.Conn, frame string) protocol.Response {
	t.Helper()
	_, err := conn.Write([]byte(frame + "\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestDaemonServesRequests(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	resp := call(t, cfg.Socket.Path, `{"id":"1","v":1,"method":"list_projects","params":{"limit":5}}`)
	require.Equal(t, "1", resp.ID)
	require.True(t, resp.OK)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.LessOrEqual(t, result["count"].(float64), float64(5))
	require.NotEmpty(t, result["projects"])
}

func TestDaemonMissingRequiredParam(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	resp := call(t, cfg.Socket.Path, `{"id":"2","v":1,"method":"get_deployment","params":{}}`)
	require.Equal(t, "2", resp.ID)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindInvalidParams, resp.Error.Kind)
	require.Equal(t, "missing deployment_id", resp.Error.Message)
}

func TestDaemonUnknownMethod(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	resp := call(t, cfg.Socket.Path, `{"id":"3","v":1,"method":"vercel.teleport"}`)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindUnknownMethod, resp.Error.Kind)
}

func TestDaemonNotFoundIsNotInternal(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	resp := call(t, cfg.Socket.Path, `{"id":"4","v":1,"method":"get_project","params":{"project_id":"prj_missing"}}`)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindNotFound, resp.Error.Kind)
}

func TestDaemonInvalidTokenSurfacesUnauthorized(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_bad")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	resp := call(t, cfg.Socket.Path, `{"id":"5","v":1,"method":"get_user"}`)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindUnauthorized, resp.Error.Kind)

	// The daemon keeps serving after an auth failure.
	resp = call(t, cfg.Socket.Path, `{"id":"6","v":1,"method":"health"}`)
	require.True(t, resp.OK)
}

func TestDaemonMalformedRequestClosesConnection(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	conn, err := net.Dial("unix", cfg.Socket.Path)
	require.NoError(t, err)
	defer conn.Close()

	resp := callOn(t, conn, `{"id":"7","v":1,`)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindMalformedRequest, resp.Error.Kind)

	// Connection is closed after the error response.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = bufio.NewReader(conn).ReadBytes('\n')
	require.Error(t, err)
}

func TestDaemonMessageTooLarge(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	conn, err := net.Dial("unix", cfg.Socket.Path)
	require.NoError(t, err)
	defer conn.Close()

	huge := fmt.Sprintf(`{"id":"8","v":1,"method":"get_user","params":{"pad":%q}}`, strings.Repeat("x", 8192))
	resp := callOn(t, conn, huge)
	require.False(t, resp.OK)
	require.Equal(t, protocol.KindMessageTooLarge, resp.Error.Kind)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = bufio.NewReader(conn).ReadBytes('\n')
	require.Error(t, err)
}

func TestDaemonConcurrentConnections(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conc-%d", n)
			resp := call(t, cfg.Socket.Path, fmt.Sprintf(`{"id":%q,"v":1,"method":"list_projects"}`, id))
			if !resp.OK || resp.ID != id {
				t.Errorf("connection %d: got id=%q ok=%v", n, resp.ID, resp.OK)
			}
		}(i)
	}
	wg.Wait()
}

func TestDaemonPipelinedFramesOnOneConnection(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	conn, err := net.Dial("unix", cfg.Socket.Path)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("p-%d", i)
		_, err := fmt.Fprintf(conn, `{"id":%q,"v":1,"method":"health"}`+"\n", id)
		require.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)

		var resp protocol.Response
		require.NoError(t, json.Unmarshal(line, &resp))
		require.Equal(t, id, resp.ID)
		require.True(t, resp.OK)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, _, _ = startDaemon(t, cfg)

	second, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	err = second.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestDaemonRemovesStaleSocket(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)

	// A leftover file nobody answers on must not block startup.
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Socket.Path), 0o755))
	require.NoError(t, os.WriteFile(cfg.Socket.Path, nil, 0o600))

	_, _, _ = startDaemon(t, cfg)
	resp := call(t, cfg.Socket.Path, `{"id":"s","v":1,"method":"health"}`)
	require.True(t, resp.OK)
}

func TestDaemonShutdownRemovesSocketAndPidFiles(t *testing.T) {
	t.Setenv(config.EnvToken, "tok_good")
	cfg := testConfig(t, fakeVercel(t).URL)
	_, cancel, errCh := startDaemon(t, cfg)

	pidPath := PidFilePath(cfg.Socket.Path)
	_, err := os.Stat(pidPath)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err = os.Stat(cfg.Socket.Path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(pidPath)
	require.True(t, os.IsNotExist(err))
}

func TestNewServerRequiresToken(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	cfg := testConfig(t, "https://api.vercel.com")
	_, err := NewServer(cfg, zap.NewNop())
	require.ErrorIs(t, err, ErrMissingToken)
}
