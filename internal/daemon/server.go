// Package daemon hosts the FGP Vercel daemon: a unix-socket listener that
// dispatches newline-JSON framed requests to handlers backed by one warm
// upstream channel to the Vercel API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fast-gateway-protocol/vercel/internal/config"
	"github.com/fast-gateway-protocol/vercel/internal/observability"
	"github.com/fast-gateway-protocol/vercel/internal/rpc"
	"github.com/fast-gateway-protocol/vercel/internal/vercel"
	"github.com/fast-gateway-protocol/vercel/internal/version"
)

// Fatal startup conditions, reported distinctly so the CLI can explain them.
var (
	ErrMissingToken   = errors.New(config.EnvToken + " is not set; the daemon cannot authenticate to Vercel")
	ErrAlreadyRunning = errors.New("another daemon instance is already listening on the socket")
)

const probeTimeout = 500 * time.Millisecond

// Server owns the daemon lifecycle: socket bind, accept loop, graceful
// drain, and teardown of the upstream client.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	upstream   *vercel.Client
	dispatcher *rpc.Dispatcher

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer validates the credential and wires the upstream client,
// registry, and dispatcher. A missing token fails here, before any socket
// is touched.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	token := config.Token()
	if token == "" {
		return nil, ErrMissingToken
	}

	metrics := observability.NewMetrics()
	upstream := vercel.NewClient(cfg.Vercel.BaseURL, token, cfg.Vercel.TeamID, cfg.UpstreamTimeout(), logger, metrics)
	registry := rpc.NewVercelRegistry(upstream, cfg.Service.Name, version.Version)
	dispatcher := rpc.NewDispatcher(registry, logger, metrics)

	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		upstream:   upstream,
		dispatcher: dispatcher,
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Upstream exposes the shared client, used by tests and the health probe.
func (s *Server) Upstream() *vercel.Client {
	return s.upstream
}

// Run binds the socket and serves until the context is cancelled, then
// drains in-flight connections up to the configured grace period. The
// socket and pid files are removed on the way out.
func (s *Server) Run(ctx context.Context) error {
	listener, err := s.bind()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(s.cfg.Socket.Path)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		listener.Close()
		os.Remove(s.cfg.Socket.Path)
		return fmt.Errorf("write pid file: %w", err)
	}

	var metricsServer *http.Server
	if s.cfg.Metrics.Enabled {
		metricsServer = &http.Server{Addr: s.cfg.Metrics.Addr, Handler: s.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.logger.Info("metrics listener started", zap.String("addr", s.cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	// connCtx outlives ctx by the grace period so in-flight requests can
	// finish after shutdown begins.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()

	var wg sync.WaitGroup
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed", zap.Error(err))
				continue
			}
			s.trackConn(conn)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.untrackConn(conn)
				s.handleConn(connCtx, conn)
			}()
		}
	}()

	s.logger.Info("daemon listening",
		zap.String("socket", s.cfg.Socket.Path),
		zap.String("service", s.cfg.Service.Name),
		zap.String("version", version.Full()))

	<-ctx.Done()
	s.logger.Info("shutting down, draining connections",
		zap.Duration("grace", s.cfg.ShutdownGrace()))

	// Stop accepting first, then give in-flight handlers the grace window.
	listener.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace()):
		s.logger.Warn("grace period expired, cancelling remaining requests")
		cancelConns()
		s.closeConns()
		<-done
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		metricsServer.Shutdown(shutdownCtx) //nolint:errcheck // best-effort
		cancel()
	}

	os.Remove(s.cfg.Socket.Path)
	os.Remove(pidPath)
	s.logger.Info("daemon stopped")
	return nil
}

// bind prepares the socket directory and listens, refusing to start when a
// live daemon already answers on the path. A socket file nobody answers on
// is a leftover from a crash and is removed.
func (s *Server) bind() (net.Listener, error) {
	path := s.cfg.Socket.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		conn, err := net.DialTimeout("unix", path, probeTimeout)
		if err == nil {
			conn.Close()
			return nil, ErrAlreadyRunning
		}
		s.logger.Info("removing stale socket file", zap.String("socket", path))
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		os.Remove(path)
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// pidFilePath derives the pid file location from the socket path.
func pidFilePath(socketPath string) string {
	return filepath.Join(filepath.Dir(socketPath), "daemon.pid")
}

// PidFilePath returns the pid file location for a configured socket path.
// The stop command uses it to signal a running daemon.
func PidFilePath(socketPath string) string {
	return pidFilePath(socketPath)
}
