package daemon

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// handleConn serves one caller. Each connection carries one or more frames;
// logical failures are answered in-band, only framing failures close the
// connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.metrics.IncConnections()
	defer s.metrics.DecConnections()

	codec := protocol.NewCodec(conn, s.cfg.Socket.MaxMessageBytes)

	for {
		req, err := codec.ReadRequest()
		if err != nil {
			s.respondFramingError(codec, err)
			return
		}

		resp := s.dispatcher.Dispatch(ctx, req)
		if err := codec.WriteResponse(resp); err != nil {
			s.logger.Debug("write response failed", zap.Error(err))
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// respondFramingError answers a frame-level failure when possible. The
// connection closes afterwards either way; an oversized or unparseable
// stream cannot be resynchronized.
func (s *Server) respondFramingError(codec *protocol.Codec, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	case errors.Is(err, protocol.ErrFrameTooLarge):
		s.metrics.RecordFramingError("too_large")
		s.logger.Warn("frame exceeds configured maximum, closing connection",
			zap.Int("max_bytes", s.cfg.Socket.MaxMessageBytes))
		codec.WriteResponse(protocol.Err("", protocol.KindMessageTooLarge, "message exceeds maximum size")) //nolint:errcheck // closing anyway
	default:
		var parseErr *protocol.ParseError
		if errors.As(err, &parseErr) {
			s.metrics.RecordFramingError("malformed")
			s.logger.Warn("malformed request", zap.Error(parseErr))
			codec.WriteResponse(protocol.Err(parseErr.ID, protocol.KindMalformedRequest, "cannot parse request frame")) //nolint:errcheck // closing anyway
			return
		}
		s.logger.Debug("connection read failed", zap.Error(err))
	}
}
