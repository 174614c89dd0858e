// Package protocol defines the frame format spoken over the daemon's local
// socket: newline-delimited JSON, one request or response object per line.
// The newline delimiter is unambiguous because encoding/json never emits a
// raw newline inside a document.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxFrameBytes caps a single frame when no limit is configured.
const DefaultMaxFrameBytes = 1 << 20

// ErrFrameTooLarge reports a frame exceeding the configured maximum. The
// connection must be closed after responding; the oversized remainder is
// not recoverable.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ParseError reports a frame that was delimited correctly but is not a
// valid request. ID carries the correlation id when it could be recovered
// from the broken frame.
type ParseError struct {
	ID  string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse request: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Codec reads request frames from and writes response frames to one
// connection. It is not safe for concurrent use; each connection handler
// owns exactly one Codec.
type Codec struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
}

// NewCodec wraps a connection's byte stream. maxFrameBytes bounds the size
// of a single incoming frame; zero selects DefaultMaxFrameBytes.
func NewCodec(rw io.ReadWriter, maxFrameBytes int) *Codec {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	initial := 4096
	if maxFrameBytes < initial {
		initial = maxFrameBytes
	}
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, initial), maxFrameBytes)
	return &Codec{scanner: scanner, writer: bufio.NewWriter(rw)}
}

// ReadRequest blocks until one complete frame is available and decodes it.
// Partial reads are absorbed by the scanner. Returns io.EOF when the peer
// closed the connection cleanly, ErrFrameTooLarge when the frame exceeds
// the configured cap, and *ParseError when the frame is not a valid
// request.
func (c *Codec) ReadRequest() (Request, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return Request{}, ErrFrameTooLarge
			}
			return Request{}, err
		}
		return Request{}, io.EOF
	}

	line := c.scanner.Bytes()
	if len(strings.TrimSpace(string(line))) == 0 {
		// Tolerate a blank line between frames.
		return c.ReadRequest()
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, &ParseError{ID: recoverID(line), Err: err}
	}
	if req.Method == "" {
		return Request{}, &ParseError{ID: req.ID, Err: errors.New("missing method")}
	}
	return req, nil
}

// WriteResponse encodes one response frame and flushes it to the peer.
func (c *Codec) WriteResponse(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// recoverID attempts to pull the correlation id out of a frame that failed
// full decoding, so the error response can still be matched by the caller.
func recoverID(line []byte) string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(line, &partial); err != nil {
		return ""
	}
	return partial.ID
}
