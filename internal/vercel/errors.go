package vercel

import (
	"encoding/json"
	"fmt"

	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// APIError is a normalized upstream failure carrying the caller-visible
// error kind from the protocol taxonomy.
type APIError struct {
	Kind       string
	Message    string
	StatusCode int
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vercel: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vercel: %s: %s", e.Kind, e.Message)
}

// CallerMessage is the message surfaced in the local response. Internal
// failures are reported generically so upstream details never leak.
func (e *APIError) CallerMessage() string {
	if e.Kind == protocol.KindInternal {
		return "internal error"
	}
	if e.Kind == protocol.KindRateLimited && e.RetryAfter != "" {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// vercelErrorBody is the error envelope the API returns on non-2xx.
type vercelErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError maps an HTTP status to the protocol error taxonomy.
func statusError(status int, body []byte, retryAfter string) *APIError {
	msg := extractMessage(body)
	switch {
	case status == 401 || status == 403:
		if msg == "" {
			msg = "token rejected by vercel"
		}
		return &APIError{Kind: protocol.KindUnauthorized, Message: msg, StatusCode: status}
	case status == 404:
		if msg == "" {
			msg = "resource not found"
		}
		return &APIError{Kind: protocol.KindNotFound, Message: msg, StatusCode: status}
	case status == 429:
		if msg == "" {
			msg = "rate limited by vercel"
		}
		return &APIError{Kind: protocol.KindRateLimited, Message: msg, StatusCode: status, RetryAfter: retryAfter}
	case status >= 500:
		if msg == "" {
			msg = "vercel reported a server error"
		}
		return &APIError{Kind: protocol.KindUpstreamUnavailable, Message: msg, StatusCode: status}
	default:
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", status)
		}
		return &APIError{Kind: protocol.KindInternal, Message: msg, StatusCode: status}
	}
}

func extractMessage(body []byte) string {
	var parsed vercelErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error.Message
}
