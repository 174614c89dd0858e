package protocol

import "encoding/json"

// Version is the protocol version carried in the request "v" field.
const Version = 1

// Error kinds surfaced to callers in Response.Error.Kind.
const (
	KindInvalidParams       = "InvalidParams"
	KindUnknownMethod       = "UnknownMethod"
	KindMalformedRequest    = "MalformedRequest"
	KindMessageTooLarge     = "MessageTooLarge"
	KindUnauthorized        = "Unauthorized"
	KindNotFound            = "NotFound"
	KindRateLimited         = "RateLimited"
	KindUpstreamUnavailable = "UpstreamUnavailable"
	KindInternal            = "Internal"
)

// Request is one frame sent by a local caller. The id is caller-chosen and
// echoed verbatim in the response.
type Request struct {
	ID     string                     `json:"id"`
	V      int                        `json:"v"`
	Method string                     `json:"method"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

// Response is one frame written back to the caller. Exactly one of Result
// and Error is set.
type Response struct {
	ID     string     `json:"id,omitempty"`
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the caller-visible error shape.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OK builds a success response echoing the request id.
func OK(id string, result any) Response {
	return Response{ID: id, OK: true, Result: result}
}

// Err builds a failure response echoing the request id.
func Err(id, kind, message string) Response {
	return Response{ID: id, OK: false, Error: &ErrorInfo{Kind: kind, Message: message}}
}
