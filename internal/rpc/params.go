package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params holds the raw request parameters. Unknown extra keys are ignored
// so newer callers keep working against older daemons.
type Params map[string]json.RawMessage

// InvalidParamError reports a parameter that is missing or has the wrong
// shape. The dispatcher surfaces it as an InvalidParams response.
type InvalidParamError struct {
	Field  string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("%s %s", e.Reason, e.Field)
}

var nullLiteral = []byte("null")

// has reports whether a parameter is present with a non-null value.
func (p Params) has(name string) bool {
	raw, ok := p[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

// String extracts a required string parameter.
func (p Params) String(name string) (string, error) {
	if !p.has(name) {
		return "", &InvalidParamError{Field: name, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(p[name], &s); err != nil {
		return "", &InvalidParamError{Field: name, Reason: "expected string for"}
	}
	if s == "" {
		return "", &InvalidParamError{Field: name, Reason: "missing"}
	}
	return s, nil
}

// Int extracts an optional integer parameter, falling back to def.
func (p Params) Int(name string, def int) (int, error) {
	if !p.has(name) {
		return def, nil
	}
	var n int
	if err := json.Unmarshal(p[name], &n); err != nil {
		return 0, &InvalidParamError{Field: name, Reason: "expected integer for"}
	}
	if n <= 0 {
		return def, nil
	}
	return n, nil
}

// checkRequired verifies every required parameter is present, returning
// the first missing field.
func checkRequired(spec MethodSpec, params Params) error {
	for _, name := range spec.RequiredParams {
		if !params.has(name) {
			return &InvalidParamError{Field: name, Reason: "missing"}
		}
	}
	return nil
}
