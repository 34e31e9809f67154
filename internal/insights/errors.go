package insights

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned before any model call when no Gemini API
// key is configured. The caller has already consumed a quota unit by the time
// this surfaces; that ordering mirrors the rate-limit-then-call flow.
var ErrMissingCredential = errors.New("insights: GEMINI_API_KEY is not configured")

// UpstreamError wraps network, timeout and non-2xx failures from the model
// endpoint. These are never retried automatically.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("insights: %s: upstream model call failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ParseError means the model's text response contained no parseable JSON
// object. Raw keeps the original text for diagnostic logging; it must not be
// echoed back to the end user.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("insights: response is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
