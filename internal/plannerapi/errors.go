package plannerapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported by the client. Match with errors.Is.
var (
	// ErrNetworkUnavailable means the request never got a response:
	// connection refused, DNS failure, timeout or a dropped connection.
	ErrNetworkUnavailable = errors.New("backend unreachable")

	// ErrServerRejected means the backend answered with a non-success
	// status or with a body that could not be understood.
	ErrServerRejected = errors.New("backend rejected the request")

	// ErrMalformedResponse means a success response did not decode as
	// the expected JSON. It also matches ErrServerRejected.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// RejectedError carries the status and detail of a non-success response.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

// Is makes errors.Is(err, ErrServerRejected) succeed.
func (e *RejectedError) Is(target error) bool { return target == ErrServerRejected }

// MalformedError wraps a decode failure of a success response.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is matches both ErrMalformedResponse and ErrServerRejected.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedResponse || target == ErrServerRejected
}

// networkError wraps a transport failure so it matches
// ErrNetworkUnavailable while keeping the cause reachable.
type networkError struct {
	path string
	err  error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("request %s: %v", e.path, e.err)
}

func (e *networkError) Unwrap() []error { return []error{ErrNetworkUnavailable, e.err} }

// errorDetail extracts a human-readable message from an error body.
// FastAPI puts it under "detail", either as a string or as a list of
// validation errors with "msg" fields. Anything else is returned as the
// trimmed body.
func errorDetail(body string) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(body)
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(envelope.Detail)
}
