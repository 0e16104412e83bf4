// Package httpkit builds the HTTP clients used to reach the planner
// backend and classifies transport failures, so callers can tell
// "backend unreachable" apart from "backend said no".
//
// Nothing here retries. A failed request is reported to the caller once
// and the user decides what to do next.
package httpkit

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/vibeplanner/internal/buildinfo"
)

const (
	dialTimeout         = 10 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	idleConnTimeout     = 90 * time.Second

	// DefaultHeaderTimeout bounds the wait for response headers after
	// the request is written.
	DefaultHeaderTimeout = 15 * time.Second

	// MaxErrorBody is how much of a failed response ErrorBody reads.
	MaxErrorBody = 2048

	// drainLimit caps how much of an unread body is discarded to keep
	// the connection reusable.
	drainLimit = 4096
)

// Options shape a client built by NewClient.
type Options struct {
	// Timeout bounds the whole exchange, body included. Zero leaves
	// only the request context in charge, as streamed replies need.
	Timeout time.Duration

	// HeaderTimeout bounds the wait for response headers. Zero means
	// DefaultHeaderTimeout.
	HeaderTimeout time.Duration

	// Token is sent as "Authorization: Bearer <token>" when non-empty.
	Token string

	// UserAgent defaults to buildinfo.UserAgent().
	UserAgent string
}

// NewClient returns a client with its own connection pool. The backend
// is a single host, so the pool stays small.
func NewClient(o Options) *http.Client {
	if o.HeaderTimeout <= 0 {
		o.HeaderTimeout = DefaultHeaderTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = buildinfo.UserAgent()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: o.HeaderTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout: o.Timeout,
		Transport: &headerTransport{
			base:      transport,
			userAgent: o.UserAgent,
			token:     o.Token,
		},
	}
}

// headerTransport stamps identification and credentials on outgoing
// requests. Headers the caller already set are left alone.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	token     string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	needUA := req.Header.Get("User-Agent") == ""
	needAuth := t.token != "" && req.Header.Get("Authorization") == ""
	if needUA || needAuth {
		// RoundTrip must not modify the caller's request.
		req = req.Clone(req.Context())
		if needUA {
			req.Header.Set("User-Agent", t.userAgent)
		}
		if needAuth {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
	}
	return t.base.RoundTrip(req)
}

// Discard drains a bounded amount of resp's body and closes it so the
// connection can be reused.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
}

// ErrorBody returns up to MaxErrorBody bytes of a failed response's
// body, trimmed, and closes it.
func ErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer Discard(resp)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
	return strings.TrimSpace(string(body))
}

// IsUnreachable reports whether err is a transport-level failure: the
// request could not be delivered or the connection died before a
// response completed. Context cancellation is the caller's doing and
// reports false.
func IsUnreachable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return true
		}
	}

	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		urlErr *url.Error
	)
	return errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &urlErr)
}
