// Package errx classifies relay failures into the small set of kinds the
// webhook surface reports to the gateway.
package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind is the failure category of a relay error.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedPayload
	KindUpstreamUnavailable
	KindUpstreamAuth
	KindUpstreamProtocol
	KindNoAgentReply
)

func (k Kind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed_payload"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindUpstreamAuth:
		return "upstream_auth_error"
	case KindUpstreamProtocol:
		return "upstream_protocol_error"
	case KindNoAgentReply:
		return "no_agent_reply"
	default:
		return "unknown"
	}
}

// Status is the HTTP status returned to the gateway for this kind.
func (k Kind) Status() int {
	if k == KindMalformedPayload {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrMalformedPayload    = &Error{Kind: KindMalformedPayload}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUpstreamAuth        = &Error{Kind: KindUpstreamAuth}
	ErrUpstreamProtocol    = &Error{Kind: KindUpstreamProtocol}
	ErrNoAgentReply        = &Error{Kind: KindNoAgentReply}
)

// Error wraps an underlying failure with its kind and the upstream call that produced it.
type Error struct {
	Kind       Kind
	Upstream   string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Upstream != "" {
		b.WriteString(e.Upstream)
		if e.Op != "" {
			b.WriteString(" ")
			b.WriteString(e.Op)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Upstream == "" && t.Op == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Malformed reports an inbound payload missing required data.
func Malformed(err error) *Error {
	return &Error{Kind: KindMalformedPayload, Err: err}
}

// Transport classifies a failure to obtain any response. Timeouts, DNS errors and
// cancellations are all reported as unavailable.
func Transport(upstream, op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timeout: %w", err)
	}
	return &Error{Kind: KindUpstreamUnavailable, Upstream: upstream, Op: op, Err: err}
}

// FromStatus classifies a non-2xx response.
func FromStatus(upstream, op string, status int, body []byte) *Error {
	kind := KindUpstreamProtocol
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindUpstreamAuth
	case status == http.StatusTooManyRequests || status >= 500:
		kind = KindUpstreamUnavailable
	}
	var detail error
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		detail = errors.New(truncate(snippet, maxSnippetBytes))
	}
	return &Error{Kind: kind, Upstream: upstream, Op: op, StatusCode: status, Err: detail}
}

const maxSnippetBytes = 256

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Protocol reports a response whose shape was not what the caller expected.
func Protocol(upstream, op string, err error) *Error {
	return &Error{Kind: KindUpstreamProtocol, Upstream: upstream, Op: op, Err: err}
}

// NoAgentReply reports an accepted completion that carried no usable agent turn.
func NoAgentReply(upstream, op string) *Error {
	return &Error{Kind: KindNoAgentReply, Upstream: upstream, Op: op}
}
