package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 2048

// rateLimitTransport records rate-limit and scope headers and turns
// rate-limit, auth and server-error responses into typed errors, which
// net/http hands back wrapped in *url.Error.
type rateLimitTransport struct {
	wrapped http.RoundTripper
	state   *responseState
	now     func() time.Time
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.wrapped.RoundTrip(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &TransientError{Err: err}
	}
	t.state.record(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		msg := drain(resp)
		return nil, &RateLimitError{ResetAt: t.resetTime(resp.Header), Secondary: isSecondary(msg), Message: msg}
	case resp.StatusCode == http.StatusForbidden:
		msg := drain(resp)
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || isSecondary(msg) || strings.Contains(strings.ToLower(msg), "rate limit") {
			return nil, &RateLimitError{ResetAt: t.resetTime(resp.Header), Secondary: isSecondary(msg), Message: msg}
		}
		return nil, &AuthError{Message: msg}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Message: drain(resp)}
	case resp.StatusCode >= 500:
		msg := drain(resp)
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	return resp, nil
}

// resetTime prefers Retry-After, then X-RateLimit-Reset.
func (t *rateLimitTransport) resetTime(h http.Header) time.Time {
	now := t.now()
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if s := h.Get("X-RateLimit-Reset"); s != "" {
		if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(unix, 0)
		}
	}
	return now.Add(DefaultRateLimitWait)
}

func isSecondary(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "secondary rate limit") || strings.Contains(lower, "abuse detection")
}

func drain(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}

func (s *responseState) record(h http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.reset = time.Unix(unix, 0)
		}
	}
	if v, ok := h["X-Oauth-Scopes"]; ok {
		s.hasScopes = true
		s.scopes = nil
		for _, part := range strings.Split(strings.Join(v, ","), ",") {
			if part = strings.TrimSpace(part); part != "" {
				s.scopes = append(s.scopes, part)
			}
		}
	}
}

// resetOr returns the last reported reset time if it is still ahead,
// otherwise fallback.
func (s *responseState) resetOr(fallback time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reset.After(time.Now()) {
		return s.reset
	}
	return fallback
}

// oauthScopes returns the scopes of the last response and whether the
// server reported them at all. Fine-grained tokens report none.
func (s *responseState) oauthScopes() (Scopes, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(Scopes(nil), s.scopes...), s.hasScopes
}
