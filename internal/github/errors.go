package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"
)

// ErrNotFound is returned when a looked-up repository, owner or project
// does not exist or is not visible to the token.
var ErrNotFound = errors.New("not found")

// RateLimitError signals a primary or secondary rate limit. Client.Do
// waits until ResetAt and retries; callers never see it.
type RateLimitError struct {
	ResetAt   time.Time
	Secondary bool
	Message   string
}

func (e *RateLimitError) Error() string {
	kind := "primary"
	if e.Secondary {
		kind = "secondary"
	}
	return fmt.Sprintf("%s rate limit exceeded until %s: %s", kind, e.ResetAt.Format(time.RFC3339), e.Message)
}

// TransientError is a network failure or server error worth retrying.
type TransientError struct {
	StatusCode int // 0 for network errors
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient API error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient API error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError is a rejected or under-scoped token. It is never retried.
type AuthError struct {
	Message string
	// Missing lists the scopes the token lacks, when known.
	Missing []string
}

func (e *AuthError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("authentication failed: token is missing required scope(s) %s: %s",
			strings.Join(e.Missing, ", "), e.Message)
	}
	return "authentication failed: " + e.Message
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var te *TransientError
	var rl *RateLimitError
	return errors.As(err, &te) || errors.As(err, &rl)
}

// classify turns errors reported by go-github or in a GraphQL response
// body into the typed errors above. Errors the transport already typed
// pass through.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		rl *RateLimitError
		te *TransientError
		ae *AuthError
	)
	if errors.As(err, &rl) || errors.As(err, &te) || errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// go-github also reports a limit it tracks itself without sending.
	var (
		ghRate  *gogithub.RateLimitError
		ghAbuse *gogithub.AbuseRateLimitError
		ghResp  *gogithub.ErrorResponse
	)
	switch {
	case errors.As(err, &ghRate):
		return &RateLimitError{ResetAt: ghRate.Rate.Reset.Time, Message: ghRate.Message}
	case errors.As(err, &ghAbuse):
		reset := time.Now().Add(DefaultRateLimitWait)
		if d := ghAbuse.GetRetryAfter(); d > 0 {
			reset = time.Now().Add(d)
		}
		return &RateLimitError{ResetAt: reset, Secondary: true, Message: ghAbuse.Message}
	case errors.As(err, &ghResp) && ghResp.Response != nil && ghResp.Response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, ghResp.Message)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "secondary rate limit"), strings.Contains(lower, "abuse detection"):
		return &RateLimitError{ResetAt: time.Now().Add(DefaultRateLimitWait), Secondary: true, Message: msg}
	case strings.Contains(lower, "api rate limit exceeded"), strings.Contains(lower, "rate_limited"):
		return &RateLimitError{ResetAt: c.state.resetOr(time.Now().Add(DefaultRateLimitWait)), Message: msg}
	case strings.Contains(lower, "not been granted the required scopes"), strings.Contains(lower, "insufficient_scopes"):
		return &AuthError{Message: msg, Missing: requiredScopes(msg)}
	case strings.Contains(lower, "bad credentials"):
		return &AuthError{Message: msg}
	case strings.Contains(lower, "something went wrong while executing your query"),
		strings.Contains(lower, "timedout"), strings.Contains(lower, "timeout"):
		return &TransientError{Err: err}
	case strings.Contains(lower, "could not resolve to"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return err
}

// requiredScopes extracts the scope list GitHub names in an
// INSUFFICIENT_SCOPES message, e.g. "... requires one of the following
// scopes: ['read:project'], but your token has only been granted ...".
func requiredScopes(msg string) []string {
	_, rest, ok := strings.Cut(msg, "following scopes: [")
	if !ok {
		return nil
	}
	list, _, ok := strings.Cut(rest, "]")
	if !ok {
		return nil
	}
	var scopes []string
	for _, s := range strings.Split(list, ",") {
		s = strings.Trim(strings.TrimSpace(s), `'"`)
		if s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
