// Package github is the rate-limited client for the GitHub GraphQL API,
// with go-github handling the label and milestone writes GraphQL lacks.
//
// One Client is created per token. Every call goes through Client.Do,
// which waits out rate limits, retries transient failures with
// exponential backoff and converts HTTP and GraphQL failures into the
// typed errors in errors.go.
package github

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"

	"github.com/morgaesis/GitHub-Migrator/internal/telemetry"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub GraphQL endpoint.
	DefaultAPIEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// MaxAttempts bounds the attempts of one operation on transient errors.
	MaxAttempts = 5

	// RetryDelay is the base delay between attempts; it doubles each time.
	RetryDelay = 2 * time.Second

	// DefaultRateLimitWait is used when a rate limit response names no reset time.
	DefaultRateLimitWait = time.Minute

	// PageSize is the page size of connection queries.
	PageSize = 100

	// MaxPages stops a pagination that never reports its last page.
	MaxPages = 10000
)

// Client talks to one GitHub instance with one token.
type Client struct {
	Token      string       // personal access token
	BaseURL    string       // GraphQL endpoint (default: DefaultAPIEndpoint)
	HTTPClient *http.Client // base HTTP client; auth and rate-limit transports wrap it

	// Sleep blocks for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// NewBackOff returns the policy between transient retries.
	NewBackOff func() backoff.BackOff

	logger *slog.Logger
	api    *telemetry.API
	state  *responseState
	gql    *githubv4.Client
	httpc  *http.Client // wrapped client shared by GraphQL and REST calls

	// rest carries label and milestone writes; restErr is set when the
	// REST root derived from BaseURL does not parse.
	rest    *gogithub.Client
	restErr error
}

// responseState holds what the transport learned from the last response.
type responseState struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	scopes    []string
	hasScopes bool
}

// Scopes lists the OAuth scopes of a classic token.
type Scopes []string

// Has reports whether the scope, or a scope that implies it, is present.
func (s Scopes) Has(scope string) bool {
	for _, have := range s {
		if have == scope {
			return true
		}
		for _, implied := range impliedScopes[have] {
			if implied == scope {
				return true
			}
		}
	}
	return false
}

var impliedScopes = map[string][]string{
	"repo":      {"repo:status", "repo_deployment", "public_repo", "repo:invite", "security_events"},
	"project":   {"read:project"},
	"admin:org": {"write:org", "read:org"},
	"write:org": {"read:org"},
}
