package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/morgaesis/GitHub-Migrator/internal/telemetry"
)

// NewClient creates a client for token against the public GitHub API.
func NewClient(token string) *Client {
	c := &Client{
		Token:      token,
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Sleep:      sleepContext,
		NewBackOff: defaultBackOff,
		logger:     slog.Default(),
		api:        telemetry.NewAPI(),
		state:      &responseState{remaining: -1},
	}
	c.build()
	return c
}

// WithHTTPClient returns a new client using httpClient as the base client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	n := c.clone()
	n.HTTPClient = httpClient
	n.build()
	return n
}

// WithBaseURL returns a new client for a different GraphQL endpoint,
// e.g. https://github.example.com/api/graphql.
func (c *Client) WithBaseURL(baseURL string) *Client {
	n := c.clone()
	n.BaseURL = baseURL
	n.build()
	return n
}

// WithLogger returns a new client that logs waits and retries to logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	n := c.clone()
	n.logger = logger
	return n
}

func (c *Client) clone() *Client {
	n := *c
	return &n
}

// build wires base client -> oauth2 -> rate-limit transport, shared by
// githubv4 and go-github.
func (c *Client) build() {
	base := c.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	auth := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token}),
		Base:   base,
	}
	httpClient := &http.Client{
		Timeout:   c.HTTPClient.Timeout,
		Transport: &rateLimitTransport{wrapped: auth, state: c.state, now: time.Now},
	}
	c.httpc = httpClient
	if c.BaseURL == "" || c.BaseURL == DefaultAPIEndpoint {
		c.gql = githubv4.NewClient(httpClient)
	} else {
		c.gql = githubv4.NewEnterpriseClient(c.BaseURL, httpClient)
	}
	c.rest, c.restErr = gogithub.NewClient(httpClient), nil
	if base := c.restBase(); base != defaultRESTBase {
		c.rest, c.restErr = c.rest.WithEnterpriseURLs(base, base)
	}
}

const defaultRESTBase = "https://api.github.com"

// restBase derives the REST root from the GraphQL endpoint:
// https://api.github.com/graphql -> https://api.github.com and
// https://ghe.example.com/api/graphql -> https://ghe.example.com/api/v3.
// go-github appends /api/v3 to any other root.
func (c *Client) restBase() string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if base == "" {
		base = DefaultAPIEndpoint
	}
	if strings.HasSuffix(base, "/api/graphql") {
		return strings.TrimSuffix(base, "graphql") + "v3"
	}
	return strings.TrimSuffix(base, "/graphql")
}

// Do runs fn, the operation named op, until it succeeds or fails for good.
//
// Rate limits suspend the caller until the reported reset and then retry
// the same call without counting an attempt. Transient errors are retried
// with exponential backoff for at most MaxAttempts attempts. Any other
// error is returned at once.
func (c *Client) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, end := c.api.Start(ctx, op)
	attempt := 0
	call := func() error {
		attempt++
		for {
			err := c.classify(fn(ctx))
			if err == nil {
				return nil
			}
			var rl *RateLimitError
			if errors.As(err, &rl) {
				wait := time.Until(rl.ResetAt)
				if wait < time.Second {
					wait = time.Second
				}
				c.api.RateLimitWait(ctx, op)
				c.logger.Warn("rate limited, waiting for reset",
					"op", op, "secondary", rl.Secondary, "wait", wait.Round(time.Second), "reset", rl.ResetAt.Format(time.RFC3339))
				if err := c.Sleep(ctx, wait); err != nil {
					return backoff.Permanent(err)
				}
				continue
			}
			var te *TransientError
			if errors.As(err, &te) {
				return err
			}
			return backoff.Permanent(err)
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), MaxAttempts-1), ctx)
	notify := func(err error, d time.Duration) {
		c.api.Retry(ctx, op)
		c.logger.Warn("transient API error, retrying", "op", op, "attempt", attempt, "max", MaxAttempts, "delay", d.Round(time.Millisecond), "error", err)
	}
	err := backoff.RetryNotify(call, bo, notify)
	var te *TransientError
	if errors.As(err, &te) {
		err = fmt.Errorf("%s: giving up after %d attempts: %w", op, MaxAttempts, err)
	} else if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
	}
	end(err)
	return err
}

func (c *Client) query(ctx context.Context, op string, q any, vars map[string]any) error {
	return c.Do(ctx, op, func(ctx context.Context) error {
		return c.gql.Query(ctx, q, vars)
	})
}

// restCall runs one go-github request inside Do.
func (c *Client) restCall(ctx context.Context, op string, fn func(ctx context.Context, gh *gogithub.Client) error) error {
	if c.restErr != nil {
		return fmt.Errorf("%s: REST endpoint: %w", op, c.restErr)
	}
	return c.Do(ctx, op, func(ctx context.Context) error {
		return fn(ctx, c.rest)
	})
}

func (c *Client) mutate(ctx context.Context, op string, m any, input githubv4.Input) error {
	return c.Do(ctx, op, func(ctx context.Context) error {
		return c.gql.Mutate(ctx, m, input, nil)
	})
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	return bo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
