package github

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shurcooL/githubv4"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Viewer returns the login of the token's user.
func (c *Client) Viewer(ctx context.Context) (string, error) {
	var q struct {
		Viewer struct {
			Login string
		}
	}
	if err := c.query(ctx, "viewer", &q, nil); err != nil {
		return "", err
	}
	return q.Viewer.Login, nil
}

// Preflight verifies the token works and, for classic tokens that report
// their scopes, that every required scope is granted. It returns the
// viewer login.
func (c *Client) Preflight(ctx context.Context, required ...string) (string, error) {
	login, err := c.Viewer(ctx)
	if err != nil {
		return "", err
	}
	granted, reported := c.state.oauthScopes()
	if !reported {
		c.logger.Debug("token reports no OAuth scopes, skipping scope check", "login", login)
		return login, nil
	}
	var missing []string
	for _, s := range required {
		if !granted.Has(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &AuthError{
			Message: fmt.Sprintf("token for %s has scopes %v", login, []string(granted)),
			Missing: missing,
		}
	}
	return login, nil
}

type repositoryNode struct {
	ID    string
	Owner struct {
		ID    string
		Login string
	}
	Name      string
	IsPrivate bool
}

func (n repositoryNode) toRepository() *types.Repository {
	return &types.Repository{
		ID:        n.ID,
		OwnerID:   n.Owner.ID,
		Ref:       types.RepoRef{Owner: n.Owner.Login, Name: n.Name},
		IsPrivate: n.IsPrivate,
	}
}

// GetRepository looks up a repository. It returns ErrNotFound when the
// repository does not exist.
func (c *Client) GetRepository(ctx context.Context, ref types.RepoRef) (*types.Repository, error) {
	var q struct {
		Repository *repositoryNode `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]any{
		"owner": githubv4.String(ref.Owner),
		"name":  githubv4.String(ref.Name),
	}
	if err := c.query(ctx, "repository", &q, vars); err != nil {
		return nil, fmt.Errorf("get repository %s: %w", ref, err)
	}
	if q.Repository == nil {
		return nil, fmt.Errorf("get repository %s: %w", ref, ErrNotFound)
	}
	return q.Repository.toRepository(), nil
}

// OwnerID returns the node ID of a user or organization.
func (c *Client) OwnerID(ctx context.Context, login string) (string, error) {
	var q struct {
		RepositoryOwner *struct {
			ID string
		} `graphql:"repositoryOwner(login: $login)"`
	}
	vars := map[string]any{"login": githubv4.String(login)}
	if err := c.query(ctx, "repositoryOwner", &q, vars); err != nil {
		return "", fmt.Errorf("get owner %s: %w", login, err)
	}
	if q.RepositoryOwner == nil {
		return "", fmt.Errorf("get owner %s: %w", login, ErrNotFound)
	}
	return q.RepositoryOwner.ID, nil
}

// CreateRepository creates ref under its owner with the given visibility.
func (c *Client) CreateRepository(ctx context.Context, ref types.RepoRef, private bool, description string) (*types.Repository, error) {
	ownerID, err := c.OwnerID(ctx, ref.Owner)
	if err != nil {
		return nil, err
	}
	visibility := "PUBLIC"
	if private {
		visibility = "PRIVATE"
	}
	var m struct {
		CreateRepository struct {
			Repository repositoryNode
		} `graphql:"createRepository(input: $input)"`
	}
	input := CreateRepositoryInput{
		OwnerID:          githubv4.ID(ownerID),
		Name:             ref.Name,
		Visibility:       visibility,
		Description:      description,
		HasIssuesEnabled: true,
	}
	if err := c.mutate(ctx, "createRepository", &m, input); err != nil {
		return nil, fmt.Errorf("create repository %s: %w", ref, err)
	}
	return m.CreateRepository.Repository.toRepository(), nil
}

// EnsureRepository returns the target repository, creating it when it
// does not exist yet.
func (c *Client) EnsureRepository(ctx context.Context, ref types.RepoRef, private bool, description string) (repo *types.Repository, created bool, err error) {
	repo, err = c.GetRepository(ctx, ref)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	repo, err = c.CreateRepository(ctx, ref, private, description)
	if err != nil {
		return nil, false, err
	}
	return repo, true, nil
}
