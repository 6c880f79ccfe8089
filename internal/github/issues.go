package github

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

type issueNode struct {
	ID        string
	Number    int
	Title     string
	Body      string
	State     string
	CreatedAt time.Time
	Author    *struct {
		Login string
	}
	Milestone *struct {
		Title string
	}
	Labels struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: 100)"`
}

func (n issueNode) toIssue(pullRequest bool) types.Issue {
	is := types.Issue{
		ID:            n.ID,
		Number:        n.Number,
		Title:         n.Title,
		Body:          n.Body,
		State:         types.ParseState(n.State),
		CreatedAt:     n.CreatedAt,
		IsPullRequest: pullRequest,
	}
	if n.Author != nil {
		is.Author = n.Author.Login
	}
	if n.Milestone != nil {
		is.MilestoneTitle = n.Milestone.Title
	}
	for _, l := range n.Labels.Nodes {
		is.Labels = append(is.Labels, l.Name)
	}
	return is
}

// IssuePages lists open and closed issues, oldest first, page by page.
func (c *Client) IssuePages(ref types.RepoRef) PageFunc[types.Issue] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.Issue, PageInfo, error) {
		var q struct {
			Repository struct {
				Issues struct {
					Nodes    []issueNode
					PageInfo PageInfo
				} `graphql:"issues(first: $first, after: $cursor, states: [OPEN, CLOSED], orderBy: {field: CREATED_AT, direction: ASC})"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		if err := c.query(ctx, "issues", &q, repoVars(ref, cursor)); err != nil {
			return nil, PageInfo{}, fmt.Errorf("list issues of %s: %w", ref, err)
		}
		out := make([]types.Issue, 0, len(q.Repository.Issues.Nodes))
		for _, n := range q.Repository.Issues.Nodes {
			out = append(out, n.toIssue(false))
		}
		return out, q.Repository.Issues.PageInfo, nil
	}
}

// PullRequestPages lists open, closed and merged pull requests, oldest
// first, page by page.
func (c *Client) PullRequestPages(ref types.RepoRef) PageFunc[types.Issue] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.Issue, PageInfo, error) {
		var q struct {
			Repository struct {
				PullRequests struct {
					Nodes    []issueNode
					PageInfo PageInfo
				} `graphql:"pullRequests(first: $first, after: $cursor, states: [OPEN, CLOSED, MERGED], orderBy: {field: CREATED_AT, direction: ASC})"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		if err := c.query(ctx, "pullRequests", &q, repoVars(ref, cursor)); err != nil {
			return nil, PageInfo{}, fmt.Errorf("list pull requests of %s: %w", ref, err)
		}
		out := make([]types.Issue, 0, len(q.Repository.PullRequests.Nodes))
		for _, n := range q.Repository.PullRequests.Nodes {
			out = append(out, n.toIssue(true))
		}
		return out, q.Repository.PullRequests.PageInfo, nil
	}
}

// ListIssues returns every issue of a repository by ascending number.
// With pullRequests set, pull requests are included as issues.
func (c *Client) ListIssues(ctx context.Context, ref types.RepoRef, pullRequests bool) ([]types.Issue, error) {
	issues, err := Collect(Pages(ctx, c.IssuePages(ref)))
	if err != nil {
		return nil, err
	}
	if pullRequests {
		prs, err := Collect(Pages(ctx, c.PullRequestPages(ref)))
		if err != nil {
			return nil, err
		}
		issues = append(issues, prs...)
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })
	return issues, nil
}

type commentNode struct {
	ID             string
	FullDatabaseID string `graphql:"fullDatabaseId"`
	Body           string
	CreatedAt      time.Time
	Author         *struct {
		Login string
	}
}

func (n commentNode) toComment() types.Comment {
	c := types.Comment{ID: n.ID, Body: n.Body, CreatedAt: n.CreatedAt}
	c.DatabaseID, _ = strconv.ParseInt(n.FullDatabaseID, 10, 64)
	if n.Author != nil {
		c.Author = n.Author.Login
	}
	return c
}

type commentConnection struct {
	Nodes    []commentNode
	PageInfo PageInfo
}

// CommentPages lists the comments of issue or pull request number, in
// the order they were posted.
func (c *Client) CommentPages(ref types.RepoRef, number int, pullRequest bool) PageFunc[types.Comment] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.Comment, PageInfo, error) {
		vars := repoVars(ref, cursor)
		vars["number"] = githubv4.Int(number)

		var conn commentConnection
		if pullRequest {
			var q struct {
				Repository struct {
					PullRequest struct {
						Comments commentConnection `graphql:"comments(first: $first, after: $cursor)"`
					} `graphql:"pullRequest(number: $number)"`
				} `graphql:"repository(owner: $owner, name: $name)"`
			}
			if err := c.query(ctx, "pullRequestComments", &q, vars); err != nil {
				return nil, PageInfo{}, fmt.Errorf("list comments of %s#%d: %w", ref, number, err)
			}
			conn = q.Repository.PullRequest.Comments
		} else {
			var q struct {
				Repository struct {
					Issue struct {
						Comments commentConnection `graphql:"comments(first: $first, after: $cursor)"`
					} `graphql:"issue(number: $number)"`
				} `graphql:"repository(owner: $owner, name: $name)"`
			}
			if err := c.query(ctx, "issueComments", &q, vars); err != nil {
				return nil, PageInfo{}, fmt.Errorf("list comments of %s#%d: %w", ref, number, err)
			}
			conn = q.Repository.Issue.Comments
		}

		out := make([]types.Comment, 0, len(conn.Nodes))
		for _, n := range conn.Nodes {
			out = append(out, n.toComment())
		}
		return out, conn.PageInfo, nil
	}
}

// ListComments returns every comment of an issue or pull request.
func (c *Client) ListComments(ctx context.Context, ref types.RepoRef, number int, pullRequest bool) ([]types.Comment, error) {
	return Collect(Pages(ctx, c.CommentPages(ref, number, pullRequest)))
}

// CreateIssue creates an issue in the repository with node ID repoID.
func (c *Client) CreateIssue(ctx context.Context, repoID string, in types.NewIssue) (types.Issue, error) {
	var m struct {
		CreateIssue struct {
			Issue issueNode
		} `graphql:"createIssue(input: $input)"`
	}
	input := CreateIssueInput{
		RepositoryID: githubv4.ID(repoID),
		Title:        in.Title,
		Body:         in.Body,
		LabelIDs:     in.LabelIDs,
		MilestoneID:  in.MilestoneID,
	}
	if err := c.mutate(ctx, "createIssue", &m, input); err != nil {
		return types.Issue{}, fmt.Errorf("create issue %q: %w", in.Title, err)
	}
	return m.CreateIssue.Issue.toIssue(false), nil
}

// UpdateIssue applies patch to the issue with node ID id.
func (c *Client) UpdateIssue(ctx context.Context, id string, patch types.IssuePatch) error {
	if patch.Empty() {
		return nil
	}
	input := UpdateIssueInput{
		ID:       githubv4.ID(id),
		Title:    patch.Title,
		Body:     patch.Body,
		LabelIDs: patch.LabelIDs,
	}
	if patch.State != nil {
		s := string(*patch.State)
		input.State = &s
	}
	if patch.MilestoneID != nil {
		mid := NullableID(*patch.MilestoneID)
		input.MilestoneID = &mid
	}
	var m struct {
		UpdateIssue struct {
			Issue struct {
				ID string
			}
		} `graphql:"updateIssue(input: $input)"`
	}
	if err := c.mutate(ctx, "updateIssue", &m, input); err != nil {
		return fmt.Errorf("update issue %s: %w", id, err)
	}
	return nil
}

// CloseIssue closes the issue with node ID id.
func (c *Client) CloseIssue(ctx context.Context, id string) error {
	var m struct {
		CloseIssue struct {
			Issue struct {
				ID string
			}
		} `graphql:"closeIssue(input: $input)"`
	}
	if err := c.mutate(ctx, "closeIssue", &m, CloseIssueInput{IssueID: githubv4.ID(id)}); err != nil {
		return fmt.Errorf("close issue %s: %w", id, err)
	}
	return nil
}

// AddComment appends a comment to the issue with node ID subjectID.
func (c *Client) AddComment(ctx context.Context, subjectID, body string) (types.Comment, error) {
	var m struct {
		AddComment struct {
			CommentEdge struct {
				Node commentNode
			}
		} `graphql:"addComment(input: $input)"`
	}
	if err := c.mutate(ctx, "addComment", &m, AddCommentInput{SubjectID: githubv4.ID(subjectID), Body: body}); err != nil {
		return types.Comment{}, fmt.Errorf("add comment to %s: %w", subjectID, err)
	}
	return m.AddComment.CommentEdge.Node.toComment(), nil
}

// UpdateComment replaces the body of the comment with node ID id.
func (c *Client) UpdateComment(ctx context.Context, id, body string) error {
	var m struct {
		UpdateIssueComment struct {
			IssueComment struct {
				ID string
			}
		} `graphql:"updateIssueComment(input: $input)"`
	}
	if err := c.mutate(ctx, "updateIssueComment", &m, UpdateIssueCommentInput{ID: githubv4.ID(id), Body: body}); err != nil {
		return fmt.Errorf("update comment %s: %w", id, err)
	}
	return nil
}
