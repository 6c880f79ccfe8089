package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

func repoVars(ref types.RepoRef, cursor *githubv4.String) map[string]any {
	return map[string]any{
		"owner":  githubv4.String(ref.Owner),
		"name":   githubv4.String(ref.Name),
		"first":  githubv4.Int(PageSize),
		"cursor": cursor,
	}
}

// LabelPages lists the labels of a repository page by page.
func (c *Client) LabelPages(ref types.RepoRef) PageFunc[types.Label] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.Label, PageInfo, error) {
		var q struct {
			Repository struct {
				Labels struct {
					Nodes []struct {
						ID          string
						Name        string
						Color       string
						Description string
					}
					PageInfo PageInfo
				} `graphql:"labels(first: $first, after: $cursor)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		if err := c.query(ctx, "labels", &q, repoVars(ref, cursor)); err != nil {
			return nil, PageInfo{}, fmt.Errorf("list labels of %s: %w", ref, err)
		}
		labels := make([]types.Label, 0, len(q.Repository.Labels.Nodes))
		for _, n := range q.Repository.Labels.Nodes {
			labels = append(labels, types.Label{ID: n.ID, Name: n.Name, Color: n.Color, Description: n.Description})
		}
		return labels, q.Repository.Labels.PageInfo, nil
	}
}

// ListLabels returns every label of a repository.
func (c *Client) ListLabels(ctx context.Context, ref types.RepoRef) ([]types.Label, error) {
	return Collect(Pages(ctx, c.LabelPages(ref)))
}

// CreateLabel creates a label in the repository.
func (c *Client) CreateLabel(ctx context.Context, ref types.RepoRef, l types.Label) (types.Label, error) {
	var out *gogithub.Label
	err := c.restCall(ctx, "createLabel", func(ctx context.Context, gh *gogithub.Client) error {
		var err error
		out, _, err = gh.Issues.CreateLabel(ctx, ref.Owner, ref.Name, toLabel(l))
		return err
	})
	if err != nil {
		return types.Label{}, fmt.Errorf("create label %q: %w", l.Name, err)
	}
	return types.Label{ID: out.GetNodeID(), Name: out.GetName(), Color: out.GetColor(), Description: out.GetDescription()}, nil
}

// UpdateLabel sets color and description of the label named l.Name.
func (c *Client) UpdateLabel(ctx context.Context, ref types.RepoRef, l types.Label) error {
	edit := toLabel(l)
	edit.Name = nil
	err := c.restCall(ctx, "updateLabel", func(ctx context.Context, gh *gogithub.Client) error {
		_, _, err := gh.Issues.EditLabel(ctx, ref.Owner, ref.Name, l.Name, edit)
		return err
	})
	if err != nil {
		return fmt.Errorf("update label %q: %w", l.Name, err)
	}
	return nil
}

func toLabel(l types.Label) *gogithub.Label {
	return &gogithub.Label{
		Name:        gogithub.Ptr(l.Name),
		Color:       gogithub.Ptr(strings.TrimPrefix(l.Color, "#")),
		Description: gogithub.Ptr(l.Description),
	}
}

// MilestonePages lists open and closed milestones page by page.
func (c *Client) MilestonePages(ref types.RepoRef) PageFunc[types.Milestone] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.Milestone, PageInfo, error) {
		var q struct {
			Repository struct {
				Milestones struct {
					Nodes []struct {
						ID          string
						Number      int
						Title       string
						Description string
						State       string
						DueOn       *time.Time
					}
					PageInfo PageInfo
				} `graphql:"milestones(first: $first, after: $cursor, states: [OPEN, CLOSED])"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		if err := c.query(ctx, "milestones", &q, repoVars(ref, cursor)); err != nil {
			return nil, PageInfo{}, fmt.Errorf("list milestones of %s: %w", ref, err)
		}
		ms := make([]types.Milestone, 0, len(q.Repository.Milestones.Nodes))
		for _, n := range q.Repository.Milestones.Nodes {
			ms = append(ms, types.Milestone{
				ID:          n.ID,
				Number:      n.Number,
				Title:       n.Title,
				Description: n.Description,
				State:       types.ParseState(n.State),
				DueOn:       n.DueOn,
			})
		}
		return ms, q.Repository.Milestones.PageInfo, nil
	}
}

// ListMilestones returns every milestone of a repository.
func (c *Client) ListMilestones(ctx context.Context, ref types.RepoRef) ([]types.Milestone, error) {
	return Collect(Pages(ctx, c.MilestonePages(ref)))
}

func toMilestone(m types.Milestone) *gogithub.Milestone {
	state := strings.ToLower(string(m.State))
	if state == "" {
		state = "open"
	}
	out := &gogithub.Milestone{
		Title:       gogithub.Ptr(m.Title),
		State:       gogithub.Ptr(state),
		Description: gogithub.Ptr(m.Description),
	}
	if m.DueOn != nil {
		out.DueOn = &gogithub.Timestamp{Time: m.DueOn.UTC()}
	}
	return out
}

// CreateMilestone creates a milestone with the state and due date of m.
func (c *Client) CreateMilestone(ctx context.Context, ref types.RepoRef, m types.Milestone) (types.Milestone, error) {
	var out *gogithub.Milestone
	err := c.restCall(ctx, "createMilestone", func(ctx context.Context, gh *gogithub.Client) error {
		var err error
		out, _, err = gh.Issues.CreateMilestone(ctx, ref.Owner, ref.Name, toMilestone(m))
		return err
	})
	if err != nil {
		return types.Milestone{}, fmt.Errorf("create milestone %q: %w", m.Title, err)
	}
	created := m
	created.ID = out.GetNodeID()
	created.Number = out.GetNumber()
	return created, nil
}

// clearedDueOn sends due_on as an explicit null, which Milestone drops.
type clearedDueOn struct {
	*gogithub.Milestone
	DueOn *string `json:"due_on"`
}

// UpdateMilestone sets description, state and due date of the target
// milestone number. A milestone without a due date clears the target's.
func (c *Client) UpdateMilestone(ctx context.Context, ref types.RepoRef, number int, m types.Milestone) error {
	edit := toMilestone(m)
	err := c.restCall(ctx, "updateMilestone", func(ctx context.Context, gh *gogithub.Client) error {
		if edit.DueOn != nil {
			_, _, err := gh.Issues.EditMilestone(ctx, ref.Owner, ref.Name, number, edit)
			return err
		}
		u := fmt.Sprintf("repos/%v/%v/milestones/%d", ref.Owner, ref.Name, number)
		req, err := gh.NewRequest(http.MethodPatch, u, clearedDueOn{Milestone: edit})
		if err != nil {
			return err
		}
		_, err = gh.Do(ctx, req, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("update milestone %q: %w", m.Title, err)
	}
	return nil
}
