package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// projectSearchSize is how many projects are fetched when searching by
// title; the exact title is then matched locally.
const projectSearchSize = 20

// FindProject returns the project of owner titled exactly title.
// It returns ErrNotFound when there is none.
func (c *Client) FindProject(ctx context.Context, owner, title string) (*types.Project, error) {
	var q struct {
		RepositoryOwner *struct {
			ProjectV2Owner struct {
				ProjectsV2 struct {
					Nodes []struct {
						ID     string
						Number int
						Title  string
					}
				} `graphql:"projectsV2(first: $first, query: $title)"`
			} `graphql:"... on ProjectV2Owner"`
		} `graphql:"repositoryOwner(login: $login)"`
	}
	vars := map[string]any{
		"login": githubv4.String(owner),
		"title": githubv4.String(title),
		"first": githubv4.Int(projectSearchSize),
	}
	if err := c.query(ctx, "projects", &q, vars); err != nil {
		return nil, fmt.Errorf("find project %q of %s: %w", title, owner, err)
	}
	if q.RepositoryOwner == nil {
		return nil, fmt.Errorf("find project %q: owner %s: %w", title, owner, ErrNotFound)
	}
	for _, n := range q.RepositoryOwner.ProjectV2Owner.ProjectsV2.Nodes {
		if n.Title == title {
			fields, err := c.ProjectFields(ctx, n.ID)
			if err != nil {
				return nil, err
			}
			return &types.Project{ID: n.ID, Number: n.Number, Title: n.Title, Fields: fields}, nil
		}
	}
	return nil, fmt.Errorf("find project %q of %s: %w", title, owner, ErrNotFound)
}

// CreateProject creates an empty project owned by ownerLogin.
func (c *Client) CreateProject(ctx context.Context, ownerLogin, title string) (*types.Project, error) {
	ownerID, err := c.OwnerID(ctx, ownerLogin)
	if err != nil {
		return nil, err
	}
	var m struct {
		CreateProjectV2 struct {
			ProjectV2 struct {
				ID     string
				Number int
				Title  string
			}
		} `graphql:"createProjectV2(input: $input)"`
	}
	if err := c.mutate(ctx, "createProjectV2", &m, CreateProjectV2Input{OwnerID: githubv4.ID(ownerID), Title: title}); err != nil {
		return nil, fmt.Errorf("create project %q: %w", title, err)
	}
	p := &types.Project{ID: m.CreateProjectV2.ProjectV2.ID, Number: m.CreateProjectV2.ProjectV2.Number, Title: m.CreateProjectV2.ProjectV2.Title}
	fields, err := c.ProjectFields(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Fields = fields
	return p, nil
}

type optionNode struct {
	ID          string
	Name        string
	Color       string
	Description string
}

type iterationNode struct {
	ID        string
	Title     string
	StartDate string
	Duration  int
}

type fieldNode struct {
	Common struct {
		ID       string
		Name     string
		DataType string
	} `graphql:"... on ProjectV2FieldCommon"`
	Iteration struct {
		Configuration struct {
			Duration            int
			StartDay            int
			Iterations          []iterationNode
			CompletedIterations []iterationNode
		}
	} `graphql:"... on ProjectV2IterationField"`
	SingleSelect struct {
		Options []optionNode
	} `graphql:"... on ProjectV2SingleSelectField"`
}

func (n fieldNode) toField() types.ProjectField {
	f := types.ProjectField{
		ID:       n.Common.ID,
		Name:     n.Common.Name,
		DataType: types.FieldDataType(n.Common.DataType),
	}
	switch f.DataType {
	case types.FieldSingleSelect:
		for _, o := range n.SingleSelect.Options {
			f.Options = append(f.Options, types.FieldOption{ID: o.ID, Name: o.Name, Color: o.Color, Description: o.Description})
		}
	case types.FieldIteration:
		cfg := n.Iteration.Configuration
		f.IterationDuration = cfg.Duration
		for _, it := range append(cfg.CompletedIterations, cfg.Iterations...) {
			f.Iterations = append(f.Iterations, types.Iteration{ID: it.ID, Title: it.Title, StartDate: it.StartDate, Duration: it.Duration})
		}
		if len(f.Iterations) > 0 {
			f.IterationStart = f.Iterations[0].StartDate
		}
	}
	return f
}

// ProjectFields returns the field definitions of a project.
func (c *Client) ProjectFields(ctx context.Context, projectID string) ([]types.ProjectField, error) {
	var q struct {
		Node struct {
			ProjectV2 struct {
				Fields struct {
					Nodes []fieldNode
				} `graphql:"fields(first: 100)"`
			} `graphql:"... on ProjectV2"`
		} `graphql:"node(id: $id)"`
	}
	if err := c.query(ctx, "projectFields", &q, map[string]any{"id": githubv4.ID(projectID)}); err != nil {
		return nil, fmt.Errorf("list fields of project %s: %w", projectID, err)
	}
	fields := make([]types.ProjectField, 0, len(q.Node.ProjectV2.Fields.Nodes))
	for _, n := range q.Node.ProjectV2.Fields.Nodes {
		fields = append(fields, n.toField())
	}
	return fields, nil
}

type fieldRef struct {
	Common struct {
		Name string
	} `graphql:"... on ProjectV2FieldCommon"`
}

type itemNode struct {
	ID      string
	Content struct {
		Typename string `graphql:"__typename"`
		Issue    struct {
			ID         string
			Number     int
			Repository struct {
				NameWithOwner string
			}
		} `graphql:"... on Issue"`
		PullRequest struct {
			ID         string
			Number     int
			Repository struct {
				NameWithOwner string
			}
		} `graphql:"... on PullRequest"`
	}
	FieldValues struct {
		Nodes []struct {
			Typename string `graphql:"__typename"`
			Text     struct {
				Text  string
				Field fieldRef
			} `graphql:"... on ProjectV2ItemFieldTextValue"`
			Number struct {
				Number float64
				Field  fieldRef
			} `graphql:"... on ProjectV2ItemFieldNumberValue"`
			Date struct {
				Date  string
				Field fieldRef
			} `graphql:"... on ProjectV2ItemFieldDateValue"`
			SingleSelect struct {
				Name  string
				Field fieldRef
			} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
			Iteration struct {
				Title string
				Field fieldRef
			} `graphql:"... on ProjectV2ItemFieldIterationValue"`
		}
	} `graphql:"fieldValues(first: 50)"`
}

func (n itemNode) toItem() types.ProjectItem {
	item := types.ProjectItem{ID: n.ID, Values: map[string]types.FieldValue{}}
	switch n.Content.Typename {
	case "Issue":
		item.ContentID = n.Content.Issue.ID
		item.ContentNumber = n.Content.Issue.Number
		item.ContentRepo = n.Content.Issue.Repository.NameWithOwner
	case "PullRequest":
		item.ContentID = n.Content.PullRequest.ID
		item.ContentNumber = n.Content.PullRequest.Number
		item.ContentRepo = n.Content.PullRequest.Repository.NameWithOwner
	}
	for _, v := range n.FieldValues.Nodes {
		switch v.Typename {
		case "ProjectV2ItemFieldTextValue":
			item.Values[v.Text.Field.Common.Name] = types.FieldValue{Text: v.Text.Text}
		case "ProjectV2ItemFieldNumberValue":
			num := v.Number.Number
			item.Values[v.Number.Field.Common.Name] = types.FieldValue{Number: &num}
		case "ProjectV2ItemFieldDateValue":
			item.Values[v.Date.Field.Common.Name] = types.FieldValue{Date: v.Date.Date}
		case "ProjectV2ItemFieldSingleSelectValue":
			item.Values[v.SingleSelect.Field.Common.Name] = types.FieldValue{Option: v.SingleSelect.Name}
		case "ProjectV2ItemFieldIterationValue":
			item.Values[v.Iteration.Field.Common.Name] = types.FieldValue{Iteration: v.Iteration.Title}
		}
	}
	return item
}

// ProjectItemPages lists the items of a project page by page. Items that
// are drafts or redacted have an empty ContentID.
func (c *Client) ProjectItemPages(projectID string) PageFunc[types.ProjectItem] {
	return func(ctx context.Context, cursor *githubv4.String) ([]types.ProjectItem, PageInfo, error) {
		var q struct {
			Node struct {
				ProjectV2 struct {
					Items struct {
						Nodes    []itemNode
						PageInfo PageInfo
					} `graphql:"items(first: $first, after: $cursor)"`
				} `graphql:"... on ProjectV2"`
			} `graphql:"node(id: $id)"`
		}
		vars := map[string]any{
			"id":     githubv4.ID(projectID),
			"first":  githubv4.Int(PageSize),
			"cursor": cursor,
		}
		if err := c.query(ctx, "projectItems", &q, vars); err != nil {
			return nil, PageInfo{}, fmt.Errorf("list items of project %s: %w", projectID, err)
		}
		items := make([]types.ProjectItem, 0, len(q.Node.ProjectV2.Items.Nodes))
		for _, n := range q.Node.ProjectV2.Items.Nodes {
			items = append(items, n.toItem())
		}
		return items, q.Node.ProjectV2.Items.PageInfo, nil
	}
}

// ListProjectItems returns every item of a project.
func (c *Client) ListProjectItems(ctx context.Context, projectID string) ([]types.ProjectItem, error) {
	return Collect(Pages(ctx, c.ProjectItemPages(projectID)))
}

func optionInputs(opts []types.FieldOption) []ProjectV2SingleSelectFieldOptionInput {
	in := make([]ProjectV2SingleSelectFieldOptionInput, 0, len(opts))
	for _, o := range opts {
		color := o.Color
		if color == "" {
			color = "GRAY"
		}
		in = append(in, ProjectV2SingleSelectFieldOptionInput{Name: o.Name, Color: color, Description: o.Description})
	}
	return in
}

// CreateProjectField creates a custom field shaped like f.
func (c *Client) CreateProjectField(ctx context.Context, projectID string, f types.ProjectField) (types.ProjectField, error) {
	input := CreateProjectV2FieldInput{
		ProjectID: githubv4.ID(projectID),
		DataType:  string(f.DataType),
		Name:      f.Name,
	}
	switch f.DataType {
	case types.FieldSingleSelect:
		input.SingleSelectOptions = optionInputs(f.Options)
	case types.FieldIteration:
		cfg := &ProjectV2IterationFieldConfigurationInput{Duration: f.IterationDuration, StartDate: f.IterationStart}
		for _, it := range f.Iterations {
			cfg.Iterations = append(cfg.Iterations, ProjectV2Iteration{Title: it.Title, StartDate: it.StartDate, Duration: it.Duration})
		}
		if cfg.Duration == 0 {
			cfg.Duration = 14
		}
		input.IterationConfiguration = cfg
	}
	var m struct {
		CreateProjectV2Field struct {
			ProjectV2Field fieldNode
		} `graphql:"createProjectV2Field(input: $input)"`
	}
	if err := c.mutate(ctx, "createProjectV2Field", &m, input); err != nil {
		return types.ProjectField{}, fmt.Errorf("create project field %q: %w", f.Name, err)
	}
	return m.CreateProjectV2Field.ProjectV2Field.toField(), nil
}

// SetFieldOptions replaces the options of a single-select field and
// returns the field with the new option IDs. The input carries no option
// IDs, so every option gets a new one and the field's value is cleared
// on every item of the project.
func (c *Client) SetFieldOptions(ctx context.Context, fieldID string, opts []types.FieldOption) (types.ProjectField, error) {
	var m struct {
		UpdateProjectV2Field struct {
			ProjectV2Field fieldNode
		} `graphql:"updateProjectV2Field(input: $input)"`
	}
	input := UpdateProjectV2FieldInput{FieldID: githubv4.ID(fieldID), SingleSelectOptions: optionInputs(opts)}
	if err := c.mutate(ctx, "updateProjectV2Field", &m, input); err != nil {
		return types.ProjectField{}, fmt.Errorf("update options of field %s: %w", fieldID, err)
	}
	return m.UpdateProjectV2Field.ProjectV2Field.toField(), nil
}

// AddProjectItem links the issue or pull request contentID to a project
// and returns the item ID. Adding content that is already linked returns
// the existing item.
func (c *Client) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	var m struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string
			}
		} `graphql:"addProjectV2ItemById(input: $input)"`
	}
	input := AddProjectV2ItemByIdInput{ProjectID: githubv4.ID(projectID), ContentID: githubv4.ID(contentID)}
	if err := c.mutate(ctx, "addProjectV2ItemById", &m, input); err != nil {
		return "", fmt.Errorf("add %s to project %s: %w", contentID, projectID, err)
	}
	return m.AddProjectV2ItemByID.Item.ID, nil
}

// SetProjectItemValue writes one field value of a project item.
func (c *Client) SetProjectItemValue(ctx context.Context, projectID, itemID, fieldID string, value ProjectV2FieldValue) error {
	var m struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string
			}
		} `graphql:"updateProjectV2ItemFieldValue(input: $input)"`
	}
	input := UpdateProjectV2ItemFieldValueInput{
		ProjectID: githubv4.ID(projectID),
		ItemID:    githubv4.ID(itemID),
		FieldID:   githubv4.ID(fieldID),
		Value:     value,
	}
	if err := c.mutate(ctx, "updateProjectV2ItemFieldValue", &m, input); err != nil {
		return fmt.Errorf("set field %s on item %s: %w", fieldID, itemID, err)
	}
	return nil
}
