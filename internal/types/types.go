// Package types defines the data structures shared by the migration stages.
//
// Values here are platform-neutral snapshots of what the GitHub API returned;
// the github package converts its GraphQL responses into them and the
// reconcile and project packages decide on them.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RepoRef identifies a repository as owner/name.
type RepoRef struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Repository is a resolved repository on either side of a migration.
type Repository struct {
	ID        string // GraphQL node ID
	OwnerID   string
	Ref       RepoRef
	IsPrivate bool
}

// State is the open/closed state shared by issues and milestones.
type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// ParseState normalizes an API state string. MERGED pull requests map to closed.
func ParseState(s string) State {
	switch strings.ToUpper(s) {
	case "CLOSED", "MERGED":
		return StateClosed
	default:
		return StateOpen
	}
}

// Label is a repository label. Labels carry no body; they are matched by name.
type Label struct {
	ID          string
	Name        string
	Color       string
	Description string
}

// Milestone is a repository milestone, matched by title.
type Milestone struct {
	ID          string
	Number      int
	Title       string
	Description string
	State       State
	DueOn       *time.Time
}

// Issue is an issue or pull request. Pull requests are migrated as issues;
// IsPullRequest only affects the attribution text.
type Issue struct {
	ID             string // GraphQL node ID
	Number         int
	Title          string
	Body           string
	State          State
	Author         string // login, empty for deleted users
	CreatedAt      time.Time
	Labels         []string
	MilestoneTitle string
	IsPullRequest  bool
}

// Comment is an issue or pull request comment.
type Comment struct {
	ID         string // GraphQL node ID
	DatabaseID int64  // numeric ID, stable across renames
	Body       string
	Author     string
	CreatedAt  time.Time
}

// Project is a Project V2 board.
type Project struct {
	ID     string
	Number int
	Title  string
	Fields []ProjectField
}

// FieldByName returns the project field with the given name.
func (p *Project) FieldByName(name string) (ProjectField, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ProjectField{}, false
}

// FieldDataType is the Project V2 field data type as reported by the API.
type FieldDataType string

const (
	FieldText         FieldDataType = "TEXT"
	FieldNumber       FieldDataType = "NUMBER"
	FieldDate         FieldDataType = "DATE"
	FieldSingleSelect FieldDataType = "SINGLE_SELECT"
	FieldIteration    FieldDataType = "ITERATION"
)

// ProjectField is a Project V2 field definition.
type ProjectField struct {
	ID         string
	Name       string
	DataType   FieldDataType
	Options    []FieldOption // SINGLE_SELECT only
	Iterations []Iteration   // ITERATION only
	// IterationDuration is the default iteration length in days.
	IterationDuration int
	IterationStart    string
}

// OptionByName returns the single-select option with the given label.
func (f ProjectField) OptionByName(name string) (FieldOption, bool) {
	for _, o := range f.Options {
		if o.Name == name {
			return o, true
		}
	}
	return FieldOption{}, false
}

// IterationByTitle returns the iteration with the given title.
func (f ProjectField) IterationByTitle(title string) (Iteration, bool) {
	for _, it := range f.Iterations {
		if it.Title == title {
			return it, true
		}
	}
	return Iteration{}, false
}

// FieldOption is one choice of a single-select field.
type FieldOption struct {
	ID          string
	Name        string
	Color       string
	Description string
}

// Iteration is one iteration of an iteration field.
type Iteration struct {
	ID        string
	Title     string
	StartDate string // YYYY-MM-DD
	Duration  int    // days
}

// ProjectItem is a project row linked to an issue or pull request.
type ProjectItem struct {
	ID            string
	ContentID     string // node ID of the linked issue/PR
	ContentNumber int
	ContentRepo   string // nameWithOwner
	Values        map[string]FieldValue
}

// FieldValue is the value of one field on a project item. Exactly one
// member is meaningful, chosen by the field's data type.
type FieldValue struct {
	Text      string
	Number    *float64
	Date      string
	Option    string // single-select option label
	Iteration string // iteration title
}

// String renders the value for comparison and logging. Two values that
// render identically are considered in sync.
func (v FieldValue) String() string {
	switch {
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Option != "":
		return v.Option
	case v.Iteration != "":
		return v.Iteration
	case v.Date != "":
		return v.Date
	default:
		return v.Text
	}
}

// EntityType names a kind of migrated entity. It is the type component of
// a provenance marker and of identity map keys.
type EntityType string

const (
	EntityLabel       EntityType = "label"
	EntityMilestone   EntityType = "milestone"
	EntityIssue       EntityType = "issue"
	EntityComment     EntityType = "comment"
	EntityProjectItem EntityType = "project_item"
)

// DecisionKind is the outcome of comparing a source entity with the target.
type DecisionKind string

const (
	DecisionCreate DecisionKind = "create"
	DecisionUpdate DecisionKind = "update"
	DecisionSkip   DecisionKind = "skip"
)

// Decision is the reconcile verdict for one source entity.
type Decision struct {
	Kind     DecisionKind
	Type     EntityType
	Key      string   // source natural key (name, title, number, comment ID)
	TargetID string   // empty for Create
	Changes  []string // fields that differ, for Update
}

// String renders the decision for logs, e.g. "update issue #42 (state, title)".
func (d Decision) String() string {
	s := fmt.Sprintf("%s %s %s", d.Kind, d.Type, d.Key)
	if len(d.Changes) > 0 {
		s += " (" + strings.Join(d.Changes, ", ") + ")"
	}
	return s
}

// NewIssue is the payload for creating an issue on the target.
type NewIssue struct {
	Title       string
	Body        string
	LabelIDs    []string
	MilestoneID string // empty for none
}

// IssuePatch lists the issue fields to change. Nil members are kept.
type IssuePatch struct {
	Title *string
	Body  *string
	State *State
	// LabelIDs replaces the label set when non-nil; an empty slice clears it.
	LabelIDs *[]string
	// MilestoneID sets the milestone when non-nil; an empty string clears it.
	MilestoneID *string
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.State == nil && p.LabelIDs == nil && p.MilestoneID == nil
}
