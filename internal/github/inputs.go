package github

import (
	"encoding/json"

	"github.com/shurcooL/githubv4"
)

// GraphQL input objects. githubv4 declares the $input variable with the
// Go type name, so each type is named exactly like its schema input.

// CreateRepositoryInput is the input of createRepository.
type CreateRepositoryInput struct {
	OwnerID          githubv4.ID `json:"ownerId"`
	Name             string      `json:"name"`
	Visibility       string      `json:"visibility"` // PRIVATE or PUBLIC
	Description      string      `json:"description,omitempty"`
	HasIssuesEnabled bool        `json:"hasIssuesEnabled"`
}

// CreateIssueInput is the input of createIssue.
type CreateIssueInput struct {
	RepositoryID githubv4.ID `json:"repositoryId"`
	Title        string      `json:"title"`
	Body         string      `json:"body,omitempty"`
	LabelIDs     []string    `json:"labelIds,omitempty"`
	MilestoneID  string      `json:"milestoneId,omitempty"`
}

// UpdateIssueInput is the input of updateIssue. Nil members are left
// unchanged.
type UpdateIssueInput struct {
	ID          githubv4.ID `json:"id"`
	Title       *string     `json:"title,omitempty"`
	Body        *string     `json:"body,omitempty"`
	State       *string     `json:"state,omitempty"` // OPEN or CLOSED
	LabelIDs    *[]string   `json:"labelIds,omitempty"`
	MilestoneID *NullableID `json:"milestoneId,omitempty"`
}

// NullableID marshals an empty ID as JSON null, which clears a reference.
type NullableID string

// MarshalJSON implements json.Marshaler.
func (id NullableID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// CloseIssueInput is the input of closeIssue.
type CloseIssueInput struct {
	IssueID githubv4.ID `json:"issueId"`
}

// AddCommentInput is the input of addComment.
type AddCommentInput struct {
	SubjectID githubv4.ID `json:"subjectId"`
	Body      string      `json:"body"`
}

// UpdateIssueCommentInput is the input of updateIssueComment.
type UpdateIssueCommentInput struct {
	ID   githubv4.ID `json:"id"`
	Body string      `json:"body"`
}

// CreateProjectV2Input is the input of createProjectV2.
type CreateProjectV2Input struct {
	OwnerID githubv4.ID `json:"ownerId"`
	Title   string      `json:"title"`
}

// ProjectV2SingleSelectFieldOptionInput is one single-select option.
// All members are required by the schema.
type ProjectV2SingleSelectFieldOptionInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// ProjectV2Iteration is one iteration of an iteration configuration.
type ProjectV2Iteration struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	Duration  int    `json:"duration"`
}

// ProjectV2IterationFieldConfigurationInput configures an iteration field.
type ProjectV2IterationFieldConfigurationInput struct {
	Duration   int                  `json:"duration"`
	StartDate  string               `json:"startDate"`
	Iterations []ProjectV2Iteration `json:"iterations"`
}

// CreateProjectV2FieldInput is the input of createProjectV2Field.
type CreateProjectV2FieldInput struct {
	ProjectID              githubv4.ID                                `json:"projectId"`
	DataType               string                                     `json:"dataType"`
	Name                   string                                     `json:"name"`
	SingleSelectOptions    []ProjectV2SingleSelectFieldOptionInput    `json:"singleSelectOptions,omitempty"`
	IterationConfiguration *ProjectV2IterationFieldConfigurationInput `json:"iterationConfiguration,omitempty"`
}

// UpdateProjectV2FieldInput is the input of updateProjectV2Field. The
// option list replaces the field's options.
type UpdateProjectV2FieldInput struct {
	FieldID             githubv4.ID                             `json:"fieldId"`
	SingleSelectOptions []ProjectV2SingleSelectFieldOptionInput `json:"singleSelectOptions,omitempty"`
}

// AddProjectV2ItemByIdInput is the input of addProjectV2ItemById.
type AddProjectV2ItemByIdInput struct {
	ProjectID githubv4.ID `json:"projectId"`
	ContentID githubv4.ID `json:"contentId"`
}

// ProjectV2FieldValue sets one field; exactly one member is non-nil.
type ProjectV2FieldValue struct {
	Text                 *string  `json:"text,omitempty"`
	Number               *float64 `json:"number,omitempty"`
	Date                 *string  `json:"date,omitempty"`
	SingleSelectOptionID *string  `json:"singleSelectOptionId,omitempty"`
	IterationID          *string  `json:"iterationId,omitempty"`
}

// UpdateProjectV2ItemFieldValueInput is the input of updateProjectV2ItemFieldValue.
type UpdateProjectV2ItemFieldValueInput struct {
	ProjectID githubv4.ID         `json:"projectId"`
	ItemID    githubv4.ID         `json:"itemId"`
	FieldID   githubv4.ID         `json:"fieldId"`
	Value     ProjectV2FieldValue `json:"value"`
}
