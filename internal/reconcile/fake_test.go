package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// fakeRepo is the in-memory state of one repository.
type fakeRepo struct {
	id         string
	labels     []types.Label
	milestones []types.Milestone
	issues     []*types.Issue
	comments   map[int][]types.Comment
}

// fakeGitHub implements Source and Target over in-memory repositories.
type fakeGitHub struct {
	repos  map[string]*fakeRepo
	nextID int
	clock  time.Time
	// writes logs every mutation, e.g. "createIssue #1".
	writes []string

	// failures returns an error for the named write operation.
	failures map[string]error
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		repos:    map[string]*fakeRepo{},
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		failures: map[string]error{},
	}
}

func (f *fakeGitHub) repo(ref types.RepoRef) *fakeRepo {
	r, ok := f.repos[ref.String()]
	if !ok {
		r = &fakeRepo{id: "R_" + ref.Name, comments: map[int][]types.Comment{}}
		f.repos[ref.String()] = r
	}
	return r
}

func (f *fakeGitHub) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeGitHub) now() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeGitHub) write(op, what string) error {
	if err := f.failures[op]; err != nil {
		return err
	}
	f.writes = append(f.writes, op+" "+what)
	return nil
}

func (f *fakeGitHub) issueByID(id string) (*fakeRepo, *types.Issue, error) {
	for _, r := range f.repos {
		for _, is := range r.issues {
			if is.ID == id {
				return r, is, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("issue %s: %w", id, github.ErrNotFound)
}

// seed helpers

func (f *fakeGitHub) addLabel(ref types.RepoRef, name, color, desc string) {
	r := f.repo(ref)
	r.labels = append(r.labels, types.Label{ID: f.id("LA"), Name: name, Color: color, Description: desc})
}

func (f *fakeGitHub) addMilestone(ref types.RepoRef, m types.Milestone) {
	r := f.repo(ref)
	m.ID = f.id("MI")
	m.Number = len(r.milestones) + 1
	r.milestones = append(r.milestones, m)
}

func (f *fakeGitHub) addIssue(ref types.RepoRef, is types.Issue) *types.Issue {
	r := f.repo(ref)
	if is.ID == "" {
		is.ID = f.id("I")
	}
	if is.Number == 0 {
		is.Number = len(r.issues) + 1
	}
	if is.State == "" {
		is.State = types.StateOpen
	}
	if is.CreatedAt.IsZero() {
		is.CreatedAt = f.now()
	}
	r.issues = append(r.issues, &is)
	return &is
}

func (f *fakeGitHub) addComment(ref types.RepoRef, number int, c types.Comment) {
	r := f.repo(ref)
	f.nextID++
	if c.ID == "" {
		c.ID = fmt.Sprintf("IC_%d", f.nextID)
	}
	if c.DatabaseID == 0 {
		c.DatabaseID = int64(1000 + f.nextID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = f.now()
	}
	r.comments[number] = append(r.comments[number], c)
}

// Source

func (f *fakeGitHub) ListLabels(_ context.Context, ref types.RepoRef) ([]types.Label, error) {
	return slices.Clone(f.repo(ref).labels), nil
}

func (f *fakeGitHub) ListMilestones(_ context.Context, ref types.RepoRef) ([]types.Milestone, error) {
	return slices.Clone(f.repo(ref).milestones), nil
}

func (f *fakeGitHub) ListIssues(_ context.Context, ref types.RepoRef, pullRequests bool) ([]types.Issue, error) {
	var out []types.Issue
	for _, is := range f.repo(ref).issues {
		if is.IsPullRequest && !pullRequests {
			continue
		}
		c := *is
		c.Labels = slices.Clone(is.Labels)
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeGitHub) ListComments(_ context.Context, ref types.RepoRef, number int, _ bool) ([]types.Comment, error) {
	return slices.Clone(f.repo(ref).comments[number]), nil
}

// Target

func (f *fakeGitHub) CreateLabel(_ context.Context, ref types.RepoRef, l types.Label) (types.Label, error) {
	if err := f.write("createLabel", l.Name); err != nil {
		return types.Label{}, err
	}
	r := f.repo(ref)
	l.ID = f.id("LA")
	r.labels = append(r.labels, l)
	return l, nil
}

func (f *fakeGitHub) UpdateLabel(_ context.Context, ref types.RepoRef, l types.Label) error {
	if err := f.write("updateLabel", l.Name); err != nil {
		return err
	}
	r := f.repo(ref)
	for i := range r.labels {
		if r.labels[i].Name == l.Name {
			r.labels[i].Color = l.Color
			r.labels[i].Description = l.Description
			return nil
		}
	}
	return github.ErrNotFound
}

func (f *fakeGitHub) CreateMilestone(_ context.Context, ref types.RepoRef, m types.Milestone) (types.Milestone, error) {
	if err := f.write("createMilestone", m.Title); err != nil {
		return types.Milestone{}, err
	}
	f.addMilestone(ref, m)
	ms := f.repo(ref).milestones
	return ms[len(ms)-1], nil
}

func (f *fakeGitHub) UpdateMilestone(_ context.Context, ref types.RepoRef, number int, m types.Milestone) error {
	if err := f.write("updateMilestone", m.Title); err != nil {
		return err
	}
	r := f.repo(ref)
	for i := range r.milestones {
		if r.milestones[i].Number == number {
			m.ID, m.Number = r.milestones[i].ID, number
			r.milestones[i] = m
			return nil
		}
	}
	return github.ErrNotFound
}

func (f *fakeGitHub) CreateIssue(_ context.Context, repoID string, in types.NewIssue) (types.Issue, error) {
	var r *fakeRepo
	var ref types.RepoRef
	for key, candidate := range f.repos {
		if candidate.id == repoID {
			r = candidate
			ref.Owner, ref.Name, _ = strings.Cut(key, "/")
		}
	}
	if r == nil {
		return types.Issue{}, fmt.Errorf("repository %s: %w", repoID, github.ErrNotFound)
	}
	if err := f.write("createIssue", in.Title); err != nil {
		return types.Issue{}, err
	}
	is := types.Issue{Title: in.Title, Body: in.Body, Author: "migrator-bot"}
	for _, id := range in.LabelIDs {
		for _, l := range r.labels {
			if l.ID == id {
				is.Labels = append(is.Labels, l.Name)
			}
		}
	}
	for _, m := range r.milestones {
		if m.ID == in.MilestoneID {
			is.MilestoneTitle = m.Title
		}
	}
	return *f.addIssue(ref, is), nil
}

func (f *fakeGitHub) UpdateIssue(_ context.Context, id string, patch types.IssuePatch) error {
	r, is, err := f.issueByID(id)
	if err != nil {
		return err
	}
	if err := f.write("updateIssue", fmt.Sprintf("#%d", is.Number)); err != nil {
		return err
	}
	if patch.Title != nil {
		is.Title = *patch.Title
	}
	if patch.Body != nil {
		is.Body = *patch.Body
	}
	if patch.State != nil {
		is.State = *patch.State
	}
	if patch.LabelIDs != nil {
		is.Labels = nil
		for _, lid := range *patch.LabelIDs {
			for _, l := range r.labels {
				if l.ID == lid {
					is.Labels = append(is.Labels, l.Name)
				}
			}
		}
	}
	if patch.MilestoneID != nil {
		is.MilestoneTitle = ""
		for _, m := range r.milestones {
			if m.ID == *patch.MilestoneID {
				is.MilestoneTitle = m.Title
			}
		}
	}
	return nil
}

func (f *fakeGitHub) CloseIssue(_ context.Context, id string) error {
	_, is, err := f.issueByID(id)
	if err != nil {
		return err
	}
	if err := f.write("closeIssue", fmt.Sprintf("#%d", is.Number)); err != nil {
		return err
	}
	is.State = types.StateClosed
	return nil
}

func (f *fakeGitHub) AddComment(_ context.Context, subjectID, body string) (types.Comment, error) {
	r, is, err := f.issueByID(subjectID)
	if err != nil {
		return types.Comment{}, err
	}
	if err := f.write("addComment", fmt.Sprintf("#%d", is.Number)); err != nil {
		return types.Comment{}, err
	}
	f.nextID++
	c := types.Comment{
		ID:         fmt.Sprintf("IC_%d", f.nextID),
		DatabaseID: int64(1000 + f.nextID),
		Body:       body,
		Author:     "migrator-bot",
		CreatedAt:  f.now(),
	}
	r.comments[is.Number] = append(r.comments[is.Number], c)
	return c, nil
}

func (f *fakeGitHub) UpdateComment(_ context.Context, id, body string) error {
	for _, r := range f.repos {
		for n, cs := range r.comments {
			for i := range cs {
				if cs[i].ID == id {
					if err := f.write("updateComment", fmt.Sprintf("#%d", n)); err != nil {
						return err
					}
					cs[i].Body = body
					return nil
				}
			}
		}
	}
	return errors.New("comment not found")
}
