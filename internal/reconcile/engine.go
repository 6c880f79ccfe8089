// Package reconcile brings the target repository's labels, milestones,
// issues and comments in line with the source repository.
//
// Each entity type is a stage that fetches the complete source and target
// collections, rebuilds the identity map from the target, decides one
// action per source entity and only then applies the decisions. Stages run
// strictly in order because later stages consume the ID maps of earlier
// ones; once a stage aborts, the remaining stages are skipped.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/telemetry"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Mode selects how already-migrated entities are treated.
type Mode string

const (
	// ModeReconcile creates missing entities and updates existing ones.
	ModeReconcile Mode = "reconcile"
	// ModeFresh creates missing entities and leaves existing issues and
	// comments alone, except that a migrated issue still open after its
	// source was closed gets closed. Labels and milestones are reconciled
	// in both modes.
	ModeFresh Mode = "fresh"
)

// Source reads the repository being migrated.
type Source interface {
	ListLabels(ctx context.Context, ref types.RepoRef) ([]types.Label, error)
	ListMilestones(ctx context.Context, ref types.RepoRef) ([]types.Milestone, error)
	ListIssues(ctx context.Context, ref types.RepoRef, pullRequests bool) ([]types.Issue, error)
	ListComments(ctx context.Context, ref types.RepoRef, number int, pullRequest bool) ([]types.Comment, error)
}

// Target reads and writes the repository being migrated to.
type Target interface {
	Source

	CreateLabel(ctx context.Context, ref types.RepoRef, l types.Label) (types.Label, error)
	UpdateLabel(ctx context.Context, ref types.RepoRef, l types.Label) error
	CreateMilestone(ctx context.Context, ref types.RepoRef, m types.Milestone) (types.Milestone, error)
	UpdateMilestone(ctx context.Context, ref types.RepoRef, number int, m types.Milestone) error
	CreateIssue(ctx context.Context, repoID string, in types.NewIssue) (types.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch types.IssuePatch) error
	CloseIssue(ctx context.Context, id string) error
	AddComment(ctx context.Context, subjectID, body string) (types.Comment, error)
	UpdateComment(ctx context.Context, id, body string) error
}

// Options configures one run.
type Options struct {
	Source types.RepoRef
	Target types.RepoRef
	// TargetRepoID is the node ID of the target repository, needed to
	// create issues.
	TargetRepoID string
	Mode         Mode
	// DryRun fetches and decides but applies nothing.
	DryRun bool
}

// Result is the outcome of a run.
type Result struct {
	Stages []*StageReport
	// Issues maps source issues to the target issues they live on.
	Issues *mapper.IssueIDMap
}

// Stage returns the report of the named stage.
func (r *Result) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Aborted reports whether any stage aborted.
func (r *Result) Aborted() bool {
	return r.Err() != nil
}

// Err returns the reason of the first aborted stage.
func (r *Result) Err() error {
	for _, s := range r.Stages {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Engine runs the reconcile pipeline between two repositories.
type Engine struct {
	Source Source
	Target Target
	Logger *slog.Logger

	// OnDecision is called for every decision, before it is applied.
	OnDecision func(types.Decision)

	decisions *telemetry.Decisions
}

// NewEngine returns an engine reading from src and writing to dst.
func NewEngine(src Source, dst Target, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Source: src, Target: dst, Logger: logger, decisions: telemetry.NewDecisions()}
}

// run carries the ID maps one stage hands to the next.
type run struct {
	e    *Engine
	opts Options

	labelIDs     map[string]string // label name -> target node ID
	milestoneIDs map[string]string // milestone title -> target node ID
	issues       []issuePair
	issueMap     *mapper.IssueIDMap
}

// issuePair links a source issue to its target issue. Target is nil for
// an issue a dry run would have created.
type issuePair struct {
	source  types.Issue
	target  *types.Issue
	created bool
	// close is set when the target is open but the source is closed and
	// the comment stage has to close it after appending comments.
	close bool
}

// Run executes every stage in order.
func (e *Engine) Run(ctx context.Context, opts Options) *Result {
	if opts.Mode == "" {
		opts.Mode = ModeReconcile
	}
	r := &run{
		e:            e,
		opts:         opts,
		labelIDs:     map[string]string{},
		milestoneIDs: map[string]string{},
		issueMap:     mapper.NewIssueIDMap(),
	}
	stages := map[string]func(context.Context, *stage) error{
		StageLabels:     r.labels,
		StageMilestones: r.milestones,
		StageIssues:     r.issuesStage,
		StageComments:   r.comments,
	}

	res := &Result{Issues: r.issueMap}
	aborted := false
	for _, name := range pipeline {
		rep := &StageReport{Name: name, State: StatePending}
		res.Stages = append(res.Stages, rep)
		if aborted {
			rep.State = StateSkipped
			e.Logger.Warn("stage skipped after earlier abort", "stage", name)
			continue
		}
		st := &stage{report: rep, run: r}
		if err := stages[name](ctx, st); err != nil {
			st.abort(err)
			aborted = true
			continue
		}
		st.to(StateDone)
		e.Logger.Info("stage done", "stage", name,
			"created", rep.Stats.Created, "updated", rep.Stats.Updated,
			"skipped", rep.Stats.Skipped, "errors", rep.Stats.Errors)
	}
	return res
}

// stage tracks the state of one running stage.
type stage struct {
	report *StageReport
	run    *run
	key    string // source entity being applied
}

func (s *stage) to(state State) {
	s.report.State = state
	s.run.e.Logger.Debug("stage state", "stage", s.report.Name, "state", state)
}

func (s *stage) abort(err error) {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: s.report.Name, Key: s.key, Err: err}
	}
	s.report.State = StateAborted
	s.report.Err = se
	s.run.e.Logger.Error("stage aborted", "stage", s.report.Name, "entity", se.Key, "error", se.Err)
}

// decide records a decision. Skips are counted at once; creates and
// updates when applied.
func (s *stage) decide(ctx context.Context, d types.Decision) {
	e := s.run.e
	e.decisions.Record(ctx, string(d.Type), string(d.Kind))
	if e.OnDecision != nil {
		e.OnDecision(d)
	}
	switch {
	case d.Kind == types.DecisionSkip:
		s.report.Stats.count(d.Kind)
		e.Logger.Debug("decision", "decision", d.String())
	case s.run.opts.DryRun:
		e.Logger.Info("[dry-run] would "+d.String(), "stage", s.report.Name)
	default:
		e.Logger.Debug("decision", "decision", d.String())
	}
}

// applied finishes a create or update decision. A failed write of a
// single entity is counted and the stage goes on, unless the error means
// no further write can succeed.
func (s *stage) applied(d types.Decision, err error) error {
	if err == nil {
		s.report.Stats.count(d.Kind)
		s.run.e.Logger.Info(d.String(), "stage", s.report.Name)
		return nil
	}
	if fatal(err) {
		return &StageError{Stage: s.report.Name, Key: fmt.Sprintf("%s %s", d.Type, d.Key), Err: err}
	}
	s.report.Stats.Errors++
	s.run.e.Logger.Warn("write failed", "decision", d.String(), "error", err)
	return nil
}

// fatal reports errors that abort a stage: rejected credentials,
// exhausted retries, inconsistent target state and cancellation.
func fatal(err error) bool {
	var (
		auth         *github.AuthError
		transient    *github.TransientError
		inconsistent *mapper.InconsistentStateError
	)
	return errors.As(err, &auth) ||
		errors.As(err, &transient) ||
		errors.As(err, &inconsistent) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
