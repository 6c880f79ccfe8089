// Package migrator runs a complete migration: preflight checks, the git
// mirror, the target repository, the reconcile stages and project sync.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/git"
	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/project"
	"github.com/morgaesis/GitHub-Migrator/internal/reconcile"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Client is one side of a migration. *github.Client implements it.
type Client interface {
	reconcile.Target
	project.Target

	Preflight(ctx context.Context, required ...string) (string, error)
	GetRepository(ctx context.Context, ref types.RepoRef) (*types.Repository, error)
	EnsureRepository(ctx context.Context, ref types.RepoRef, private bool, description string) (*types.Repository, bool, error)
}

var _ Client = (*github.Client)(nil)

// Transferer copies git refs from one remote to another.
type Transferer interface {
	Transfer(ctx context.Context, name string, source, target git.Remote) error
}

// ErrDeclined is returned when the mirror push was not confirmed.
var ErrDeclined = errors.New("mirror push declined")

// Options selects what a run does.
type Options struct {
	Source types.RepoRef
	Target types.RepoRef

	// Mirror pushes every git ref of the source to the target.
	Mirror bool
	// Reconcile runs the label, milestone, issue and comment stages.
	Reconcile bool
	Mode      reconcile.Mode

	// SourceProject and TargetProject name the project to copy. An empty
	// SourceProject skips project sync.
	SourceProject string
	TargetProject string

	DryRun bool

	// GitHost, SourceToken and TargetToken build the mirror remotes.
	GitHost     string
	SourceToken string
	TargetToken string

	// Confirm is asked before the mirror push, if set.
	Confirm func(ctx context.Context, target types.RepoRef) (bool, error)
}

func (o Options) repoActions() bool {
	return o.Mirror || o.Reconcile
}

// Runner performs migrations.
type Runner struct {
	Source Client
	Target Client
	Git    Transferer
	Logger *slog.Logger

	// OnDecision receives every reconcile decision.
	OnDecision func(types.Decision)
	now        func() time.Time
}

// New returns a runner. git may be nil when no mirror is requested.
func New(src, dst Client, mirror Transferer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Source: src, Target: dst, Git: mirror, Logger: logger, now: time.Now}
}

// RequiredScopes returns the OAuth scopes each token needs for opts.
func RequiredScopes(opts Options) (source, target []string) {
	if opts.repoActions() {
		source = append(source, "repo")
		target = append(target, "repo")
	}
	if opts.Mirror {
		target = append(target, "workflow")
	}
	if opts.SourceProject != "" {
		source = append(source, "read:project")
		target = append(target, "project")
	}
	return source, target
}

// Run migrates according to opts. The report is always returned; the
// error is the reason the run stopped, or the first aborted stage.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Mode == "" {
		opts.Mode = reconcile.ModeReconcile
	}
	rep := &Report{
		Source:    opts.Source,
		Target:    opts.Target,
		Mode:      string(opts.Mode),
		DryRun:    opts.DryRun,
		StartedAt: r.now().UTC(),
	}
	err := r.run(ctx, opts, rep)
	rep.FinishedAt = r.now().UTC()
	if err != nil {
		rep.Error = err.Error()
		r.Logger.Error("migration stopped", "error", err)
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, opts Options, rep *Report) error {
	srcScopes, dstScopes := RequiredScopes(opts)
	srcLogin, err := r.Source.Preflight(ctx, srcScopes...)
	if err != nil {
		return fmt.Errorf("source token: %w", err)
	}
	dstLogin, err := r.Target.Preflight(ctx, dstScopes...)
	if err != nil {
		return fmt.Errorf("target token: %w", err)
	}
	r.Logger.Info("preflight ok", "source_login", srcLogin, "target_login", dstLogin)

	var (
		target   Client = r.Target
		targetID string
		issues   *mapper.IssueIDMap
	)
	if opts.repoActions() {
		src, err := r.Source.GetRepository(ctx, opts.Source)
		if err != nil {
			return fmt.Errorf("source repository: %w", err)
		}
		repo, err := r.targetRepository(ctx, opts, rep, src)
		if err != nil {
			return err
		}
		if repo == nil {
			// A dry run against a repository that does not exist yet
			// plans against an empty one.
			target = emptyTarget{Client: r.Target}
		} else {
			targetID = repo.ID
		}
	}

	if opts.Mirror {
		if err := r.mirror(ctx, opts, rep, srcLogin, dstLogin); err != nil {
			return err
		}
	}

	if opts.Reconcile {
		e := reconcile.NewEngine(r.Source, target, r.Logger)
		e.OnDecision = r.OnDecision
		res := e.Run(ctx, reconcile.Options{
			Source:       opts.Source,
			Target:       opts.Target,
			TargetRepoID: targetID,
			Mode:         opts.Mode,
			DryRun:       opts.DryRun,
		})
		rep.addStages(res)
		if err := res.Err(); err != nil {
			if opts.SourceProject != "" {
				rep.Project = &ProjectReport{Title: targetProject(opts), Skipped: true}
			}
			return err
		}
		issues = res.Issues
	}

	if opts.SourceProject != "" {
		if issues == nil {
			issues, err = r.issueMap(ctx, opts, target)
			if err != nil {
				return fmt.Errorf("map migrated issues: %w", err)
			}
		}
		return r.project(ctx, opts, rep, issues)
	}
	return nil
}

// targetRepository returns the target repository, creating it with the
// source's visibility. A dry run never creates it and returns nil when
// it is missing.
func (r *Runner) targetRepository(ctx context.Context, opts Options, rep *Report, src *types.Repository) (*types.Repository, error) {
	desc := fmt.Sprintf("Migrated from %s", opts.Source)
	rep.Repository = &RepositoryReport{Private: src.IsPrivate}
	if opts.DryRun {
		repo, err := r.Target.GetRepository(ctx, opts.Target)
		if errors.Is(err, github.ErrNotFound) {
			rep.Repository.Created = true
			r.Logger.Info("[dry-run] would create repository", "repo", opts.Target.String(), "private", src.IsPrivate)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("target repository: %w", err)
		}
		return repo, nil
	}
	repo, created, err := r.Target.EnsureRepository(ctx, opts.Target, src.IsPrivate, desc)
	if err != nil {
		return nil, fmt.Errorf("target repository: %w", err)
	}
	rep.Repository.Created = created
	if created {
		r.Logger.Info("created repository", "repo", opts.Target.String(), "private", src.IsPrivate)
	}
	return repo, nil
}

func (r *Runner) mirror(ctx context.Context, opts Options, rep *Report, srcLogin, dstLogin string) error {
	rep.Mirror = &StepReport{State: StepPending}
	if opts.DryRun {
		rep.Mirror.State = StepSkipped
		r.Logger.Info("[dry-run] would mirror git refs", "source", opts.Source.String(), "target", opts.Target.String())
		return nil
	}
	if r.Git == nil {
		rep.Mirror.State = StepFailed
		return errors.New("mirror requested but no git transfer configured")
	}
	if opts.Confirm != nil {
		ok, err := opts.Confirm(ctx, opts.Target)
		if err != nil {
			rep.Mirror.State = StepFailed
			rep.Mirror.Error = err.Error()
			return fmt.Errorf("confirm mirror push: %w", err)
		}
		if !ok {
			rep.Mirror.State = StepFailed
			rep.Mirror.Error = ErrDeclined.Error()
			return ErrDeclined
		}
	}
	source := git.Remote{URL: git.RemoteURL(opts.GitHost, opts.Source), Login: srcLogin, Token: opts.SourceToken}
	target := git.Remote{URL: git.RemoteURL(opts.GitHost, opts.Target), Login: dstLogin, Token: opts.TargetToken}
	if err := r.Git.Transfer(ctx, opts.Source.Name, source, target); err != nil {
		rep.Mirror.State = StepFailed
		rep.Mirror.Error = git.Redact(err.Error())
		return fmt.Errorf("mirror: %w", err)
	}
	rep.Mirror.State = StepDone
	return nil
}

func (r *Runner) issueMap(ctx context.Context, opts Options, target Client) (*mapper.IssueIDMap, error) {
	if opts.Source.Name == "" || opts.Target.Name == "" {
		r.Logger.Warn("no repositories configured; project items cannot be linked to migrated issues")
		return mapper.NewIssueIDMap(), nil
	}
	return reconcile.MapIssues(ctx, r.Source, target, opts.Source, opts.Target, r.Logger)
}

func (r *Runner) project(ctx context.Context, opts Options, rep *Report, issues *mapper.IssueIDMap) error {
	title := targetProject(opts)
	rep.Project = &ProjectReport{Title: title}
	s := project.NewSyncer(r.Source, r.Target, r.Logger)
	res, err := s.Sync(ctx, project.Options{
		SourceOwner: opts.Source.Owner,
		SourceTitle: opts.SourceProject,
		TargetOwner: opts.Target.Owner,
		TargetTitle: title,
		SourceRepo:  opts.Source,
		DryRun:      opts.DryRun,
	}, issues)
	if res != nil {
		rep.Project.Result = *res
	}
	if err != nil {
		rep.Project.Error = err.Error()
		return fmt.Errorf("project sync: %w", err)
	}
	return nil
}

// targetProject defaults the target project title to the source's.
func targetProject(opts Options) string {
	if opts.TargetProject != "" {
		return opts.TargetProject
	}
	return opts.SourceProject
}

// emptyTarget reads as a repository with nothing in it.
type emptyTarget struct {
	Client
}

func (emptyTarget) ListLabels(context.Context, types.RepoRef) ([]types.Label, error) {
	return nil, nil
}

func (emptyTarget) ListMilestones(context.Context, types.RepoRef) ([]types.Milestone, error) {
	return nil, nil
}

func (emptyTarget) ListIssues(context.Context, types.RepoRef, bool) ([]types.Issue, error) {
	return nil, nil
}

func (emptyTarget) ListComments(context.Context, types.RepoRef, int, bool) ([]types.Comment, error) {
	return nil, nil
}
