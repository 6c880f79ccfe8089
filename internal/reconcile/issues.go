package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/provenance"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// issuesStage migrates issues and pull requests as target issues. In
// reconcile mode, already-migrated issues get state, title, body,
// labels and milestone re-synced; the provenance header is never touched.
func (r *run) issuesStage(ctx context.Context, s *stage) error {
	s.to(StateFetchingSource)
	src, err := r.e.Source.ListIssues(ctx, r.opts.Source, true)
	if err != nil {
		return fmt.Errorf("fetch source issues: %w", err)
	}
	s.to(StateFetchingTarget)
	dst, err := r.e.Target.ListIssues(ctx, r.opts.Target, false)
	if err != nil {
		return fmt.Errorf("fetch target issues: %w", err)
	}
	ids, err := mapper.Issues(r.opts.Source, dst, r.e.Logger)
	if err != nil {
		return err
	}
	s.to(StateMappingBuilt)

	s.to(StateDeciding)
	type plan struct {
		d      types.Decision
		source types.Issue
		target types.Issue
		patch  types.IssuePatch
	}
	var plans []plan
	for _, is := range src {
		key := strconv.Itoa(is.Number)
		d := types.Decision{Type: types.EntityIssue, Key: "#" + key}
		p := plan{source: is}
		t, ok := ids.Lookup(key)
		switch {
		case !ok:
			d.Kind = types.DecisionCreate
		case r.opts.Mode == ModeReconcile:
			d.TargetID = t.ID
			p.target = t
			p.patch, d.Changes = r.issuePatch(is, t)
			d.Kind = types.DecisionSkip
			if len(d.Changes) > 0 {
				d.Kind = types.DecisionUpdate
			}
		default:
			d.TargetID = t.ID
			p.target = t
			d.Kind = types.DecisionSkip
		}
		p.d = d
		s.decide(ctx, d)
		plans = append(plans, p)
	}

	s.to(StateApplying)
	for _, p := range plans {
		s.key = "issue " + p.d.Key
		switch p.d.Kind {
		case types.DecisionSkip:
			r.mapIssue(p.source, p.target, false)
			if p.source.State == types.StateClosed && p.target.State == types.StateOpen {
				// Fresh mode: a close cut short by an interrupt or a
				// rejected write on an earlier run.
				r.issues[len(r.issues)-1].close = true
			}
		case types.DecisionUpdate:
			if !r.opts.DryRun {
				if err := s.applied(p.d, r.e.Target.UpdateIssue(ctx, p.target.ID, p.patch)); err != nil {
					return err
				}
			} else {
				s.report.Stats.count(p.d.Kind)
			}
			r.mapIssue(p.source, p.target, false)
		case types.DecisionCreate:
			if r.opts.DryRun {
				s.report.Stats.count(p.d.Kind)
				r.issues = append(r.issues, issuePair{source: p.source, created: true})
				continue
			}
			if r.opts.TargetRepoID == "" {
				return fmt.Errorf("target repository %s has no known node ID", r.opts.Target)
			}
			created, err := r.e.Target.CreateIssue(ctx, r.opts.TargetRepoID, r.newIssue(p.source))
			if err := s.applied(p.d, err); err != nil {
				return err
			}
			if err == nil {
				r.mapIssue(p.source, created, true)
			}
		}
	}
	s.key = ""
	return nil
}

// MapIssues builds the source-to-target issue map from what is already
// on the target, without deciding or writing anything.
func MapIssues(ctx context.Context, src, dst Source, source, target types.RepoRef, logger *slog.Logger) (*mapper.IssueIDMap, error) {
	if logger == nil {
		logger = slog.Default()
	}
	issues, err := src.ListIssues(ctx, source, true)
	if err != nil {
		return nil, fmt.Errorf("fetch source issues: %w", err)
	}
	migrated, err := dst.ListIssues(ctx, target, false)
	if err != nil {
		return nil, fmt.Errorf("fetch target issues: %w", err)
	}
	ids, err := mapper.Issues(source, migrated, logger)
	if err != nil {
		return nil, err
	}
	out := mapper.NewIssueIDMap()
	for _, is := range issues {
		if t, ok := ids.Lookup(strconv.Itoa(is.Number)); ok {
			out.Set(is, mapper.IssueRef{NodeID: t.ID, Number: t.Number})
		}
	}
	return out, nil
}

func (r *run) mapIssue(source, target types.Issue, created bool) {
	t := target
	r.issues = append(r.issues, issuePair{
		source:  source,
		target:  &t,
		created: created,
		close:   created && source.State == types.StateClosed,
	})
	r.issueMap.Set(source, mapper.IssueRef{NodeID: target.ID, Number: target.Number})
}

func (r *run) marker(typ types.EntityType, id, author string, created time.Time) provenance.Marker {
	return provenance.Marker{
		Org:       r.opts.Source.Owner,
		Repo:      r.opts.Source.Name,
		Type:      typ,
		ID:        id,
		Author:    author,
		CreatedAt: created,
	}
}

func (r *run) newIssue(is types.Issue) types.NewIssue {
	m := r.marker(types.EntityIssue, strconv.Itoa(is.Number), is.Author, is.CreatedAt)
	return types.NewIssue{
		Title:       is.Title,
		Body:        provenance.IssueBody(m, is.IsPullRequest, is.Body),
		LabelIDs:    r.labelIDList(is),
		MilestoneID: r.milestoneIDs[is.MilestoneTitle],
	}
}

// knownLabels returns the sorted names of the issue's labels that exist
// on the target.
func (r *run) knownLabels(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := r.labelIDs[n]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

func (r *run) labelIDList(is types.Issue) []string {
	var ids []string
	for _, n := range r.knownLabels(is.Labels) {
		if id := r.labelIDs[n]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// issuePatch diffs a source issue against its target issue.
func (r *run) issuePatch(src, dst types.Issue) (types.IssuePatch, []string) {
	var (
		p       types.IssuePatch
		changes []string
	)
	if src.Title != dst.Title {
		title := src.Title
		p.Title = &title
		changes = append(changes, "title")
	}
	if src.State != dst.State {
		state := src.State
		p.State = &state
		changes = append(changes, "state")
	}
	if _, content := provenance.SplitBody(dst.Body); !provenance.SameContent(content, src.Body) {
		body := provenance.ReplaceContent(dst.Body, src.Body)
		p.Body = &body
		changes = append(changes, "body")
	}

	current := slices.Clone(dst.Labels)
	sort.Strings(current)
	if want := r.knownLabels(src.Labels); !slices.Equal(want, slices.Compact(current)) {
		ids := r.labelIDList(src)
		if ids == nil {
			ids = []string{}
		}
		p.LabelIDs = &ids
		changes = append(changes, "labels")
	}

	want := ""
	if _, ok := r.milestoneIDs[src.MilestoneTitle]; ok {
		want = src.MilestoneTitle
	}
	if want != dst.MilestoneTitle {
		id := r.milestoneIDs[want]
		p.MilestoneID = &id
		changes = append(changes, "milestone")
	}
	return p, changes
}

// comments appends source comments missing on the target, in the order
// they were posted, and closes target issues whose source is closed once
// their comments are in place.
func (r *run) comments(ctx context.Context, s *stage) error {
	for _, p := range r.issues {
		s.key = "issue #" + strconv.Itoa(p.source.Number)
		if err := r.issueComments(ctx, s, p); err != nil {
			return err
		}
		if p.close && !r.opts.DryRun {
			if err := r.e.Target.CloseIssue(ctx, p.target.ID); err != nil {
				if fatal(err) {
					return err
				}
				s.report.Stats.Errors++
				r.e.Logger.Warn("close issue failed", "issue", p.source.Number, "error", err)
				continue
			}
			r.e.Logger.Info("closed issue", "issue", p.source.Number, "target", p.target.Number)
		}
	}
	s.key = ""
	return nil
}

func (r *run) issueComments(ctx context.Context, s *stage, p issuePair) error {
	s.to(StateFetchingSource)
	src, err := r.e.Source.ListComments(ctx, r.opts.Source, p.source.Number, p.source.IsPullRequest)
	if err != nil {
		return fmt.Errorf("fetch source comments: %w", err)
	}
	slices.SortStableFunc(src, func(a, b types.Comment) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.DatabaseID, b.DatabaseID),
			cmp.Compare(a.ID, b.ID),
		)
	})

	s.to(StateFetchingTarget)
	var dst []types.Comment
	if p.target != nil && !p.created {
		dst, err = r.e.Target.ListComments(ctx, r.opts.Target, p.target.Number, false)
		if err != nil {
			return fmt.Errorf("fetch target comments: %w", err)
		}
	}
	ids, err := mapper.Comments(r.opts.Source, dst, r.e.Logger)
	if err != nil {
		return err
	}
	s.to(StateMappingBuilt)

	s.to(StateDeciding)
	type plan struct {
		d      types.Decision
		source types.Comment
		target types.Comment
	}
	var plans []plan
	for _, c := range src {
		d := types.Decision{Type: types.EntityComment, Key: fmt.Sprintf("#%d/%s", p.source.Number, mapper.CommentKey(c))}
		t, ok := mapper.LookupComment(ids, c)
		switch {
		case !ok:
			d.Kind = types.DecisionCreate
		case r.opts.Mode == ModeReconcile && !sameCommentContent(t.Body, c.Body):
			d.Kind = types.DecisionUpdate
			d.TargetID = t.ID
			d.Changes = []string{"body"}
		default:
			d.Kind = types.DecisionSkip
			d.TargetID = t.ID
		}
		s.decide(ctx, d)
		plans = append(plans, plan{d: d, source: c, target: t})
	}

	s.to(StateApplying)
	for _, pl := range plans {
		if pl.d.Kind == types.DecisionSkip {
			continue
		}
		if r.opts.DryRun {
			s.report.Stats.count(pl.d.Kind)
			continue
		}
		var err error
		if pl.d.Kind == types.DecisionCreate {
			m := r.marker(types.EntityComment, mapper.CommentKey(pl.source), pl.source.Author, pl.source.CreatedAt)
			_, err = r.e.Target.AddComment(ctx, p.target.ID, provenance.CommentBody(m, pl.source.Body))
		} else {
			err = r.e.Target.UpdateComment(ctx, pl.target.ID, provenance.ReplaceContent(pl.target.Body, pl.source.Body))
		}
		if err := s.applied(pl.d, err); err != nil {
			return err
		}
	}
	return nil
}

func sameCommentContent(targetBody, sourceBody string) bool {
	_, content := provenance.SplitBody(targetBody)
	return provenance.SameContent(content, sourceBody)
}
