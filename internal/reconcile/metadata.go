package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// labels creates missing labels and aligns color and description of
// labels that exist under the same name. Target labels absent from the
// source are left in place.
func (r *run) labels(ctx context.Context, s *stage) error {
	s.to(StateFetchingSource)
	src, err := r.e.Source.ListLabels(ctx, r.opts.Source)
	if err != nil {
		return fmt.Errorf("fetch source labels: %w", err)
	}
	s.to(StateFetchingTarget)
	dst, err := r.e.Target.ListLabels(ctx, r.opts.Target)
	if err != nil {
		return fmt.Errorf("fetch target labels: %w", err)
	}
	ids, err := mapper.Labels(dst)
	if err != nil {
		return err
	}
	s.to(StateMappingBuilt)

	s.to(StateDeciding)
	type plan struct {
		d     types.Decision
		label types.Label
	}
	var plans []plan
	for _, l := range src {
		d := types.Decision{Type: types.EntityLabel, Key: l.Name}
		t, ok := ids.Lookup(l.Name)
		switch {
		case !ok:
			d.Kind = types.DecisionCreate
		default:
			d.TargetID = t.ID
			r.labelIDs[l.Name] = t.ID
			if !sameColor(t.Color, l.Color) {
				d.Changes = append(d.Changes, "color")
			}
			if t.Description != l.Description {
				d.Changes = append(d.Changes, "description")
			}
			d.Kind = types.DecisionSkip
			if len(d.Changes) > 0 {
				d.Kind = types.DecisionUpdate
			}
		}
		s.decide(ctx, d)
		plans = append(plans, plan{d: d, label: l})
	}

	s.to(StateApplying)
	for _, p := range plans {
		s.key = "label " + p.label.Name
		switch p.d.Kind {
		case types.DecisionCreate:
			if r.opts.DryRun {
				r.labelIDs[p.label.Name] = ""
				s.report.Stats.count(p.d.Kind)
				continue
			}
			created, err := r.e.Target.CreateLabel(ctx, r.opts.Target, p.label)
			if err == nil {
				r.labelIDs[p.label.Name] = created.ID
			}
			if err := s.applied(p.d, err); err != nil {
				return err
			}
		case types.DecisionUpdate:
			if r.opts.DryRun {
				s.report.Stats.count(p.d.Kind)
				continue
			}
			if err := s.applied(p.d, r.e.Target.UpdateLabel(ctx, r.opts.Target, p.label)); err != nil {
				return err
			}
		}
	}
	s.key = ""
	return nil
}

func sameColor(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "#"), strings.TrimPrefix(b, "#"))
}

// milestones creates missing milestones and aligns description, state
// and due date of milestones that exist under the same title.
func (r *run) milestones(ctx context.Context, s *stage) error {
	s.to(StateFetchingSource)
	src, err := r.e.Source.ListMilestones(ctx, r.opts.Source)
	if err != nil {
		return fmt.Errorf("fetch source milestones: %w", err)
	}
	s.to(StateFetchingTarget)
	dst, err := r.e.Target.ListMilestones(ctx, r.opts.Target)
	if err != nil {
		return fmt.Errorf("fetch target milestones: %w", err)
	}
	ids, err := mapper.Milestones(dst)
	if err != nil {
		return err
	}
	s.to(StateMappingBuilt)

	s.to(StateDeciding)
	type plan struct {
		d      types.Decision
		source types.Milestone
		target types.Milestone
	}
	var plans []plan
	for _, m := range src {
		d := types.Decision{Type: types.EntityMilestone, Key: m.Title}
		t, ok := ids.Lookup(m.Title)
		if !ok {
			d.Kind = types.DecisionCreate
		} else {
			d.TargetID = t.ID
			r.milestoneIDs[m.Title] = t.ID
			d.Changes = milestoneChanges(m, t)
			d.Kind = types.DecisionSkip
			if len(d.Changes) > 0 {
				d.Kind = types.DecisionUpdate
			}
		}
		s.decide(ctx, d)
		plans = append(plans, plan{d: d, source: m, target: t})
	}

	s.to(StateApplying)
	for _, p := range plans {
		s.key = "milestone " + p.source.Title
		if p.d.Kind == types.DecisionSkip {
			continue
		}
		if r.opts.DryRun {
			if p.d.Kind == types.DecisionCreate {
				r.milestoneIDs[p.source.Title] = ""
			}
			s.report.Stats.count(p.d.Kind)
			continue
		}
		var err error
		if p.d.Kind == types.DecisionCreate {
			var created types.Milestone
			created, err = r.e.Target.CreateMilestone(ctx, r.opts.Target, p.source)
			if err == nil {
				r.milestoneIDs[p.source.Title] = created.ID
			}
		} else {
			err = r.e.Target.UpdateMilestone(ctx, r.opts.Target, p.target.Number, p.source)
		}
		if err := s.applied(p.d, err); err != nil {
			return err
		}
	}
	s.key = ""
	return nil
}

func milestoneChanges(src, dst types.Milestone) []string {
	var changes []string
	if src.Description != dst.Description {
		changes = append(changes, "description")
	}
	if src.State != dst.State {
		changes = append(changes, "state")
	}
	if !sameDay(src.DueOn, dst.DueOn) {
		changes = append(changes, "due_on")
	}
	return changes
}

// sameDay compares due dates by UTC calendar date. The time of day GitHub
// stores for a due date is not stable.
func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UTC().Format(time.DateOnly) == b.UTC().Format(time.DateOnly)
}
