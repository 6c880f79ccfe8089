package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/morgaesis/GitHub-Migrator/internal/migrator"
	"github.com/morgaesis/GitHub-Migrator/internal/reconcile"
)

// RenderSummary writes a human-readable account of a run.
func RenderSummary(w io.Writer, t *Theme, rep *migrator.Report) error {
	var b strings.Builder
	header := "migration"
	if rep.DryRun {
		header += " (dry run)"
	}
	fmt.Fprintf(&b, "%s %s → %s  %s\n", t.RenderCategory(header),
		rep.Source, rep.Target, t.Muted.Render("mode="+rep.Mode))
	b.WriteString(t.RenderSeparator() + "\n")

	if r := rep.Repository; r != nil {
		what := "exists"
		if r.Created {
			what = "created"
			if rep.DryRun {
				what = "would be created"
			}
		}
		visibility := "public"
		if r.Private {
			visibility = "private"
		}
		fmt.Fprintf(&b, "%s %-12s %s (%s)\n", t.RenderPassIcon(), "repository", what, visibility)
	}
	if m := rep.Mirror; m != nil {
		fmt.Fprintf(&b, "%s %-12s %s\n", t.stepIcon(m.State), "mirror", m.State)
		if m.Error != "" {
			fmt.Fprintf(&b, "  %s\n", t.Fail.Render(firstLine(m.Error)))
		}
	}
	for _, s := range rep.Stages {
		fmt.Fprintf(&b, "%s %-12s %-8s %s\n", t.stageIcon(s), s.Name, s.State,
			t.Muted.Render(fmt.Sprintf("created=%d updated=%d skipped=%d errors=%d",
				s.Created, s.Updated, s.Skipped, s.Errors)))
		if s.Error != "" {
			fmt.Fprintf(&b, "  %s\n", t.Fail.Render(s.Error))
		}
	}
	if p := rep.Project; p != nil {
		icon, state := t.RenderPassIcon(), "done"
		switch {
		case p.Skipped:
			icon, state = t.RenderSkipIcon(), "skipped"
		case p.Error != "":
			icon, state = t.RenderFailIcon(), "failed"
		case p.Unresolved > 0 || p.Result.Errors > 0:
			icon = t.RenderWarnIcon()
		}
		fmt.Fprintf(&b, "%s %-12s %-8s %s\n", icon, "project", state,
			t.Muted.Render(fmt.Sprintf("%q fields=%d options=%d items=%d values=%d in_sync=%d unresolved=%d errors=%d",
				p.Title, p.FieldsCreated, p.OptionsUpdated, p.ItemsAdded, p.ValuesSet, p.ValuesInSync, p.Unresolved, p.Result.Errors)))
		if p.Error != "" {
			fmt.Fprintf(&b, "  %s\n", t.Fail.Render(p.Error))
		}
		for _, warning := range p.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", t.RenderWarnIcon(), warning)
		}
	}

	b.WriteString(t.RenderSeparator() + "\n")
	switch {
	case rep.Failed():
		msg := "migration incomplete"
		if rep.Error != "" {
			msg += ": " + firstLine(rep.Error)
		}
		fmt.Fprintf(&b, "%s %s\n", t.RenderFailIcon(), t.Fail.Render(msg))
	case rep.Errors() > 0:
		fmt.Fprintf(&b, "%s %s\n", t.RenderWarnIcon(), t.Warn.Render(fmt.Sprintf("completed with %d rejected writes", rep.Errors())))
	default:
		fmt.Fprintf(&b, "%s %s\n", t.RenderPassIcon(), t.Pass.Render("migration complete"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Theme) stepIcon(state string) string {
	switch state {
	case migrator.StepDone:
		return t.RenderPassIcon()
	case migrator.StepFailed:
		return t.RenderFailIcon()
	default:
		return t.RenderSkipIcon()
	}
}

func (t *Theme) stageIcon(s migrator.StageSummary) string {
	switch reconcile.State(s.State) {
	case reconcile.StateDone:
		if s.Errors > 0 {
			return t.RenderWarnIcon()
		}
		return t.RenderPassIcon()
	case reconcile.StateAborted:
		return t.RenderFailIcon()
	default:
		return t.RenderSkipIcon()
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
