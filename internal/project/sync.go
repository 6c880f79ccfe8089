// Package project copies a Project V2 board: its custom fields and
// options, its items and their field values.
//
// Project items have no body to carry a provenance marker. An item is
// identified by the issue it links to, translated from source to target
// through the issue ID map produced by issue reconciliation. Fields and
// options are matched by name. Views are not copied.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Source reads the project being copied.
type Source interface {
	FindProject(ctx context.Context, owner, title string) (*types.Project, error)
	ListProjectItems(ctx context.Context, projectID string) ([]types.ProjectItem, error)
}

// Target reads and writes the project being copied to.
type Target interface {
	Source

	CreateProject(ctx context.Context, ownerLogin, title string) (*types.Project, error)
	CreateProjectField(ctx context.Context, projectID string, f types.ProjectField) (types.ProjectField, error)
	SetFieldOptions(ctx context.Context, fieldID string, opts []types.FieldOption) (types.ProjectField, error)
	AddProjectItem(ctx context.Context, projectID, contentID string) (string, error)
	SetProjectItemValue(ctx context.Context, projectID, itemID, fieldID string, value github.ProjectV2FieldValue) error
}

// Options names the two projects.
type Options struct {
	SourceOwner string
	SourceTitle string
	TargetOwner string
	TargetTitle string
	// SourceRepo is the migrated repository; items linking issues of
	// other repositories cannot be resolved.
	SourceRepo types.RepoRef
	DryRun     bool
}

// Result summarizes a sync.
type Result struct {
	ProjectID      string   `yaml:"project_id,omitempty"`
	ProjectNumber  int      `yaml:"project_number,omitempty"`
	ProjectCreated bool     `yaml:"project_created"`
	FieldsCreated  int      `yaml:"fields_created"`
	OptionsUpdated int      `yaml:"options_updated"`
	ItemsAdded     int      `yaml:"items_added"`
	ValuesSet      int      `yaml:"values_set"`
	ValuesInSync   int      `yaml:"values_in_sync"`
	Unresolved     int      `yaml:"unresolved_items"`
	Errors         int      `yaml:"errors"`
	Warnings       []string `yaml:"warnings,omitempty"`
}

// Syncer copies projects between two accounts.
type Syncer struct {
	source Source
	target Target
	logger *slog.Logger
}

// NewSyncer returns a syncer reading from src and writing to dst.
func NewSyncer(src Source, dst Target, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{source: src, target: dst, logger: logger}
}

func (s *Syncer) warn(res *Result, msg string, args ...any) {
	res.Warnings = append(res.Warnings, msg)
	s.logger.Warn(msg, args...)
}

// Sync makes the target project carry the source project's fields, items
// and values. Issues maps source issues to the target issues they were
// migrated to; items of unmapped issues are skipped with a warning.
func (s *Syncer) Sync(ctx context.Context, opts Options, issues *mapper.IssueIDMap) (*Result, error) {
	res := &Result{}

	src, err := s.source.FindProject(ctx, opts.SourceOwner, opts.SourceTitle)
	if err != nil {
		return res, fmt.Errorf("source project: %w", err)
	}
	dst, err := s.ensureProject(ctx, res, opts)
	if err != nil {
		return res, err
	}
	res.ProjectID, res.ProjectNumber = dst.ID, dst.Number

	srcItems, err := s.source.ListProjectItems(ctx, src.ID)
	if err != nil {
		return res, fmt.Errorf("list source project items: %w", err)
	}
	dstItems, err := s.targetItems(ctx, dst)
	if err != nil {
		return res, err
	}

	migrated := map[string]bool{}
	for _, item := range srcItems {
		if ref, ok := resolve(opts, issues, item); ok {
			migrated[ref.NodeID] = true
		}
	}
	foreign := map[string]int{}
	for _, it := range dstItems {
		if migrated[it.ContentID] {
			continue
		}
		for name, v := range it.Values {
			if v.String() != "" {
				foreign[name]++
			}
		}
	}

	fields, err := s.syncFields(ctx, res, src, dst, foreign, opts.DryRun)
	if err != nil {
		return res, err
	}
	if res.OptionsUpdated > 0 && !opts.DryRun {
		// Rewriting options cleared the values of those fields.
		if dstItems, err = s.targetItems(ctx, dst); err != nil {
			return res, err
		}
	}
	byContent := make(map[string]types.ProjectItem, len(dstItems))
	for _, it := range dstItems {
		if it.ContentID != "" {
			byContent[it.ContentID] = it
		}
	}

	for _, item := range srcItems {
		if err := s.syncItem(ctx, res, opts, dst, fields, byContent, issues, item); err != nil {
			return res, err
		}
	}

	s.warn(res, "project views and layouts are not migrated; recreate them manually",
		"project", dst.Title, "number", dst.Number)
	s.logger.Info("project sync done",
		"project", dst.Title, "fields_created", res.FieldsCreated, "items_added", res.ItemsAdded,
		"values_set", res.ValuesSet, "unresolved", res.Unresolved)
	return res, nil
}

func (s *Syncer) targetItems(ctx context.Context, dst *types.Project) ([]types.ProjectItem, error) {
	if dst.ID == "" {
		return nil, nil
	}
	items, err := s.target.ListProjectItems(ctx, dst.ID)
	if err != nil {
		return nil, fmt.Errorf("list target project items: %w", err)
	}
	return items, nil
}

func (s *Syncer) ensureProject(ctx context.Context, res *Result, opts Options) (*types.Project, error) {
	p, err := s.target.FindProject(ctx, opts.TargetOwner, opts.TargetTitle)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, github.ErrNotFound) {
		return nil, fmt.Errorf("target project: %w", err)
	}
	res.ProjectCreated = true
	if opts.DryRun {
		s.logger.Info("[dry-run] would create project", "owner", opts.TargetOwner, "title", opts.TargetTitle)
		return &types.Project{Title: opts.TargetTitle}, nil
	}
	p, err = s.target.CreateProject(ctx, opts.TargetOwner, opts.TargetTitle)
	if err != nil {
		return nil, fmt.Errorf("create target project: %w", err)
	}
	s.logger.Info("created project", "owner", opts.TargetOwner, "title", p.Title, "number", p.Number)
	return p, nil
}

// resolve finds the target issue of a source item.
func resolve(opts Options, issues *mapper.IssueIDMap, item types.ProjectItem) (mapper.IssueRef, bool) {
	if item.ContentID == "" {
		return mapper.IssueRef{}, false
	}
	if ref, ok := issues.ByNodeID(item.ContentID); ok {
		return ref, true
	}
	if strings.EqualFold(item.ContentRepo, opts.SourceRepo.String()) {
		return issues.ByNumber(item.ContentNumber)
	}
	return mapper.IssueRef{}, false
}

func (s *Syncer) syncItem(ctx context.Context, res *Result, opts Options, dst *types.Project,
	fields map[string]types.ProjectField, byContent map[string]types.ProjectItem,
	issues *mapper.IssueIDMap, item types.ProjectItem) error {
	ref, ok := resolve(opts, issues, item)
	if !ok {
		res.Unresolved++
		what := "draft item"
		if item.ContentID != "" {
			what = fmt.Sprintf("%s#%d", item.ContentRepo, item.ContentNumber)
		}
		s.warn(res, fmt.Sprintf("project item for %s has no migrated issue; skipping", what))
		return nil
	}

	target, exists := byContent[ref.NodeID]
	if !exists {
		if opts.DryRun {
			s.logger.Info("[dry-run] would add project item", "issue", ref.Number)
			res.ItemsAdded++
			target = types.ProjectItem{ContentID: ref.NodeID}
		} else {
			id, err := s.target.AddProjectItem(ctx, dst.ID, ref.NodeID)
			if err != nil {
				if fatal(err) {
					return err
				}
				res.Errors++
				s.logger.Warn("add project item failed", "issue", ref.Number, "error", err)
				return nil
			}
			res.ItemsAdded++
			target = types.ProjectItem{ID: id, ContentID: ref.NodeID}
			s.logger.Info("added project item", "issue", ref.Number)
		}
	}

	names := make([]string, 0, len(item.Values))
	for name := range item.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := fields[name]
		if !ok || !syncable(f) {
			continue
		}
		want := item.Values[name]
		if target.Values[name].String() == want.String() {
			res.ValuesInSync++
			continue
		}
		if opts.DryRun {
			s.logger.Info("[dry-run] would set project field", "issue", ref.Number, "field", name, "value", want.String())
			res.ValuesSet++
			continue
		}
		value, err := encode(f, want)
		if err != nil {
			s.warn(res, fmt.Sprintf("skipping field %q of issue #%d: %v", name, ref.Number, err))
			continue
		}
		if err := s.target.SetProjectItemValue(ctx, dst.ID, target.ID, f.ID, value); err != nil {
			if fatal(err) {
				return err
			}
			res.Errors++
			s.logger.Warn("set project field failed", "issue", ref.Number, "field", name, "error", err)
			continue
		}
		res.ValuesSet++
	}
	return nil
}

func fatal(err error) bool {
	var (
		auth      *github.AuthError
		transient *github.TransientError
	)
	return errors.As(err, &auth) || errors.As(err, &transient) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
