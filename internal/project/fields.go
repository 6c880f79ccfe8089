package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// StatusField is built in but carries user-defined options, which are
// reconciled like a custom single-select field.
const StatusField = "Status"

// builtInFields exist on every project and are never created or written.
var builtInFields = map[string]bool{
	"Title":                true,
	"Assignees":            true,
	"Labels":               true,
	"Repository":           true,
	"Milestone":            true,
	"Linked pull requests": true,
	"Reviewers":            true,
	"Parent issue":         true,
	"Sub-issues progress":  true,
	"Tracks":               true,
	"Tracked by":           true,
	"Type":                 true,
}

var customTypes = map[types.FieldDataType]bool{
	types.FieldText:         true,
	types.FieldNumber:       true,
	types.FieldDate:         true,
	types.FieldSingleSelect: true,
	types.FieldIteration:    true,
}

// syncable reports whether values of field f are migrated.
func syncable(f types.ProjectField) bool {
	if f.Name == StatusField {
		return true
	}
	return !builtInFields[f.Name] && customTypes[f.DataType]
}

// syncFields makes every syncable source field exist on the target with
// at least the source's options. It returns the target fields by name.
//
// Adding options replaces the whole option list, which clears the field
// on every target item. foreign counts, per field name, the target items
// outside the migration that hold a value; such a field keeps its
// options and values needing a missing option are skipped.
func (s *Syncer) syncFields(ctx context.Context, res *Result, src, dst *types.Project, foreign map[string]int, dryRun bool) (map[string]types.ProjectField, error) {
	fields := map[string]types.ProjectField{}
	for _, f := range dst.Fields {
		fields[f.Name] = f
	}

	for _, sf := range src.Fields {
		if !syncable(sf) {
			continue
		}
		tf, ok := fields[sf.Name]
		switch {
		case !ok && sf.Name == StatusField:
			s.warn(res, "target project has no Status field; status values are not migrated")
			continue
		case !ok:
			if dryRun {
				s.logger.Info("[dry-run] would create project field", "field", sf.Name, "type", sf.DataType)
				res.FieldsCreated++
				fields[sf.Name] = sf
				continue
			}
			created, err := s.target.CreateProjectField(ctx, dst.ID, sf)
			if err != nil {
				return nil, fmt.Errorf("create field %q: %w", sf.Name, err)
			}
			s.logger.Info("created project field", "field", created.Name, "type", created.DataType)
			res.FieldsCreated++
			fields[sf.Name] = created
			continue
		case tf.DataType != sf.DataType:
			s.warn(res, fmt.Sprintf("field %q is %s on the source but %s on the target; its values are not migrated", sf.Name, sf.DataType, tf.DataType))
			delete(fields, sf.Name)
			continue
		}

		switch sf.DataType {
		case types.FieldSingleSelect:
			merged, missing := mergeOptions(sf.Options, tf.Options)
			if len(missing) == 0 {
				continue
			}
			if n := foreign[sf.Name]; n > 0 {
				s.warn(res, fmt.Sprintf("field %q lacks options %s on the target but %d other items use it; add the options manually",
					sf.Name, strings.Join(missing, ", "), n))
				continue
			}
			if dryRun {
				s.logger.Info("[dry-run] would add field options", "field", sf.Name, "options", missing)
				res.OptionsUpdated++
				tf.Options = merged
				fields[sf.Name] = tf
				continue
			}
			updated, err := s.target.SetFieldOptions(ctx, tf.ID, merged)
			if err != nil {
				return nil, fmt.Errorf("update options of field %q: %w", sf.Name, err)
			}
			s.logger.Info("added field options", "field", sf.Name, "options", missing)
			res.OptionsUpdated++
			fields[sf.Name] = updated
		case types.FieldIteration:
			for _, it := range sf.Iterations {
				if _, ok := tf.IterationByTitle(it.Title); !ok {
					s.warn(res, fmt.Sprintf("iteration %q of field %q is missing on the target; add it manually", it.Title, sf.Name))
				}
			}
		}
	}
	return fields, nil
}

// mergeOptions returns the target's options followed by the source
// options it lacks, and the names of the added options. Existing target
// options are kept as they are.
func mergeOptions(src, dst []types.FieldOption) (merged []types.FieldOption, missing []string) {
	merged = append(merged, dst...)
	have := map[string]bool{}
	for _, o := range dst {
		have[o.Name] = true
	}
	for _, o := range src {
		if have[o.Name] {
			continue
		}
		have[o.Name] = true
		merged = append(merged, types.FieldOption{Name: o.Name, Color: o.Color, Description: o.Description})
		missing = append(missing, o.Name)
	}
	return merged, missing
}
