// Package mapper rebuilds, on every run, the correspondence between source
// entities and the target entities previously migrated from them.
//
// Issues and comments are matched through the provenance marker in their
// body. Labels and milestones carry no marker and are matched by exact
// name or title. Nothing is persisted between runs.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morgaesis/GitHub-Migrator/internal/provenance"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// InconsistentStateError reports two target entities claiming the same
// source entity. Reconciliation of that entity type must stop.
type InconsistentStateError struct {
	Type      types.EntityType
	Key       string
	TargetIDs []string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent target state: %s %s is claimed by %d target entities (%s)",
		e.Type, e.Key, len(e.TargetIDs), strings.Join(e.TargetIDs, ", "))
}

// IdentityMap indexes target entities of one type by source key.
type IdentityMap[T any] struct {
	Type    types.EntityType
	entries map[string]T
}

// Lookup returns the target entity migrated from the source key.
func (m *IdentityMap[T]) Lookup(key string) (T, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Len returns the number of mapped entities.
func (m *IdentityMap[T]) Len() int {
	return len(m.entries)
}

type indexer[T any] struct {
	typ     types.EntityType
	entries map[string]T
	ids     map[string][]string
	id      func(T) string
}

func newIndexer[T any](typ types.EntityType, id func(T) string) *indexer[T] {
	return &indexer[T]{typ: typ, entries: map[string]T{}, ids: map[string][]string{}, id: id}
}

func (ix *indexer[T]) add(key string, v T) {
	if _, dup := ix.entries[key]; !dup {
		ix.entries[key] = v
	}
	ix.ids[key] = append(ix.ids[key], ix.id(v))
}

// finish reports the first duplicated key, in target order.
func (ix *indexer[T]) finish(order []string) (*IdentityMap[T], error) {
	for _, key := range order {
		if ids := ix.ids[key]; len(ids) > 1 {
			return nil, &InconsistentStateError{Type: ix.typ, Key: key, TargetIDs: ids}
		}
	}
	return &IdentityMap[T]{Type: ix.typ, entries: ix.entries}, nil
}

// byMarker indexes targets by the source ID recorded in their marker.
// Markers for another source repository or entity type are ignored;
// unreadable markers are logged and the target is left unmapped.
func byMarker[T any](typ types.EntityType, src types.RepoRef, targets []T, id, body func(T) string, legacyKey func(provenance.Marker) string, logger *slog.Logger) (*IdentityMap[T], error) {
	ix := newIndexer(typ, id)
	var order []string
	for _, t := range targets {
		m, err := provenance.Parse(body(t))
		if err != nil {
			if !errors.Is(err, provenance.ErrNotFound) {
				logger.Warn("ignoring unreadable provenance marker; the source entity may be migrated again",
					"type", typ, "target", id(t), "error", err)
			}
			continue
		}
		if m.Type != typ {
			continue
		}
		var key string
		switch {
		case m.Legacy && m.ID == "":
			if legacyKey == nil {
				continue
			}
			key = legacyKey(m)
		case !m.From(src.Owner, src.Name):
			continue
		default:
			key = m.ID
		}
		if _, seen := ix.ids[key]; !seen {
			order = append(order, key)
		}
		ix.add(key, t)
	}
	return ix.finish(order)
}

func byName[T any](typ types.EntityType, targets []T, id, name func(T) string) (*IdentityMap[T], error) {
	ix := newIndexer(typ, id)
	var order []string
	for _, t := range targets {
		key := name(t)
		if _, seen := ix.ids[key]; !seen {
			order = append(order, key)
		}
		ix.add(key, t)
	}
	return ix.finish(order)
}

// Labels indexes target labels by name.
func Labels(targets []types.Label) (*IdentityMap[types.Label], error) {
	return byName(types.EntityLabel, targets,
		func(l types.Label) string { return l.ID },
		func(l types.Label) string { return l.Name })
}

// Milestones indexes target milestones by title.
func Milestones(targets []types.Milestone) (*IdentityMap[types.Milestone], error) {
	return byName(types.EntityMilestone, targets,
		func(m types.Milestone) string { return m.ID },
		func(m types.Milestone) string { return m.Title })
}

// Issues indexes target issues by the source issue number in their marker.
func Issues(src types.RepoRef, targets []types.Issue, logger *slog.Logger) (*IdentityMap[types.Issue], error) {
	return byMarker(types.EntityIssue, src, targets,
		func(i types.Issue) string { return i.ID },
		func(i types.Issue) string { return i.Body },
		nil, logger)
}

// Comments indexes the comments of one target issue by source comment ID.
// Comments written by the earlier migrator carry no ID and are indexed by
// LegacyCommentKey instead; look them up with LookupComment.
func Comments(src types.RepoRef, targets []types.Comment, logger *slog.Logger) (*IdentityMap[types.Comment], error) {
	return byMarker(types.EntityComment, src, targets,
		func(c types.Comment) string { return c.ID },
		func(c types.Comment) string { return c.Body },
		func(m provenance.Marker) string { return provenance.LegacyCommentKey(m.Author, m.CreatedAt) },
		logger)
}

// LookupComment finds the target comment for a source comment, by ID
// first and then by the legacy author and time key.
func LookupComment(m *IdentityMap[types.Comment], source types.Comment) (types.Comment, bool) {
	if c, ok := m.Lookup(CommentKey(source)); ok {
		return c, true
	}
	return m.Lookup(provenance.LegacyCommentKey(source.Author, source.CreatedAt))
}

// CommentKey is the source key of a comment: its database ID when known,
// its node ID otherwise.
func CommentKey(c types.Comment) string {
	if c.DatabaseID != 0 {
		return fmt.Sprintf("%d", c.DatabaseID)
	}
	return c.ID
}
