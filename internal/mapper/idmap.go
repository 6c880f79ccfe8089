package mapper

import "github.com/morgaesis/GitHub-Migrator/internal/types"

// IssueRef locates a migrated issue on the target.
type IssueRef struct {
	NodeID string
	Number int
}

// IssueIDMap maps source issues to their target issues. It is filled by
// the issue stage and read by project sync, which only knows the source
// issue's node ID.
type IssueIDMap struct {
	byNumber map[int]IssueRef
	byNodeID map[string]IssueRef
}

// NewIssueIDMap returns an empty map.
func NewIssueIDMap() *IssueIDMap {
	return &IssueIDMap{byNumber: map[int]IssueRef{}, byNodeID: map[string]IssueRef{}}
}

// Set records that the source issue was migrated to target.
func (m *IssueIDMap) Set(source types.Issue, target IssueRef) {
	m.byNumber[source.Number] = target
	if source.ID != "" {
		m.byNodeID[source.ID] = target
	}
}

// ByNumber returns the target issue for a source issue number.
func (m *IssueIDMap) ByNumber(n int) (IssueRef, bool) {
	r, ok := m.byNumber[n]
	return r, ok
}

// ByNodeID returns the target issue for a source issue node ID.
func (m *IssueIDMap) ByNodeID(id string) (IssueRef, bool) {
	r, ok := m.byNodeID[id]
	return r, ok
}

// Len returns the number of mapped issues.
func (m *IssueIDMap) Len() int {
	return len(m.byNumber)
}
