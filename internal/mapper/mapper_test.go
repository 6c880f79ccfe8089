package mapper

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/provenance"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

var src = types.RepoRef{Owner: "acme", Name: "widgets"}

func issueBody(repo types.RepoRef, number string) string {
	return provenance.IssueBody(provenance.Marker{
		Org: repo.Owner, Repo: repo.Name, Type: types.EntityIssue, ID: number, Author: "octocat",
	}, false, "content")
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestIssues(t *testing.T) {
	logger, logs := testLogger()
	targets := []types.Issue{
		{ID: "I_1", Number: 1, Body: issueBody(src, "42")},
		{ID: "I_2", Number: 2, Body: "hand written, no marker"},
		{ID: "I_3", Number: 3, Body: issueBody(types.RepoRef{Owner: "acme", Name: "other"}, "42")},
		{ID: "I_4", Number: 4, Body: "Migrated from acme/widgets#7\n**Original author: @x**\n\n---\n\nold"},
		{ID: "I_5", Number: 5, Body: "<!-- ghmigrate:v1 org=acme -->"},
	}

	m, err := Issues(src, targets, logger)
	if err != nil {
		t.Fatalf("Issues() error = %v", err)
	}

	if got, ok := m.Lookup("42"); !ok || got.ID != "I_1" {
		t.Errorf("Lookup(42) = %q, %v; want I_1, true", got.ID, ok)
	}
	if got, ok := m.Lookup("7"); !ok || got.ID != "I_4" {
		t.Errorf("Lookup(7) = %q, %v; want legacy I_4, true", got.ID, ok)
	}
	if _, ok := m.Lookup("3"); ok {
		t.Error("Lookup(3) found an issue, want none")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	out := logs.String()
	if !strings.Contains(out, "unreadable provenance marker") || !strings.Contains(out, "I_5") {
		t.Errorf("log missing warning for I_5:\n%s", out)
	}
}

// TestIssuesChainedMigration maps a target whose content was itself
// migrated from an older repository and still carries that marker.
func TestIssuesChainedMigration(t *testing.T) {
	logger, logs := testLogger()
	mid := types.RepoRef{Owner: "mid-org", Name: "widgets"}
	older := provenance.IssueBody(provenance.Marker{
		Org: "older-org", Repo: "widgets", Type: types.EntityIssue, ID: "9", Author: "octocat",
	}, false, "It crashes on start.")
	body := provenance.IssueBody(provenance.Marker{
		Org: mid.Owner, Repo: mid.Name, Type: types.EntityIssue, ID: "1", Author: "migrator",
	}, false, older)

	m, err := Issues(mid, []types.Issue{{ID: "I_1", Number: 1, Body: body}}, logger)
	if err != nil {
		t.Fatalf("Issues() error = %v", err)
	}
	if got, ok := m.Lookup("1"); !ok || got.ID != "I_1" {
		t.Errorf("Lookup(1) = %q, %v; want I_1, true", got.ID, ok)
	}
	if _, ok := m.Lookup("9"); ok {
		t.Error("Lookup(9) matched the marker carried in the content")
	}
	if out := logs.String(); out != "" {
		t.Errorf("unexpected warnings:\n%s", out)
	}
}

func TestIssuesDuplicateMarker(t *testing.T) {
	logger, _ := testLogger()
	targets := []types.Issue{
		{ID: "I_1", Body: issueBody(src, "42")},
		{ID: "I_2", Body: issueBody(src, "17")},
		{ID: "I_3", Body: issueBody(src, "42")},
	}

	_, err := Issues(src, targets, logger)
	var ise *InconsistentStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Issues() error = %v, want InconsistentStateError", err)
	}
	if ise.Type != types.EntityIssue || ise.Key != "42" {
		t.Errorf("error names %s %s, want issue 42", ise.Type, ise.Key)
	}
	if want := []string{"I_1", "I_3"}; !slices.Equal(ise.TargetIDs, want) {
		t.Errorf("TargetIDs = %v, want %v", ise.TargetIDs, want)
	}
	if !strings.Contains(err.Error(), "I_1, I_3") {
		t.Errorf("Error() = %q, want both target IDs", err.Error())
	}
}

func TestIssuesIgnoresCommentMarkers(t *testing.T) {
	logger, _ := testLogger()
	body := provenance.CommentBody(provenance.Marker{Org: "acme", Repo: "widgets", Type: types.EntityComment, ID: "42"}, "x")

	m, err := Issues(src, []types.Issue{{ID: "I_1", Body: body}}, logger)
	if err != nil {
		t.Fatalf("Issues() error = %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestComments(t *testing.T) {
	logger, _ := testLogger()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	current := provenance.CommentBody(provenance.Marker{
		Org: "acme", Repo: "widgets", Type: types.EntityComment, ID: "1001", Author: "hubot", CreatedAt: at,
	}, "first")
	legacy := "**Original comment by @octocat on 2024-01-02T03:04:05Z**\n\n---\n\nsecond"
	quoting := provenance.CommentBody(provenance.Marker{
		Org: "acme", Repo: "widgets", Type: types.EntityComment, ID: "1002", Author: "hubot", CreatedAt: at,
	}, "as noted:\n\n"+current)

	m, err := Comments(src, []types.Comment{
		{ID: "IC_1", Body: current},
		{ID: "IC_2", Body: legacy},
		{ID: "IC_3", Body: quoting},
	}, logger)
	if err != nil {
		t.Fatalf("Comments() error = %v", err)
	}

	tests := []struct {
		name   string
		source types.Comment
		want   string
	}{
		{"by id", types.Comment{DatabaseID: 1001, Author: "hubot", CreatedAt: at}, "IC_1"},
		{"legacy by author and time", types.Comment{DatabaseID: 2002, Author: "octocat", CreatedAt: at}, "IC_2"},
		{"quoting another comment", types.Comment{DatabaseID: 1002, Author: "hubot", CreatedAt: at}, "IC_3"},
		{"unmatched", types.Comment{DatabaseID: 3003, Author: "octocat", CreatedAt: at.Add(time.Second)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupComment(m, tt.source)
			if ok != (tt.want != "") || got.ID != tt.want {
				t.Errorf("LookupComment() = %q, %v; want %q", got.ID, ok, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	m, err := Labels([]types.Label{{ID: "L_1", Name: "bug", Color: "ffffff"}, {ID: "L_2", Name: "docs"}})
	if err != nil {
		t.Fatalf("Labels() error = %v", err)
	}
	if got, ok := m.Lookup("bug"); !ok || got.ID != "L_1" {
		t.Errorf("Lookup(bug) = %q, %v; want L_1, true", got.ID, ok)
	}
	if _, ok := m.Lookup("Bug"); ok {
		t.Error("Lookup(Bug) matched; label lookup must be exact")
	}
}

func TestMilestonesDuplicateTitle(t *testing.T) {
	_, err := Milestones([]types.Milestone{{ID: "M_1", Title: "v1"}, {ID: "M_2", Title: "v1"}})
	var ise *InconsistentStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Milestones() error = %v, want InconsistentStateError", err)
	}
	if !strings.Contains(ise.Error(), "milestone v1") {
		t.Errorf("Error() = %q, want it to name milestone v1", ise.Error())
	}
}

func TestIssueIDMap(t *testing.T) {
	m := NewIssueIDMap()
	m.Set(types.Issue{ID: "SRC_42", Number: 42}, IssueRef{NodeID: "TGT_7", Number: 7})

	if ref, ok := m.ByNumber(42); !ok || ref.NodeID != "TGT_7" {
		t.Errorf("ByNumber(42) = %+v, %v; want TGT_7", ref, ok)
	}
	if ref, ok := m.ByNodeID("SRC_42"); !ok || ref.Number != 7 {
		t.Errorf("ByNodeID(SRC_42) = %+v, %v; want #7", ref, ok)
	}
	if _, ok := m.ByNodeID("missing"); ok {
		t.Error("ByNodeID(missing) found an entry")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}
