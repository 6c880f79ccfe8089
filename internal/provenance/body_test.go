package provenance

import (
	"strings"
	"testing"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

func TestIssueBody(t *testing.T) {
	m := Marker{Org: "acme", Repo: "widgets", Type: types.EntityIssue, ID: "42", Author: "octocat", CreatedAt: created}
	body := IssueBody(m, false, "It crashes on start.")

	for _, want := range []string{
		Tag(m),
		"Original author: @octocat",
		"Migrated from acme/widgets#42",
		"It crashes on start.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("IssueBody() missing %q in:\n%s", want, body)
		}
	}
	if !strings.HasPrefix(body, markerPrefix) {
		t.Error("IssueBody() does not start with the marker")
	}
	if strings.Contains(body, "pull request") {
		t.Error("IssueBody() mentions a pull request for an issue")
	}

	pr := IssueBody(m, true, "")
	if !strings.Contains(pr, "pull request") {
		t.Error("IssueBody(pullRequest) missing pull request note")
	}
}

func TestCommentBody(t *testing.T) {
	m := Marker{Org: "acme", Repo: "widgets", Type: types.EntityComment, ID: "99", CreatedAt: created}
	body := CommentBody(m, "still happens")

	want := "**Original comment by @ghost on 2024-03-09T14:30:00Z**"
	if !strings.Contains(body, want) {
		t.Errorf("CommentBody() missing %q in:\n%s", want, body)
	}
	if _, content := SplitBody(body); content != "still happens" {
		t.Errorf("SplitBody() content = %q, want %q", content, "still happens")
	}
}

func TestSplitBody(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantHeader  string
		wantContent string
	}{
		{"no separator", "plain", "", "plain"},
		{"header and content", "h\n\n---\n\nc", "h", "c"},
		{"content with separator", "h\n\n---\n\nc1\n\n---\n\nc2", "h", "c1\n\n---\n\nc2"},
		{"empty content", "h\n\n---\n\n", "h", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, content := SplitBody(tt.body)
			if header != tt.wantHeader || content != tt.wantContent {
				t.Errorf("SplitBody() = (%q, %q), want (%q, %q)", header, content, tt.wantHeader, tt.wantContent)
			}
		})
	}
}

func TestReplaceContentKeepsMarker(t *testing.T) {
	m := Marker{Org: "acme", Repo: "widgets", Type: types.EntityIssue, ID: "42", Author: "octocat", CreatedAt: created}
	body := IssueBody(m, false, "old")

	updated := ReplaceContent(body, "new")
	header, content := SplitBody(updated)
	oldHeader, _ := SplitBody(body)
	if header != oldHeader {
		t.Errorf("header changed:\n%q\nwant\n%q", header, oldHeader)
	}
	if content != "new" {
		t.Errorf("content = %q, want %q", content, "new")
	}

	// A human removed the separator but left the marker.
	stripped := Tag(m) + "\nrewritten"
	got, err := Parse(ReplaceContent(stripped, "new"))
	if err != nil || got != m {
		t.Errorf("Parse(ReplaceContent()) = %+v, %v; want %+v", got, err, m)
	}
}

func TestSameContent(t *testing.T) {
	if !SameContent("a\r\nb\n", "a\nb") {
		t.Error("SameContent() = false for CRLF and trailing newline difference")
	}
	if SameContent("a", "b") {
		t.Error("SameContent() = true for different text")
	}
}
