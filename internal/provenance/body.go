package provenance

import (
	"fmt"
	"strings"
	"time"
)

// Separator divides the generated header of a migrated body from the
// source content.
const Separator = "\n\n---\n\n"

// IssueBody composes the body of a migrated issue: marker, attribution
// and the original content.
func IssueBody(m Marker, pullRequest bool, content string) string {
	var b strings.Builder
	b.WriteString(Tag(m))
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Original author: @%s**\n", authorOrGhost(m.Author))
	fmt.Fprintf(&b, "Migrated from %s/%s#%s", m.Org, m.Repo, m.ID)
	if pullRequest {
		b.WriteString("\n_Originally a pull request; code changes were not migrated._")
	}
	b.WriteString(Separator)
	b.WriteString(content)
	return b.String()
}

// CommentBody composes the body of a migrated comment.
func CommentBody(m Marker, content string) string {
	var b strings.Builder
	b.WriteString(Tag(m))
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Original comment by @%s on %s**", authorOrGhost(m.Author), m.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(Separator)
	b.WriteString(content)
	return b.String()
}

// SplitBody separates a migrated body into its generated header and the
// source content. A body without a separator is all content.
func SplitBody(body string) (header, content string) {
	header, content, ok := strings.Cut(body, Separator)
	if !ok {
		return "", body
	}
	return header, content
}

// ReplaceContent swaps the content of a migrated body and keeps its
// header, and with it the marker, untouched.
func ReplaceContent(body, content string) string {
	header, _ := SplitBody(body)
	if header == "" {
		// Separator edited away; keep the marker on its own.
		if m, err := Parse(body); err == nil && !m.Legacy {
			return Tag(m) + Separator + content
		}
		return content
	}
	return header + Separator + content
}

// SameContent compares two bodies the way GitHub stores them: line
// endings normalized and surrounding whitespace ignored.
func SameContent(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}
