// Package provenance embeds and recovers the origin of migrated entities.
//
// Every issue and comment created on the target carries a marker of the form
//
//	<!-- ghmigrate:v1 author=octocat&created=2024-01-02T03:04:05Z&id=42&org=acme&repo=widgets&type=issue -->
//
// on the first line of its body, in the header that precedes Separator. The marker is an HTML comment, so it is
// invisible in the rendered body, and its payload is query-encoded with
// sorted keys so the same source entity always yields the same text.
package provenance

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

const (
	markerPrefix = "<!-- ghmigrate:v1 "
	markerSuffix = " -->"
)

var (
	// ErrNotFound means the body carries no marker.
	ErrNotFound = errors.New("no provenance marker")
	// ErrMalformed means a marker was found but could not be decoded.
	ErrMalformed = errors.New("malformed provenance marker")
	// ErrAmbiguous means the body carries more than one distinct marker.
	ErrAmbiguous = errors.New("ambiguous provenance marker")
)

// Marker records which source entity a target entity was created from.
type Marker struct {
	Org       string
	Repo      string
	Type      types.EntityType
	ID        string // issue number or comment database ID
	Author    string
	CreatedAt time.Time

	// Legacy is set when the marker was recovered from the plain-text
	// attribution written by earlier migrator versions.
	Legacy bool
}

// From reports whether the marker points at the given source repository.
// GitHub owner and repository names are case-insensitive.
func (m Marker) From(org, repo string) bool {
	return strings.EqualFold(m.Org, org) && strings.EqualFold(m.Repo, repo)
}

// Ref renders the source reference, e.g. "acme/widgets#42".
func (m Marker) Ref() string {
	return fmt.Sprintf("%s/%s#%s", m.Org, m.Repo, m.ID)
}

// Tag renders the marker text for m.
func Tag(m Marker) string {
	v := url.Values{}
	v.Set("org", m.Org)
	v.Set("repo", m.Repo)
	v.Set("type", string(m.Type))
	v.Set("id", m.ID)
	v.Set("author", authorOrGhost(m.Author))
	if !m.CreatedAt.IsZero() {
		v.Set("created", m.CreatedAt.UTC().Format(time.RFC3339))
	}
	return markerPrefix + v.Encode() + markerSuffix
}

// Parse extracts the marker from the header of body.
//
// Only the text before the first Separator is searched, so markers that
// arrived with the copied content (a repository migrated twice, a quoted
// body) are not mistaken for the entity's own. A body without a separator
// is searched whole.
//
// Identical repeated markers count as one. Two different markers yield
// ErrAmbiguous; an undecodable marker yields ErrMalformed. Callers treat
// both as absent. When no current-format marker is present the legacy
// attribution lines are tried.
func Parse(body string) (Marker, error) {
	header, _, _ := strings.Cut(body, Separator)
	var found []Marker
	rest := header
	for {
		i := strings.Index(rest, markerPrefix)
		if i < 0 {
			break
		}
		rest = rest[i+len(markerPrefix):]
		j := strings.Index(rest, markerSuffix)
		if j < 0 {
			return Marker{}, fmt.Errorf("%w: unterminated", ErrMalformed)
		}
		m, err := decode(rest[:j])
		if err != nil {
			return Marker{}, err
		}
		rest = rest[j+len(markerSuffix):]
		if !containsMarker(found, m) {
			found = append(found, m)
		}
	}

	switch len(found) {
	case 0:
		return parseLegacy(header)
	case 1:
		return found[0], nil
	default:
		return Marker{}, fmt.Errorf("%w: %s and %s", ErrAmbiguous, found[0].Ref(), found[1].Ref())
	}
}

func decode(payload string) (Marker, error) {
	v, err := url.ParseQuery(payload)
	if err != nil {
		return Marker{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m := Marker{
		Org:    v.Get("org"),
		Repo:   v.Get("repo"),
		Type:   types.EntityType(v.Get("type")),
		ID:     v.Get("id"),
		Author: v.Get("author"),
	}
	if m.Org == "" || m.Repo == "" || m.Type == "" || m.ID == "" {
		return Marker{}, fmt.Errorf("%w: missing org, repo, type or id in %q", ErrMalformed, payload)
	}
	if created := v.Get("created"); created != "" {
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return Marker{}, fmt.Errorf("%w: created: %v", ErrMalformed, err)
		}
		m.CreatedAt = t
	}
	return m, nil
}

func containsMarker(ms []Marker, m Marker) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

var (
	legacyIssueRe   = regexp.MustCompile(`(?m)^Migrated from ([\w.-]+)/([\w.-]+)#(\d+)\s*$`)
	legacyCommentRe = regexp.MustCompile(`(?m)^\*\*Original comment by @(\S+) on (\S+)\*\*\s*$`)
)

// parseLegacy recognizes bodies written before markers existed: issues
// carry "Migrated from org/repo#N" and comments carry only an attribution
// header, so legacy comment markers have an author and time but no ID.
func parseLegacy(body string) (Marker, error) {
	issues := legacyIssueRe.FindAllStringSubmatch(body, -1)
	if len(issues) > 0 {
		m := Marker{Org: issues[0][1], Repo: issues[0][2], Type: types.EntityIssue, ID: issues[0][3], Legacy: true}
		for _, x := range issues[1:] {
			if x[1] != m.Org || x[2] != m.Repo || x[3] != m.ID {
				return Marker{}, fmt.Errorf("%w: %s and %s/%s#%s", ErrAmbiguous, m.Ref(), x[1], x[2], x[3])
			}
		}
		if n, err := strconv.Atoi(m.ID); err != nil || n <= 0 {
			return Marker{}, fmt.Errorf("%w: issue number %q", ErrMalformed, m.ID)
		}
		return m, nil
	}

	if c := legacyCommentRe.FindStringSubmatch(body); c != nil {
		t, err := time.Parse(time.RFC3339, c[2])
		if err != nil {
			return Marker{}, fmt.Errorf("%w: comment time %q", ErrMalformed, c[2])
		}
		return Marker{Type: types.EntityComment, Author: c[1], CreatedAt: t, Legacy: true}, nil
	}
	return Marker{}, ErrNotFound
}

// LegacyCommentKey is the key a legacy comment marker is indexed by,
// since those markers carry no comment ID.
func LegacyCommentKey(author string, createdAt time.Time) string {
	return authorOrGhost(author) + "@" + createdAt.UTC().Format(time.RFC3339)
}

func authorOrGhost(login string) string {
	if login == "" {
		return "ghost"
	}
	return login
}
