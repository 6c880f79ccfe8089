package project

import (
	"context"
	"fmt"
	"io"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/mapper"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// fakeProjects implements Source and Target in memory.
type fakeProjects struct {
	projects map[string]*types.Project // owner/title -> project
	items    map[string][]types.ProjectItem
	nextID   int
	writes   []string
	failSet  error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: map[string]*types.Project{}, items: map[string][]types.ProjectItem{}}
}

func (f *fakeProjects) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeProjects) add(owner, title string, fields ...types.ProjectField) *types.Project {
	p := &types.Project{ID: f.id("PVT"), Number: len(f.projects) + 1, Title: title}
	for _, fd := range fields {
		if fd.ID == "" {
			fd.ID = f.id("F")
		}
		for i := range fd.Options {
			if fd.Options[i].ID == "" {
				fd.Options[i].ID = f.id("O")
			}
		}
		p.Fields = append(p.Fields, fd)
	}
	f.projects[owner+"/"+title] = p
	return p
}

func (f *fakeProjects) field(projectID, fieldID string) *types.ProjectField {
	for _, p := range f.projects {
		if p.ID != projectID && projectID != "" {
			continue
		}
		for i := range p.Fields {
			if p.Fields[i].ID == fieldID {
				return &p.Fields[i]
			}
		}
	}
	return nil
}

func (f *fakeProjects) FindProject(_ context.Context, owner, title string) (*types.Project, error) {
	p, ok := f.projects[owner+"/"+title]
	if !ok {
		return nil, github.ErrNotFound
	}
	cp := *p
	cp.Fields = append([]types.ProjectField(nil), p.Fields...)
	return &cp, nil
}

func (f *fakeProjects) ListProjectItems(_ context.Context, projectID string) ([]types.ProjectItem, error) {
	return append([]types.ProjectItem(nil), f.items[projectID]...), nil
}

func (f *fakeProjects) CreateProject(_ context.Context, owner, title string) (*types.Project, error) {
	f.writes = append(f.writes, "createProject "+title)
	f.add(owner, title, types.ProjectField{Name: "Title", DataType: "TITLE"},
		types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "Todo"}, {Name: "Done"}}})
	return f.FindProject(context.Background(), owner, title)
}

func (f *fakeProjects) CreateProjectField(_ context.Context, projectID string, fd types.ProjectField) (types.ProjectField, error) {
	f.writes = append(f.writes, "createField "+fd.Name)
	fd.ID = f.id("F")
	fd.Options = append([]types.FieldOption(nil), fd.Options...)
	for i := range fd.Options {
		fd.Options[i].ID = f.id("O")
	}
	fd.Iterations = append([]types.Iteration(nil), fd.Iterations...)
	for i := range fd.Iterations {
		fd.Iterations[i].ID = f.id("IT")
	}
	for _, p := range f.projects {
		if p.ID == projectID {
			p.Fields = append(p.Fields, fd)
		}
	}
	return fd, nil
}

// SetFieldOptions issues new option IDs and clears the field on every
// item of its project, as GitHub does.
func (f *fakeProjects) SetFieldOptions(_ context.Context, fieldID string, opts []types.FieldOption) (types.ProjectField, error) {
	fd := f.field("", fieldID)
	f.writes = append(f.writes, "setOptions "+fd.Name)
	fd.Options = nil
	for _, o := range opts {
		o.ID = f.id("O")
		fd.Options = append(fd.Options, o)
	}
	for _, p := range f.projects {
		if f.field(p.ID, fieldID) == nil {
			continue
		}
		for _, it := range f.items[p.ID] {
			delete(it.Values, fd.Name)
		}
	}
	return *fd, nil
}

func (f *fakeProjects) AddProjectItem(_ context.Context, projectID, contentID string) (string, error) {
	f.writes = append(f.writes, "addItem "+contentID)
	it := types.ProjectItem{ID: f.id("PVTI"), ContentID: contentID, Values: map[string]types.FieldValue{}}
	f.items[projectID] = append(f.items[projectID], it)
	return it.ID, nil
}

func (f *fakeProjects) SetProjectItemValue(_ context.Context, projectID, itemID, fieldID string, v github.ProjectV2FieldValue) error {
	if f.failSet != nil {
		return f.failSet
	}
	fd := f.field(projectID, fieldID)
	var fv types.FieldValue
	switch {
	case v.Text != nil:
		fv.Text = *v.Text
	case v.Number != nil:
		n := *v.Number
		fv.Number = &n
	case v.Date != nil:
		fv.Date = *v.Date
	case v.SingleSelectOptionID != nil:
		for _, o := range fd.Options {
			if o.ID == *v.SingleSelectOptionID {
				fv.Option = o.Name
			}
		}
	case v.IterationID != nil:
		for _, it := range fd.Iterations {
			if it.ID == *v.IterationID {
				fv.Iteration = it.Title
			}
		}
	}
	items := f.items[projectID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Values[fd.Name] = fv
		}
	}
	f.writes = append(f.writes, fmt.Sprintf("set %s=%s", fd.Name, fv.String()))
	return nil
}

var srcRepo = types.RepoRef{Owner: "old-org", Name: "widgets"}

func testOpts() Options {
	return Options{SourceOwner: "old-org", SourceTitle: "Roadmap", TargetOwner: "new-org", TargetTitle: "Roadmap", SourceRepo: srcRepo}
}

func num(v float64) *float64 { return &v }

// seedBoard builds a source board with Status, a number field, a
// single-select field, a built-in Title value and two issue items, one
// of which was not migrated.
func seedBoard(f *fakeProjects) (*types.Project, *mapper.IssueIDMap) {
	src := f.add("old-org", "Roadmap",
		types.ProjectField{Name: "Title", DataType: "TITLE"},
		types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "Todo"}, {Name: "In review"}, {Name: "Done"}}},
		types.ProjectField{Name: "Points", DataType: types.FieldNumber},
		types.ProjectField{Name: "Priority", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "P0", Color: "RED"}, {Name: "P1"}}},
	)
	f.items[src.ID] = []types.ProjectItem{
		{ID: "SI_1", ContentID: "SRC_I_42", ContentNumber: 42, ContentRepo: "old-org/widgets", Values: map[string]types.FieldValue{
			"Title":    {Text: "Fix crash"},
			"Status":   {Option: "In review"},
			"Points":   {Number: num(3)},
			"Priority": {Option: "P0"},
		}},
		{ID: "SI_2", ContentID: "SRC_I_99", ContentNumber: 99, ContentRepo: "old-org/widgets", Values: map[string]types.FieldValue{
			"Status": {Option: "Todo"},
		}},
	}
	issues := mapper.NewIssueIDMap()
	issues.Set(types.Issue{ID: "SRC_I_42", Number: 42}, mapper.IssueRef{NodeID: "DST_I_1", Number: 1})
	return src, issues
}

func newTestSyncer(f *fakeProjects) *Syncer {
	return NewSyncer(f, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func optionNames(f types.ProjectField) []string {
	var out []string
	for _, o := range f.Options {
		out = append(out, o.Name)
	}
	return out
}

func mustSync(t *testing.T, s *Syncer, o Options, issues *mapper.IssueIDMap) *Result {
	t.Helper()
	res, err := s.Sync(context.Background(), o, issues)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return res
}

func TestSyncCreatesProjectFieldsAndValues(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)

	res := mustSync(t, newTestSyncer(f), testOpts(), issues)

	if !res.ProjectCreated {
		t.Error("ProjectCreated = false")
	}
	counts := []struct {
		name      string
		got, want int
	}{
		{"FieldsCreated", res.FieldsCreated, 2},
		{"OptionsUpdated", res.OptionsUpdated, 1}, // Status gains In review
		{"ItemsAdded", res.ItemsAdded, 1},
		{"ValuesSet", res.ValuesSet, 3},
		{"Unresolved", res.Unresolved, 1},
	}
	for _, c := range counts {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	dst := f.projects["new-org/Roadmap"]
	if dst == nil {
		t.Fatal("target project not created")
	}
	status, ok := dst.FieldByName("Status")
	if !ok {
		t.Fatal("target has no Status field")
	}
	if got, want := optionNames(status), []string{"Todo", "Done", "In review"}; !slices.Equal(got, want) {
		t.Errorf("Status options = %v, want %v", got, want)
	}

	items := f.items[dst.ID]
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	it := items[0]
	if it.ContentID != "DST_I_1" {
		t.Errorf("ContentID = %q, want DST_I_1", it.ContentID)
	}
	for field, want := range map[string]string{"Status": "In review", "Points": "3", "Priority": "P0"} {
		if got := it.Values[field].String(); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
	if _, ok := it.Values["Title"]; ok {
		t.Error("built-in Title field was written")
	}
	if !slices.Contains(res.Warnings, "project views and layouts are not migrated; recreate them manually") {
		t.Errorf("warnings = %q, want the views notice", res.Warnings)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)
	s := newTestSyncer(f)

	mustSync(t, s, testOpts(), issues)
	f.writes = nil

	res := mustSync(t, s, testOpts(), issues)
	if len(f.writes) != 0 {
		t.Errorf("second sync wrote %q", f.writes)
	}
	if res.ProjectCreated {
		t.Error("ProjectCreated = true on second sync")
	}
	if res.ValuesInSync != 3 || res.ValuesSet != 0 {
		t.Errorf("ValuesInSync = %d, ValuesSet = %d; want 3, 0", res.ValuesInSync, res.ValuesSet)
	}
}

// TestSyncKeepsOptionsUsedByOtherItems syncs into a board that already
// tracks work outside the migration. Rewriting Status would clear that
// item's value, so the missing option is reported instead.
func TestSyncKeepsOptionsUsedByOtherItems(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)
	dst := f.add("new-org", "Roadmap",
		types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "Todo"}, {Name: "Done"}}},
		types.ProjectField{Name: "Points", DataType: types.FieldNumber},
		types.ProjectField{Name: "Priority", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "P0"}, {Name: "P1"}}},
	)
	f.items[dst.ID] = []types.ProjectItem{
		{ID: "PVTI_local", ContentID: "DST_I_77", ContentNumber: 77, ContentRepo: "new-org/frontend", Values: map[string]types.FieldValue{
			"Status": {Option: "Done"},
		}},
	}

	res := mustSync(t, newTestSyncer(f), testOpts(), issues)

	if slices.Contains(f.writes, "setOptions Status") {
		t.Errorf("Status options rewritten: %q", f.writes)
	}
	if res.OptionsUpdated != 0 {
		t.Errorf("OptionsUpdated = %d, want 0", res.OptionsUpdated)
	}
	if got := f.items[dst.ID][0].Values["Status"].String(); got != "Done" {
		t.Errorf("item outside the migration has Status %q, want Done", got)
	}

	var warned, skipped bool
	for _, w := range res.Warnings {
		warned = warned || strings.HasPrefix(w, `field "Status" lacks options In review on the target but 1 other items use it`)
		skipped = skipped || strings.HasPrefix(w, `skipping field "Status" of issue #1`)
	}
	if !warned || !skipped {
		t.Errorf("warnings = %q, want the kept options and the skipped value reported", res.Warnings)
	}

	migrated := f.items[dst.ID][1]
	if migrated.ContentID != "DST_I_1" || migrated.Values["Priority"].String() != "P0" {
		t.Errorf("migrated item = %+v, want DST_I_1 with Priority P0", migrated)
	}
}

// TestSyncRestoresValuesAfterOptionRewrite adds an option to a field
// only migrated items use; their values come back after the rewrite.
func TestSyncRestoresValuesAfterOptionRewrite(t *testing.T) {
	f := newFakeProjects()
	src, issues := seedBoard(f)
	s := newTestSyncer(f)
	mustSync(t, s, testOpts(), issues)

	for i := range src.Fields {
		if src.Fields[i].Name == "Priority" {
			src.Fields[i].Options = append(src.Fields[i].Options, types.FieldOption{ID: "O_new", Name: "P2"})
		}
	}
	f.writes = nil

	res := mustSync(t, s, testOpts(), issues)

	if want := []string{"setOptions Priority", "set Priority=P0"}; !slices.Equal(f.writes, want) {
		t.Errorf("writes = %q, want %q", f.writes, want)
	}
	if res.OptionsUpdated != 1 {
		t.Errorf("OptionsUpdated = %d, want 1", res.OptionsUpdated)
	}
	dst := f.projects["new-org/Roadmap"]
	if got := f.items[dst.ID][0].Values["Priority"].String(); got != "P0" {
		t.Errorf("Priority = %q after rewrite, want P0", got)
	}
}

func TestSyncUnencodableValueWarns(t *testing.T) {
	f := newFakeProjects()
	src, issues := seedBoard(f)
	f.add("new-org", "Roadmap",
		types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "Todo"}, {Name: "In review"}}},
		types.ProjectField{Name: "Points", DataType: types.FieldNumber},
		types.ProjectField{Name: "Sprint", DataType: types.FieldIteration},
	)
	src.Fields = append(src.Fields, types.ProjectField{Name: "Sprint", DataType: types.FieldIteration, Iterations: []types.Iteration{{Title: "Sprint 1"}}})
	f.items[src.ID][0].Values["Sprint"] = types.FieldValue{Iteration: "Sprint 1"}

	res := mustSync(t, newTestSyncer(f), testOpts(), issues)

	for _, want := range []string{
		`iteration "Sprint 1" of field "Sprint" is missing on the target; add it manually`,
		`skipping field "Sprint" of issue #1: value cannot be encoded for target field: no iteration "Sprint 1" on field "Sprint"`,
	} {
		if !slices.Contains(res.Warnings, want) {
			t.Errorf("warnings missing %q:\n%q", want, res.Warnings)
		}
	}
	if res.ValuesSet != 3 {
		t.Errorf("ValuesSet = %d, want 3", res.ValuesSet)
	}
}

func TestSyncTypeMismatchSkipsField(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)
	f.add("new-org", "Roadmap",
		types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{Name: "Todo"}, {Name: "In review"}, {Name: "Done"}}},
		types.ProjectField{Name: "Points", DataType: types.FieldText},
	)

	res := mustSync(t, newTestSyncer(f), testOpts(), issues)

	dst := f.projects["new-org/Roadmap"]
	if _, ok := f.items[dst.ID][0].Values["Points"]; ok {
		t.Error("Points written to a field of another type")
	}
	if res.OptionsUpdated != 0 {
		t.Errorf("OptionsUpdated = %d, want 0", res.OptionsUpdated)
	}
}

func TestSyncDryRun(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)
	o := testOpts()
	o.DryRun = true

	res := mustSync(t, newTestSyncer(f), o, issues)
	if len(f.writes) != 0 {
		t.Errorf("dry run wrote %q", f.writes)
	}
	if !res.ProjectCreated || res.ItemsAdded != 1 {
		t.Errorf("ProjectCreated = %v, ItemsAdded = %d; want true, 1", res.ProjectCreated, res.ItemsAdded)
	}
}

func TestSyncSourceProjectMissing(t *testing.T) {
	f := newFakeProjects()
	_, err := newTestSyncer(f).Sync(context.Background(), testOpts(), mapper.NewIssueIDMap())
	if !errors.Is(err, github.ErrNotFound) {
		t.Errorf("Sync() error = %v, want %v", err, github.ErrNotFound)
	}
}

func TestSyncAuthErrorIsFatal(t *testing.T) {
	f := newFakeProjects()
	_, issues := seedBoard(f)
	f.failSet = &github.AuthError{Message: "missing scope", Missing: []string{"project"}}

	_, err := newTestSyncer(f).Sync(context.Background(), testOpts(), issues)
	var auth *github.AuthError
	if !errors.As(err, &auth) {
		t.Errorf("Sync() error = %v, want AuthError", err)
	}
}

func TestResolveByNumberWithinSourceRepo(t *testing.T) {
	issues := mapper.NewIssueIDMap()
	issues.Set(types.Issue{Number: 7}, mapper.IssueRef{NodeID: "DST_7", Number: 3})

	tests := []struct {
		name string
		item types.ProjectItem
		want bool
	}{
		{"same repo different case", types.ProjectItem{ContentID: "X", ContentNumber: 7, ContentRepo: "Old-Org/Widgets"}, true},
		{"other repo", types.ProjectItem{ContentID: "X", ContentNumber: 7, ContentRepo: "old-org/gadgets"}, false},
		{"draft", types.ProjectItem{ContentNumber: 7, ContentRepo: "old-org/widgets"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := resolve(testOpts(), issues, tt.item)
			if ok != tt.want {
				t.Errorf("resolve() ok = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	status := types.ProjectField{Name: "Status", DataType: types.FieldSingleSelect, Options: []types.FieldOption{{ID: "o1", Name: "Done"}}}

	v, err := encode(status, types.FieldValue{Option: "Done"})
	if err != nil || v.SingleSelectOptionID == nil || *v.SingleSelectOptionID != "o1" {
		t.Errorf("encode(Done) = %+v, %v; want option o1", v, err)
	}
	if _, err := encode(status, types.FieldValue{Option: "Blocked"}); !errors.Is(err, errUnencodable) {
		t.Errorf("encode(Blocked) error = %v, want %v", err, errUnencodable)
	}

	v, err = encode(types.ProjectField{DataType: types.FieldNumber}, types.FieldValue{Text: "2.5"})
	if err != nil || v.Number == nil || *v.Number != 2.5 {
		t.Errorf("encode(2.5) = %+v, %v; want number 2.5", v, err)
	}

	if _, err := encode(types.ProjectField{DataType: types.FieldDate}, types.FieldValue{Date: "31/01/2024"}); !errors.Is(err, errUnencodable) {
		t.Errorf("encode(31/01/2024) error = %v, want %v", err, errUnencodable)
	}
	v, err = encode(types.ProjectField{DataType: types.FieldDate}, types.FieldValue{Date: "2024-01-31"})
	if err != nil || v.Date == nil || *v.Date != "2024-01-31" {
		t.Errorf("encode(2024-01-31) = %+v, %v; want date 2024-01-31", v, err)
	}
}
