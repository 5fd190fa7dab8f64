package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fsconsole/internal/api"
	"fsconsole/internal/expand"
	"fsconsole/internal/filters"
	"fsconsole/internal/model"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLister struct {
	mu       sync.Mutex
	list     func(ctx context.Context, project string, q api.ListQuery) ([]model.Item, error)
	versions []model.Item
	tags     []string
	tagsErr  error

	listCalls     int
	versionCalls  int
	versionsNames []string
	versionsTags  []string
}

func (f *fakeLister) List(ctx context.Context, project string, kind model.Kind, q api.ListQuery) ([]model.Item, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.list
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx, project, q)
}

func (f *fakeLister) Versions(ctx context.Context, project string, kind model.Kind, name, tag string) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionCalls++
	f.versionsNames = append(f.versionsNames, name)
	f.versionsTags = append(f.versionsTags, tag)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.versions, nil
}

func (f *fakeLister) Tags(ctx context.Context, project string, kind model.Kind) ([]string, error) {
	return f.tags, f.tagsErr
}

func fs(name, tag, uid string) model.Item {
	return model.Item{Kind: model.KindFeatureSet, Project: "demo", Name: name, Tag: tag, UID: uid}
}

func fixed(items ...model.Item) func(context.Context, string, api.ListQuery) ([]model.Item, error) {
	return func(context.Context, string, api.ListQuery) ([]model.Item, error) { return items, nil }
}

func newPage(f *fakeLister, v filters.Values) *Page {
	return NewPage(Options{Kind: model.KindFeatureSet, Project: "demo", API: f, Filters: v})
}

func names(items []model.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Name+":"+it.Tag)
	}
	return out
}

func TestApplyFetch_SupersededResultIsDiscarded(t *testing.T) {
	f := &fakeLister{list: fixed(fs("b", "latest", "u2"))}
	p := newPage(f, filters.Values{})
	defer p.Close()

	_ = p.StartFetch(context.Background())
	runB := p.StartFetch(context.Background())

	// A response for the first fetch that lands after B was issued.
	resA := FetchResult{Gen: 1, Items: []model.Item{fs("a", "latest", "u1")}}
	resB := runB()

	if err := p.ApplyFetch(resB); err != nil {
		t.Fatalf("ApplyFetch(B): %v", err)
	}
	if err := p.ApplyFetch(resA); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for A, got %v", err)
	}
	if diff := cmp.Diff([]string{"b:latest"}, names(p.Items())); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestStartFetch_CancelsPreviousRequest(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"))}
	p := newPage(f, filters.Values{})
	defer p.Close()

	runA := p.StartFetch(context.Background())
	_ = p.StartFetch(context.Background())
	res := runA()
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected the superseded fetch to see a canceled context, got %v", res.Err)
	}
	if err := p.ApplyFetch(res); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestLoad_FiltersByTagAndBuildsTable(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"), fs("a", "v1", "u0"), fs("b", "latest", "u3"))}
	p := newPage(f, filters.Values{})
	defer p.Close()

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := names(p.Items()); !cmp.Equal(got, []string{"a:latest", "b:latest"}) {
		t.Fatalf("unexpected items %v", got)
	}
	if n := len(p.AllItems()); n != 3 {
		t.Fatalf("expected all 3 fetched items kept, got %d", n)
	}
	rows := p.Table()
	if len(rows) != 2 || rows[0].Expandable {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if p.Loading() {
		t.Fatalf("still loading after Load")
	}
}

func TestLoad_ErrorIsKept(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeLister{list: func(context.Context, string, api.ListQuery) ([]model.Item, error) { return nil, boom }}
	p := newPage(f, filters.Values{})
	defer p.Close()
	if err := p.Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("Err() = %v", p.Err())
	}
}

func TestRefresh_SetsTagOptions(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1")), tags: []string{"latest", "v1"}}
	p := newPage(f, filters.Values{})
	defer p.Close()
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if diff := cmp.Diff([]string{"latest", "v1"}, p.Filters().TagOptions); diff != "" {
		t.Fatalf("tag options (-want +got):\n%s", diff)
	}

	f.tagsErr = errors.New("no tags endpoint")
	f.tags = nil
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if diff := cmp.Diff([]string{"latest"}, p.Filters().TagOptions); diff != "" {
		t.Fatalf("fallback tag options (-want +got):\n%s", diff)
	}
}

func TestSetTag_AllForcesGroupingAndClearsExpansion(t *testing.T) {
	f := &fakeLister{
		list:     fixed(fs("a", "latest", "u1"), fs("a", "v1", "u0")),
		versions: []model.Item{fs("a", "latest", "u1"), fs("a", "v1", "u0")},
	}
	p := newPage(f, filters.Values{Tag: "*"})
	defer p.Close()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rows := p.Table()
	if len(rows) != 1 || !rows[0].Expandable {
		t.Fatalf("expected one grouped row, got %+v", rows)
	}

	st := p.Expand(rows[0])
	if st.Phase != expand.Loaded || len(st.Content) != 2 {
		t.Fatalf("unexpected expansion %+v", st)
	}
	if f.versionsTags[0] != "*" || f.versionsNames[0] != "a" {
		t.Fatalf("versions fetched with %v %v", f.versionsNames, f.versionsTags)
	}

	run, ok := p.StartExpand(rows[0])
	if ok || run != nil {
		t.Fatalf("toggling a loaded row must collapse it")
	}
	run, ok = p.StartExpand(rows[0])
	if !ok {
		t.Fatalf("expected a fetch on re-expand")
	}
	res := run()

	if !p.SetTag("v1") {
		t.Fatalf("expected tag change")
	}
	if p.Filters().GroupBy != model.GroupByNone {
		t.Fatalf("expected group-by none after leaving *, got %s", p.Filters().GroupBy)
	}
	if p.ExpandedCount() != 0 {
		t.Fatalf("expected expansion cleared")
	}
	if p.ApplyExpand(res) {
		t.Fatalf("result from before the tag change must be dropped")
	}
	if p.SetTag("v1") {
		t.Fatalf("same tag is not a change")
	}
}

func TestStartExpand_NoDuplicateFetchWhileLoading(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1")), versions: []model.Item{fs("a", "latest", "u1")}}
	p := newPage(f, filters.Values{Tag: "*"})
	defer p.Close()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	row := p.Table()[0]

	run, ok := p.StartExpand(row)
	if !ok {
		t.Fatalf("expected fetch")
	}
	if _, again := p.StartExpand(row); again {
		t.Fatalf("second expand while loading must not fetch")
	}
	if p.Expansion(row.Identifier).Phase != expand.Loading {
		t.Fatalf("expected loading")
	}
	if !p.ApplyExpand(run()) {
		t.Fatalf("expected result applied")
	}
	if f.versionCalls != 1 {
		t.Fatalf("expected 1 versions call, got %d", f.versionCalls)
	}
}

func TestSetProject_DiscardsInFlightFetch(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"))}
	p := newPage(f, filters.Values{})
	defer p.Close()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	run := p.StartFetch(context.Background())
	p.SetProject("other")
	if err := p.ApplyFetch(run()); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if len(p.Items()) != 0 || p.Project() != "other" {
		t.Fatalf("expected empty page for the new project")
	}
}

func TestSelect(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"), fs("a", "v1", "u0"))}
	p := newPage(f, filters.Values{Tag: "*"})
	defer p.Close()

	if it, err := p.Select("a", "u0"); err != nil || it.UID != "" {
		t.Fatalf("nothing loaded yet; got %+v %v", it, err)
	}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	it, err := p.Select("a", "u0")
	if err != nil || it.Tag != "v1" {
		t.Fatalf("Select by uid: %+v %v", it, err)
	}
	if it, err := p.Select("a", "latest"); err != nil || it.UID != "u1" {
		t.Fatalf("Select by tag: %+v %v", it, err)
	}

	_, err = p.Select("gone", "latest")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Route != "/projects/demo/feature-store/feature-sets" {
		t.Fatalf("unexpected route %q", nf.Route)
	}
	if _, ok := p.Selected(); ok {
		t.Fatalf("selection must be cleared")
	}
}

func TestReplaceItem_UpdatesSelectionAndRows(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "v1", "u1"))}
	p := newPage(f, filters.Values{Tag: "*"})
	defer p.Close()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := p.Select("a", "u1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	updated := fs("a", "prod", "u1")
	if !p.ReplaceItem(updated) {
		t.Fatalf("expected version to be found")
	}
	sel, _ := p.Selected()
	if sel.Tag != "prod" || p.Items()[0].Tag != "prod" {
		t.Fatalf("expected replaced item, got %+v", sel)
	}
	if p.ReplaceItem(fs("zzz", "x", "nope")) {
		t.Fatalf("unknown version reported found")
	}
}

func TestResetFilters_KeepsAllTags(t *testing.T) {
	p := newPage(&fakeLister{list: fixed()}, filters.Values{Tag: "*", Name: "abc"})
	defer p.Close()
	p.ResetFilters("v9")
	v := p.Filters()
	if v.Tag != "*" || v.Name != "" || v.GroupBy != model.GroupByName {
		t.Fatalf("unexpected filters %+v", v)
	}

	p2 := newPage(&fakeLister{list: fixed()}, filters.Values{Tag: "latest"})
	defer p2.Close()
	p2.ResetFilters("v9")
	if got := p2.Filters().Tag; got != "v9" {
		t.Fatalf("expected new item tag, got %q", got)
	}
}

func TestReplaceItem_KeepsRetaggedVersionUntilNextFetch(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"), fs("b", "latest", "u2"))}
	p := newPage(f, filters.Values{Tag: "latest"})
	defer p.Close()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !p.ReplaceItem(fs("a", "prod", "u1")) {
		t.Fatalf("expected version to be found")
	}
	if diff := cmp.Diff([]string{"a:prod", "b:latest"}, names(p.Items())); diff != "" {
		t.Fatalf("retagged version left the table (-want +got):\n%s", diff)
	}

	f.mu.Lock()
	f.list = fixed(fs("a", "prod", "u1"), fs("b", "latest", "u2"))
	f.mu.Unlock()
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"b:latest"}, names(p.Items())); diff != "" {
		t.Fatalf("refetch should re-apply the tag filter (-want +got):\n%s", diff)
	}
}

func TestSetTag_CompletedOldQueryIsDiscarded(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "v1", "u1"), fs("b", "latest", "u2"))}
	p := newPage(f, filters.Values{Tag: "*"})
	defer p.Close()

	res := p.StartFetch(context.Background())()
	if !p.SetTag("latest") {
		t.Fatalf("expected an effective tag change")
	}
	if err := p.ApplyFetch(res); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if got := p.AllItems(); len(got) != 0 {
		t.Fatalf("old query landed: %v", names(got))
	}
}

func TestResetFilters_CompletedOldQueryIsDiscarded(t *testing.T) {
	f := &fakeLister{list: fixed(fs("a", "latest", "u1"))}
	p := newPage(f, filters.Values{Tag: "latest", Name: "a"})
	defer p.Close()

	res := p.StartFetch(context.Background())()
	p.ResetFilters(model.TagLatest)
	if err := p.ApplyFetch(res); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}
