// Package session owns the state of one console page: the fetched items, the
// row expansion state, the selection, and the cancellation of in-flight requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fsconsole/internal/api"
	"fsconsole/internal/content"
	"fsconsole/internal/expand"
	"fsconsole/internal/filters"
	"fsconsole/internal/ident"
	"fsconsole/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStale is returned when a response arrives after a newer request superseded it.
var ErrStale = errors.New("stale response discarded")

// ErrNotFound is wrapped by NotFoundError.
var ErrNotFound = errors.New("item not found")

// NotFoundError reports a details route whose item is not in the fetched set.
type NotFoundError struct {
	Name  string
	Ref   string
	Route string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s:%s not found; back to %s", e.Name, e.Ref, e.Route)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Lister is the read side of the platform API.
type Lister interface {
	List(ctx context.Context, project string, kind model.Kind, q api.ListQuery) ([]model.Item, error)
	Versions(ctx context.Context, project string, kind model.Kind, name, tag string) ([]model.Item, error)
	Tags(ctx context.Context, project string, kind model.Kind) ([]string, error)
}

type Options struct {
	Kind    model.Kind
	Project string
	API     Lister
	Filters filters.Values
	Logger  *zap.Logger
}

// FetchResult is the outcome of a list fetch started by StartFetch.
type FetchResult struct {
	Gen   uint64
	Items []model.Item
	Err   error
}

// ExpandResult is the outcome of an expansion fetch started by StartExpand.
type ExpandResult struct {
	ID    ident.Identifier
	Epoch uint64
	Rows  []content.Row
	Err   error
}

type Page struct {
	mu sync.Mutex

	kind    model.Kind
	project string
	api     Lister
	filters *filters.Store
	log     *zap.Logger

	all       []model.Item
	items     []model.Item
	expansion *expand.Tracker
	selected  *model.Item

	gen     uint64
	cancel  context.CancelFunc
	loading bool
	lastErr error

	// expansions share one context so Reset can cancel them together.
	expandCtx    context.Context
	expandCancel context.CancelFunc
}

func NewPage(opts Options) *Page {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	p := &Page{
		kind:      opts.Kind,
		project:   opts.Project,
		api:       opts.API,
		filters:   filters.NewStore(opts.Filters),
		log:       log.With(zap.String("page", string(opts.Kind))),
		expansion: expand.NewTracker(),
	}
	p.expandCtx, p.expandCancel = context.WithCancel(context.Background())
	return p
}

func (p *Page) Kind() model.Kind { return p.kind }

func (p *Page) Project() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.project
}

func (p *Page) Filters() filters.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters.Values()
}

// StartFetch supersedes any in-flight list fetch and returns the fetch to run.
// The returned function blocks; pass its result to ApplyFetch.
func (p *Page) StartFetch(parent context.Context) func() FetchResult {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.loading = true
	project := p.project
	q := api.QueryFromParams(p.filters.Values().Query())
	p.mu.Unlock()

	return func() FetchResult {
		items, err := p.api.List(ctx, project, p.kind, q)
		return FetchResult{Gen: gen, Items: items, Err: err}
	}
}

// ApplyFetch stores a fetch result unless a newer fetch was started since, in
// which case it returns ErrStale and leaves the page untouched.
func (p *Page) ApplyFetch(res FetchResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.Gen != p.gen {
		p.log.Debug("discarding stale list response", zap.Uint64("gen", res.Gen), zap.Uint64("current", p.gen))
		return ErrStale
	}
	p.cancelLocked()
	if res.Err != nil {
		p.lastErr = res.Err
		if !errors.Is(res.Err, context.Canceled) {
			p.log.Warn("list fetch failed", zap.String("project", p.project), zap.Error(res.Err))
		}
		return res.Err
	}
	p.lastErr = nil
	if dups := content.DuplicateUniqueIDs(res.Items); len(dups) > 0 {
		p.log.Warn("duplicate versions in list response", zap.Int("count", len(dups)), zap.String("first", dups[0].String()))
	}
	p.all = res.Items
	p.items = content.FilterByTag(res.Items, p.filters.Values().EffectiveTag())
	p.reselectLocked()
	return nil
}

// Load runs a fetch synchronously.
func (p *Page) Load(ctx context.Context) error {
	return p.ApplyFetch(p.StartFetch(ctx)())
}

// Refresh reloads the items and the tag options concurrently. A tag options
// failure is logged and does not fail the refresh.
func (p *Page) Refresh(ctx context.Context) error {
	run := p.StartFetch(ctx)
	project := p.Project()

	var res FetchResult
	var tags []string
	var tagsErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res = run()
		return nil
	})
	g.Go(func() error {
		tags, tagsErr = p.api.Tags(gctx, project, p.kind)
		return nil
	})
	_ = g.Wait()

	if err := p.ApplyFetch(res); err != nil {
		return err
	}
	p.ApplyTags(tags, tagsErr)
	return nil
}

// ApplyTags sets the tag options offered by the tag filter. When the backend
// could not list them they are derived from the fetched items.
func (p *Page) ApplyTags(tags []string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.log.Info("tag options unavailable", zap.Error(err))
		tags = nil
	}
	if tags == nil {
		tags = content.TagOptions(p.all)
	}
	p.filters.SetTagOptions(tags)
}

func (p *Page) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

func (p *Page) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Items returns the items passing the tag filter.
func (p *Page) Items() []model.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Item(nil), p.items...)
}

// AllItems returns everything the last fetch returned.
func (p *Page) AllItems() []model.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Item(nil), p.all...)
}

// Table returns the table rows for the current items and group-by.
func (p *Page) Table() []content.Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return content.Build(p.items, p.filters.Values().GroupBy, content.Options{Project: p.project})
}

// SetTag changes the tag filter. A change clears all expansion state and cancels
// in-flight fetches; the caller is expected to fetch again.
func (p *Page) SetTag(tag string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.filters.SetTag(tag) {
		return false
	}
	p.supersedeLocked()
	p.resetExpansionLocked()
	return true
}

func (p *Page) SetName(name string) {
	p.mu.Lock()
	p.filters.SetName(name)
	p.mu.Unlock()
}

func (p *Page) SetLabels(labels string) {
	p.mu.Lock()
	p.filters.SetLabels(labels)
	p.mu.Unlock()
}

func (p *Page) SetIter(iter string) {
	p.mu.Lock()
	p.filters.SetIter(iter)
	p.mu.Unlock()
}

// SetGroupBy applies a group-by choice. Grouped and flat rows do not share
// expansion state, so a change resets it.
func (p *Page) SetGroupBy(g model.GroupBy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.filters.Values().GroupBy
	p.filters.SetGroupBy(g)
	if p.filters.Values().GroupBy != prev {
		p.resetExpansionLocked()
	}
}

// ResetFilters clears name/labels/iter. After creating an item the page keeps "*"
// when it was showing all tags and otherwise shows the new item's tag.
func (p *Page) ResetFilters(tag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filters.Values().EffectiveTag() == model.TagFilterAll {
		tag = model.TagFilterAll
	}
	p.filters.Reset(tag)
	p.supersedeLocked()
	p.resetExpansionLocked()
}

// SetProject switches the page to another project, discarding all state.
func (p *Page) SetProject(project string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if project == p.project {
		return
	}
	p.project = project
	p.clearLocked()
}

// Close cancels in-flight requests and discards all state.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	p.expandCancel()
}

func (p *Page) clearLocked() {
	p.supersedeLocked()
	p.all = nil
	p.items = nil
	p.selected = nil
	p.lastErr = nil
	p.resetExpansionLocked()
}

// supersedeLocked cancels the in-flight fetch and bumps the generation so a
// response that already completed for the old query cannot land.
func (p *Page) supersedeLocked() {
	p.cancelLocked()
	p.gen++
}

func (p *Page) cancelLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.loading = false
}

func (p *Page) resetExpansionLocked() {
	p.expandCancel()
	p.expandCtx, p.expandCancel = context.WithCancel(context.Background())
	p.expansion.Reset()
}
