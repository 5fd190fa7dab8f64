package session

import (
	"context"
	"errors"

	"fsconsole/internal/content"
	"fsconsole/internal/expand"
	"fsconsole/internal/ident"
	"fsconsole/internal/model"

	"go.uber.org/zap"
)

// StartExpand toggles the expansion of row. When the row needs its versions
// fetched it returns the fetch to run and true; pass the result to ApplyExpand.
// Toggling a row that is already loading does nothing.
func (p *Page) StartExpand(row content.Row) (func() ExpandResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := row.Identifier
	if !p.expansion.Toggle(id) {
		return nil, false
	}
	epoch := p.expansion.Epoch()
	ctx := p.expandCtx
	project := p.project
	tag := p.filters.Values().EffectiveTag()
	name := row.Item.Name

	return func() ExpandResult {
		items, err := p.api.Versions(ctx, project, p.kind, name, tag)
		res := ExpandResult{ID: id, Epoch: epoch, Err: err}
		if err == nil {
			res.Rows = content.Build(items, model.GroupByNone, content.Options{Project: project, Expanded: true})
		}
		return res
	}, true
}

// ApplyExpand records an expansion result. Results for a row that was collapsed,
// or from before a filter change, are dropped and ApplyExpand returns false.
func (p *Page) ApplyExpand(res ExpandResult) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) && res.Epoch == p.expansion.Epoch() {
		p.log.Warn("loading versions failed", zap.String("row", res.ID.String()), zap.Error(res.Err))
	}
	return p.expansion.Finish(res.ID, res.Epoch, res.Rows, res.Err)
}

// Expand toggles row and runs any needed fetch synchronously.
func (p *Page) Expand(row content.Row) expand.State {
	if run, ok := p.StartExpand(row); ok {
		p.ApplyExpand(run())
	}
	return p.Expansion(row.Identifier)
}

func (p *Page) Collapse(id ident.Identifier) {
	p.mu.Lock()
	p.expansion.Collapse(id)
	p.mu.Unlock()
}

func (p *Page) Expansion(id ident.Identifier) expand.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expansion.State(id)
}

// ExpandedCount is the number of rows that are not collapsed.
func (p *Page) ExpandedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expansion.Len()
}
