package session

import (
	"fsconsole/internal/content"
	"fsconsole/internal/ident"
	"fsconsole/internal/model"
)

// Select sets the selection to the version named by a details route. With no
// items loaded, or no name, the selection is cleared. A route to an item that is
// not in the fetched set clears the selection and returns a *NotFoundError
// carrying the collection route to fall back to.
func (p *Page) Select(name, tagOrUID string) (model.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = nil
	if name == "" || len(p.all) == 0 {
		return model.Item{}, nil
	}
	it, ok := content.FindSelected(p.all, name, tagOrUID)
	if !ok {
		return model.Item{}, &NotFoundError{Name: name, Ref: tagOrUID, Route: content.CollectionRoute(p.project, p.kind)}
	}
	p.selected = &it
	return it, nil
}

func (p *Page) Selected() (model.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return model.Item{}, false
	}
	return *p.selected, true
}

func (p *Page) ClearSelection() {
	p.mu.Lock()
	p.selected = nil
	p.mu.Unlock()
}

// reselectLocked points the selection at the refetched copy of the selected
// version, or clears it when that version is gone.
func (p *Page) reselectLocked() {
	if p.selected == nil {
		return
	}
	want := ident.Unique(*p.selected)
	for _, it := range p.all {
		if ident.Unique(it) == want {
			cp := it
			p.selected = &cp
			return
		}
	}
	p.selected = nil
}

// ReplaceItem swaps the in-memory copy of updated's version and drops the
// expansion state of its name. It returns false when the version is not held.
// The version keeps its row even when its new tag no longer passes the tag
// filter; the next fetch re-applies the filter.
func (p *Page) ReplaceItem(updated model.Item) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := ident.Unique(updated)
	found := false
	for i := range p.all {
		if ident.Unique(p.all[i]) == want {
			p.all[i] = updated
			found = true
		}
	}
	for i := range p.items {
		if ident.Unique(p.items[i]) == want {
			p.items[i] = updated
		}
	}
	if p.selected != nil && ident.Unique(*p.selected) == want {
		cp := updated
		p.selected = &cp
	}
	// Expansion rows still carry the old tag.
	p.expansion.Remove(func(id ident.Identifier) bool {
		return id.Kind == updated.Kind && id.Project == updated.Project && id.Name == updated.StoreKey()
	})
	return found
}
