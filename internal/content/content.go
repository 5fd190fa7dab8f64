// Package content derives table rows from fetched items.
//
// Everything here is a pure function of its arguments: no caches survive a call,
// and nothing touches the network.
package content

import (
	"fmt"
	"net/url"
	"time"

	"fsconsole/internal/ident"
	"fsconsole/internal/model"
)

type Cell struct {
	ID     string `json:"id" yaml:"id"`
	Header string `json:"header" yaml:"header"`
	Value  string `json:"value" yaml:"value"`

	// Hidden cells are carried for lookups but not rendered as columns.
	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	// ShowExpandButton marks the cell that toggles row expansion.
	ShowExpandButton bool `json:"showExpandButton,omitempty" yaml:"showExpandButton,omitempty"`
}

// Row is one table-ready row descriptor.
type Row struct {
	Item             model.Item       `json:"item" yaml:"item"`
	Identifier       ident.Identifier `json:"-" yaml:"-"`
	UniqueIdentifier ident.Identifier `json:"-" yaml:"-"`
	Key              string           `json:"key" yaml:"key"`
	UniqueKey        string           `json:"uniqueKey" yaml:"uniqueKey"`
	Cells            []Cell           `json:"cells" yaml:"cells"`
	Expandable       bool             `json:"expandable,omitempty" yaml:"expandable,omitempty"`
	Link             string           `json:"link" yaml:"link"`
}

type Options struct {
	// Project overrides the item project in links (the page project).
	Project string
	// Expanded lays the row out as a version row under an expanded parent.
	Expanded bool
	// DetailsTab is the details tab the row link opens; defaults to "overview".
	DetailsTab string
}

// Build returns one row per item (GroupByNone) or one row per name (GroupByName).
//
// Grouped rows are expandable; expansion content is never computed here.
func Build(items []model.Item, groupBy model.GroupBy, opts Options) []Row {
	src := items
	grouped := groupBy == model.GroupByName
	if grouped {
		src = LatestPerName(items)
	}
	out := make([]Row, 0, len(src))
	for _, it := range src {
		out = append(out, NewRow(it, grouped, opts))
	}
	return out
}

// NewRow lays out a single item.
func NewRow(it model.Item, expandable bool, opts Options) Row {
	loose := ident.Loose(it)
	unique := ident.Unique(it)
	cells := cellsFor(it, opts.Expanded)
	if expandable && len(cells) > 0 {
		cells[0].ShowExpandButton = true
	}
	return Row{
		Item:             it,
		Identifier:       loose,
		UniqueIdentifier: unique,
		Key:              loose.String(),
		UniqueKey:        unique.String(),
		Cells:            cells,
		Expandable:       expandable,
		Link:             DetailsLink(it, opts),
	}
}

// LatestPerName keeps one representative per (project, name), in first-seen order.
//
// The representative is the version tagged "latest" when the partition has one.
// Otherwise it is the newest version: the input is expected newest-first, but when
// every version in the partition carries an Updated timestamp the max timestamp wins
// (ties keep the earlier position).
func LatestPerName(items []model.Item) []model.Item {
	var order []ident.Identifier
	parts := map[ident.Identifier][]model.Item{}
	for _, it := range items {
		g := ident.Group(it)
		if _, ok := parts[g]; !ok {
			order = append(order, g)
		}
		parts[g] = append(parts[g], it)
	}

	out := make([]model.Item, 0, len(order))
	for _, g := range order {
		out = append(out, representative(parts[g]))
	}
	return out
}

func representative(versions []model.Item) model.Item {
	for _, it := range versions {
		if it.Tag == model.TagLatest {
			return it
		}
	}
	best := 0
	for i, it := range versions {
		if it.Updated == nil {
			return versions[0]
		}
		if it.Updated.After(*versions[best].Updated) {
			best = i
		}
	}
	return versions[best]
}

// FilterByTag applies the tag filter. An empty filter means "latest"; "*" keeps all.
// A version matches when its tag or producer tree equals the filter.
func FilterByTag(items []model.Item, tag string) []model.Item {
	if tag == "" {
		tag = model.TagLatest
	}
	if tag == model.TagFilterAll {
		return items
	}
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.Tree == tag || it.Tag == tag {
			out = append(out, it)
		}
	}
	return out
}

// TagOptions returns the distinct non-empty tags in first-seen order.
func TagOptions(items []model.Item) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, it := range items {
		if it.Tag == "" || seen[it.Tag] {
			continue
		}
		seen[it.Tag] = true
		out = append(out, it.Tag)
	}
	return out
}

// FindSelected finds the version a details route points at. tagOrUID matches
// the tag, or the uid (the producer tree for artifacts without one).
func FindSelected(items []model.Item, name, tagOrUID string) (model.Item, bool) {
	for _, it := range items {
		if it.Name != name {
			continue
		}
		if it.Tag == tagOrUID || it.Version() == tagOrUID {
			return it, true
		}
	}
	return model.Item{}, false
}

// DuplicateUniqueIDs reports unique identifiers that occur more than once.
func DuplicateUniqueIDs(items []model.Item) []ident.Identifier {
	count := map[ident.Identifier]int{}
	var out []ident.Identifier
	for _, it := range items {
		id := ident.Unique(it)
		count[id]++
		if count[id] == 2 {
			out = append(out, id)
		}
	}
	return out
}

// RowTestID names a row (or a sub row of an expanded row) for UI tests and
// scripted lookups.
func RowTestID(row int, sub ...int) string {
	if len(sub) > 0 {
		return fmt.Sprintf("row-%d-%d", row, sub[0])
	}
	return fmt.Sprintf("row-%d", row)
}

// DetailsLink is the console route of the item details page.
func DetailsLink(it model.Item, opts Options) string {
	project := opts.Project
	if project == "" {
		project = it.Project
	}
	tab := opts.DetailsTab
	if tab == "" {
		tab = "overview"
	}
	ref := it.Tag
	if ref == "" {
		ref = it.Version()
	}
	base := "/projects/" + url.PathEscape(project)
	switch it.Kind {
	case model.KindFeatureSet, model.KindFeatureVector:
		base += "/feature-store/" + it.Kind.Collection()
	default:
		base += "/" + it.Kind.Collection()
	}
	return base + "/" + url.PathEscape(it.Name) + "/" + url.PathEscape(ref) + "/" + tab
}

// CollectionRoute is where a details route falls back to when its item is gone.
func CollectionRoute(project string, kind model.Kind) string {
	base := "/projects/" + url.PathEscape(project)
	switch kind {
	case model.KindFeatureSet, model.KindFeatureVector:
		return base + "/feature-store/" + kind.Collection()
	default:
		return base + "/" + kind.Collection()
	}
}

func cellsFor(it model.Item, expanded bool) []Cell {
	first := Cell{ID: "name", Header: "Name", Value: it.Name}
	if expanded {
		// Version rows sit under their name; show which version they are instead.
		v := it.Tag
		if v == "" {
			v = shortUID(it.Version())
		}
		first = Cell{ID: "version", Header: "Version", Value: v}
	}

	cells := []Cell{first}
	if !expanded {
		cells = append(cells, Cell{ID: "tag", Header: "Tag", Value: it.Tag})
	}
	if it.Kind.IsArtifactFamily() {
		cells = append(cells, Cell{ID: "iter", Header: "Iter", Value: iterValue(it.Iter)})
	} else {
		cells = append(cells, Cell{ID: "description", Header: "Description", Value: it.Description})
	}
	cells = append(cells,
		Cell{ID: "labels", Header: "Labels", Value: it.Labels.String()},
		Cell{ID: "updated", Header: "Updated", Value: formatUpdated(it.Updated)},
		Cell{ID: "uid", Header: "UID", Value: it.Version(), Hidden: true},
	)
	return cells
}

func iterValue(iter int) string {
	if iter == 0 {
		return ""
	}
	return fmt.Sprintf("%d", iter)
}

func shortUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}

func formatUpdated(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
