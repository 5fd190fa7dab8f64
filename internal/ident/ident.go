// Package ident derives the composite keys used to address table rows,
// expansion state and selection.
package ident

import (
	"net/url"
	"strconv"
	"strings"

	"fsconsole/internal/model"
)

// Identifier is comparable and safe to use as a map key.
//
// A loose identifier (Unique == false) groups versions of a name under one tag.
// A unique identifier addresses exactly one version.
type Identifier struct {
	Kind    model.Kind
	Project string
	Name    string
	Tag     string
	UID     string
	Iter    int
	Unique  bool
}

// Loose returns the name+tag identifier of it.
func Loose(it model.Item) Identifier {
	return Identifier{
		Kind:    it.Kind,
		Project: it.Project,
		Name:    it.StoreKey(),
		Tag:     it.Tag,
	}
}

// Unique returns the name+uid+iter identifier of it.
func Unique(it model.Item) Identifier {
	return Identifier{
		Kind:    it.Kind,
		Project: it.Project,
		Name:    it.StoreKey(),
		UID:     it.Version(),
		Iter:    it.Iter,
		Unique:  true,
	}
}

// Group returns the (project, name) grouping key of it.
func Group(it model.Item) Identifier {
	return Identifier{Kind: it.Kind, Project: it.Project, Name: it.StoreKey()}
}

// String renders the row key: path-escaped parts joined by "/", so a "/" in a
// name or uid cannot make two identifiers collide. A tagless loose identifier
// renders as the bare name; a unique one always carries its uid slot.
func (id Identifier) String() string {
	parts := []string{id.Name}
	if id.Unique {
		parts = append(parts, id.UID, strconv.Itoa(id.Iter))
	} else if id.Tag != "" {
		parts = append(parts, id.Tag)
	}
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
