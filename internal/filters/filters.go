// Package filters holds the page filter values the table builder reads.
package filters

import (
	"strconv"
	"strings"

	"fsconsole/internal/model"
)

// Values is a snapshot of the filter store.
type Values struct {
	Tag        string        `json:"tag,omitempty" yaml:"tag,omitempty"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Labels     string        `json:"labels,omitempty" yaml:"labels,omitempty"`
	Iter       string        `json:"iter,omitempty" yaml:"iter,omitempty"`
	GroupBy    model.GroupBy `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
	TagOptions []string      `json:"tagOptions,omitempty" yaml:"tagOptions,omitempty"`
}

// EffectiveTag returns the tag filter with the "latest" default applied.
func (v Values) EffectiveTag() string {
	if strings.TrimSpace(v.Tag) == "" {
		return model.TagLatest
	}
	return strings.TrimSpace(v.Tag)
}

// Query renders the values as list request parameters.
func (v Values) Query() map[string]string {
	q := map[string]string{}
	if t := v.EffectiveTag(); t != "" {
		q["tag"] = t
	}
	if n := strings.TrimSpace(v.Name); n != "" {
		q["name"] = n
	}
	if l := model.ParseLabels(v.Labels); len(l) > 0 {
		q["labels"] = l.String()
	}
	if it := strings.TrimSpace(v.Iter); it != "" {
		if _, err := strconv.Atoi(it); err == nil {
			q["iter"] = it
		}
	}
	return q
}

// Store is the filter store for one page. It is owned by a single view and is
// not safe for concurrent use.
type Store struct {
	v Values
}

func NewStore(v Values) *Store {
	s := &Store{v: v}
	s.normalize()
	return s
}

func (s *Store) Values() Values {
	out := s.v
	out.TagOptions = append([]string(nil), s.v.TagOptions...)
	return out
}

// SetTag changes the tag filter and reports whether it changed. Group-by follows the
// tag: "*" forces grouping by name, and any other tag drops name grouping.
func (s *Store) SetTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	prev := s.v.EffectiveTag()
	s.v.Tag = tag
	s.normalize()
	return prev != s.v.EffectiveTag()
}

func (s *Store) SetName(name string)     { s.v.Name = strings.TrimSpace(name) }
func (s *Store) SetLabels(labels string) { s.v.Labels = strings.TrimSpace(labels) }
func (s *Store) SetIter(iter string)     { s.v.Iter = strings.TrimSpace(iter) }

func (s *Store) SetTagOptions(tags []string) {
	s.v.TagOptions = append([]string(nil), tags...)
}

// SetGroupBy applies a user group-by choice. It is overridden while the tag
// filter is "*".
func (s *Store) SetGroupBy(g model.GroupBy) {
	s.v.GroupBy = g
	s.normalize()
}

// Reset clears name, labels and iter and sets the tag filter.
func (s *Store) Reset(tag string) {
	s.v.Name = ""
	s.v.Labels = ""
	s.v.Iter = ""
	s.v.Tag = strings.TrimSpace(tag)
	s.normalize()
}

func (s *Store) normalize() {
	if s.v.EffectiveTag() == model.TagFilterAll {
		s.v.GroupBy = model.GroupByName
		return
	}
	if s.v.GroupBy == model.GroupByName || s.v.GroupBy == "" {
		s.v.GroupBy = model.GroupByNone
	}
}
