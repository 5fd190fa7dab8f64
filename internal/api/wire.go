package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fsconsole/internal/model"
)

// orderedLabels decodes a JSON object of labels keeping key order.
type orderedLabels model.Labels

func (o *orderedLabels) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*o = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("labels: expected object, got %v", tok)
	}
	var out model.Labels
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out = append(out, model.Label{Key: key, Value: labelValue(raw)})
	}
	*o = orderedLabels(out)
	return nil
}

func labelValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

type wireMetadata struct {
	Name    string        `json:"name"`
	Key     string        `json:"key"`
	Project string        `json:"project"`
	Tag     string        `json:"tag"`
	UID     string        `json:"uid"`
	Tree    string        `json:"tree"`
	Iter    int           `json:"iter"`
	Labels  orderedLabels `json:"labels"`
	Updated string        `json:"updated"`
	Created string        `json:"created"`
}

type wireSpec struct {
	DBKey       string `json:"db_key"`
	Description string `json:"description"`
}

// wireObject covers both the metadata/spec layout and the legacy flat artifact layout.
type wireObject struct {
	Kind     string        `json:"kind"`
	Metadata *wireMetadata `json:"metadata"`
	Spec     *wireSpec     `json:"spec"`

	Key         string        `json:"key"`
	DBKey       string        `json:"db_key"`
	Project     string        `json:"project"`
	Tag         string        `json:"tag"`
	UID         string        `json:"uid"`
	Tree        string        `json:"tree"`
	Iter        int           `json:"iter"`
	Labels      orderedLabels `json:"labels"`
	Updated     string        `json:"updated"`
	Description string        `json:"description"`
}

func parseItem(raw json.RawMessage, kind model.Kind, project string) (model.Item, error) {
	var w wireObject
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Item{}, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return model.Item{}, err
	}

	it := model.Item{
		Kind:        kind,
		Project:     w.Project,
		Key:         w.Key,
		DBKey:       w.DBKey,
		Tag:         w.Tag,
		UID:         w.UID,
		Tree:        w.Tree,
		Iter:        w.Iter,
		Labels:      model.Labels(w.Labels),
		Description: w.Description,
		Updated:     parseTime(w.Updated),
		Raw:         asMap,
	}
	if md := w.Metadata; md != nil {
		it.Project = firstNonEmpty(md.Project, it.Project)
		it.Key = firstNonEmpty(md.Key, it.Key)
		it.Tag = firstNonEmpty(md.Tag, it.Tag)
		it.UID = firstNonEmpty(md.UID, it.UID)
		it.Tree = firstNonEmpty(md.Tree, it.Tree)
		if md.Iter != 0 {
			it.Iter = md.Iter
		}
		if md.Labels != nil {
			it.Labels = model.Labels(md.Labels)
		}
		if t := parseTime(firstNonEmpty(md.Updated, md.Created)); t != nil {
			it.Updated = t
		}
		it.Name = md.Name
	}
	if sp := w.Spec; sp != nil {
		it.DBKey = firstNonEmpty(sp.DBKey, it.DBKey)
		it.Description = firstNonEmpty(sp.Description, it.Description)
	}

	if kind.IsArtifactFamily() {
		// Artifacts are addressed by db_key; fall back to key.
		it.Name = firstNonEmpty(it.DBKey, it.Key, it.Name)
		if k, err := model.ParseKind(w.Kind); err == nil && k.IsArtifactFamily() {
			it.Kind = k
		}
	}
	it.Project = firstNonEmpty(it.Project, project)
	if it.Name == "" {
		return model.Item{}, fmt.Errorf("%s without a name", kind)
	}
	return it, nil
}

func parseItems(list []json.RawMessage, kind model.Kind, project string) ([]model.Item, error) {
	out := make([]model.Item, 0, len(list))
	for i, raw := range list {
		it, err := parseItem(raw, kind, project)
		if err != nil {
			return nil, fmt.Errorf("decode %s #%d: %w", kind, i, err)
		}
		out = append(out, it)
	}
	return out, nil
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// TagIdentifier addresses one version in a tag mutation.
type TagIdentifier struct {
	Key  string `json:"key"`
	Kind string `json:"kind,omitempty"`
	UID  string `json:"uid,omitempty"`
	Iter *int   `json:"iter,omitempty"`
}

// TagBody is the body of a tag mutation request.
type TagBody struct {
	Kind        string          `json:"kind"`
	Identifiers []TagIdentifier `json:"identifiers"`
}

type editTagBody struct {
	TagBody
	OldTag string `json:"old_tag"`
}

// MetadataPatch is a partial update of an item's editable metadata.
type MetadataPatch struct {
	Description *string
	Labels      model.Labels
}

func (p MetadataPatch) wire() map[string]any {
	out := map[string]any{}
	if p.Labels != nil {
		out["metadata"] = map[string]any{"labels": p.Labels.Map()}
	}
	if p.Description != nil {
		out["spec"] = map[string]any{"description": *p.Description}
	}
	return out
}
