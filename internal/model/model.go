package model

import (
	"errors"
	"strings"
	"time"
)

type Kind string

const (
	KindArtifact      Kind = "artifact"
	KindModel         Kind = "model"
	KindDataset       Kind = "dataset"
	KindFeatureSet    Kind = "feature-set"
	KindFeatureVector Kind = "feature-vector"
)

var ErrInvalidKind = errors.New("invalid item kind")

// ParseKind accepts the canonical kind names plus a few plural/underscore spellings
// that people type on the command line.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "artifact", "artifacts":
		return KindArtifact, nil
	case "model", "models":
		return KindModel, nil
	case "dataset", "datasets":
		return KindDataset, nil
	case "feature-set", "feature-sets", "featureset", "featuresets", "feature_set", "feature_sets":
		return KindFeatureSet, nil
	case "feature-vector", "feature-vectors", "featurevector", "featurevectors", "feature_vector", "feature_vectors":
		return KindFeatureVector, nil
	default:
		return "", ErrInvalidKind
	}
}

// IsArtifactFamily reports whether the kind is served by the artifacts endpoint.
func (k Kind) IsArtifactFamily() bool {
	switch k {
	case KindArtifact, KindModel, KindDataset:
		return true
	}
	return false
}

// Collection is the REST collection path segment for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindFeatureSet:
		return "feature-sets"
	case KindFeatureVector:
		return "feature-vectors"
	default:
		return "artifacts"
	}
}

// TagKind is the object kind the tag API expects in a mutation body.
func (k Kind) TagKind() string {
	if k.IsArtifactFamily() {
		return "artifact"
	}
	return string(k)
}

func (k Kind) Label() string {
	switch k {
	case KindArtifact:
		return "Artifacts"
	case KindModel:
		return "Models"
	case KindDataset:
		return "Datasets"
	case KindFeatureSet:
		return "Feature sets"
	case KindFeatureVector:
		return "Feature vectors"
	default:
		return string(k)
	}
}

// AllKinds is the page order used by the console.
func AllKinds() []Kind {
	return []Kind{KindFeatureSet, KindFeatureVector, KindArtifact, KindDataset, KindModel}
}

const (
	// TagLatest is the tag the platform moves to the newest version of a name.
	TagLatest = "latest"
	// TagFilterAll selects every tag (and forces name grouping).
	TagFilterAll = "*"
)

type Label struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Labels keeps the order the backend returned them in.
type Labels []Label

func (ls Labels) Get(key string) (string, bool) {
	for _, l := range ls {
		if l.Key == key {
			return l.Value, true
		}
	}
	return "", false
}

func (ls Labels) String() string {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		if l.Value == "" {
			parts = append(parts, l.Key)
			continue
		}
		parts = append(parts, l.Key+"="+l.Value)
	}
	return strings.Join(parts, ",")
}

// Map returns the labels as a map (order is lost).
func (ls Labels) Map() map[string]string {
	out := make(map[string]string, len(ls))
	for _, l := range ls {
		out[l.Key] = l.Value
	}
	return out
}

// ParseLabels parses "k=v,k2=v2,flag" chips. Blank entries are dropped and the
// first occurrence of a key wins.
func ParseLabels(s string) Labels {
	var out Labels
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Label{Key: k, Value: strings.TrimSpace(v)})
	}
	return out
}

// Item is one version of a feature set, artifact or feature vector.
type Item struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Project string `json:"project" yaml:"project"`
	Name    string `json:"name" yaml:"name"`

	// Key and DBKey are only set for the artifact family.
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	DBKey string `json:"dbKey,omitempty" yaml:"dbKey,omitempty"`

	Tag  string `json:"tag,omitempty" yaml:"tag,omitempty"`
	UID  string `json:"uid,omitempty" yaml:"uid,omitempty"`
	Tree string `json:"tree,omitempty" yaml:"tree,omitempty"`
	Iter int    `json:"iter,omitempty" yaml:"iter,omitempty"`

	Labels      Labels     `json:"labels,omitempty" yaml:"labels,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Updated     *time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	// Raw is the backend object as received, used for YAML views.
	Raw map[string]any `json:"-" yaml:"-"`
}

// Version returns the uid, falling back to the producer tree.
func (it Item) Version() string {
	if it.UID != "" {
		return it.UID
	}
	return it.Tree
}

// StoreKey is the key the backend addresses the item by.
func (it Item) StoreKey() string {
	if it.DBKey != "" {
		return it.DBKey
	}
	if it.Key != "" {
		return it.Key
	}
	return it.Name
}

// Clone returns a copy that does not share label storage with it.
func (it Item) Clone() Item {
	out := it
	if it.Labels != nil {
		out.Labels = append(Labels(nil), it.Labels...)
	}
	if it.Updated != nil {
		t := *it.Updated
		out.Updated = &t
	}
	return out
}

type GroupBy string

const (
	GroupByNone GroupBy = "none"
	GroupByName GroupBy = "name"
)

var ErrInvalidGroupBy = errors.New("invalid group-by")

func ParseGroupBy(s string) (GroupBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GroupByNone, nil
	case "name":
		return GroupByName, nil
	default:
		return "", ErrInvalidGroupBy
	}
}

// Event is one entry of the local activity log.
type Event struct {
	ID      int64     `json:"id" yaml:"id"`
	TS      time.Time `json:"ts" yaml:"ts"`
	Type    string    `json:"type" yaml:"type"`
	Project string    `json:"project" yaml:"project"`
	Kind    Kind      `json:"kind" yaml:"kind"`
	Name    string    `json:"name" yaml:"name"`
	Status  int       `json:"status" yaml:"status"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
	Payload any       `json:"payload,omitempty" yaml:"payload,omitempty"`
}
