package ident

import (
	"testing"

	"fsconsole/internal/model"
)

func TestString_PartsCannotCollide(t *testing.T) {
	a := Unique(model.Item{Kind: model.KindModel, Name: "a-b", UID: "c"})
	b := Unique(model.Item{Kind: model.KindModel, Name: "a", UID: "b-c"})
	if a.String() == b.String() {
		t.Fatalf("distinct identifiers render the same key %q", a.String())
	}

	c := Unique(model.Item{Kind: model.KindModel, Name: "a/b", UID: "c"})
	d := Unique(model.Item{Kind: model.KindModel, Name: "a", UID: "b/c"})
	if c.String() == d.String() {
		t.Fatalf("distinct identifiers render the same key %q", c.String())
	}
}

func TestString_Forms(t *testing.T) {
	it := model.Item{Kind: model.KindModel, Project: "demo", Name: "churn", Tag: "v1", UID: "u1", Iter: 2}
	cases := []struct {
		id   Identifier
		want string
	}{
		{Loose(it), "churn/v1"},
		{Loose(model.Item{Name: "churn"}), "churn"},
		{Unique(it), "churn/u1/2"},
		{Unique(model.Item{Name: "churn"}), "churn//0"},
	}
	for _, tc := range cases {
		if got := tc.id.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestUnique_UsesStoreKeyAndTree(t *testing.T) {
	it := model.Item{Kind: model.KindModel, Name: "m", DBKey: "train_m", Tree: "t1", Tag: "latest"}
	retagged := it
	retagged.Tag = "prod"
	if Unique(it) != Unique(retagged) {
		t.Fatalf("a retag must keep the unique identifier")
	}
	if got := Unique(it).String(); got != "train_m/t1/0" {
		t.Fatalf("String() = %q", got)
	}
	if Loose(it) == Loose(retagged) {
		t.Fatalf("loose identifiers differ by tag")
	}
}
