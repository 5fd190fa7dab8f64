package tagging

import (
	"context"
	"errors"
	"fmt"

	"fsconsole/internal/ident"
	"fsconsole/internal/model"
)

// ErrTagTaken is returned by CheckTag when another version of the same name
// already holds the tag.
var ErrTagTaken = errors.New("tag already used by another version")

// VersionLister lists the versions of one name under a tag.
type VersionLister interface {
	Versions(ctx context.Context, project string, kind model.Kind, name, tag string) ([]model.Item, error)
}

// TagUnique reports whether tag is free for item: no other version of the same
// name holds it. item itself holding tag counts as free, and an empty tag
// always is.
func TagUnique(ctx context.Context, l VersionLister, project string, kind model.Kind, item model.Item, tag string) (bool, error) {
	if tag == "" || tag == model.TagFilterAll {
		return true, nil
	}
	versions, err := l.Versions(ctx, project, kind, item.StoreKey(), tag)
	if err != nil {
		return false, err
	}
	self := ident.Unique(item)
	for _, v := range versions {
		// The platform may answer with more than the tag asked for.
		if v.Tag != tag {
			continue
		}
		if ident.Unique(v) != self {
			return false, nil
		}
	}
	return true, nil
}

// CheckTag is TagUnique as an error: ErrTagTaken when tag is held elsewhere.
func CheckTag(ctx context.Context, l VersionLister, project string, item model.Item, tag string) error {
	ok, err := TagUnique(ctx, l, project, item.Kind, item, tag)
	if err != nil {
		return fmt.Errorf("check tag %q: %w", tag, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s already has a version tagged %q", ErrTagTaken, item.StoreKey(), tag)
	}
	return nil
}
