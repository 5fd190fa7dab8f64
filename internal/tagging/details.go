package tagging

import (
	"context"
	"fmt"
	"time"

	"fsconsole/internal/api"
	"fsconsole/internal/model"
	"fsconsole/internal/notify"

	"go.uber.org/zap"
)

const (
	FieldDescription = "description"
	FieldLabels      = "labels"
)

// MetadataAPI is the platform side of metadata edits.
type MetadataAPI interface {
	UpdateMetadata(ctx context.Context, project string, kind model.Kind, name, ref string, patch api.MetadataPatch) (int, error)
}

// DetailsEditor applies an edit of the details form: description and labels
// as one metadata patch, then the tag through the Reconciler.
type DetailsEditor struct {
	API        MetadataAPI
	Reconciler *Reconciler
	Sink       notify.Sink
	Log        *zap.Logger
	Events     Recorder
}

// DetailsOutcome reports both halves of a details edit.
type DetailsOutcome struct {
	MetadataStatus int        `json:"metadataStatus,omitempty" yaml:"metadataStatus,omitempty"`
	Tag            Outcome    `json:"tag" yaml:"tag"`
	Item           model.Item `json:"item" yaml:"item"`
}

// MetadataPatch builds the patch for the description/labels fields of changes.
// ok is false when neither field changed.
func MetadataPatch(changes Changes) (api.MetadataPatch, bool) {
	var p api.MetadataPatch
	changed := false
	if ch, ok := changes[FieldDescription]; ok && ch.InitialValue != ch.CurrentValue {
		d := ch.CurrentValue
		p.Description = &d
		changed = true
	}
	if ch, ok := changes[FieldLabels]; ok && ch.InitialValue != ch.CurrentValue {
		p.Labels = model.ParseLabels(ch.CurrentValue)
		if p.Labels == nil {
			p.Labels = model.Labels{}
		}
		changed = true
	}
	return p, changed
}

func (e *DetailsEditor) Apply(ctx context.Context, changes Changes, item model.Item, project string) (DetailsOutcome, error) {
	out := DetailsOutcome{Item: item.Clone()}
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}

	if patch, ok := MetadataPatch(changes); ok {
		ref := item.Tag
		if ref == "" {
			ref = item.Version()
		}
		status, err := e.API.UpdateMetadata(ctx, project, item.Kind, item.StoreKey(), ref, patch)
		out.MetadataStatus = status
		e.record(ctx, project, item, status, err)
		if err != nil {
			code := api.StatusCode(err)
			out.MetadataStatus = code
			log.Warn("metadata update failed", zap.String("item", item.StoreKey()), zap.Int("status", code), zap.Error(err))
			if e.Sink != nil {
				e.Sink.Notify(notify.New(code, fmt.Sprintf("Failed to update %s", item.StoreKey()), func(ctx context.Context) error {
					_, err := e.Apply(ctx, changes, item, project)
					return err
				}))
			}
			return out, err
		}
		if patch.Description != nil {
			out.Item.Description = *patch.Description
		}
		if patch.Labels != nil {
			out.Item.Labels = patch.Labels
		}
		if e.Sink != nil {
			e.Sink.Notify(notify.New(status, fmt.Sprintf("%s was updated successfully", item.StoreKey()), nil))
		}
	}

	if e.Reconciler == nil {
		return out, nil
	}
	tagOut, err := e.Reconciler.Apply(ctx, changes, out.Item, project)
	out.Tag = tagOut
	out.Item = tagOut.Item
	return out, err
}

func (e *DetailsEditor) record(ctx context.Context, project string, item model.Item, status int, err error) {
	if e.Events == nil {
		return
	}
	ev := model.Event{
		TS:      time.Now().UTC(),
		Type:    "metadata.update",
		Project: project,
		Kind:    item.Kind,
		Name:    item.StoreKey(),
		Status:  status,
		Payload: map[string]any{"uid": item.Version(), "tag": item.Tag},
	}
	if err != nil {
		ev.Status = api.StatusCode(err)
		ev.Error = err.Error()
	}
	_ = e.Events.Append(context.WithoutCancel(ctx), ev)
}
