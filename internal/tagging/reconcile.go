// Package tagging turns an edit of an item's tag field into a single tag
// mutation against the platform.
package tagging

import (
	"context"
	"errors"
	"sync"
	"time"

	"fsconsole/internal/api"
	"fsconsole/internal/ident"
	"fsconsole/internal/model"
	"fsconsole/internal/notify"

	"go.uber.org/zap"
)

const (
	MessageUpdated      = "Tag was updated successfully"
	MessageUpdateFailed = "Failed to update the tag"
)

// ErrInFlight is returned when a tag mutation for the same version is still pending.
var ErrInFlight = errors.New("tag update already in progress")

// TagAPI is the platform side of tag mutations.
type TagAPI interface {
	AddTag(ctx context.Context, project, tag string, body api.TagBody) (int, error)
	EditTag(ctx context.Context, project, tag, oldTag string, body api.TagBody) (int, error)
	DeleteTag(ctx context.Context, project, tag string, body api.TagBody) (int, error)
}

// Recorder appends to the activity log.
type Recorder interface {
	Append(ctx context.Context, ev model.Event) error
}

// FieldChange is a pending edit of one form field.
type FieldChange struct {
	InitialValue string `json:"initialValue" yaml:"initialValue"`
	CurrentValue string `json:"currentValue" yaml:"currentValue"`
}

// Changes holds the edited fields by name. Fields that were not edited are absent.
type Changes map[string]FieldChange

const FieldTag = "tag"

type Op string

const (
	OpUnchanged Op = "unchanged"
	OpAdd       Op = "add"
	OpEdit      Op = "edit"
	OpDelete    Op = "delete"
)

// Action is the mutation a change resolves to.
type Action struct {
	Op     Op     `json:"op" yaml:"op"`
	Tag    string `json:"tag,omitempty" yaml:"tag,omitempty"`
	OldTag string `json:"oldTag,omitempty" yaml:"oldTag,omitempty"`
}

// Decide resolves the tag field of changes, in order: not edited → unchanged;
// cleared → delete the initial tag; had a tag → edit; otherwise → add.
func Decide(changes Changes) Action {
	ch, ok := changes[FieldTag]
	if !ok || ch.InitialValue == ch.CurrentValue {
		return Action{Op: OpUnchanged}
	}
	switch {
	case ch.CurrentValue == "":
		return Action{Op: OpDelete, Tag: ch.InitialValue}
	case ch.InitialValue != "":
		return Action{Op: OpEdit, Tag: ch.CurrentValue, OldTag: ch.InitialValue}
	default:
		return Action{Op: OpAdd, Tag: ch.CurrentValue}
	}
}

// Identifier addresses item in a tag mutation. Iter is only sent when nonzero.
func Identifier(item model.Item) api.TagIdentifier {
	id := api.TagIdentifier{
		Key:  item.StoreKey(),
		Kind: string(item.Kind),
		UID:  item.Version(),
	}
	if item.Iter != 0 {
		iter := item.Iter
		id.Iter = &iter
	}
	return id
}

// Outcome reports what Apply did. Item is the caller's item with the new tag
// applied; it is returned on failure too.
type Outcome struct {
	Action
	Status int        `json:"status" yaml:"status"`
	Item   model.Item `json:"item" yaml:"item"`
}

type Reconciler struct {
	API  TagAPI
	Sink notify.Sink
	Log  *zap.Logger
	// Events is optional.
	Events Recorder
	// Rollback, when set, is called with the unmodified item after a failed mutation.
	Rollback func(original model.Item)

	mu       sync.Mutex
	inflight map[ident.Identifier]bool
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// InFlight reports whether a mutation for item is pending.
func (r *Reconciler) InFlight(item model.Item) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[ident.Unique(item)]
}

// Apply issues at most one tag mutation for changes and raises a notification
// with the result. A failed mutation's notification carries a retry action that
// re-runs Apply with the same arguments.
func (r *Reconciler) Apply(ctx context.Context, changes Changes, item model.Item, project string) (Outcome, error) {
	act := Decide(changes)
	updated := item.Clone()
	if act.Op == OpUnchanged {
		return Outcome{Action: act, Item: updated}, nil
	}
	updated.Tag = changes[FieldTag].CurrentValue

	key := ident.Unique(item)
	if !r.begin(key) {
		return Outcome{Action: act, Item: item.Clone()}, ErrInFlight
	}
	defer r.end(key)

	body := api.TagBody{
		Kind:        item.Kind.TagKind(),
		Identifiers: []api.TagIdentifier{Identifier(item)},
	}

	var status int
	var err error
	switch act.Op {
	case OpDelete:
		status, err = r.API.DeleteTag(ctx, project, act.Tag, body)
	case OpEdit:
		status, err = r.API.EditTag(ctx, project, act.Tag, act.OldTag, body)
	case OpAdd:
		status, err = r.API.AddTag(ctx, project, act.Tag, body)
	}

	out := Outcome{Action: act, Status: status, Item: updated}
	log := r.logger().With(
		zap.String("op", string(act.Op)),
		zap.String("project", project),
		zap.String("item", key.String()),
		zap.String("tag", act.Tag),
	)
	if err != nil {
		out.Status = api.StatusCode(err)
		log.Warn("tag update failed", zap.Int("status", out.Status), zap.Error(err))
		r.record(ctx, project, item, out, err)
		if r.Rollback != nil {
			r.Rollback(item.Clone())
		}
		r.notify(notify.New(out.Status, MessageUpdateFailed, func(ctx context.Context) error {
			_, err := r.Apply(ctx, changes, item, project)
			return err
		}))
		return out, err
	}

	log.Info("tag updated", zap.Int("status", status))
	r.record(ctx, project, item, out, nil)
	r.notify(notify.New(status, MessageUpdated, nil))
	return out, nil
}

func (r *Reconciler) begin(key ident.Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == nil {
		r.inflight = map[ident.Identifier]bool{}
	}
	if r.inflight[key] {
		return false
	}
	r.inflight[key] = true
	return true
}

func (r *Reconciler) end(key ident.Identifier) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

func (r *Reconciler) notify(n notify.Notification) {
	if r.Sink != nil {
		r.Sink.Notify(n)
	}
}

func (r *Reconciler) record(ctx context.Context, project string, item model.Item, out Outcome, err error) {
	if r.Events == nil {
		return
	}
	ev := model.Event{
		TS:      time.Now().UTC(),
		Type:    "tag." + string(out.Op),
		Project: project,
		Kind:    item.Kind,
		Name:    item.StoreKey(),
		Status:  out.Status,
		Payload: map[string]any{
			"uid":    item.Version(),
			"iter":   item.Iter,
			"tag":    out.Tag,
			"oldTag": out.OldTag,
		},
	}
	if err != nil {
		ev.Error = err.Error()
	}
	// The activity log is local bookkeeping; a failed append must not fail the mutation.
	if aerr := r.Events.Append(context.WithoutCancel(ctx), ev); aerr != nil {
		r.logger().Warn("activity log append failed", zap.Error(aerr))
	}
}
