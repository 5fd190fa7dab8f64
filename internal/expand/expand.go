// Package expand tracks lazily loaded expansion content per table row.
package expand

import (
	"fsconsole/internal/content"
	"fsconsole/internal/ident"
)

type Phase int

const (
	Collapsed Phase = iota
	Loading
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "collapsed"
	}
}

// State is the expansion state of one row. Content is set only when Loaded,
// Err only when Failed.
type State struct {
	Phase   Phase
	Content []content.Row
	Err     error
}

func (s State) Expanded() bool { return s.Phase != Collapsed }

// Tracker maps row identifiers to expansion state. It belongs to one view and is
// not safe for concurrent use.
type Tracker struct {
	states map[ident.Identifier]State
	epoch  uint64
}

func NewTracker() *Tracker {
	return &Tracker{states: map[ident.Identifier]State{}}
}

// Epoch identifies the current generation; Reset starts a new one.
func (t *Tracker) Epoch() uint64 { return t.epoch }

// Begin moves id to Loading and reports whether the caller should fetch.
// It returns false while a fetch for id is already loading.
func (t *Tracker) Begin(id ident.Identifier) bool {
	if t.states[id].Phase == Loading {
		return false
	}
	t.states[id] = State{Phase: Loading}
	return true
}

// Finish records a fetch result started in epoch. Results from an older epoch,
// or for a row that was collapsed meanwhile, are dropped and Finish returns false.
func (t *Tracker) Finish(id ident.Identifier, epoch uint64, rows []content.Row, err error) bool {
	if epoch != t.epoch {
		return false
	}
	if t.states[id].Phase != Loading {
		return false
	}
	if err != nil {
		t.states[id] = State{Phase: Failed, Err: err}
		return true
	}
	t.states[id] = State{Phase: Loaded, Content: rows}
	return true
}

// Collapse returns id to Collapsed.
func (t *Tracker) Collapse(id ident.Identifier) {
	delete(t.states, id)
}

// Toggle collapses an expanded row, or begins expanding a collapsed one.
// fetch reports whether the caller should start a fetch.
func (t *Tracker) Toggle(id ident.Identifier) (fetch bool) {
	switch t.states[id].Phase {
	case Loaded, Failed:
		t.Collapse(id)
		return false
	default:
		return t.Begin(id)
	}
}

func (t *Tracker) State(id ident.Identifier) State {
	return t.states[id]
}

// Remove drops the state of every row whose identifier matches.
func (t *Tracker) Remove(match func(ident.Identifier) bool) {
	for id := range t.states {
		if match(id) {
			delete(t.states, id)
		}
	}
}

// Reset discards all state and invalidates pending fetches.
func (t *Tracker) Reset() {
	t.states = map[ident.Identifier]State{}
	t.epoch++
}

func (t *Tracker) Len() int { return len(t.states) }
