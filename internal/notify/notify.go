// Package notify carries user-facing notifications with an optional retry action.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notification is fire-and-forget. Retry, when set, re-runs the operation that failed.
type Notification struct {
	ID      string
	Status  int
	Message string
	Retry   func(ctx context.Context) error
}

// Failed reports whether the status is an error status.
func (n Notification) Failed() bool { return n.Status >= 400 }

func (n Notification) Retryable() bool { return n.Retry != nil }

// Sink receives notifications.
type Sink interface {
	Notify(n Notification)
}

// New builds a notification with a fresh id.
func New(status int, message string, retry func(ctx context.Context) error) Notification {
	return Notification{ID: uuid.NewString(), Status: status, Message: message, Retry: retry}
}

// Queue keeps the most recent notifications, newest last.
type Queue struct {
	mu    sync.Mutex
	max   int
	items []Notification
}

func NewQueue(max int) *Queue {
	if max <= 0 {
		max = 20
	}
	return &Queue{max: max}
}

func (q *Queue) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	q.mu.Lock()
	q.items = append(q.items, n)
	if len(q.items) > q.max {
		q.items = append([]Notification(nil), q.items[len(q.items)-q.max:]...)
	}
	q.mu.Unlock()
}

// Latest returns the newest notification.
func (q *Queue) Latest() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Notification{}, false
	}
	return q.items[len(q.items)-1], true
}

func (q *Queue) All() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// Dismiss removes a notification by id and reports whether it was present.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// TakeRetry removes the notification and hands out its retry action, so each
// retry action runs at most once.
func (q *Queue) TakeRetry(id string) (func(ctx context.Context) error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID != id {
			continue
		}
		if n.Retry == nil {
			return nil, false
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return n.Retry, true
	}
	return nil, false
}
