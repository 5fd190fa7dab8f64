package notify

import (
	"context"
	"testing"
)

func TestQueue_TakeRetryRunsAtMostOnce(t *testing.T) {
	q := NewQueue(5)
	calls := 0
	n := New(500, "Failed to update the tag", func(ctx context.Context) error {
		calls++
		return nil
	})
	q.Notify(n)

	retry, ok := q.TakeRetry(n.ID)
	if !ok {
		t.Fatalf("expected retry action")
	}
	_ = retry(context.Background())
	if _, ok := q.TakeRetry(n.ID); ok {
		t.Fatalf("retry action handed out twice")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if _, ok := q.Latest(); ok {
		t.Fatalf("expected queue to be empty after retry was taken")
	}
}

func TestQueue_KeepsNewestUpToMax(t *testing.T) {
	q := NewQueue(2)
	q.Notify(New(200, "a", nil))
	q.Notify(New(200, "b", nil))
	q.Notify(New(200, "c", nil))
	all := q.All()
	if len(all) != 2 || all[0].Message != "b" || all[1].Message != "c" {
		t.Fatalf("unexpected queue contents %+v", all)
	}
	if n, _ := q.Latest(); n.Message != "c" {
		t.Fatalf("unexpected latest %+v", n)
	}
}

func TestNotification_Failed(t *testing.T) {
	if New(200, "", nil).Failed() {
		t.Fatalf("200 is not a failure")
	}
	if !New(400, "", nil).Failed() {
		t.Fatalf("400 is a failure")
	}
}
