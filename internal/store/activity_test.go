package store

import (
	"context"
	"sync"
	"testing"

	"fsconsole/internal/model"
)

func openTestLog(t *testing.T) *ActivityLog {
	t.Helper()
	l, err := Store{Dir: t.TempDir()}.OpenActivityLog(context.Background())
	if err != nil {
		t.Fatalf("OpenActivityLog: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestActivityLog_AppendAndList(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	evs := []model.Event{
		{Type: "tag.add", Project: "demo", Kind: model.KindModel, Name: "m", Status: 200, Payload: map[string]any{"tag": "v1"}},
		{Type: "tag.edit", Project: "demo", Kind: model.KindModel, Name: "m", Status: 409, Error: "conflict"},
		{Type: "metadata.update", Project: "other", Kind: model.KindFeatureSet, Name: "fs", Status: 200},
	}
	for _, ev := range evs {
		if err := l.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := l.List(ctx, ActivityFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Type != "metadata.update" || all[2].Type != "tag.add" {
		t.Fatalf("expected newest first, got %q ... %q", all[0].Type, all[2].Type)
	}
	if all[2].TS.IsZero() || all[2].ID == 0 {
		t.Fatalf("expected id and timestamp set, got %+v", all[2])
	}
	if p, ok := all[2].Payload.(map[string]any); !ok || p["tag"] != "v1" {
		t.Fatalf("unexpected payload %#v", all[2].Payload)
	}
	if all[1].Error != "conflict" || all[1].Status != 409 {
		t.Fatalf("unexpected failed event %+v", all[1])
	}

	demo, err := l.List(ctx, ActivityFilter{Project: "demo", Kind: model.KindModel, Name: "m", Limit: 1})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(demo) != 1 || demo[0].Type != "tag.edit" {
		t.Fatalf("unexpected filtered events %+v", demo)
	}
}

func TestActivityLog_RejectsUntypedEvent(t *testing.T) {
	l := openTestLog(t)
	if err := l.Append(context.Background(), model.Event{Name: "x"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestActivityLog_ConcurrentAppends(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Append(ctx, model.Event{Type: "tag.add", Project: "demo", Name: "m"}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("Append: %v", err)
	}
	evs, err := l.List(ctx, ActivityFilter{Limit: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != n {
		t.Fatalf("expected %d events, got %d", n, len(evs))
	}
}
