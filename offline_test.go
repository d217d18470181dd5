package haven

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func enqueueRaw(t *testing.T, off *Offline, typ QueueItemType, payload string) {
	t.Helper()
	err := off.Enqueue(context.Background(), QueueItem{Type: typ, Payload: json.RawMessage(payload)})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
}

func TestEnqueuePreservesOrder(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, true)

	enqueueRaw(t, off, QueueMessage, `"a"`)
	enqueueRaw(t, off, QueueMessage, `"b"`)
	enqueueRaw(t, off, QueuePost, `"c"`)

	items, err := off.Queued(ctx)
	if err != nil {
		t.Fatalf("Queued returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 queued items, got %d", len(items))
	}
	want := []string{`"a"`, `"b"`, `"c"`}
	for i, item := range items {
		if string(item.Payload) != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], item.Payload)
		}
	}
}

func TestFlushOfflineIsNoOp(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, false)
	enqueueRaw(t, off, QueueMessage, `"a"`)

	calls := 0
	err := off.Flush(ctx, map[QueueItemType]Processor{
		QueueMessage: func(context.Context, json.RawMessage) error {
			calls++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if calls != 0 {
		t.Errorf("processor ran %d times while offline", calls)
	}

	items, _ := off.Queued(ctx)
	if len(items) != 1 {
		t.Errorf("expected queue untouched, got %d items", len(items))
	}
}

func TestFlushKeepsFailedItemsInOrder(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, true)
	enqueueRaw(t, off, QueueMessage, `"a"`)
	enqueueRaw(t, off, QueueMessage, `"b"`)
	enqueueRaw(t, off, QueueMessage, `"c"`)

	err := off.Flush(ctx, map[QueueItemType]Processor{
		QueueMessage: func(_ context.Context, payload json.RawMessage) error {
			if string(payload) == `"a"` {
				return errors.New("connection reset")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	items, _ := off.Queued(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 retained item, got %d", len(items))
	}
	if string(items[0].Payload) != `"a"` {
		t.Errorf("expected retained item a, got %s", items[0].Payload)
	}
}

func TestFlushDropsPermanentRejections(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, true)
	enqueueRaw(t, off, QueuePost, `"bad"`)
	enqueueRaw(t, off, QueuePost, `"good"`)

	delivered := []string{}
	err := off.Flush(ctx, map[QueueItemType]Processor{
		QueuePost: func(_ context.Context, payload json.RawMessage) error {
			if string(payload) == `"bad"` {
				return &APIError{Code: "VALIDATION", Message: "content rejected"}
			}
			delivered = append(delivered, string(payload))
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	items, _ := off.Queued(ctx)
	if len(items) != 0 {
		t.Errorf("expected empty queue, got %d items", len(items))
	}
	if len(delivered) != 1 || delivered[0] != `"good"` {
		t.Errorf("expected only good item delivered, got %v", delivered)
	}
}

func TestFlushRetainsItemsWithoutProcessor(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, true)
	enqueueRaw(t, off, QueuePost, `"p"`)

	err := off.Flush(ctx, map[QueueItemType]Processor{})
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	items, _ := off.Queued(ctx)
	if len(items) != 1 {
		t.Errorf("expected item retained without processor, got %d items", len(items))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	off, _ := newOfflineStore(t, true)

	in := []string{"one", "two"}
	off.CacheSet(ctx, "list", in)

	var out []string
	if !off.CacheGet(ctx, "list", &out) {
		t.Fatal("expected cached value")
	}
	if len(out) != 2 || out[0] != "one" || out[1] != "two" {
		t.Errorf("cache returned %v", out)
	}
}

func TestCacheMissingKey(t *testing.T) {
	off, _ := newOfflineStore(t, true)
	var out []string
	if off.CacheGet(context.Background(), "nothing", &out) {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheFaultIsSilent(t *testing.T) {
	ctx := context.Background()
	off := NewOffline(faultStore{}, &fakeConn{online: true}, nil)

	// Neither call may panic or surface the storage fault.
	off.CacheSet(ctx, "k", []string{"v"})
	var out []string
	if off.CacheGet(ctx, "k", &out) {
		t.Error("expected miss on faulting store")
	}
}
