package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/spendguard/types"
)

func TestSortByTime(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []Purchase{
		{ID: "c", PurchasedAt: base.Add(2 * time.Hour)},
		{ID: "b", PurchasedAt: base.Add(time.Hour)},
		{ID: "a2", PurchasedAt: base},
		{ID: "a1", PurchasedAt: base},
	}

	SortByTime(events)

	want := []string{"a1", "a2", "b", "c"}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, events[i].ID, id)
		}
	}
}

func TestChanSourceSnapshot(t *testing.T) {
	src := NewChanSource(4)
	ctx := context.Background()

	src.Publish(Purchase{ID: "e1", Amount: types.USD(100), Verified: true})
	src.Publish(Purchase{ID: "e2", Amount: types.USD(200), Verified: true})

	snap, err := src.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot length: got %d, want 2", len(snap))
	}

	// The snapshot is a copy; mutating it must not affect the source.
	snap[0].ID = "mutated"
	snap2, _ := src.Snapshot(ctx)
	if snap2[0].ID != "e1" {
		t.Error("snapshot shares backing array with source history")
	}
}

func TestChanSourceSubscribe(t *testing.T) {
	src := NewChanSource(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	src.Publish(Purchase{ID: "live1", Amount: types.USD(100), Verified: true})

	select {
	case ev := <-stream:
		if ev.ID != "live1" {
			t.Errorf("got event %q, want %q", ev.ID, "live1")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestChanSourcePublishNeverBlocks(t *testing.T) {
	src := NewChanSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := src.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Publish well past the subscriber buffer without a reader; every event
	// must land in the snapshot and Publish must return promptly.
	for i := 0; i < 10; i++ {
		src.Publish(Purchase{ID: "e", Amount: types.USD(1), Verified: true})
	}

	snap, _ := src.Snapshot(context.Background())
	if len(snap) != 10 {
		t.Errorf("snapshot length: got %d, want 10", len(snap))
	}
}

func TestChanSourceSlowSubscriberReceivesAll(t *testing.T) {
	src := NewChanSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Publish far past the buffer before reading anything; nothing may be
	// dropped and order must hold.
	const n = 50
	for i := 0; i < n; i++ {
		src.Publish(Purchase{ID: fmt.Sprintf("e%02d", i), Amount: types.USD(1), Verified: true})
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-stream:
			want := fmt.Sprintf("e%02d", i)
			if ev.ID != want {
				t.Fatalf("position %d: got %q, want %q", i, ev.ID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func TestChanSourceClose(t *testing.T) {
	src := NewChanSource(4)
	ctx := context.Background()

	stream, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	src.Close()

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Publishing after close is a no-op.
	src.Publish(Purchase{ID: "late"})
	snap, _ := src.Snapshot(ctx)
	if len(snap) != 0 {
		t.Errorf("snapshot after close: got %d events, want 0", len(snap))
	}
}

func TestChanSourceUnsubscribeOnCancel(t *testing.T) {
	src := NewChanSource(4)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("expected closed channel after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
