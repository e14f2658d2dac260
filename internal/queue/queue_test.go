package queue

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		v, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("take: %v", err)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
}

func TestQueuePutBlocksWhenFull(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()
	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx2, 2); err == nil {
		t.Fatal("expected Put to block and time out on a full queue")
	}
}

func TestQueueTryTake(t *testing.T) {
	q := New[string](2)
	if _, ok := q.TryTake(); ok {
		t.Fatal("expected empty queue to report no item")
	}
	_ = q.Put(context.Background(), "x")
	v, ok := q.TryTake()
	if !ok || v != "x" {
		t.Fatalf("expected (x, true), got (%q, %v)", v, ok)
	}
}
