package xpool

import (
	"sync/atomic"
	"testing"
)

func TestPoolForEachVisitsEveryIndex(t *testing.T) {
	const n = 1000
	p := New(4)
	defer p.Close()

	var seen [n]atomic.Bool
	p.ForEach(n, func(i int) {
		seen[i].Store(true)
	})
	for i := 0; i < n; i++ {
		if !seen[i].Load() {
			t.Fatalf("index %d not visited", i)
		}
	}
}

func TestPoolForEachAfterClose(t *testing.T) {
	p := New(2)
	p.Close()

	var count atomic.Int64
	p.ForEach(10, func(i int) {
		count.Add(1)
	})
	if count.Load() != 10 {
		t.Fatalf("expected 10 calls after close, got %d", count.Load())
	}
}

func TestPoolForEachSingleWorker(t *testing.T) {
	p := New(1)
	defer p.Close()

	var count atomic.Int64
	p.ForEach(50, func(i int) {
		count.Add(1)
	})
	if count.Load() != 50 {
		t.Fatalf("expected 50 calls, got %d", count.Load())
	}
}
