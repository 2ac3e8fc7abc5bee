package queue

import (
	"sync"
	"testing"
)

func TestRingBoundedPut(t *testing.T) {
	q := NewRing[int](2)
	for i, want := range []bool{true, true, false} {
		if got := q.Put(i + 1); got != want {
			t.Fatalf("Put #%d = %v, want %v", i+1, got, want)
		}
	}
	if q.Len() != 2 || !q.IsFull() || q.Dropped() != 1 {
		t.Fatalf("len=%d full=%v dropped=%d, want 2/true/1", q.Len(), q.IsFull(), q.Dropped())
	}
	for _, want := range []int{1, 2} {
		v, ok := q.Get()
		if !ok || v != want {
			t.Fatalf("Get = %v,%v want %v,true", v, ok, want)
		}
	}
	if _, ok := q.Get(); ok {
		t.Fatalf("Get on empty ring should report ok=false")
	}
}

func TestRingWrapsAround(t *testing.T) {
	q := NewRing[int](3)
	for round := 0; round < 5; round++ {
		q.Put(round)
		q.Put(round + 100)
		a, _ := q.Get()
		b, _ := q.Get()
		if a != round || b != round+100 {
			t.Fatalf("round %d: got %d,%d", round, a, b)
		}
	}
}

func TestRingDrain(t *testing.T) {
	q := NewRing[string](4)
	q.Put("a")
	q.Put("b")
	var seen []string
	if n := q.Drain(func(s string) { seen = append(seen, s) }); n != 2 {
		t.Fatalf("Drain removed %d, want 2", n)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" || q.Len() != 0 {
		t.Fatalf("drain order/result wrong: %v len=%d", seen, q.Len())
	}
	if n := q.Drain(nil); n != 0 {
		t.Fatalf("second Drain removed %d", n)
	}
}

func TestZeroCapacityRing(t *testing.T) {
	q := NewRing[int](0)
	if q.Put(1) {
		t.Fatalf("zero capacity ring accepted an item")
	}
}

func TestStack(t *testing.T) {
	s := NewStack[int](2)
	if !s.Push(1) || !s.Push(2) || s.Push(3) {
		t.Fatalf("stack capacity not enforced")
	}
	if v, ok := s.Pop(); !ok || v != 2 {
		t.Fatalf("Pop = %v,%v want 2,true", v, ok)
	}
	if v, ok := s.Pop(); !ok || v != 1 {
		t.Fatalf("Pop = %v,%v want 1,true", v, ok)
	}
	if _, ok := s.Pop(); ok {
		t.Fatalf("Pop on empty stack should fail")
	}
}

func TestRingConcurrentProducers(t *testing.T) {
	q := NewRing[int](50)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				q.Put(i)
			}
		}()
	}
	wg.Wait()
	if q.Len() != 50 {
		t.Fatalf("len=%d, want 50", q.Len())
	}
	if q.Dropped() != 8*20-50 {
		t.Fatalf("dropped=%d, want %d", q.Dropped(), 8*20-50)
	}
}
