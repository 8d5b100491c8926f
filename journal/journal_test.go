package journal

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndTailFrom(t *testing.T) {
	j := New()
	j.Append("one")
	j.Append("two")
	j.Append("three")

	if j.Len() != 3 {
		t.Fatalf("expect 3 entries, got %d", j.Len())
	}

	full := j.TailFrom(0)
	if len(full) != 3 || full[0] != "one" || full[2] != "three" {
		t.Fatalf("unexpected full tail: %v", full)
	}

	tail := j.TailFrom(2)
	if len(tail) != 1 || tail[0] != "three" {
		t.Fatalf("unexpected tail from 2: %v", tail)
	}
}

func TestTailFromBounds(t *testing.T) {
	j := New()
	j.Append("only")

	if got := j.TailFrom(1); got != nil {
		t.Fatalf("offset at end: expect nil, got %v", got)
	}
	if got := j.TailFrom(99); got != nil {
		t.Fatalf("offset past end: expect nil, got %v", got)
	}
	if got := j.TailFrom(-5); len(got) != 1 {
		t.Fatalf("negative offset clamps to 0, got %v", got)
	}
}

func TestTailFromIsDefensiveCopy(t *testing.T) {
	j := New()
	j.Append("original")

	snap := j.TailFrom(0)
	snap[0] = "mutated"

	if got := j.TailFrom(0)[0]; got != "original" {
		t.Fatalf("snapshot mutation leaked into journal: %q", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	j := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			j.Append(fmt.Sprintf("entry-%d", n))
		}(i)
	}
	wg.Wait()

	if j.Len() != 50 {
		t.Fatalf("expect 50 entries, got %d", j.Len())
	}
}
