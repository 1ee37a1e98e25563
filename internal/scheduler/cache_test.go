package scheduler

import "testing"

func TestStateCache_MissWhenAbsent(t *testing.T) {
	c := NewStateCache(2)
	if c.Contains("A") {
		t.Fatal("expected miss for empty cache")
	}
	if _, ok := c.Get("A"); ok {
		t.Fatal("expected Get to report absent")
	}
}

func TestStateCache_PutGetRoundTrip(t *testing.T) {
	c := NewStateCache(2)
	c.Put("A", []byte{1, 2, 3})

	if !c.Contains("A") {
		t.Fatal("expected hit after put")
	}
	got, ok := c.Get("A")
	if !ok {
		t.Fatal("expected Get to find entry")
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected bytes: %v", got)
	}
}

func TestStateCache_GetReturnsACopy(t *testing.T) {
	c := NewStateCache(2)
	c.Put("A", []byte{1, 2, 3})

	got, _ := c.Get("A")
	got[0] = 99

	again, _ := c.Get("A")
	if again[0] != 1 {
		t.Fatalf("mutating a Get result leaked into the cache: %v", again)
	}
}

func TestStateCache_EvictsOldestOnOverflow(t *testing.T) {
	c := NewStateCache(2)
	c.Put("X", []byte("x"))
	c.Put("Y", []byte("y"))
	c.Put("Z", []byte("z"))

	if c.Len() != 2 {
		t.Fatalf("expected len 2 after overflow, got %d", c.Len())
	}
	if c.Contains("X") {
		t.Fatal("expected X (oldest insertion) to be evicted")
	}
	if !c.Contains("Y") || !c.Contains("Z") {
		t.Fatal("expected Y and Z to remain cached")
	}
}

func TestStateCache_ReplaceKeepsInsertionPosition(t *testing.T) {
	c := NewStateCache(2)
	c.Put("X", []byte("x1"))
	c.Put("Y", []byte("y"))
	c.Put("X", []byte("x2")) // replace, should NOT move to newest
	c.Put("Z", []byte("z")) // overflow should evict X, not Y

	if c.Contains("X") {
		t.Fatal("expected X to be evicted despite being replaced most recently")
	}
	if !c.Contains("Y") || !c.Contains("Z") {
		t.Fatal("expected Y and Z to remain")
	}
}

func TestStateCache_Clear(t *testing.T) {
	c := NewStateCache(2)
	c.Put("A", []byte("a"))
	c.Clear()
	if c.Len() != 0 || c.Contains("A") {
		t.Fatal("expected cache empty after Clear")
	}
}

func TestDefaultCacheCapacity_FloorsAtOne(t *testing.T) {
	if capacityFrom(0) != 1 {
		t.Fatalf("expected floor of 1, got %d", capacityFrom(0))
	}
	if capacityFrom(1) != 1 {
		t.Fatalf("expected floor of 1 for parallelism=1, got %d", capacityFrom(1))
	}
	if capacityFrom(4) != 2 {
		t.Fatalf("expected 2 for parallelism=4, got %d", capacityFrom(4))
	}
}
