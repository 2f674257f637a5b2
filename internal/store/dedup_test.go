package store

import (
	"fmt"
	"testing"
)

func TestDedupStore_Basic(t *testing.T) {
	set := NewDedupStore(100, DefaultFalsePositiveRate)

	if set.Has("https://soundcloud.com/a/one") {
		t.Error("Empty set should not have any permalinks")
	}

	set.Add("https://soundcloud.com/a/one")
	if !set.Has("https://soundcloud.com/a/one") {
		t.Error("Set should have permalink after adding")
	}

	set.Add("https://soundcloud.com/a/one")
	if set.Size() != 1 {
		t.Errorf("Size() = %d after duplicate add, want 1", set.Size())
	}
}

func TestDedupStore_CheckAndAdd(t *testing.T) {
	set := NewDedupStore(10, DefaultFalsePositiveRate)

	if !set.CheckAndAdd("p1") {
		t.Error("CheckAndAdd() = false for new key, want true")
	}
	if set.CheckAndAdd("p1") {
		t.Error("CheckAndAdd() = true for existing key, want false")
	}
	if !set.CheckAndAdd("p2") {
		t.Error("CheckAndAdd() = false for second new key, want true")
	}
	if set.Size() != 2 {
		t.Errorf("Size() = %d, want 2", set.Size())
	}
}

func TestDedupStore_Load(t *testing.T) {
	set := NewDedupStore(100, DefaultFalsePositiveRate)

	set.Load([]string{"p1", "", "p2", "", "p3"})
	if set.Size() != 3 {
		t.Errorf("Size() = %d after load, want 3", set.Size())
	}

	set.Load([]string{"p4"})
	if set.Has("p1") {
		t.Error("Load should replace previous keys")
	}
	if !set.Has("p4") {
		t.Error("Load should insert new keys")
	}
}

func TestDedupStore_Clear(t *testing.T) {
	set := NewDedupStore(100, DefaultFalsePositiveRate)
	for i := 0; i < 3; i++ {
		set.Add(fmt.Sprintf("p%d", i))
	}

	set.Clear()

	if set.Size() != 0 {
		t.Errorf("Size() = %d after clear, want 0", set.Size())
	}
	if set.Has("p0") {
		t.Error("Set should be empty after clear")
	}
}

func TestDedupStore_Capacity(t *testing.T) {
	capacity := 5
	set := NewDedupStore(capacity, DefaultFalsePositiveRate)

	for i := 0; i < capacity+3; i++ {
		set.Add(fmt.Sprintf("p%d", i))
	}

	if set.Size() > capacity {
		t.Errorf("Size() = %d, must not exceed %d", set.Size(), capacity)
	}
	for _, key := range []string{"p5", "p6", "p7"} {
		if !set.Has(key) {
			t.Errorf("Set should keep recent key %s", key)
		}
	}
	if set.Has("p0") {
		t.Error("Oldest key should have been evicted")
	}
}

func TestDedupStore_ZeroCapacity(t *testing.T) {
	set := NewDedupStore(0, DefaultFalsePositiveRate)
	if !set.CheckAndAdd("p") {
		t.Error("zero capacity set should still accept one key")
	}
}

func TestDedupStore_BloomFalsePositives(t *testing.T) {
	set := NewDedupStore(1000, DefaultFalsePositiveRate)

	for i := 0; i < 500; i++ {
		set.Add(fmt.Sprintf("https://soundcloud.com/u/t%d", i))
	}

	for i := 0; i < 1000; i++ {
		if set.Has(fmt.Sprintf("https://soundcloud.com/other/t%d", i)) {
			t.Fatalf("Has() reported a key that was never added")
		}
	}
}

func BenchmarkDedupStore_CheckAndAdd(b *testing.B) {
	set := NewDedupStore(10000, DefaultFalsePositiveRate)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		set.CheckAndAdd(fmt.Sprintf("p%d", i%20000))
	}
}
