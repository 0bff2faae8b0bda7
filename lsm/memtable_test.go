package lsm

import (
	"fmt"
	"testing"
)

func TestMemTablePutGet(t *testing.T) {
	m := NewMemTable(0)

	if err := m.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value, ok := m.Get([]byte("a"))
	if !ok {
		t.Fatal("expected key a to be found")
	}
	if string(value) != "1" {
		t.Fatalf("expected 1, got %s", value)
	}

	if _, ok := m.Get([]byte("missing")); ok {
		t.Fatal("expected missing key to be absent")
	}
}

func TestMemTableDeleteIsTombstone(t *testing.T) {
	m := NewMemTable(0)
	m.Put([]byte("a"), []byte("1"))
	if err := m.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	value, ok := m.Get([]byte("a"))
	if !ok {
		t.Fatal("expected tombstone entry to still be present in the memtable")
	}
	if len(value) != 0 {
		t.Fatalf("expected zero-length tombstone value, got %q", value)
	}
}

func TestMemTableApproximateSize(t *testing.T) {
	m := NewMemTable(0)
	if m.ApproximateSize() != 0 {
		t.Fatal("expected zero size for an empty memtable")
	}
	m.Put([]byte("key"), []byte("value"))
	if m.ApproximateSize() <= 0 {
		t.Fatal("expected positive size after a put")
	}
}

func TestMemTableIteratorOrderAndBound(t *testing.T) {
	m := NewMemTable(0)
	keys := []string{"d", "b", "a", "c"}
	for _, k := range keys {
		m.Put([]byte(k), []byte("v_"+k))
	}

	it := m.NewIterator(UnboundedBound())
	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		if err := it.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	it2 := m.NewIterator(ExcludedBound([]byte("b")))
	var got2 []string
	for it2.IsValid() {
		got2 = append(got2, string(it2.Key()))
		it2.Next()
	}
	wantFromC := []string{"c", "d"}
	if len(got2) != len(wantFromC) {
		t.Fatalf("expected %v, got %v", wantFromC, got2)
	}
}

func TestMemTableFlushToBuilder(t *testing.T) {
	m := NewMemTable(0)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%02d", i)
		m.Put([]byte(key), []byte(fmt.Sprintf("val%02d", i)))
	}

	builder := NewSSTBuilder(defaultBlockSize)
	if err := m.Flush(builder); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if builder.IsEmpty() {
		t.Fatal("expected the builder to hold entries after flush")
	}
}
