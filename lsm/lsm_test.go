package lsm

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/intellect4all/storage-engines/common"
)

func setupTestLSM(t *testing.T) (*LSM, func()) {
	dir := fmt.Sprintf("/tmp/lsm-test-%d", time.Now().UnixNano())
	config := DefaultConfig(dir)
	config.MemTableSize = 1024 // Small memtable for testing

	l, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create LSM: %v", err)
	}

	cleanup := func() {
		l.Close()
		os.RemoveAll(dir)
	}

	return l, cleanup
}

func TestTieredFlushRoutesIntoLevelsNotL0(t *testing.T) {
	dir := fmt.Sprintf("/tmp/lsm-test-%d", time.Now().UnixNano())
	config := DefaultConfig(dir)
	config.MemTableSize = 1024
	config.Strategy = CompactionTiered

	l, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create LSM: %v", err)
	}
	defer func() {
		l.Close()
		os.RemoveAll(dir)
	}()

	if err := l.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := l.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}

	s := l.snapshot()
	if len(s.l0) != 0 {
		t.Fatalf("expected tiered flushes to bypass L0, got %v", s.l0)
	}
	if len(s.levels) != 1 || len(s.levels[0].ssts) != 1 {
		t.Fatalf("expected a single one-sst tier, got %+v", s.levels)
	}

	value, err := l.Get([]byte("key1"))
	if err != nil || string(value) != "value1" {
		t.Fatalf("expected to read back key1=value1 from a tier, got value=%q err=%v", value, err)
	}
}

func TestBasicOperations(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	if err := l.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, err := l.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "value1" {
		t.Fatalf("Expected value1, got %s", string(value))
	}

	_, err = l.Get([]byte("nonexistent"))
	if !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	if err := l.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := l.Get([]byte("key1")); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := l.Delete([]byte("key1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := l.Get([]byte("key1"))
	if !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("Deleted key still found (err=%v)", err)
	}
}

func TestUpdate(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	if err := l.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := l.Put([]byte("key1"), []byte("value2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, err := l.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "value2" {
		t.Fatalf("Expected value2, got %s", string(value))
	}
}

func TestMemtableFlush(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key%04d", i)
		value := []byte(fmt.Sprintf("value%04d", i))
		if err := l.Put([]byte(key), value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	time.Sleep(200 * time.Millisecond)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key%04d", i)
		expectedValue := fmt.Sprintf("value%04d", i)

		value, err := l.Get([]byte(key))
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if string(value) != expectedValue {
			t.Fatalf("Expected %s, got %s", expectedValue, string(value))
		}
	}

	numL0Files := numFilesAtLevel(l.snapshot(), 0)
	if numL0Files == 0 {
		t.Fatal("Expected L0 files after flush")
	}
	t.Logf("L0 has %d files", numL0Files)
}

func TestL0Compaction(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key%04d", i)
		value := []byte(fmt.Sprintf("value%04d", i))
		if err := l.Put([]byte(key), value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	time.Sleep(800 * time.Millisecond)

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key%04d", i)
		expectedValue := fmt.Sprintf("value%04d", i)

		value, err := l.Get([]byte(key))
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if string(value) != expectedValue {
			t.Fatalf("Expected %s, got %s", expectedValue, string(value))
		}
	}

	s := l.snapshot()
	t.Logf("L0 files: %d", numFilesAtLevel(s, 0))
	t.Logf("L1 files: %d", numFilesAtLevel(s, 1))
	t.Logf("L2 files: %d", numFilesAtLevel(s, 2))
}

func TestRangeScan(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	keys := []string{"a", "b", "c", "d", "e"}
	for _, key := range keys {
		if err := l.Put([]byte(key), []byte("value_"+key)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	iter, err := l.Scan(UnboundedBound(), UnboundedBound())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var scannedKeys []string
	for iter.IsValid() {
		scannedKeys = append(scannedKeys, string(iter.Key()))
		if err := iter.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}

	if len(scannedKeys) != len(keys) {
		t.Fatalf("Expected %d keys, got %d", len(keys), len(scannedKeys))
	}

	for i, key := range keys {
		if scannedKeys[i] != key {
			t.Fatalf("Expected key %s at position %d, got %s", key, i, scannedKeys[i])
		}
	}
}

func TestTombstones(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%04d", i)
		if err := l.Put([]byte(key), []byte("value")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	for i := 0; i < 10; i += 2 {
		key := fmt.Sprintf("key%04d", i)
		if err := l.Delete([]byte(key)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%04d", i)
		_, err := l.Get([]byte(key))

		if i%2 == 0 {
			if !errors.Is(err, common.ErrKeyNotFound) {
				t.Fatalf("Deleted key %s still found (err=%v)", key, err)
			}
		} else if err != nil {
			t.Fatalf("Key %s not found: %v", key, err)
		}
	}
}

func TestConcurrentWrites(t *testing.T) {
	l, cleanup := setupTestLSM(t)
	defer cleanup()

	done := make(chan bool)
	for g := 0; g < 10; g++ {
		go func(id int) {
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("key%02d%04d", id, i)
				value := []byte(fmt.Sprintf("value%d", i))
				if err := l.Put([]byte(key), value); err != nil {
					t.Errorf("Put failed: %v", err)
				}
			}
			done <- true
		}(g)
	}

	for g := 0; g < 10; g++ {
		<-done
	}

	time.Sleep(300 * time.Millisecond)

	for g := 0; g < 10; g++ {
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("key%02d%04d", g, i)
			expectedValue := fmt.Sprintf("value%d", i)

			value, err := l.Get([]byte(key))
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(value) != expectedValue {
				t.Fatalf("Expected %s, got %s", expectedValue, string(value))
			}
		}
	}

	t.Logf("Successfully wrote and verified %d keys", 10*50)
}
