package lsm

import (
	"bytes"
	"fmt"
	"testing"
)

func TestBlockBuilderAddAndEncode(t *testing.T) {
	b := NewBlockBuilder(4096)
	if !b.IsEmpty() {
		t.Fatal("new builder should be empty")
	}

	entries := []struct{ key, value string }{
		{"apple", "fruit"},
		{"banana", "fruit"},
		{"banana2", "also fruit"},
		{"carrot", "vegetable"},
	}

	for _, e := range entries {
		if !b.Add([]byte(e.key), []byte(e.value)) {
			t.Fatalf("Add(%s) rejected unexpectedly", e.key)
		}
	}

	blk := b.Build()
	encoded := blk.Encode()

	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock failed: %v", err)
	}

	it := NewBlockIterator(decoded)
	it.SeekToFirst()
	for i, e := range entries {
		if !it.IsValid() {
			t.Fatalf("iterator exhausted early at entry %d", i)
		}
		if string(it.Key()) != e.key {
			t.Fatalf("entry %d: expected key %s, got %s", i, e.key, it.Key())
		}
		if string(it.Value()) != e.value {
			t.Fatalf("entry %d: expected value %s, got %s", i, e.value, it.Value())
		}
		it.Next()
	}
	if it.IsValid() {
		t.Fatal("expected iterator exhausted after last entry")
	}
}

func TestBlockBuilderRejectsOversizedBlock(t *testing.T) {
	b := NewBlockBuilder(40)
	if !b.Add([]byte("key0000000000001"), []byte("value0000000000001")) {
		t.Fatal("first entry must always be accepted")
	}
	if b.Add([]byte("key0000000000002"), []byte("value0000000000002")) {
		t.Fatal("expected second entry to be rejected once block would exceed target size")
	}
}

func TestBlockIteratorSeekToKey(t *testing.T) {
	b := NewBlockBuilder(4096)
	for i := 0; i < 20; i += 2 {
		key := fmt.Sprintf("key%03d", i)
		b.Add([]byte(key), []byte(fmt.Sprintf("val%03d", i)))
	}
	blk := b.Build()

	it := NewBlockIterator(blk)
	it.SeekToKey([]byte("key009"))
	if !it.IsValid() {
		t.Fatal("expected a valid position at or after key009")
	}
	if string(it.Key()) != "key010" {
		t.Fatalf("expected key010, got %s", it.Key())
	}

	it.SeekToKey([]byte("key999"))
	if it.IsValid() {
		t.Fatal("expected exhausted iterator past the last key")
	}
}

func TestBlockPrefixCompressionRoundTrip(t *testing.T) {
	b := NewBlockBuilder(4096)
	keys := []string{"user:0001", "user:0002", "user:0003", "user:00030"}
	for _, k := range keys {
		b.Add([]byte(k), []byte("v"))
	}
	blk := b.Build()
	encoded := blk.Encode()
	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock failed: %v", err)
	}

	it := NewBlockIterator(decoded)
	it.SeekToFirst()
	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	if len(got) != len(keys) {
		t.Fatalf("expected %d keys, got %d", len(keys), len(got))
	}
	for i, k := range keys {
		if got[i] != k {
			t.Fatalf("position %d: expected %s, got %s", i, k, got[i])
		}
	}
}

func TestDecodeBlockRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeBlock([]byte{0x00})
	if err == nil {
		t.Fatal("expected an error decoding a truncated block")
	}
}

func TestCommonPrefixLen(t *testing.T) {
	cases := []struct {
		a, b []byte
		want int
	}{
		{[]byte("abc"), []byte("abd"), 2},
		{[]byte(""), []byte("abc"), 0},
		{[]byte("abc"), []byte("abc"), 3},
		{[]byte("abc"), []byte("abcdef"), 3},
	}
	for _, c := range cases {
		if got := commonPrefixLen(c.a, c.b); got != c.want {
			t.Fatalf("commonPrefixLen(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestBlockEncodeIsStableAcrossDecode(t *testing.T) {
	b := NewBlockBuilder(4096)
	b.Add([]byte("a"), []byte("1"))
	b.Add([]byte("b"), []byte("2"))
	blk := b.Build()
	encoded := blk.Encode()

	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock failed: %v", err)
	}
	reEncoded := decoded.Encode()
	if !bytes.Equal(encoded, reEncoded) {
		t.Fatal("re-encoding a decoded block should be byte-for-byte identical")
	}
}
