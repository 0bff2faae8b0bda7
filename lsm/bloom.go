package lsm

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/intellect4all/storage-engines/common"
)

// defaultBitsPerKey is the bloom filter budget per key, matching the 10
// bits/key default most LSM engines in the pack settle on (roughly 1% false
// positive rate).
const defaultBitsPerKey = 10.0

// Bloom wraps a bits-and-blooms/bloom/v3 filter with the byte-slice key
// hashing the SST builder and reader agree on.
type Bloom struct {
	filter *bloom.BloomFilter
}

func hashKey(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32()
}

func u32Bytes(h uint32) []byte {
	return []byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h)}
}

func bitsPerKeyToFPR(bitsPerKey float64) float64 {
	// Standard bloom filter approximation: p ~= exp(-ln(2)^2 * bits_per_key).
	const ln2Squared = 0.4804530139182014
	p := math.Exp(-ln2Squared * bitsPerKey)
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	return p
}

// BuildBloomFromKeyHashes constructs a filter sized for the given set of
// 32-bit key fingerprints at the given bits-per-key budget.
func BuildBloomFromKeyHashes(hashes []uint32, bitsPerKey float64) *Bloom {
	n := uint(len(hashes))
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(n, bitsPerKeyToFPR(bitsPerKey))
	for _, h := range hashes {
		f.Add(u32Bytes(h))
	}
	return &Bloom{filter: f}
}

// MayContain reports whether the filter may contain the given key
// fingerprint. A false return is a definitive negative.
func (b *Bloom) MayContain(hash uint32) bool {
	if b == nil || b.filter == nil {
		return true
	}
	return b.filter.Test(u32Bytes(hash))
}

// Encode serializes the filter for embedding in an SST footer.
func (b *Bloom) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.filter.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: encode bloom filter: %v", common.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// DecodeBloom parses a filter previously produced by Encode.
func DecodeBloom(data []byte) (*Bloom, error) {
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: decode bloom filter: %v", common.ErrCorruptData, err)
	}
	return &Bloom{filter: f}, nil
}
