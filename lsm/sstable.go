package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/intellect4all/storage-engines/common"
)

const defaultBlockSize = 4096

// BlockMeta records where one block starts in the file and the key range it
// covers, enough to binary search for a block without decoding it.
type BlockMeta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

func encodeBlockMeta(metas []BlockMeta) []byte {
	buf := make([]byte, 0, 4)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(metas)))
	for _, m := range metas {
		buf = binary.BigEndian.AppendUint32(buf, m.Offset)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.FirstKey)))
		buf = append(buf, m.FirstKey...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.LastKey)))
		buf = append(buf, m.LastKey...)
	}
	return buf
}

func decodeBlockMeta(data []byte) ([]BlockMeta, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: block meta header truncated", common.ErrCorruptData)
	}
	n := binary.BigEndian.Uint32(data)
	p := 4
	metas := make([]BlockMeta, 0, n)
	for i := uint32(0); i < n; i++ {
		if p+6 > len(data) {
			return nil, fmt.Errorf("%w: block meta entry truncated", common.ErrCorruptData)
		}
		offset := binary.BigEndian.Uint32(data[p:])
		p += 4
		flen := int(binary.BigEndian.Uint16(data[p:]))
		p += 2
		if p+flen > len(data) {
			return nil, fmt.Errorf("%w: block meta first key truncated", common.ErrCorruptData)
		}
		firstKey := data[p : p+flen]
		p += flen
		if p+2 > len(data) {
			return nil, fmt.Errorf("%w: block meta entry truncated", common.ErrCorruptData)
		}
		llen := int(binary.BigEndian.Uint16(data[p:]))
		p += 2
		if p+llen > len(data) {
			return nil, fmt.Errorf("%w: block meta last key truncated", common.ErrCorruptData)
		}
		lastKey := data[p : p+llen]
		p += llen
		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey, LastKey: lastKey})
	}
	return metas, nil
}

// SST is an immutable, sorted string table on disk. Layout:
//
//	[block]*[block_meta][meta_offset u32 BE][bloom][bloom_offset u32 BE]
//
// bloom_offset occupies the last 4 bytes of the file and names where the
// bloom section begins; meta_offset is the 4 bytes before that and names
// where the block-meta section begins. Both section lengths are implicit
// from the neighbouring offsets.
type SST struct {
	file      *os.File
	path      string
	id        uint64
	blockMeta []BlockMeta
	bloom     *Bloom
	firstKey  []byte
	lastKey   []byte
	blockMetaOffset uint32
	fileSize  uint32
	cache     *BlockCache
}

// OpenSST opens an existing SST file, parsing its footer, bloom filter and
// block-meta section into memory. cache may be nil.
func OpenSST(path string, id uint64, cache *BlockCache) (*SST, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sst %s: %v", common.ErrIO, path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat sst %s: %v", common.ErrIO, path, err)
	}
	fileSize := stat.Size()
	if fileSize < 8 {
		f.Close()
		return nil, fmt.Errorf("%w: sst %s too small", common.ErrCorruptData, path)
	}

	var tail [4]byte
	if _, err := f.ReadAt(tail[:], fileSize-4); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sst bloom offset: %v", common.ErrIO, err)
	}
	bloomOffset := binary.BigEndian.Uint32(tail[:])

	if _, err := f.ReadAt(tail[:], fileSize-8); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sst meta offset: %v", common.ErrIO, err)
	}
	metaOffset := binary.BigEndian.Uint32(tail[:])

	if int64(bloomOffset) > fileSize-4 || int64(metaOffset) > int64(bloomOffset) {
		f.Close()
		return nil, fmt.Errorf("%w: sst %s footer offsets inconsistent", common.ErrCorruptData, path)
	}

	bloomBytes := make([]byte, int64(fileSize)-4-int64(bloomOffset))
	if _, err := f.ReadAt(bloomBytes, int64(bloomOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sst bloom section: %v", common.ErrIO, err)
	}
	bloom, err := DecodeBloom(bloomBytes)
	if err != nil {
		f.Close()
		return nil, err
	}

	metaBytes := make([]byte, int64(bloomOffset)-4-int64(metaOffset))
	if _, err := f.ReadAt(metaBytes, int64(metaOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sst block meta: %v", common.ErrIO, err)
	}
	blockMeta, err := decodeBlockMeta(metaBytes)
	if err != nil {
		f.Close()
		return nil, err
	}

	var firstKey, lastKey []byte
	if len(blockMeta) > 0 {
		firstKey = blockMeta[0].FirstKey
		lastKey = blockMeta[len(blockMeta)-1].LastKey
	}

	return &SST{
		file:            f,
		path:            path,
		id:              id,
		blockMeta:       blockMeta,
		bloom:           bloom,
		firstKey:        firstKey,
		lastKey:         lastKey,
		blockMetaOffset: metaOffset,
		fileSize:        uint32(fileSize),
		cache:           cache,
	}, nil
}

func (s *SST) ID() uint64      { return s.id }
func (s *SST) FirstKey() []byte { return s.firstKey }
func (s *SST) LastKey() []byte  { return s.lastKey }
func (s *SST) NumBlocks() int   { return len(s.blockMeta) }

// MayContain reports whether the bloom filter admits the possibility key is
// present. A false return is a definitive negative.
func (s *SST) MayContain(key []byte) bool {
	return s.bloom.MayContain(hashKey(key))
}

// FindBlockIdx returns the index of the last block whose first key is <=
// key, i.e. the only block that could contain key.
func (s *SST) FindBlockIdx(key []byte) int {
	idx := sort.Search(len(s.blockMeta), func(i int) bool {
		return compareBytes(s.blockMeta[i].FirstKey, key) > 0
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

func (s *SST) blockRange(idx int) (start, end uint32) {
	start = s.blockMeta[idx].Offset
	if idx+1 < len(s.blockMeta) {
		end = s.blockMeta[idx+1].Offset
	} else {
		end = s.blockMetaOffset
	}
	return
}

// ReadBlock decodes the block at idx, consulting and populating the shared
// block cache when one is attached.
func (s *SST) ReadBlock(idx int) (*Block, error) {
	if idx < 0 || idx >= len(s.blockMeta) {
		return nil, fmt.Errorf("%w: block index %d out of range", common.ErrCorruptData, idx)
	}
	if s.cache != nil {
		if blk, ok := s.cache.Get(s.id, idx); ok {
			return blk, nil
		}
	}
	start, end := s.blockRange(idx)
	raw := make([]byte, end-start)
	if _, err := s.file.ReadAt(raw, int64(start)); err != nil {
		return nil, fmt.Errorf("%w: read block %d of sst %s: %v", common.ErrIO, idx, s.path, err)
	}
	blk, err := DecodeBlock(raw)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(s.id, idx, blk)
	}
	return blk, nil
}

// Get performs a point lookup, returning the raw stored value (which may be
// a zero-length tombstone) and whether the key is present at all.
func (s *SST) Get(key []byte) (value []byte, found bool, err error) {
	if !s.MayContain(key) {
		return nil, false, nil
	}
	idx := s.FindBlockIdx(key)
	if idx >= len(s.blockMeta) {
		return nil, false, nil
	}
	blk, err := s.ReadBlock(idx)
	if err != nil {
		return nil, false, err
	}
	it := NewBlockIterator(blk)
	it.SeekToKey(key)
	if it.Err() != nil {
		return nil, false, it.Err()
	}
	if !it.IsValid() || compareBytes(it.Key(), key) != 0 {
		return nil, false, nil
	}
	return it.Value(), true, nil
}

// Close releases the underlying file handle, evicting any cached blocks.
func (s *SST) Close() error {
	if s.cache != nil {
		s.cache.EvictSST(s.id)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close sst %s: %v", common.ErrIO, s.path, err)
	}
	return nil
}

// Remove closes and deletes the SST file.
func (s *SST) Remove() error {
	s.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove sst %s: %v", common.ErrIO, s.path, err)
	}
	return nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
