package lsm

import (
	"encoding/binary"
	"fmt"

	"github.com/intellect4all/storage-engines/common"
)

// Block is an immutable, bounded-size sequence of sorted, prefix-compressed
// key/value entries. The wire layout is:
//
//	[entry]*[offset u16 BE]*[entry_count u16 BE]
//
// The first entry stores its key in full; every later entry stores only the
// bytes of its key beyond the shared prefix with the block's first key.
type Block struct {
	data     []byte
	offsets  []uint16
	firstKey []byte
}

// Encode serializes the block to its on-disk byte layout.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, len(b.data)+2*len(b.offsets)+2)
	buf = append(buf, b.data...)
	for _, off := range b.offsets {
		buf = binary.BigEndian.AppendUint16(buf, off)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(b.offsets)))
	return buf
}

// DecodeBlock parses a block from its on-disk byte layout.
func DecodeBlock(raw []byte) (*Block, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: block shorter than trailer", common.ErrCorruptData)
	}
	n := binary.BigEndian.Uint16(raw[len(raw)-2:])
	need := 2 + int(n)*2
	if len(raw) < need {
		return nil, fmt.Errorf("%w: block offset array truncated", common.ErrCorruptData)
	}
	offBase := len(raw) - need
	offsets := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		offsets[i] = binary.BigEndian.Uint16(raw[offBase+2*i:])
	}
	data := raw[:offBase]
	blk := &Block{data: data, offsets: offsets}
	if n > 0 {
		key, _, err := decodeEntryAt(data, nil, int(offsets[0]), true)
		if err != nil {
			return nil, err
		}
		blk.firstKey = key
	}
	return blk, nil
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// decodeEntryAt decodes the entry stored at byte offset off within data. For
// the first entry (isFirst == true) firstKey is ignored and may be nil.
func decodeEntryAt(data []byte, firstKey []byte, off int, isFirst bool) (key, value []byte, err error) {
	if isFirst {
		if off+2 > len(data) {
			return nil, nil, fmt.Errorf("%w: block entry header truncated", common.ErrCorruptData)
		}
		keyLen := int(binary.BigEndian.Uint16(data[off:]))
		p := off + 2
		if p+keyLen+2 > len(data) {
			return nil, nil, fmt.Errorf("%w: block entry key truncated", common.ErrCorruptData)
		}
		key = data[p : p+keyLen]
		p += keyLen
		valLen := int(binary.BigEndian.Uint16(data[p:]))
		p += 2
		if p+valLen > len(data) {
			return nil, nil, fmt.Errorf("%w: block entry value truncated", common.ErrCorruptData)
		}
		value = data[p : p+valLen]
		return key, value, nil
	}
	if off+4 > len(data) {
		return nil, nil, fmt.Errorf("%w: block entry header truncated", common.ErrCorruptData)
	}
	prefixLen := int(binary.BigEndian.Uint16(data[off:]))
	restLen := int(binary.BigEndian.Uint16(data[off+2:]))
	p := off + 4
	if p+restLen+2 > len(data) || prefixLen > len(firstKey) {
		return nil, nil, fmt.Errorf("%w: block entry key truncated", common.ErrCorruptData)
	}
	rest := data[p : p+restLen]
	key = make([]byte, 0, prefixLen+restLen)
	key = append(key, firstKey[:prefixLen]...)
	key = append(key, rest...)
	p += restLen
	valLen := int(binary.BigEndian.Uint16(data[p:]))
	p += 2
	if p+valLen > len(data) {
		return nil, nil, fmt.Errorf("%w: block entry value truncated", common.ErrCorruptData)
	}
	value = data[p : p+valLen]
	return key, value, nil
}

func (b *Block) entryAt(idx int) (key, value []byte, err error) {
	off := int(b.offsets[idx])
	return decodeEntryAt(b.data, b.firstKey, off, idx == 0)
}
