package lsm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/intellect4all/storage-engines/common"
)

// WAL is the write-ahead log backing a single memtable. Records are framed
// as:
//
//	[key_len u16 BE][key][val_len u16 BE][value]
//
// A zero-length value denotes a tombstone. Records carry no checksum: a
// torn write at the tail is detected by truncated framing during replay and
// simply ends recovery at the last complete record.
type WAL struct {
	file *os.File
	path string
}

// CreateWAL creates (or truncates) the WAL file at path.
func CreateWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create wal %s: %v", common.ErrIO, path, err)
	}
	return &WAL{file: f, path: path}, nil
}

// Append writes one record and does not itself fsync; call Sync for that.
func (w *WAL) Append(key, value []byte) error {
	buf := make([]byte, 0, 4+len(key)+len(value))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(key)))
	buf = append(buf, key...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	buf = append(buf, value...)
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("%w: append wal record: %v", common.ErrIO, err)
	}
	return nil
}

// Sync flushes the WAL file to stable storage.
func (w *WAL) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync wal: %v", common.ErrIO, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close wal: %v", common.ErrIO, err)
	}
	return nil
}

// Remove closes and deletes the WAL file.
func (w *WAL) Remove() error {
	w.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove wal %s: %v", common.ErrIO, w.path, err)
	}
	return nil
}

// RecoverMemTableFromWAL replays path's records into a fresh memtable with
// the given id, reopening the file for further appends. If path does not
// exist a fresh WAL is created there.
func RecoverMemTableFromWAL(path string, id uint64) (*MemTable, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			wal, cerr := CreateWAL(path)
			if cerr != nil {
				return nil, cerr
			}
			mt := NewMemTable(id)
			mt.wal = wal
			return mt, nil
		}
		return nil, fmt.Errorf("%w: open wal %s: %v", common.ErrIO, path, err)
	}

	// Read directly off f, not through a bufio.Reader, so offset tracks
	// exactly how many bytes belong to complete records: a torn record at
	// the tail (a crash mid-Append) must be truncated away before further
	// appends, or it would wedge between good records and the next
	// recovery would stop there, losing everything written after it.
	mt := NewMemTable(id)
	var offset int64
	for {
		var header [2]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			break
		}
		keyLen := binary.BigEndian.Uint16(header[:])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(f, key); err != nil {
			break
		}
		if _, err := io.ReadFull(f, header[:]); err != nil {
			break
		}
		valLen := binary.BigEndian.Uint16(header[:])
		value := make([]byte, valLen)
		if _, err := io.ReadFull(f, value); err != nil {
			break
		}
		mt.setRaw(key, value)
		offset += int64(4 + len(key) + len(value))
	}

	if err := f.Truncate(offset); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: truncate torn wal %s: %v", common.ErrIO, path, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek wal %s: %v", common.ErrIO, path, err)
	}
	mt.wal = &WAL{file: f, path: path}
	return mt, nil
}
