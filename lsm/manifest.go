package lsm

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/intellect4all/storage-engines/common"
)

// CompactionRecord pairs the task that ran with the ids of the SSTs it
// produced, enough to replay the compaction's effect on State during
// recovery without re-running it.
type CompactionRecord struct {
	Task   CompactionTask `json:"task"`
	Output []uint64       `json:"output"`
}

// ManifestRecord is one line of the manifest log. Exactly one field is set.
type ManifestRecord struct {
	NewMemtable *uint64
	Flush       *uint64
	Compaction  *CompactionRecord
}

type manifestWire struct {
	NewMemtable *uint64           `json:"NewMemtable,omitempty"`
	Flush       *uint64           `json:"Flush,omitempty"`
	Compaction  *compactionWire   `json:"Compaction,omitempty"`
}

type compactionWire struct {
	Task   json.RawMessage `json:"task"`
	Output []uint64        `json:"output"`
}

// MarshalJSON encodes the record as a single-key tagged object, e.g.
// {"Flush":3} or {"Compaction":{"task":{...},"output":[...]}}.
func (r ManifestRecord) MarshalJSON() ([]byte, error) {
	w := manifestWire{NewMemtable: r.NewMemtable, Flush: r.Flush}
	if r.Compaction != nil {
		taskJSON, err := marshalCompactionTask(r.Compaction.Task)
		if err != nil {
			return nil, err
		}
		w.Compaction = &compactionWire{Task: taskJSON, Output: r.Compaction.Output}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged manifest record, resolving the Compaction
// task's concrete type from its embedded "kind" discriminator.
func (r *ManifestRecord) UnmarshalJSON(data []byte) error {
	var w manifestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: decode manifest record: %v", common.ErrCorruptData, err)
	}
	r.NewMemtable = w.NewMemtable
	r.Flush = w.Flush
	if w.Compaction != nil {
		task, err := unmarshalCompactionTask(w.Compaction.Task)
		if err != nil {
			return err
		}
		r.Compaction = &CompactionRecord{Task: task, Output: w.Compaction.Output}
	}
	return nil
}

// Manifest is the append-only log of state transitions that, replayed from
// the start, reconstructs the on-disk level hierarchy without needing to
// probe every SST's key range at startup.
type Manifest struct {
	mu   sync.Mutex
	file *os.File
}

// CreateManifest creates (or truncates) the manifest file at path.
func CreateManifest(path string) (*Manifest, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create manifest %s: %v", common.ErrIO, path, err)
	}
	return &Manifest{file: f}, nil
}

// RecoverManifest reads every record from path in order, then reopens the
// file in append mode for further writes. If path does not exist, an empty
// record set and a fresh manifest are returned.
func RecoverManifest(path string) ([]ManifestRecord, *Manifest, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			m, cerr := CreateManifest(path)
			if cerr != nil {
				return nil, nil, cerr
			}
			return nil, m, nil
		}
		return nil, nil, fmt.Errorf("%w: open manifest %s: %v", common.ErrIO, path, err)
	}

	var records []ManifestRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec ManifestRecord
		if err := dec.Decode(&rec); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%w: decode manifest record: %v", common.ErrCorruptData, err)
		}
		records = append(records, rec)
	}
	f.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reopen manifest %s: %v", common.ErrIO, path, err)
	}
	return records, &Manifest{file: out}, nil
}

// AddRecord appends rec and fsyncs the manifest file.
func (m *Manifest) AddRecord(rec ManifestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode manifest record: %v", common.ErrCorruptData, err)
	}
	data = append(data, '\n')
	if _, err := m.file.Write(data); err != nil {
		return fmt.Errorf("%w: append manifest record: %v", common.ErrIO, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync manifest: %v", common.ErrIO, err)
	}
	return nil
}

// Close closes the manifest file.
func (m *Manifest) Close() error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("%w: close manifest: %v", common.ErrIO, err)
	}
	return nil
}
