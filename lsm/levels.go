package lsm

import (
	"fmt"
	"os"

	"github.com/intellect4all/storage-engines/common"
)

// syncDir fsyncs a directory so a preceding file create/rename is durable
// even across a crash, not just the file's own fsync.
func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open dir %s: %v", common.ErrIO, path, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("%w: sync dir %s: %v", common.ErrIO, path, err)
	}
	return nil
}

// numFilesAtLevel reports how many SSTs currently sit at levelID (0 for
// L0), for stats and tests.
func numFilesAtLevel(s *State, levelID int) int {
	if levelID == 0 {
		return len(s.l0)
	}
	for _, l := range s.levels {
		if int(l.id) == levelID {
			return len(l.ssts)
		}
	}
	return 0
}

// totalSSTCount reports the number of SSTs across L0 and every level/tier.
func totalSSTCount(s *State) int {
	n := len(s.l0)
	for _, l := range s.levels {
		n += len(l.ssts)
	}
	return n
}

// totalDiskSize sums the on-disk size of every live SST.
func totalDiskSize(s *State) int64 {
	var total int64
	for _, sst := range s.sstables {
		total += int64(sst.fileSize)
	}
	return total
}
