package hashindex

import (
	"fmt"

	"storageengine/storage_engine/pageguard"
	"storageengine/types"
)

// VerifyIntegrity walks every header slot, directory, and bucket and
// checks the structural invariants a correctly-maintained table must
// hold: every directory's local depths stay within [0, global_depth],
// every directory slot pointing at a given bucket id agrees on that
// bucket's local depth, and every key in a bucket hashes to the low
// local_depth bits that bucket's directory slots claim for it. It is
// test-only tooling, not part of the read/write hot path — it acquires
// a read latch on every page it visits, one at a time.
func (t *Table[K, V]) VerifyIntegrity() error {
	hg, ok := pageguard.FetchRead(t.bp, t.headerPageID)
	if !ok {
		return fmt.Errorf("hashindex: cannot fetch header page %d", t.headerPageID)
	}
	hp := newHeaderPage(hg.Data())
	maxHeader := hp.MaxSize()
	dirIDs := make([]types.PageID, 0, maxHeader)
	for h := uint32(0); h < maxHeader; h++ {
		if id := hp.DirectoryPageID(h); id != types.InvalidPageID {
			dirIDs = append(dirIDs, id)
		}
	}
	hg.Drop()

	for _, dirID := range dirIDs {
		if err := t.verifyDirectory(dirID); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[K, V]) verifyDirectory(dirID types.PageID) error {
	dg, ok := pageguard.FetchRead(t.bp, dirID)
	if !ok {
		return fmt.Errorf("hashindex: cannot fetch directory page %d", dirID)
	}
	dp := newDirectoryPage(dg.Data())
	globalDepth := dp.GlobalDepth()
	size := dp.Size()

	seenDepth := make(map[types.PageID]uint8)
	canonical := make(map[types.PageID]uint32)
	for i := uint32(0); i < size; i++ {
		localDepth := dp.LocalDepth(i)
		if localDepth > uint8(globalDepth) {
			dg.Drop()
			return fmt.Errorf("hashindex: directory %d slot %d has local depth %d exceeding global depth %d", dirID, i, localDepth, globalDepth)
		}
		bucketID := dp.BucketPageID(i)
		if bucketID == types.InvalidPageID {
			continue
		}
		if prev, ok := seenDepth[bucketID]; ok && prev != localDepth {
			dg.Drop()
			return fmt.Errorf("hashindex: bucket %d has inconsistent local depth across directory slots (%d vs %d)", bucketID, prev, localDepth)
		}
		seenDepth[bucketID] = localDepth
		if dp.isCanonical(i) {
			canonical[bucketID] = i
		}
	}
	dg.Drop()

	for bucketID, idx := range canonical {
		if err := t.verifyBucket(bucketID, idx, seenDepth[bucketID]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[K, V]) verifyBucket(bucketID types.PageID, idx uint32, localDepth uint8) error {
	bg, ok := pageguard.FetchRead(t.bp, bucketID)
	if !ok {
		return fmt.Errorf("hashindex: cannot fetch bucket page %d", bucketID)
	}
	defer bg.Drop()
	bucket := t.bucketView(bg.Data())
	mask := maskForDepth(localDepth)
	want := idx & mask
	n := bucket.Size()
	for i := uint32(0); i < n; i++ {
		key := bucket.KeyAt(i)
		got := t.hashFn(key) & mask
		if got != want {
			return fmt.Errorf("hashindex: bucket %d key hashes to directory signature %d, expected %d (local depth %d)", bucketID, got, want, localDepth)
		}
	}
	return nil
}
