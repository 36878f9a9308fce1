package hashindex

import (
	"storageengine/storage_engine/pageguard"
	"storageengine/types"
)

// Iterator walks every (key, value) pair in index order: header slot,
// then directory slot (skipping non-canonical mirrors of an
// already-visited bucket), then bucket entry. While seeking it holds the
// read latches of one header -> directory -> bucket path at a time (never
// two buckets at once), and it holds none between calls — it trades strict
// snapshot isolation for simplicity, so a concurrent Insert/Remove may
// or may not be reflected in pairs the iterator has not yet reached.
type Iterator[K comparable, V any] struct {
	t *Table[K, V]

	headerIdx uint32
	dirID     types.PageID
	dirIdx    uint32
	entryIdx  uint32
	keys      []K
	vals      []V
	end       bool
}

// Iterator returns a cursor positioned at the first entry, or already at
// end if the table is empty.
func (t *Table[K, V]) Iterator() *Iterator[K, V] {
	it := &Iterator[K, V]{t: t}
	it.seekHeader(0)
	return it
}

func (it *Iterator[K, V]) seekHeader(from uint32) {
	hg, ok := pageguard.FetchRead(it.t.bp, it.t.headerPageID)
	if !ok {
		it.end = true
		return
	}
	hp := newHeaderPage(hg.Data())
	maxHeader := hp.MaxSize()
	for h := from; h < maxHeader; h++ {
		dirID := hp.DirectoryPageID(h)
		if dirID == types.InvalidPageID {
			continue
		}
		if it.seekDirectory(dirID, 0) {
			it.headerIdx = h
			hg.Drop()
			return
		}
	}
	hg.Drop()
	it.end = true
}

func (it *Iterator[K, V]) seekDirectory(dirID types.PageID, from uint32) bool {
	dg, ok := pageguard.FetchRead(it.t.bp, dirID)
	if !ok {
		return false
	}
	dp := newDirectoryPage(dg.Data())
	size := dp.Size()
	for i := from; i < size; i++ {
		if !dp.isCanonical(i) {
			continue
		}
		bucketID := dp.BucketPageID(i)
		if bucketID == types.InvalidPageID {
			continue
		}
		if it.loadBucket(bucketID) {
			it.dirID = dirID
			it.dirIdx = i
			it.entryIdx = 0
			dg.Drop()
			return true
		}
	}
	dg.Drop()
	return false
}

func (it *Iterator[K, V]) loadBucket(bucketID types.PageID) bool {
	bg, ok := pageguard.FetchRead(it.t.bp, bucketID)
	if !ok {
		return false
	}
	bucket := it.t.bucketView(bg.Data())
	n := bucket.Size()
	if n == 0 {
		bg.Drop()
		return false
	}
	keys := make([]K, n)
	vals := make([]V, n)
	for i := uint32(0); i < n; i++ {
		keys[i], vals[i] = bucket.EntryAt(i)
	}
	bg.Drop()
	it.keys, it.vals = keys, vals
	return true
}

// IsEnd reports whether the iterator has exhausted every entry.
func (it *Iterator[K, V]) IsEnd() bool { return it.end }

// Key returns the current entry's key. Undefined if IsEnd is true.
func (it *Iterator[K, V]) Key() K { return it.keys[it.entryIdx] }

// Value returns the current entry's value. Undefined if IsEnd is true.
func (it *Iterator[K, V]) Value() V { return it.vals[it.entryIdx] }

// Next advances to the next entry, re-acquiring whatever latches it
// needs to find it and releasing them before returning.
func (it *Iterator[K, V]) Next() {
	if it.end {
		return
	}
	it.entryIdx++
	if it.entryIdx < uint32(len(it.keys)) {
		return
	}
	if it.seekDirectory(it.dirID, it.dirIdx+1) {
		return
	}
	it.seekHeader(it.headerIdx + 1)
}
