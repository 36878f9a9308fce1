// Package hashindex implements a disk-resident extendible hash index: a
// three-tier header -> directory -> bucket page structure, addressed
// through a buffer pool via latch-crabbing page guards.
package hashindex

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storageengine/storage_engine/bufferpool"
	"storageengine/storage_engine/pageguard"
	"storageengine/types"
)

// Config configures a new Table. A zero Config is usable; Name becomes a
// generated uuid and the depths default to their maximums.
type Config struct {
	Name              string
	HeaderMaxDepth    uint32
	DirectoryMaxDepth uint32
	Logger            *zap.Logger
}

// Table is a generic disk-resident extendible hash index over a buffer
// pool. K must be comparable (built-in equality is used for key lookup);
// both K and V must have a fixed-width Codec.
type Table[K comparable, V any] struct {
	bp           *bufferpool.BufferPool
	headerPageID types.PageID
	keyCodec     Codec[K]
	valCodec     Codec[V]
	hashFn       func(K) uint32
	name         string
	dirMaxDepth  uint32
	log          *zap.Logger
}

// New allocates a fresh header page and returns a Table backed by it.
func New[K comparable, V any](bp *bufferpool.BufferPool, keyCodec Codec[K], valCodec Codec[V], hashFn func(K) uint32, cfg Config) (*Table[K, V], error) {
	name := cfg.Name
	if name == "" {
		name = "htable-" + uuid.NewString()
	}
	headerMaxDepth := cfg.HeaderMaxDepth
	if headerMaxDepth == 0 || headerMaxDepth > HeaderMaxDepth {
		headerMaxDepth = HeaderMaxDepth
	}
	dirMaxDepth := cfg.DirectoryMaxDepth
	if dirMaxDepth == 0 || dirMaxDepth > DirectoryMaxDepth {
		dirMaxDepth = DirectoryMaxDepth
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	guard, headerID, ok := pageguard.NewGuarded(bp)
	if !ok {
		return nil, ErrPoolExhausted
	}
	hp := newHeaderPage(guard.Data())
	hp.Init(headerMaxDepth)
	guard.Drop()

	log.Debug("hashindex created", zap.String("name", name), zap.Int32("header_page_id", int32(headerID)))

	return &Table[K, V]{
		bp:           bp,
		headerPageID: headerID,
		keyCodec:     keyCodec,
		valCodec:     valCodec,
		hashFn:       hashFn,
		name:         name,
		dirMaxDepth:  dirMaxDepth,
		log:          log,
	}, nil
}

// Open rebuilds a Table handle around an existing header page, as
// recovered from diskmanager.ReadHeaderPageID.
func Open[K comparable, V any](bp *bufferpool.BufferPool, headerPageID types.PageID, keyCodec Codec[K], valCodec Codec[V], hashFn func(K) uint32, cfg Config) *Table[K, V] {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dirMaxDepth := cfg.DirectoryMaxDepth
	if dirMaxDepth == 0 || dirMaxDepth > DirectoryMaxDepth {
		dirMaxDepth = DirectoryMaxDepth
	}
	name := cfg.Name
	if name == "" {
		name = "htable-" + uuid.NewString()
	}
	return &Table[K, V]{
		bp:           bp,
		headerPageID: headerPageID,
		keyCodec:     keyCodec,
		valCodec:     valCodec,
		hashFn:       hashFn,
		name:         name,
		dirMaxDepth:  dirMaxDepth,
		log:          log,
	}
}

// HeaderPageID returns the page id callers should persist (e.g. via
// diskmanager.WriteHeaderPageID) to reopen this table later.
func (t *Table[K, V]) HeaderPageID() types.PageID { return t.headerPageID }

// Name returns the table's identifying name.
func (t *Table[K, V]) Name() string { return t.name }

func (t *Table[K, V]) bucketView(data []byte) *bucketPage[K, V] {
	return newBucketPage[K, V](data, t.keyCodec, t.valCodec)
}

// GetValue looks up key, crabbing read latches header -> directory ->
// bucket, releasing each as soon as the next is acquired.
func (t *Table[K, V]) GetValue(key K) (V, bool) {
	var zero V
	hash := t.hashFn(key)

	hg, ok := pageguard.FetchRead(t.bp, t.headerPageID)
	if !ok {
		return zero, false
	}
	hp := newHeaderPage(hg.Data())
	dirID := hp.DirectoryPageID(hp.HashToDirectoryIndex(hash))
	hg.Drop()
	if dirID == types.InvalidPageID {
		return zero, false
	}

	dg, ok := pageguard.FetchRead(t.bp, dirID)
	if !ok {
		return zero, false
	}
	dp := newDirectoryPage(dg.Data())
	bucketID := dp.BucketPageID(dp.HashToBucketIndex(hash))
	dg.Drop()
	if bucketID == types.InvalidPageID {
		return zero, false
	}

	bg, ok := pageguard.FetchRead(t.bp, bucketID)
	if !ok {
		return zero, false
	}
	defer bg.Drop()
	return t.bucketView(bg.Data()).Lookup(key)
}

// Insert adds (key, value), growing the directory and splitting buckets
// as needed. Returns (false, ErrDuplicateKey) if key is already present,
// (false, ErrPoolExhausted) if a needed frame could not be obtained, and
// (false, ErrDirectoryFull) if a split would need to exceed the
// configured max depth.
func (t *Table[K, V]) Insert(key K, value V) (bool, error) {
	hash := t.hashFn(key)

	hg, ok := pageguard.FetchWrite(t.bp, t.headerPageID)
	if !ok {
		return false, ErrPoolExhausted
	}
	hp := newHeaderPage(hg.Data())
	dirIdx := hp.HashToDirectoryIndex(hash)
	dirID := hp.DirectoryPageID(dirIdx)

	if dirID == types.InvalidPageID {
		ok, err := t.insertToNewDirectory(hp, dirIdx, hash, key, value)
		hg.Drop()
		return ok, err
	}
	hg.Drop()

	dg, ok := pageguard.FetchWrite(t.bp, dirID)
	if !ok {
		return false, ErrPoolExhausted
	}
	dp := newDirectoryPage(dg.Data())
	bucketIdx := dp.HashToBucketIndex(hash)
	bucketID := dp.BucketPageID(bucketIdx)

	if bucketID == types.InvalidPageID {
		ok, err := t.insertToNewBucket(dp, bucketIdx, key, value)
		dg.Drop()
		return ok, err
	}

	bg, ok := pageguard.FetchWrite(t.bp, bucketID)
	if !ok {
		dg.Drop()
		return false, ErrPoolExhausted
	}
	bucket := t.bucketView(bg.Data())

	if _, found := bucket.Lookup(key); found {
		bg.Drop()
		dg.Drop()
		return false, ErrDuplicateKey
	}

	if bucket.Insert(key, value) {
		bg.Drop()
		dg.Drop()
		return true, nil
	}

	ok2, err := t.splitAndInsert(dp, dg, bucketIdx, bucketID, bg, key, value)
	return ok2, err
}

func (t *Table[K, V]) insertToNewDirectory(hp *headerPage, dirIdx uint32, hash uint32, key K, value V) (bool, error) {
	dg, dirID, ok := pageguard.NewGuarded(t.bp)
	if !ok {
		return false, ErrPoolExhausted
	}
	dp := newDirectoryPage(dg.Data())
	dp.Init(t.dirMaxDepth)
	hp.SetDirectoryPageID(dirIdx, dirID)

	ok2, err := t.insertToNewBucket(dp, dp.HashToBucketIndex(hash), key, value)
	dg.Drop()
	return ok2, err
}

func (t *Table[K, V]) insertToNewBucket(dp *directoryPage, bucketIdx uint32, key K, value V) (bool, error) {
	bg, bucketID, ok := pageguard.NewGuarded(t.bp)
	if !ok {
		return false, ErrPoolExhausted
	}
	bucket := t.bucketView(bg.Data())
	bucket.Init()
	bucket.Insert(key, value)
	dp.SetBucketPageID(bucketIdx, bucketID)
	dp.SetLocalDepth(bucketIdx, 0)
	bg.Drop()
	return true, nil
}

// splitAndInsert handles a full-bucket insert: grows the directory if
// the bucket's local depth has caught up to global depth, allocates a
// sibling bucket, redistributes the old bucket's entries by the newly
// significant hash bit, and inserts (key, value) into whichever bucket
// now claims it. It owns dg and bg and always drops both before
// returning.
func (t *Table[K, V]) splitAndInsert(dp *directoryPage, dg pageguard.Write, bucketIdx uint32, bucketID types.PageID, bg pageguard.Write, key K, value V) (bool, error) {
	localDepth := dp.LocalDepth(bucketIdx)
	globalDepth := dp.GlobalDepth()

	if localDepth == uint8(globalDepth) {
		if globalDepth >= dp.MaxDepth() {
			bg.Drop()
			dg.Drop()
			return false, ErrDirectoryFull
		}
		dp.IncrGlobalDepth()
	}

	newGuard, newBucketID, ok := pageguard.NewGuarded(t.bp)
	if !ok {
		bg.Drop()
		dg.Drop()
		return false, ErrPoolExhausted
	}
	newBucket := t.bucketView(newGuard.Data())
	newBucket.Init()

	newLocalDepth := localDepth + 1
	oldMask := maskForDepth(localDepth)
	oldSig := bucketIdx & oldMask
	newBit := uint32(1) << localDepth

	size := dp.Size()
	for i := uint32(0); i < size; i++ {
		if i&oldMask != oldSig {
			continue
		}
		dp.SetLocalDepth(i, newLocalDepth)
		if i&newBit != 0 {
			dp.SetBucketPageID(i, newBucketID)
		}
	}

	oldBucket := t.bucketView(bg.Data())
	n := oldBucket.Size()
	keys := make([]K, n)
	vals := make([]V, n)
	for i := uint32(0); i < n; i++ {
		keys[i], vals[i] = oldBucket.EntryAt(i)
	}
	oldBucket.Init()
	for i := range keys {
		if t.hashFn(keys[i])&newBit != 0 {
			newBucket.Insert(keys[i], vals[i])
		} else {
			oldBucket.Insert(keys[i], vals[i])
		}
	}

	var inserted bool
	if t.hashFn(key)&newBit != 0 {
		inserted = newBucket.Insert(key, value)
	} else {
		inserted = oldBucket.Insert(key, value)
	}

	newGuard.Drop()
	bg.Drop()
	dg.Drop()

	if !inserted {
		return false, ErrSplitStuck
	}
	return true, nil
}

// Remove deletes key, then merges the now-possibly-empty bucket with its
// split sibling repeatedly, shrinking the directory where every slot
// permits it.
func (t *Table[K, V]) Remove(key K) bool {
	hash := t.hashFn(key)

	hg, ok := pageguard.FetchWrite(t.bp, t.headerPageID)
	if !ok {
		return false
	}
	hp := newHeaderPage(hg.Data())
	dirID := hp.DirectoryPageID(hp.HashToDirectoryIndex(hash))
	hg.Drop()
	if dirID == types.InvalidPageID {
		return false
	}

	dg, ok := pageguard.FetchWrite(t.bp, dirID)
	if !ok {
		return false
	}
	defer dg.Drop()
	dp := newDirectoryPage(dg.Data())

	bucketIdx := dp.HashToBucketIndex(hash)
	bucketID := dp.BucketPageID(bucketIdx)
	if bucketID == types.InvalidPageID {
		return false
	}

	bg, ok := pageguard.FetchWrite(t.bp, bucketID)
	if !ok {
		return false
	}
	bucket := t.bucketView(bg.Data())
	if !bucket.Remove(key) {
		bg.Drop()
		return false
	}

	t.mergeFrom(dp, bucketIdx, bucketID, bg)
	return true
}

// mergeFrom repeatedly merges an empty bucket into its split sibling. It
// takes ownership of cur (the current bucket's write guard) and drops
// every bucket guard it holds, cur included, before returning.
func (t *Table[K, V]) mergeFrom(dp *directoryPage, bucketIdx uint32, bucketID types.PageID, cur pageguard.Write) {
	for {
		localDepth := dp.LocalDepth(bucketIdx)
		if localDepth == 0 {
			cur.Drop()
			return
		}

		siblingIdx := dp.GetSplitImageIndex(bucketIdx)
		siblingID := dp.BucketPageID(siblingIdx)
		if siblingID == bucketID || dp.LocalDepth(siblingIdx) != localDepth {
			cur.Drop()
			return
		}

		sg, ok := pageguard.FetchWrite(t.bp, siblingID)
		if !ok {
			cur.Drop()
			return
		}

		curEmpty := t.bucketView(cur.Data()).IsEmpty()
		siblingEmpty := t.bucketView(sg.Data()).IsEmpty()
		if !curEmpty && !siblingEmpty {
			cur.Drop()
			sg.Drop()
			return
		}

		var survivorID, eliminatedID types.PageID
		var survivorIdx uint32
		var survivorGuard, eliminatedGuard pageguard.Write
		if curEmpty {
			survivorID, survivorIdx, survivorGuard = siblingID, siblingIdx, sg
			eliminatedID, eliminatedGuard = bucketID, cur
		} else {
			survivorID, survivorIdx, survivorGuard = bucketID, bucketIdx, cur
			eliminatedID, eliminatedGuard = siblingID, sg
		}

		newLocalDepth := localDepth - 1
		mask := maskForDepth(newLocalDepth)
		sig := survivorIdx & mask
		size := dp.Size()
		for i := uint32(0); i < size; i++ {
			if i&mask == sig {
				dp.SetBucketPageID(i, survivorID)
				dp.SetLocalDepth(i, newLocalDepth)
			}
		}

		eliminatedGuard.Drop()
		t.bp.DeletePage(eliminatedID)

		if dp.CanShrink() {
			dp.DecrGlobalDepth()
		}

		// survivorIdx was valid in the pre-shrink directory; a shrink just
		// now may have made it exceed the new size, even though every slot
		// matching its signature (and hence still addressable) was
		// already repointed at survivorID above.
		bucketIdx, bucketID, cur = survivorIdx&dp.GlobalDepthMask(), survivorID, survivorGuard
	}
}
