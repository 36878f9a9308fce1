package bufferpool

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"storageengine/storage_engine/diskmanager"
	"storageengine/storage_engine/diskscheduler"
	"storageengine/storage_engine/page"
	"storageengine/storage_engine/replacer"
	"storageengine/types"
)

/*
This file is the main file of the buffer pool manager.

The pool owns a fixed array of frames. A page is resident iff it appears
in pageTable, mapping its id to the frame holding it. Frames leave the
free list on first use and never return except via DeletePage; once the
free list is empty, new residents are admitted only by evicting a frame
the LRU-K replacer reports as evictable.
*/

// New builds a BufferPool of cfg.PoolSize frames backed by disk, spawning
// the disk scheduler's worker goroutine.
func New(disk *diskmanager.DiskManager, cfg Config) (*BufferPool, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("bufferpool: pool size must be positive, got %d", cfg.PoolSize)
	}
	if cfg.ReplacerK <= 0 {
		return nil, fmt.Errorf("bufferpool: replacer K must be positive, got %d", cfg.ReplacerK)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	freeList := make([]types.FrameID, cfg.PoolSize)
	for i := range freeList {
		freeList[i] = types.FrameID(i)
	}

	bp := &BufferPool{
		frames:    make([]*page.Page, cfg.PoolSize),
		freeList:  freeList,
		pageTable: make(map[types.PageID]types.FrameID, cfg.PoolSize),
		replacer:  replacer.New(cfg.ReplacerK),
		scheduler: diskscheduler.New(disk, log, cfg.Metrics),
		disk:      disk,
		log:       log,
		metrics:   cfg.Metrics,
	}

	if cfg.WarmCacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[int32, []byte]{
			NumCounters: int64(cfg.PoolSize) * 50,
			MaxCost:     cfg.WarmCacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("bufferpool: warm cache: %w", err)
		}
		bp.warmCache = cache
	}

	return bp, nil
}

// Close shuts down the disk scheduler's worker. It does not flush.
func (bp *BufferPool) Close() {
	bp.scheduler.Close()
	if bp.warmCache != nil {
		bp.warmCache.Close()
	}
}

// NewPage allocates a fresh page id, installs it in a victim frame, and
// returns it pinned and marked dirty (its contents exist only in memory
// until flushed). Returns ok=false if the pool is exhausted — every
// frame is pinned and the free list is empty.
func (bp *BufferPool) NewPage() (*page.Page, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.findVictim()
	if !ok {
		bp.log.Debug("NewPage: pool exhausted")
		return nil, false
	}

	id := bp.disk.AllocatePage()
	pg := bp.installFrame(frame, id)
	pg.IsDirty = true
	pg.PinCount = 1
	bp.replacer.RecordAccess(frame, replacer.AccessLookup)
	bp.replacer.SetEvictable(frame, false)

	bp.log.Debug("NewPage", zap.Int32("page_id", int32(id)), zap.Int32("frame_id", int32(frame)))
	return pg, true
}

// FetchPage returns the requested page pinned, loading it from disk if it
// is not already resident. Returns ok=false if the page is not resident
// and no frame can be freed for it.
func (bp *BufferPool) FetchPage(id types.PageID, accessType replacer.AccessType) (*page.Page, bool) {
	bp.mu.Lock()

	if frame, resident := bp.pageTable[id]; resident {
		pg := bp.frames[frame]
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		bp.replacer.RecordAccess(frame, accessType)
		bp.replacer.SetEvictable(frame, false)
		bp.mu.Unlock()
		bp.metrics.Hit()
		bp.log.Debug("FetchPage HIT", zap.Int32("page_id", int32(id)))
		return pg, true
	}

	bp.metrics.Miss()
	if bp.warmCache != nil {
		if data, found := bp.warmCache.Get(int32(id)); found {
			frame, ok := bp.findVictim()
			if !ok {
				bp.mu.Unlock()
				return nil, false
			}
			pg := bp.installFrame(frame, id)
			copy(pg.Data, data)
			pg.PinCount = 1
			bp.replacer.RecordAccess(frame, accessType)
			bp.replacer.SetEvictable(frame, false)
			bp.metrics.WarmHit()
			bp.log.Debug("FetchPage WARM HIT", zap.Int32("page_id", int32(id)))
			bp.mu.Unlock()
			return pg, true
		}
	}

	frame, ok := bp.findVictim()
	if !ok {
		bp.mu.Unlock()
		bp.log.Debug("FetchPage MISS: pool exhausted", zap.Int32("page_id", int32(id)))
		return nil, false
	}
	pg := bp.installFrame(frame, id)
	pg.PinCount = 1
	bp.mu.Unlock()

	done := make(chan error, 1)
	bp.scheduler.Schedule(&diskscheduler.Request{PageID: id, Data: pg.Data, Done: done})
	if err := <-done; err != nil {
		bp.log.Warn("FetchPage: disk read failed", zap.Int32("page_id", int32(id)), zap.Error(err))
	}

	bp.mu.Lock()
	bp.replacer.RecordAccess(frame, accessType)
	bp.replacer.SetEvictable(frame, false)
	bp.mu.Unlock()

	bp.log.Debug("FetchPage MISS loaded", zap.Int32("page_id", int32(id)))
	return pg, true
}

// UnpinPage decrements the page's pin count, ORing isDirty into its dirty
// flag (dirty is sticky: only a flush clears it). When the pin count
// reaches zero the frame becomes evictable. Returns false if the page is
// not resident or is already unpinned.
func (bp *BufferPool) UnpinPage(id types.PageID, isDirty bool, accessType replacer.AccessType) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, resident := bp.pageTable[id]
	if !resident {
		return false
	}
	pg := bp.frames[frame]

	pg.Lock()
	defer pg.Unlock()

	if pg.PinCount <= 0 {
		return false
	}
	pg.PinCount--
	if isDirty {
		pg.IsDirty = true
	}
	if pg.PinCount == 0 {
		bp.replacer.SetEvictable(frame, true)
	}
	return true
}

// FlushPage synchronously writes a resident page to disk and clears its
// dirty flag. Returns false if the page is not resident.
func (bp *BufferPool) FlushPage(id types.PageID) bool {
	bp.mu.Lock()
	frame, resident := bp.pageTable[id]
	if !resident {
		bp.mu.Unlock()
		return false
	}
	pg := bp.frames[frame]
	bp.mu.Unlock()

	bp.flushPageLocked(pg)
	return true
}

// FlushAllPages flushes every resident dirty page.
func (bp *BufferPool) FlushAllPages() {
	bp.mu.Lock()
	pages := make([]*page.Page, 0, len(bp.pageTable))
	for _, frame := range bp.pageTable {
		pages = append(pages, bp.frames[frame])
	}
	bp.mu.Unlock()

	for _, pg := range pages {
		bp.flushPageLocked(pg)
	}
}

// flushPageLocked performs the actual synchronous write-through. It does
// not hold bp.mu — only the page's own lock — so concurrent flushes of
// different pages can proceed in parallel.
func (bp *BufferPool) flushPageLocked(pg *page.Page) {
	pg.Lock()
	if !pg.IsDirty {
		pg.Unlock()
		return
	}
	id := pg.ID
	pg.Unlock()

	done := make(chan error, 1)
	bp.scheduler.Schedule(&diskscheduler.Request{IsWrite: true, PageID: id, Data: pg.Data, Done: done})
	err := <-done

	pg.Lock()
	if err == nil {
		pg.IsDirty = false
	} else {
		bp.log.Warn("FlushPage: write failed", zap.Int32("page_id", int32(id)), zap.Error(err))
	}
	pg.Unlock()
}

// DeletePage evicts a resident, unpinned page outright and tells the disk
// manager to deallocate its id. A pinned page cannot be deleted. An
// absent page is a no-op success.
func (bp *BufferPool) DeletePage(id types.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, resident := bp.pageTable[id]
	if !resident {
		return true
	}
	pg := bp.frames[frame]

	pg.Lock()
	pinned := pg.PinCount > 0
	pg.Unlock()
	if pinned {
		return false
	}

	bp.replacer.Remove(frame)
	delete(bp.pageTable, id)
	bp.frames[frame] = nil
	bp.freeList = append(bp.freeList, frame)
	if bp.warmCache != nil {
		bp.warmCache.Del(int32(id))
	}
	bp.disk.DeallocatePage(id)

	bp.log.Debug("DeletePage", zap.Int32("page_id", int32(id)))
	return true
}

// findVictim returns a frame ready for a new resident: from the free
// list if one is available, else by evicting the replacer's chosen
// victim (flushing it first if dirty, stashing it in the warm cache if
// configured). Must be called with bp.mu held.
func (bp *BufferPool) findVictim() (types.FrameID, bool) {
	if n := len(bp.freeList); n > 0 {
		frame := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frame, true
	}

	frame, ok := bp.replacer.Evict()
	if !ok {
		return 0, false
	}
	bp.metrics.Evict()

	victim := bp.frames[frame]
	if victim != nil {
		if victim.IsDirty {
			bp.flushVictimLocked(victim)
		}
		if bp.warmCache != nil {
			data := make([]byte, len(victim.Data))
			copy(data, victim.Data)
			bp.warmCache.Set(int32(victim.ID), data, int64(len(data)))
		}
		delete(bp.pageTable, victim.ID)
	}
	return frame, true
}

// flushVictimLocked flushes a dirty victim while bp.mu is held by the
// caller. This blocks the pool during eviction of a dirty frame, which
// the reference design accepts in exchange for the mutex's simplicity.
func (bp *BufferPool) flushVictimLocked(pg *page.Page) {
	done := make(chan error, 1)
	bp.scheduler.Schedule(&diskscheduler.Request{IsWrite: true, PageID: pg.ID, Data: pg.Data, Done: done})
	if err := <-done; err != nil {
		bp.log.Warn("eviction flush failed", zap.Int32("page_id", int32(pg.ID)), zap.Error(err))
		return
	}
	pg.IsDirty = false
}

// installFrame places a fresh or reused Page for id into frame and
// records it in the page table. Must be called with bp.mu held.
func (bp *BufferPool) installFrame(frame types.FrameID, id types.PageID) *page.Page {
	pg := bp.frames[frame]
	if pg == nil {
		pg = page.New(id)
		bp.frames[frame] = pg
	} else {
		pg.Reset(id)
	}
	bp.pageTable[id] = frame
	return pg
}

// Stats reports a snapshot of pool occupancy.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	s := Stats{PoolSize: len(bp.frames), Resident: len(bp.pageTable), FreeFrames: len(bp.freeList)}
	for _, frame := range bp.pageTable {
		pg := bp.frames[frame]
		pg.RLock()
		if pg.PinCount > 0 {
			s.PinnedPages++
		}
		if pg.IsDirty {
			s.DirtyPages++
		}
		pg.RUnlock()
	}
	return s
}
