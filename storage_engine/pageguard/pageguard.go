// Package pageguard provides RAII-style scoped handles over buffer pool
// pages. Go has no destructors or move constructors, so ownership
// transfer is explicit: Drop() releases a guard's pin (idempotently —
// safe to call more than once, and safe on the zero value), and Move()
// hands the guard's pin to a new value while emptying the source. A
// guard that has been moved or dropped is inert; calling Drop on it
// again is a no-op, not an error.
//
// Every acquisition path returns an already-pinned guard (Read and Write
// guards are also already latched; Basic guards carry no latch); callers are
// expected to `defer guard.Drop()` (or transfer with Move()) on the very
// next line, exactly as they would in C++.
package pageguard

import (
	"storageengine/storage_engine/bufferpool"
	"storageengine/storage_engine/page"
	"storageengine/storage_engine/replacer"
	"storageengine/types"
)

// Basic holds a page's pin with no additional latch. It is the building
// block Read and Write wrap.
type Basic struct {
	bp *bufferpool.BufferPool
	pg *page.Page
	dirty bool
}

// FetchBasic pins id via bp, loading it from disk if necessary.
func FetchBasic(bp *bufferpool.BufferPool, id types.PageID) (Basic, bool) {
	pg, ok := bp.FetchPage(id, replacer.AccessLookup)
	if !ok {
		return Basic{}, false
	}
	return Basic{bp: bp, pg: pg}, true
}

// NewGuarded allocates a fresh page via bp and returns it already pinned
// and dirty.
func NewGuarded(bp *bufferpool.BufferPool) (Basic, types.PageID, bool) {
	pg, ok := bp.NewPage()
	if !ok {
		return Basic{}, types.InvalidPageID, false
	}
	return Basic{bp: bp, pg: pg, dirty: true}, pg.ID, true
}

// PageID returns the id of the held page, or InvalidPageID if the guard
// is empty.
func (g *Basic) PageID() types.PageID {
	if g.pg == nil {
		return types.InvalidPageID
	}
	return g.pg.ID
}

// Data exposes the held page's raw bytes. Callers writing through Data
// must call SetDirty(true) (or acquire a Write guard instead, which does
// this automatically).
func (g *Basic) Data() []byte {
	if g.pg == nil {
		return nil
	}
	return g.pg.Data
}

// SetDirty marks whether this guard's eventual unpin should mark the
// page dirty. Dirty is sticky: a false here never clears a dirty bit
// another holder already set.
func (g *Basic) SetDirty(dirty bool) { g.dirty = dirty }

// IsEmpty reports whether the guard currently holds no page (either
// never acquired, or already Dropped/Moved away).
func (g *Basic) IsEmpty() bool { return g.pg == nil }

// Drop releases the pin exactly once. Safe to call on an empty guard.
func (g *Basic) Drop() {
	if g.bp == nil || g.pg == nil {
		return
	}
	g.bp.UnpinPage(g.pg.ID, g.dirty, replacer.AccessUnknown)
	g.bp = nil
	g.pg = nil
}

// Move transfers ownership to the returned value and empties g. Moving
// an empty guard yields another empty guard.
func (g *Basic) Move() Basic {
	moved := Basic{bp: g.bp, pg: g.pg, dirty: g.dirty}
	g.bp = nil
	g.pg = nil
	return moved
}

// UpgradeRead converts this guard into a Read guard, acquiring the
// page's shared latch. The pin transfers without an intervening
// unpin/pin pair; g is emptied without Drop since ownership moved, not
// ended.
func (g *Basic) UpgradeRead() Read {
	bp, pg := g.bp, g.pg
	g.bp, g.pg = nil, nil
	if pg != nil {
		pg.RLock()
	}
	return Read{inner: Basic{bp: bp, pg: pg}}
}

// UpgradeWrite converts this guard into a Write guard, acquiring the
// page's exclusive latch, with the same ownership-transfer semantics as
// UpgradeRead.
func (g *Basic) UpgradeWrite() Write {
	bp, pg := g.bp, g.pg
	dirty := g.dirty
	g.bp, g.pg = nil, nil
	if pg != nil {
		pg.Lock()
	}
	return Write{inner: Basic{bp: bp, pg: pg, dirty: dirty}}
}

// Read holds a page's pin and its shared latch.
type Read struct {
	inner Basic
}

// FetchRead pins and read-latches id.
func FetchRead(bp *bufferpool.BufferPool, id types.PageID) (Read, bool) {
	pg, ok := bp.FetchPage(id, replacer.AccessLookup)
	if !ok {
		return Read{}, false
	}
	pg.RLock()
	return Read{inner: Basic{bp: bp, pg: pg}}, true
}

func (g *Read) PageID() types.PageID { return g.inner.PageID() }
func (g *Read) Data() []byte         { return g.inner.Data() }
func (g *Read) IsEmpty() bool        { return g.inner.IsEmpty() }

// Drop releases the shared latch then the pin, in that order, exactly
// once. Safe to call on an empty guard.
func (g *Read) Drop() {
	if g.inner.pg == nil {
		return
	}
	pg := g.inner.pg
	pg.RUnlock()
	g.inner.Drop()
}

func (g *Read) Move() Read {
	moved := Read{inner: g.inner.Move()}
	return moved
}

// Write holds a page's pin and its exclusive latch. Dropping a Write
// guard always marks the page dirty, regardless of SetDirty — any
// caller that acquired exclusive access is assumed to have mutated the
// page.
type Write struct {
	inner Basic
}

// FetchWrite pins and write-latches id.
func FetchWrite(bp *bufferpool.BufferPool, id types.PageID) (Write, bool) {
	pg, ok := bp.FetchPage(id, replacer.AccessLookup)
	if !ok {
		return Write{}, false
	}
	pg.Lock()
	return Write{inner: Basic{bp: bp, pg: pg}}, true
}

func (g *Write) PageID() types.PageID { return g.inner.PageID() }
func (g *Write) Data() []byte         { return g.inner.Data() }
func (g *Write) IsEmpty() bool        { return g.inner.IsEmpty() }

// Drop releases the exclusive latch then the pin, in that order, exactly
// once, marking the page dirty. Safe to call on an empty guard.
func (g *Write) Drop() {
	if g.inner.pg == nil {
		return
	}
	pg := g.inner.pg
	g.inner.dirty = true
	pg.Unlock()
	g.inner.Drop()
}

func (g *Write) Move() Write {
	moved := Write{inner: g.inner.Move()}
	return moved
}
