// Package page defines the in-memory representation of a fixed-size page
// once it has been read into a buffer pool frame.
package page

import (
	"sync"

	"storageengine/types"
)

// Page is the frame-resident image of one on-disk page, plus the
// bookkeeping the buffer pool and its guards need: a pin count and a
// dirty flag shared under the buffer pool's mutex, and a reader/writer
// lock over the raw bytes that is orthogonal to pinning.
type Page struct {
	ID       types.PageID
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType

	mu sync.RWMutex
}

// New allocates a zeroed page image of the standard size.
func New(id types.PageID) *Page {
	return &Page{
		ID:   id,
		Data: make([]byte, types.PageSize),
	}
}

// Reset clears a page's contents and metadata in place so a frame can be
// reused for a different page id without a fresh allocation.
func (p *Page) Reset(id types.PageID) {
	p.ID = id
	p.PageType = types.PageTypeUnknown
	p.IsDirty = false
	p.PinCount = 0
	for i := range p.Data {
		p.Data[i] = 0
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }
