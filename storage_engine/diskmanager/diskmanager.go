// Package diskmanager owns the single backing file behind a buffer pool:
// page allocation bookkeeping and the raw ReadAt/WriteAt calls the disk
// scheduler's worker performs. Everything here is synchronous and
// blocking; asynchrony is the scheduler's job, not this package's.
package diskmanager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"storageengine/types"
)

// ErrFileClosed is returned by any operation on a DiskManager after Close.
var ErrFileClosed = errors.New("disk manager: file is closed")

// metadataPageID is the fixed, well-known location where the hash table's
// header page id is recorded so it can be recovered across restarts,
// mirroring the teacher's page-0 metadata convention.
const metadataPageID types.PageID = 0

// DiskManager is a single *os.File fronted by page-granular ReadAt/WriteAt,
// plus a monotonic page id allocator. Page id 0 is reserved for the
// metadata page and is never handed out by AllocatePage.
type DiskManager struct {
	mu          sync.RWMutex
	file        *os.File
	nextPageID  types.PageID
	numDeallocs int
}

// Open opens (or creates) path and recovers the next page id from its
// current size.
func Open(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk manager: open %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("disk manager: stat %s: %w", path, err)
	}

	numPages := types.PageID(stat.Size() / types.PageSize)
	dm := &DiskManager{file: file, nextPageID: numPages}
	if dm.nextPageID <= metadataPageID {
		dm.nextPageID = metadataPageID + 1
	}
	return dm, nil
}

// AllocatePage reserves the next page id. It does not write anything to
// disk; the caller (buffer pool) is responsible for eventually flushing
// the page's contents.
func (dm *DiskManager) AllocatePage() types.PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := dm.nextPageID
	dm.nextPageID++
	return id
}

// DeallocatePage is a bookkeeping no-op in this implementation: page ids
// are never reused, matching the reference design's policy of deferring
// real reclamation to an out-of-scope compaction pass. It is still useful
// telemetry, so it is counted.
func (dm *DiskManager) DeallocatePage(id types.PageID) {
	dm.mu.Lock()
	dm.numDeallocs++
	dm.mu.Unlock()
}

// ReadPage reads exactly types.PageSize bytes for id into buf. Short reads
// past the current end of file are zero-padded, matching a page that was
// allocated but never written.
func (dm *DiskManager) ReadPage(id types.PageID, buf []byte) error {
	if len(buf) != types.PageSize {
		return fmt.Errorf("disk manager: read buffer size %d != page size %d", len(buf), types.PageSize)
	}

	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.file == nil {
		return ErrFileClosed
	}

	n, err := dm.file.ReadAt(buf, int64(id)*types.PageSize)
	if err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, os.ErrClosed) {
			return ErrFileClosed
		}
		return fmt.Errorf("disk manager: read page %d: %w", id, err)
	}
	for i := n; i < types.PageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes exactly types.PageSize bytes from buf at id's offset.
func (dm *DiskManager) WritePage(id types.PageID, buf []byte) error {
	if len(buf) != types.PageSize {
		return fmt.Errorf("disk manager: write buffer size %d != page size %d", len(buf), types.PageSize)
	}

	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.file == nil {
		return ErrFileClosed
	}

	if _, err := dm.file.WriteAt(buf, int64(id)*types.PageSize); err != nil {
		return fmt.Errorf("disk manager: write page %d: %w", id, err)
	}
	return nil
}

// WriteHeaderPageID persists the hash table's header page id to the fixed
// metadata page so a later Open can find it again.
func (dm *DiskManager) WriteHeaderPageID(id types.PageID) error {
	buf := make([]byte, types.PageSize)
	buf[8] = byte(types.PageTypeMetadata)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(id))
	return dm.WritePage(metadataPageID, buf)
}

// ReadHeaderPageID reads back the value written by WriteHeaderPageID, or
// types.InvalidPageID if the metadata page has never been written.
func (dm *DiskManager) ReadHeaderPageID() (types.PageID, error) {
	buf := make([]byte, types.PageSize)
	if err := dm.ReadPage(metadataPageID, buf); err != nil {
		return types.InvalidPageID, err
	}
	if types.PageType(buf[8]) != types.PageTypeMetadata {
		return types.InvalidPageID, nil
	}
	return types.PageID(int32(binary.LittleEndian.Uint32(buf[9:13]))), nil
}

// Sync flushes the backing file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.file == nil {
		return ErrFileClosed
	}
	return dm.file.Sync()
}

// Close syncs and closes the backing file. Subsequent operations return
// ErrFileClosed.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		dm.file = nil
		return fmt.Errorf("disk manager: sync on close: %w", err)
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}
