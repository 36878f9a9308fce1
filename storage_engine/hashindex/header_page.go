package hashindex

import (
	"encoding/binary"
	"fmt"

	"storageengine/types"
)

// HeaderMaxDepth bounds a header page's configured depth (HTABLE_HEADER_MAX_DEPTH).
const HeaderMaxDepth = 9

// headerPage is a thin view over a header page's raw bytes:
//
//	max_depth:u32, then 2^max_depth entries of directory_page_id:u32
type headerPage struct {
	data []byte
}

func newHeaderPage(data []byte) *headerPage { return &headerPage{data: data} }

// Init clamps maxDepth to HeaderMaxDepth and fills every directory slot
// with InvalidPageID.
func (h *headerPage) Init(maxDepth uint32) {
	if maxDepth > HeaderMaxDepth {
		maxDepth = HeaderMaxDepth
	}
	binary.LittleEndian.PutUint32(h.data[0:4], maxDepth)
	n := uint32(1) << maxDepth
	for i := uint32(0); i < n; i++ {
		h.SetDirectoryPageID(i, types.InvalidPageID)
	}
}

func (h *headerPage) MaxDepth() uint32 { return binary.LittleEndian.Uint32(h.data[0:4]) }

// MaxSize is the number of directory slots this header addresses.
func (h *headerPage) MaxSize() uint32 { return uint32(1) << h.MaxDepth() }

// HashToDirectoryIndex takes the high MaxDepth bits of hash.
func (h *headerPage) HashToDirectoryIndex(hash uint32) uint32 {
	maxDepth := h.MaxDepth()
	if maxDepth == 0 {
		return 0
	}
	return hash >> (32 - maxDepth)
}

func (h *headerPage) checkBounds(idx uint32) {
	if idx >= h.MaxSize() {
		panic(fmt.Sprintf("hashindex: header directory index %d out of bounds (max %d)", idx, h.MaxSize()))
	}
}

func (h *headerPage) DirectoryPageID(idx uint32) types.PageID {
	h.checkBounds(idx)
	off := 4 + idx*4
	return types.PageID(int32(binary.LittleEndian.Uint32(h.data[off : off+4])))
}

func (h *headerPage) SetDirectoryPageID(idx uint32, id types.PageID) {
	h.checkBounds(idx)
	off := 4 + idx*4
	binary.LittleEndian.PutUint32(h.data[off:off+4], uint32(int32(id)))
}
