package hashindex

import (
	"encoding/binary"
	"fmt"

	"storageengine/types"
)

// DirectoryMaxDepth bounds a directory page's configured depth (HTABLE_DIRECTORY_MAX_DEPTH).
// Slot arrays are always allocated at this maximum size regardless of the
// configured max_depth, so the on-page layout never has to move as
// global_depth grows.
const DirectoryMaxDepth = 9

const directorySlots = 1 << DirectoryMaxDepth

// directoryPage is a thin view over a directory page's raw bytes:
//
//	max_depth:u32, global_depth:u32,
//	bucket_page_ids[2^DirectoryMaxDepth]:u32,
//	local_depths[2^DirectoryMaxDepth]:u8
type directoryPage struct {
	data []byte
}

func newDirectoryPage(data []byte) *directoryPage { return &directoryPage{data: data} }

const (
	dirBucketIDsOffset   = 8
	dirLocalDepthsOffset = dirBucketIDsOffset + directorySlots*4
)

// Init clamps maxDepth to DirectoryMaxDepth, sets global_depth to 0, and
// fills every slot with InvalidPageID / local depth 0.
func (d *directoryPage) Init(maxDepth uint32) {
	if maxDepth > DirectoryMaxDepth {
		maxDepth = DirectoryMaxDepth
	}
	binary.LittleEndian.PutUint32(d.data[0:4], maxDepth)
	binary.LittleEndian.PutUint32(d.data[4:8], 0)
	for i := uint32(0); i < directorySlots; i++ {
		d.setBucketPageIDRaw(i, types.InvalidPageID)
		d.setLocalDepthRaw(i, 0)
	}
}

func (d *directoryPage) MaxDepth() uint32    { return binary.LittleEndian.Uint32(d.data[0:4]) }
func (d *directoryPage) GlobalDepth() uint32 { return binary.LittleEndian.Uint32(d.data[4:8]) }
func (d *directoryPage) setGlobalDepth(v uint32) {
	binary.LittleEndian.PutUint32(d.data[4:8], v)
}

// Size is the number of directory slots currently in use: 2^global_depth.
func (d *directoryPage) Size() uint32 { return uint32(1) << d.GlobalDepth() }

func (d *directoryPage) checkBounds(idx uint32) {
	if idx >= d.Size() {
		panic(fmt.Sprintf("hashindex: directory index %d out of bounds (size %d)", idx, d.Size()))
	}
}

func (d *directoryPage) setBucketPageIDRaw(idx uint32, id types.PageID) {
	off := dirBucketIDsOffset + idx*4
	binary.LittleEndian.PutUint32(d.data[off:off+4], uint32(int32(id)))
}

func (d *directoryPage) setLocalDepthRaw(idx uint32, depth uint8) {
	d.data[dirLocalDepthsOffset+idx] = depth
}

// HashToBucketIndex takes the low global_depth bits of hash. This is the
// mathematically correct mask — hash & ((1<<global_depth)-1) — rather
// than a precedence-broken variant that would zero out everything above
// bit 0.
func (d *directoryPage) HashToBucketIndex(hash uint32) uint32 {
	return hash & d.GlobalDepthMask()
}

func (d *directoryPage) GlobalDepthMask() uint32 { return maskForDepth(uint8(d.GlobalDepth())) }

func (d *directoryPage) LocalDepthMask(idx uint32) uint32 {
	return maskForDepth(d.LocalDepth(idx))
}

func (d *directoryPage) BucketPageID(idx uint32) types.PageID {
	d.checkBounds(idx)
	off := dirBucketIDsOffset + idx*4
	return types.PageID(int32(binary.LittleEndian.Uint32(d.data[off : off+4])))
}

func (d *directoryPage) SetBucketPageID(idx uint32, id types.PageID) {
	d.checkBounds(idx)
	d.setBucketPageIDRaw(idx, id)
}

func (d *directoryPage) LocalDepth(idx uint32) uint8 {
	d.checkBounds(idx)
	return d.data[dirLocalDepthsOffset+idx]
}

func (d *directoryPage) SetLocalDepth(idx uint32, depth uint8) {
	d.checkBounds(idx)
	d.setLocalDepthRaw(idx, depth)
}

func (d *directoryPage) IncrLocalDepth(idx uint32) { d.SetLocalDepth(idx, d.LocalDepth(idx)+1) }
func (d *directoryPage) DecrLocalDepth(idx uint32) { d.SetLocalDepth(idx, d.LocalDepth(idx)-1) }

// GetSplitImageIndex returns the index of idx's split sibling using idx's
// *current* local depth — callers needing the post-split sibling must
// call this after IncrLocalDepth(idx).
func (d *directoryPage) GetSplitImageIndex(idx uint32) uint32 {
	ld := d.LocalDepth(idx)
	if ld == 0 {
		return idx
	}
	return idx ^ (uint32(1) << (ld - 1))
}

// IncrGlobalDepth doubles the directory by duplicating every slot's
// bucket id and local depth into the mirrored upper half, then
// increments global_depth. Panics if already at MaxDepth.
func (d *directoryPage) IncrGlobalDepth() {
	gd := d.GlobalDepth()
	if gd >= d.MaxDepth() {
		panic("hashindex: directory cannot grow past configured max depth")
	}
	size := uint32(1) << gd
	for i := uint32(0); i < size; i++ {
		d.setBucketPageIDRaw(i+size, d.BucketPageID(i))
		d.setLocalDepthRaw(i+size, d.LocalDepth(i))
	}
	d.setGlobalDepth(gd + 1)
}

// DecrGlobalDepth halves the directory's addressable size. It does not
// erase the now-unreachable upper half; a later IncrGlobalDepth simply
// overwrites it again.
func (d *directoryPage) DecrGlobalDepth() {
	gd := d.GlobalDepth()
	if gd == 0 {
		panic("hashindex: directory cannot shrink below depth 0")
	}
	d.setGlobalDepth(gd - 1)
}

// CanShrink reports whether every in-use slot has local depth strictly
// less than global depth, meaning halving the directory would drop no
// information.
func (d *directoryPage) CanShrink() bool {
	gd := d.GlobalDepth()
	if gd == 0 {
		return false
	}
	size := uint32(1) << gd
	for i := uint32(0); i < size; i++ {
		if d.LocalDepth(i) == uint8(gd) {
			return false
		}
	}
	return true
}

// isCanonical reports whether idx is the lowest directory index sharing
// its bucket's signature — used by the iterator to visit each resident
// bucket exactly once despite directory fan-out.
func (d *directoryPage) isCanonical(idx uint32) bool {
	return idx < (uint32(1) << d.LocalDepth(idx))
}

func maskForDepth(depth uint8) uint32 {
	if depth == 0 {
		return 0
	}
	return (uint32(1) << depth) - 1
}
