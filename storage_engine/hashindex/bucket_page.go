package hashindex

import (
	"encoding/binary"
	"fmt"
)

// Codec converts a fixed-width value to and from its on-page byte
// representation. Size must be constant for a given Codec instance —
// bucket capacity is computed once from it.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// bucketPage is a thin view over a bucket page's raw bytes:
//
//	size:u32, max_size:u32, then max_size fixed-width (key,value) records.
type bucketPage[K comparable, V any] struct {
	data       []byte
	keyCodec   Codec[K]
	valCodec   Codec[V]
	recordSize int
	maxSize    uint32
}

func newBucketPage[K comparable, V any](data []byte, keyCodec Codec[K], valCodec Codec[V]) *bucketPage[K, V] {
	recordSize := keyCodec.Size() + valCodec.Size()
	maxSize := uint32((len(data) - 8) / recordSize)
	return &bucketPage[K, V]{data: data, keyCodec: keyCodec, valCodec: valCodec, recordSize: recordSize, maxSize: maxSize}
}

// Init zeroes the bucket and records its capacity.
func (b *bucketPage[K, V]) Init() {
	binary.LittleEndian.PutUint32(b.data[0:4], 0)
	binary.LittleEndian.PutUint32(b.data[4:8], b.maxSize)
}

func (b *bucketPage[K, V]) Size() uint32    { return binary.LittleEndian.Uint32(b.data[0:4]) }
func (b *bucketPage[K, V]) MaxSize() uint32 { return b.maxSize }
func (b *bucketPage[K, V]) IsFull() bool    { return b.Size() >= b.maxSize }
func (b *bucketPage[K, V]) IsEmpty() bool   { return b.Size() == 0 }

func (b *bucketPage[K, V]) setSize(n uint32) { binary.LittleEndian.PutUint32(b.data[0:4], n) }

func (b *bucketPage[K, V]) recordOffset(i uint32) int { return 8 + int(i)*b.recordSize }

// EntryAt returns the key/value at slot i. Panics if i is out of bounds —
// this is a programmer-error invariant, not a user-facing failure.
func (b *bucketPage[K, V]) EntryAt(i uint32) (K, V) {
	if i >= b.Size() {
		panic(fmt.Sprintf("hashindex: bucket entry index %d out of bounds (size %d)", i, b.Size()))
	}
	off := b.recordOffset(i)
	ks := b.keyCodec.Size()
	k := b.keyCodec.Decode(b.data[off : off+ks])
	v := b.valCodec.Decode(b.data[off+ks : off+b.recordSize])
	return k, v
}

func (b *bucketPage[K, V]) KeyAt(i uint32) K   { k, _ := b.EntryAt(i); return k }
func (b *bucketPage[K, V]) ValueAt(i uint32) V { _, v := b.EntryAt(i); return v }

// Lookup does a full linear scan for key.
func (b *bucketPage[K, V]) Lookup(key K) (V, bool) {
	n := b.Size()
	for i := uint32(0); i < n; i++ {
		k, v := b.EntryAt(i)
		if k == key {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Insert appends (key, value) if key is absent and the bucket has room.
// Returns false on either a duplicate key or a full bucket — callers
// distinguish the two by calling Lookup first if they need to.
func (b *bucketPage[K, V]) Insert(key K, value V) bool {
	if _, found := b.Lookup(key); found {
		return false
	}
	if b.IsFull() {
		return false
	}
	n := b.Size()
	off := b.recordOffset(n)
	ks := b.keyCodec.Size()
	b.keyCodec.Encode(b.data[off:off+ks], key)
	b.valCodec.Encode(b.data[off+ks:off+b.recordSize], value)
	b.setSize(n + 1)
	return true
}

// Remove deletes key if present, shifting later entries down to keep the
// array dense. Returns false if key was not found.
func (b *bucketPage[K, V]) Remove(key K) bool {
	n := b.Size()
	for i := uint32(0); i < n; i++ {
		k, _ := b.EntryAt(i)
		if k == key {
			b.removeAt(i)
			return true
		}
	}
	return false
}

func (b *bucketPage[K, V]) removeAt(i uint32) {
	n := b.Size()
	for j := i; j < n-1; j++ {
		src := b.recordOffset(j + 1)
		dst := b.recordOffset(j)
		copy(b.data[dst:dst+b.recordSize], b.data[src:src+b.recordSize])
	}
	b.setSize(n - 1)
}
