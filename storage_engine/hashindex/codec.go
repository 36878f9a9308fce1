package hashindex

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Uint64Codec encodes a uint64 key or value as 8 little-endian bytes.
type Uint64Codec struct{}

func (Uint64Codec) Size() int                  { return 8 }
func (Uint64Codec) Encode(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func (Uint64Codec) Decode(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }

// Int64Codec encodes an int64 key or value as 8 little-endian bytes.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }
func (Int64Codec) Encode(dst []byte, v int64) { binary.LittleEndian.PutUint64(dst, uint64(v)) }
func (Int64Codec) Decode(src []byte) int64    { return int64(binary.LittleEndian.Uint64(src)) }

// Uint32Codec encodes a uint32 key or value as 4 little-endian bytes.
type Uint32Codec struct{}

func (Uint32Codec) Size() int                  { return 4 }
func (Uint32Codec) Encode(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func (Uint32Codec) Decode(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }

// HashUint64 is a default HashFn for uint64 keys, built on xxhash.
func HashUint64(v uint64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return uint32(xxhash.Sum64(buf[:]))
}

// HashInt64 is a default HashFn for int64 keys.
func HashInt64(v int64) uint32 { return HashUint64(uint64(v)) }

// HashString is a default HashFn for string keys.
func HashString(s string) uint32 { return uint32(xxhash.Sum64String(s)) }
