package types

// PageSize is the fixed size, in bytes, of every page moved between the
// buffer pool and disk.
const PageSize = 4096

// PageID identifies a page within a single backing file. INVALID is the
// distinguished sentinel meaning "no page" (an empty directory/bucket slot,
// or the end of allocation).
type PageID int32

// InvalidPageID is returned by lookups that find nothing and stored in
// directory/header slots that have never been allocated.
const InvalidPageID PageID = -1

// FrameID indexes a slot in the buffer pool's fixed frame array.
type FrameID int32

// PageType names a kind of page. Only the metadata page records its type
// on disk (at byte offset 8); hash index pages carry no type byte.
type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeHashHeader
	PageTypeHashDirectory
	PageTypeHashBucket
	PageTypeMetadata
)
