package hashindex

import "errors"

var (
	// ErrPoolExhausted is returned when an operation needed a fresh frame
	// (for a header, directory, or bucket page) and the buffer pool had
	// none to give.
	ErrPoolExhausted = errors.New("hashindex: buffer pool exhausted")
	// ErrDuplicateKey is returned by Insert when the key is already
	// present.
	ErrDuplicateKey = errors.New("hashindex: duplicate key")
	// ErrDirectoryFull is returned by Insert when a bucket split would
	// require growing the directory past its configured max depth.
	ErrDirectoryFull = errors.New("hashindex: directory at max depth")
	// ErrSplitStuck is returned if a bucket split fails to make room for
	// the pending insert — only reachable if the hash function produces
	// pathological clustering at the new distinguishing bit.
	ErrSplitStuck = errors.New("hashindex: split did not free bucket capacity")
)
