// Package replacer implements LRU-K page replacement over buffer pool
// frames.
package replacer

import (
	"fmt"
	"math"
	"sync"

	"storageengine/types"
)

// AccessType distinguishes how a frame was touched. The replacer records
// it but does not currently let it influence eviction order; it is
// reserved for a future scan-resistant policy.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
)

type node struct {
	history []int64 // bounded to k entries, oldest first
	evictable bool
}

// Replacer tracks, per frame, a bounded history of access timestamps and
// an evictability flag, and picks eviction victims by the backward
// k-distance rule.
type Replacer struct {
	mu        sync.Mutex
	nodes     map[types.FrameID]*node
	k         int
	clock     int64
	currSize  int
}

// New creates a replacer with history depth k (k must be >= 1).
func New(k int) *Replacer {
	return &Replacer{
		nodes: make(map[types.FrameID]*node),
		k:     k,
	}
}

// RecordAccess appends the current logical timestamp to frame's history,
// creating the frame's bookkeeping if this is its first access.
func (r *Replacer) RecordAccess(frame types.FrameID, accessType AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++
	n, ok := r.nodes[frame]
	if !ok {
		n = &node{}
		r.nodes[frame] = n
	}
	n.history = append(n.history, r.clock)
	if len(n.history) > r.k {
		n.history = n.history[1:]
	}
}

// SetEvictable toggles whether frame is a candidate for Evict, maintaining
// the count Size reports. Setting evictable on an untracked frame is a
// no-op.
func (r *Replacer) SetEvictable(frame types.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}
	switch {
	case n.evictable && !evictable:
		r.currSize--
	case !n.evictable && evictable:
		r.currSize++
	}
	n.evictable = evictable
}

// Remove drops a frame's bookkeeping outright. It panics if the frame is
// currently non-evictable — callers must SetEvictable first, mirroring
// the pin-discipline contract the buffer pool enforces around it.
func (r *Replacer) Remove(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("replacer: Remove called on non-evictable frame %d", frame))
	}
	delete(r.nodes, frame)
	r.currSize--
}

// Evict selects and removes the highest-priority victim: the evictable
// frame with infinite backward k-distance (fewer than k recorded
// accesses) if any exist, else the evictable frame with the largest
// k-distance. Ties in either case — this is a deliberate quirk carried
// over for behavioral compatibility rather than a textbook LRU-K
// tie-break — are broken by the smallest value of history[0], i.e. the
// oldest timestamp still held in the frame's bounded history.
func (r *Replacer) Evict() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize == 0 {
		return 0, false
	}

	var victim types.FrameID
	found := false
	var victimDist int64
	var victimEarliest int64

	for fid, n := range r.nodes {
		if !n.evictable {
			continue
		}
		var dist int64
		if len(n.history) < r.k {
			dist = math.MaxInt64
		} else {
			dist = r.clock - n.history[0]
		}
		earliest := n.history[0]

		if !found || dist > victimDist || (dist == victimDist && earliest < victimEarliest) {
			found = true
			victim = fid
			victimDist = dist
			victimEarliest = earliest
		}
	}

	if !found {
		return 0, false
	}
	delete(r.nodes, victim)
	r.currSize--
	return victim, true
}

// Size returns the number of frames currently marked evictable.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
