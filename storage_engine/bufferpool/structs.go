package bufferpool

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"storageengine/storage_engine/diskmanager"
	"storageengine/storage_engine/diskscheduler"
	"storageengine/storage_engine/metrics"
	"storageengine/storage_engine/page"
	"storageengine/storage_engine/replacer"
	"storageengine/types"
)

// Config tunes a BufferPool. The zero Config is not usable directly —
// build one from DefaultConfig and override what you need.
type Config struct {
	// PoolSize is the fixed number of frames. Required, > 0.
	PoolSize int
	// ReplacerK is the K in LRU-K. Required, > 0.
	ReplacerK int
	// WarmCacheSize is the max byte cost of the optional warm-page cache
	// that survives eviction from the fixed pool. 0 disables it.
	WarmCacheSize int64
	// Logger receives structured hit/miss, new/delete page and failed
	// flush events. Evictions are counted in Metrics, not logged. Nil
	// means no logging.
	Logger *zap.Logger
	// Metrics receives Prometheus counters/histograms. Nil means no
	// metrics.
	Metrics *metrics.Collector
}

// DefaultConfig returns reasonable defaults: a 64-frame pool, K=2, no
// warm cache, no logging, no metrics.
func DefaultConfig() Config {
	return Config{
		PoolSize:  64,
		ReplacerK: 2,
	}
}

// BufferPool is the sole arbiter of page residency for one backing file:
// it owns a fixed array of frames, the free list, the page table, the
// LRU-K replacer, and the disk scheduler that services misses and
// flushes.
type BufferPool struct {
	mu sync.Mutex

	frames    []*page.Page
	freeList  []types.FrameID
	pageTable map[types.PageID]types.FrameID

	replacer  *replacer.Replacer
	scheduler *diskscheduler.Scheduler
	disk      *diskmanager.DiskManager

	warmCache *ristretto.Cache[int32, []byte]

	log     *zap.Logger
	metrics *metrics.Collector
}

// Stats is a point-in-time snapshot of pool occupancy, useful for
// monitoring and tests.
type Stats struct {
	PoolSize    int
	Resident    int
	PinnedPages int
	DirtyPages  int
	FreeFrames  int
}
