// Package diskscheduler decouples buffer pool callers from disk latency:
// requests are enqueued and carried out, in order, by a single background
// worker goroutine.
package diskscheduler

import (
	"time"

	"go.uber.org/zap"

	"storageengine/storage_engine/diskmanager"
	"storageengine/storage_engine/metrics"
	"storageengine/types"
)

// Request is one scheduled disk operation. Data is the source buffer for
// a write and the destination buffer for a read; it must be exactly
// types.PageSize bytes. Done is buffered with capacity 1 and is sent to
// exactly once: nil on success, a non-nil error otherwise.
type Request struct {
	IsWrite bool
	PageID  types.PageID
	Data    []byte
	Done    chan error
}

// Scheduler serializes access to one DiskManager through a FIFO queue
// drained by a single worker goroutine, started in New and stopped in
// Close.
type Scheduler struct {
	disk    *diskmanager.DiskManager
	queue   chan *Request
	done    chan struct{}
	log     *zap.Logger
	metrics *metrics.Collector
}

// New starts the scheduler's background worker against disk. A nil logger
// or metrics collector is treated as a no-op.
func New(disk *diskmanager.DiskManager, log *zap.Logger, m *metrics.Collector) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		disk:    disk,
		queue:   make(chan *Request, 256),
		done:    make(chan struct{}),
		log:     log,
		metrics: m,
	}
	go s.worker()
	return s
}

// Schedule enqueues req without blocking on its completion. The caller
// receives the result on req.Done.
func (s *Scheduler) Schedule(req *Request) {
	s.queue <- req
}

// Close enqueues the shutdown sentinel and waits for the worker to drain
// and exit. Close must not be called concurrently with itself.
func (s *Scheduler) Close() {
	s.queue <- nil
	<-s.done
}

func (s *Scheduler) worker() {
	defer close(s.done)
	for req := range s.queue {
		if req == nil {
			return
		}
		start := time.Now()
		var err error
		if req.IsWrite {
			err = s.disk.WritePage(req.PageID, req.Data)
		} else {
			err = s.disk.ReadPage(req.PageID, req.Data)
		}
		s.metrics.ObserveSchedulerWait(time.Since(start).Seconds())
		if err != nil {
			s.log.Warn("disk request failed",
				zap.Bool("write", req.IsWrite),
				zap.Int32("page_id", int32(req.PageID)),
				zap.Error(err))
		} else {
			s.log.Debug("disk request completed",
				zap.Bool("write", req.IsWrite),
				zap.Int32("page_id", int32(req.PageID)))
		}
		req.Done <- err
	}
}
