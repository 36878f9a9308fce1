package diskscheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storageengine/storage_engine/diskmanager"
	"storageengine/types"
)

func openScheduler(t *testing.T) (*Scheduler, *diskmanager.DiskManager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	require.NoError(t, err)
	s := New(dm, nil, nil)
	t.Cleanup(func() {
		s.Close()
		dm.Close()
	})
	return s, dm
}

func TestScheduleWriteThenRead(t *testing.T) {
	s, dm := openScheduler(t)
	id := dm.AllocatePage()

	write := make([]byte, types.PageSize)
	write[0] = 0xAB
	doneWrite := make(chan error, 1)
	s.Schedule(&Request{IsWrite: true, PageID: id, Data: write, Done: doneWrite})
	require.NoError(t, <-doneWrite)

	read := make([]byte, types.PageSize)
	doneRead := make(chan error, 1)
	s.Schedule(&Request{PageID: id, Data: read, Done: doneRead})
	require.NoError(t, <-doneRead)

	assert.Equal(t, write, read)
}

func TestScheduleProcessesInFIFOOrder(t *testing.T) {
	s, dm := openScheduler(t)
	id := dm.AllocatePage()

	n := 20
	dones := make([]chan error, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, types.PageSize)
		buf[0] = byte(i)
		dones[i] = make(chan error, 1)
		s.Schedule(&Request{IsWrite: true, PageID: id, Data: buf, Done: dones[i]})
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-dones[i])
	}

	out := make([]byte, types.PageSize)
	doneRead := make(chan error, 1)
	s.Schedule(&Request{PageID: id, Data: out, Done: doneRead})
	require.NoError(t, <-doneRead)
	assert.Equal(t, byte(n-1), out[0], "last enqueued write should be the one observed")
}

func TestCloseWaitsForWorkerToDrain(t *testing.T) {
	s, _ := openScheduler(t)
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
