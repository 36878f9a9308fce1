package hashindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storageengine/storage_engine/bufferpool"
	"storageengine/storage_engine/diskmanager"
	"storageengine/storage_engine/pageguard"
)

// padCodec pads a uint64's 8-byte encoding out to size bytes, letting
// tests shrink a bucket's effective capacity without a giant key set.
type padCodec struct{ size int }

func (c padCodec) Size() int { return c.size }
func (c padCodec) Encode(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = 0
	}
	Uint64Codec{}.Encode(dst[:8], v)
}
func (c padCodec) Decode(src []byte) uint64 { return Uint64Codec{}.Decode(src[:8]) }

// identityHash makes split/merge behavior predictable in tests: the bit
// a split distinguishes on is just the key's own low bit.
func identityHash(k uint64) uint32 { return uint32(k) }

func newTestTable(t *testing.T) (*Table[uint64, uint64], *bufferpool.BufferPool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	require.NoError(t, err)

	cfg := bufferpool.DefaultConfig()
	cfg.PoolSize = 64
	bp, err := bufferpool.New(dm, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		bp.Close()
		dm.Close()
	})

	// padCodec{500} + an 8-byte key gives a bucket capacity of 8, small
	// enough to reach a split in a handful of inserts.
	tbl, err := New[uint64, uint64](bp, Uint64Codec{}, padCodec{500}, identityHash, Config{})
	require.NoError(t, err)
	return tbl, bp
}

func TestInsertAndGetValueRoundTrip(t *testing.T) {
	tbl, _ := newTestTable(t)

	ok, err := tbl.Insert(1, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	v, found := tbl.GetValue(1)
	require.True(t, found)
	assert.Equal(t, uint64(100), v)
}

func TestGetValueMissingKey(t *testing.T) {
	tbl, _ := newTestTable(t)
	_, found := tbl.GetValue(42)
	assert.False(t, found)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tbl, _ := newTestTable(t)
	ok, err := tbl.Insert(1, 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tbl.Insert(1, 200)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	v, _ := tbl.GetValue(1)
	assert.Equal(t, uint64(100), v, "duplicate insert must not overwrite")
}

func TestRemoveDeletesKey(t *testing.T) {
	tbl, _ := newTestTable(t)
	_, err := tbl.Insert(1, 100)
	require.NoError(t, err)

	assert.True(t, tbl.Remove(1))
	_, found := tbl.GetValue(1)
	assert.False(t, found)

	assert.False(t, tbl.Remove(1), "removing an absent key returns false")
}

func TestSplitGrowsDirectoryAndRedistributes(t *testing.T) {
	tbl, _ := newTestTable(t)

	// bucket capacity is 8; fill it, then overflow to force a split.
	for k := uint64(0); k < 8; k++ {
		ok, err := tbl.Insert(k, k*10)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := tbl.Insert(8, 80)
	require.NoError(t, err)
	require.True(t, ok, "the 9th insert should succeed by splitting the full bucket")

	for k := uint64(0); k <= 8; k++ {
		v, found := tbl.GetValue(k)
		require.True(t, found, "key %d should survive the split", k)
		assert.Equal(t, k*10, v)
	}

	require.NoError(t, tbl.VerifyIntegrity())
}

func TestSplitRejectsPastMaxDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	require.NoError(t, err)
	defer dm.Close()

	cfg := bufferpool.DefaultConfig()
	cfg.PoolSize = 64
	bp, err := bufferpool.New(dm, cfg)
	require.NoError(t, err)
	defer bp.Close()

	tbl, err := New[uint64, uint64](bp, Uint64Codec{}, padCodec{500}, identityHash, Config{DirectoryMaxDepth: 1})
	require.NoError(t, err)

	// fill the single initial bucket (capacity 8) with a mix of even and
	// odd keys, then overflow it: this split is productive, since
	// identityHash's low bit actually separates the two groups, and lands
	// global depth at its configured max of 1.
	for k := uint64(0); k < 8; k++ {
		ok, err := tbl.Insert(k, k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := tbl.Insert(8, 8)
	require.NoError(t, err)
	require.True(t, ok)

	// refill the even-keys bucket (now at local depth 1, equal to the
	// configured max) back up to capacity.
	for _, k := range []uint64{10, 12, 14} {
		ok, err := tbl.Insert(k, k)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// one more even key needs a second split, which would need global
	// depth 2 — past the configured max of 1.
	_, err = tbl.Insert(16, 16)
	assert.ErrorIs(t, err, ErrDirectoryFull)
}

func TestMergeShrinksDirectoryAfterRemoval(t *testing.T) {
	tbl, _ := newTestTable(t)

	for k := uint64(0); k < 8; k++ {
		ok, err := tbl.Insert(k, k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := tbl.Insert(8, 8) // triggers the split: evens stay, odds move
	require.NoError(t, err)
	require.True(t, ok)

	for _, k := range []uint64{0, 2, 4, 6, 8} {
		assert.True(t, tbl.Remove(k))
	}

	for _, k := range []uint64{1, 3, 5, 7} {
		v, found := tbl.GetValue(k)
		require.True(t, found)
		assert.Equal(t, k, v)
	}
	for _, k := range []uint64{0, 2, 4, 6, 8} {
		_, found := tbl.GetValue(k)
		assert.False(t, found)
	}

	hg, ok := pageguard.FetchRead(tbl.bp, tbl.HeaderPageID())
	require.True(t, ok)
	dirID := newHeaderPage(hg.Data()).DirectoryPageID(0)
	hg.Drop()
	dg, ok := pageguard.FetchRead(tbl.bp, dirID)
	require.True(t, ok)
	assert.Equal(t, uint32(0), newDirectoryPage(dg.Data()).GlobalDepth(), "emptying the even bucket should merge it away and shrink the directory")
	dg.Drop()

	require.NoError(t, tbl.VerifyIntegrity())
}

func TestIteratorVisitsEveryEntryExactlyOnce(t *testing.T) {
	tbl, _ := newTestTable(t)

	want := map[uint64]uint64{}
	for k := uint64(0); k < 20; k++ {
		ok, err := tbl.Insert(k, k*2)
		require.NoError(t, err)
		require.True(t, ok)
		want[k] = k * 2
	}

	got := map[uint64]uint64{}
	for it := tbl.Iterator(); !it.IsEnd(); it.Next() {
		got[it.Key()] = it.Value()
	}

	assert.Equal(t, want, got)
}

func TestIteratorOnEmptyTableIsImmediatelyAtEnd(t *testing.T) {
	tbl, _ := newTestTable(t)
	it := tbl.Iterator()
	assert.True(t, it.IsEnd())
}

func TestVerifyIntegrityAfterManyInsertsAndRemoves(t *testing.T) {
	tbl, _ := newTestTable(t)

	for k := uint64(0); k < 40; k++ {
		ok, err := tbl.Insert(k, k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for k := uint64(0); k < 40; k += 3 {
		tbl.Remove(k)
	}

	assert.NoError(t, tbl.VerifyIntegrity())
}

func TestOpenRebindsExistingHeaderPage(t *testing.T) {
	tbl, bp := newTestTable(t)
	_, err := tbl.Insert(1, 111)
	require.NoError(t, err)

	reopened := Open[uint64, uint64](bp, tbl.HeaderPageID(), Uint64Codec{}, padCodec{500}, identityHash, Config{})
	v, found := reopened.GetValue(1)
	require.True(t, found)
	assert.Equal(t, uint64(111), v)

	ok, err := reopened.Insert(2, 222)
	require.NoError(t, err)
	assert.True(t, ok)

	v, found = tbl.GetValue(2)
	require.True(t, found, "writes through the reopened handle are visible through the original")
	assert.Equal(t, uint64(222), v)
}
