package store_test

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/eak1mov/go-tilestream/store"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

var testTiles = map[tile.Index][]byte{
	{I: 0, J: 0}:     []byte("tile00"),
	{I: 1, J: -1}:    []byte("tile1m1"),
	{I: -7, J: 3}:    []byte("tilem73"),
	{I: 120, J: 450}: []byte("tile120450"),
}

// testStore checks the behaviour every Store shares.
func testStore(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, tile.Index{I: 9, J: 9})
	require.ErrorIs(t, err, store.ErrNotFound)

	for idx, data := range testTiles {
		require.NoError(t, s.Put(ctx, idx, data), "Put(%v)", idx)
	}
	for idx, data := range testTiles {
		got, err := s.Get(ctx, idx)
		require.NoError(t, err, "Get(%v)", idx)
		if diff := cmp.Diff(data, got); diff != "" {
			t.Errorf("Get(%v) mismatch (-want +got):\n%s", idx, diff)
		}
	}

	// Put overwrites.
	require.NoError(t, s.Put(ctx, tile.Index{}, []byte("replaced")))
	got, err := s.Get(ctx, tile.Index{})
	require.NoError(t, err)
	require.Equal(t, []byte("replaced"), got)
	require.NoError(t, s.Put(ctx, tile.Index{}, testTiles[tile.Index{}]))
}

func TestDirStore(t *testing.T) {
	rootDir := t.TempDir()
	s, err := store.NewDirStore(filepath.Join(rootDir, "{i}", "{j}.bin"))
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)

	// Foreign files are ignored by the visitor.
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "README"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "0", "notes.txt"), []byte("x"), 0644))

	if diff := cmp.Diff(testTiles, maps.Collect(tile.IterPayloads(s, nil))); diff != "" {
		t.Errorf("VisitPayloads mismatch (-want +got):\n%s", diff)
	}
}

func TestDirStoreInvalidPattern(t *testing.T) {
	for _, pattern := range []string{"tiles/{i}.bin", "tiles/{j}.bin", "tiles/x.bin"} {
		_, err := store.NewDirStore(pattern)
		require.ErrorIs(t, err, store.ErrInvalidPattern, pattern)
	}
}

func TestDirStoreFlatPattern(t *testing.T) {
	rootDir := t.TempDir()
	s, err := store.NewDirStore(filepath.Join(rootDir, "tile_{i}_{j}.bin"))
	require.NoError(t, err)
	testStore(t, s)

	_, err = os.Stat(filepath.Join(rootDir, "tile_-7_3.bin"))
	require.NoError(t, err)
	require.Len(t, maps.Collect(tile.IterPayloads(s, nil)), len(testTiles))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tiles.db")

	s, err := store.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	testStore(t, s)
	require.NoError(t, s.Close())

	// Reopening applies no migration twice and keeps the data.
	s, err = store.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	if diff := cmp.Diff(testTiles, maps.Collect(tile.IterPayloads(s, nil))); diff != "" {
		t.Errorf("VisitPayloads mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStoreHilbertOrder(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	defer s.Close()

	far := tile.Index{I: 1 << 20, J: 0}
	for _, idx := range []tile.Index{{I: 1, J: 1}, {I: 0, J: 0}, far, {I: 1, J: 0}, {I: 0, J: 1}} {
		require.NoError(t, s.Put(ctx, idx, []byte{1}))
	}

	var got []tile.Index
	for idx := range tile.IterPayloads(s, nil) {
		got = append(got, idx)
	}
	require.Len(t, got, 5)
	require.Equal(t, far, got[0], "tiles outside the curve window sort first")
	for k := 2; k < len(got); k++ {
		require.Less(t, store.HilbertCode(got[k-1]), store.HilbertCode(got[k]))
	}
}

func TestHilbertCode(t *testing.T) {
	require.Equal(t, int64(-1), store.HilbertCode(tile.Index{I: 1 << 15, J: 0}))
	require.Equal(t, int64(-1), store.HilbertCode(tile.Index{I: 0, J: -(1 << 15) - 1}))
	require.GreaterOrEqual(t, store.HilbertCode(tile.Index{I: -(1 << 15), J: (1 << 15) - 1}), int64(0))

	// Codes are unique within the window.
	seen := make(map[int64]bool)
	for i := int32(-4); i < 4; i++ {
		for j := int32(-4); j < 4; j++ {
			code := store.HilbertCode(tile.Index{I: i, J: j})
			require.False(t, seen[code], "duplicate code %d", code)
			seen[code] = true
		}
	}
}

func TestCached(t *testing.T) {
	dir, err := store.NewDirStore(filepath.Join(t.TempDir(), "{i}", "{j}.bin"))
	require.NoError(t, err)

	s, err := store.NewCached(dir, 1<<20)
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)
	s.Wait()

	// Cached entries survive the backing store losing them.
	ctx := context.Background()
	_, err = s.Get(ctx, tile.Index{I: -7, J: 3})
	require.NoError(t, err)
	s.Wait()
	require.NoError(t, dir.Put(ctx, tile.Index{I: -7, J: 3}, []byte("changed underneath")))

	got, err := s.Get(ctx, tile.Index{I: -7, J: 3})
	require.NoError(t, err)
	require.Equal(t, testTiles[tile.Index{I: -7, J: 3}], got)

	_, err = store.NewCached(dir, 0)
	require.Error(t, err)
}

func TestCachedPayloadsAreCopies(t *testing.T) {
	ctx := context.Background()
	dir, err := store.NewDirStore(filepath.Join(t.TempDir(), "{i}", "{j}.bin"))
	require.NoError(t, err)

	s, err := store.NewCached(dir, 1<<20)
	require.NoError(t, err)
	defer s.Close()

	idx := tile.Index{I: 2, J: -2}
	data := []byte("payload")
	require.NoError(t, s.Put(ctx, idx, data))
	s.Wait()
	data[0] = 'X'

	first, err := s.Get(ctx, idx)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), first)
	first[0] = 'Y'

	second, err := s.Get(ctx, idx)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), second)

	// Entries filled on a miss are copies as well.
	other := tile.Index{I: 3, J: 3}
	require.NoError(t, dir.Put(ctx, other, []byte("backing")))
	miss, err := s.Get(ctx, other)
	require.NoError(t, err)
	s.Wait()
	miss[0] = 'Z'

	hit, err := s.Get(ctx, other)
	require.NoError(t, err)
	require.Equal(t, []byte("backing"), hit)
}

func TestCompressed(t *testing.T) {
	ctx := context.Background()
	sqlite, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)

	s, err := store.NewCompressed(sqlite, zstd.SpeedDefault)
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)

	raw, err := sqlite.Get(ctx, tile.Index{I: 120, J: 450})
	require.NoError(t, err)
	require.NotEqual(t, testTiles[tile.Index{I: 120, J: 450}], raw)

	require.NoError(t, sqlite.Put(ctx, tile.Index{I: 5, J: 5}, []byte("not zstd")))
	_, err = s.Get(ctx, tile.Index{I: 5, J: 5})
	require.Error(t, err)
}
