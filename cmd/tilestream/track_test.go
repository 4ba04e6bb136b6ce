package main

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/index"
	"github.com/eak1mov/go-tilestream/loader"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/store"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseCSVTrack(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want track
	}{
		{
			name: "NoHeader",
			in:   "0,0\n10.5,-3\n",
			want: track{Points: []orb.Point{{0, 0}, {10.5, -3}}},
		},
		{
			name: "PlanarHeader",
			in:   "y,x\n1,2\n",
			want: track{Points: []orb.Point{{2, 1}}},
		},
		{
			name: "GeographicHeader",
			in:   "time,lat,lon\n0,52.5,13.4\n1,52.6,13.5\n",
			want: track{Geographic: true, Points: []orb.Point{{13.4, 52.5}, {13.5, 52.6}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCSVTrack(strings.NewReader(tt.in))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseCSVTrack mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, in := range []string{"a,b\n1,2\n", "x,y\n1,zz\n"} {
		_, err := parseCSVTrack(strings.NewReader(in))
		require.Error(t, err, in)
	}
}

func TestParseGeoJSONTrack(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []orb.Point
	}{
		{
			name: "Geometry",
			in:   `{"type": "LineString", "coordinates": [[13.4, 52.5], [13.5, 52.6]]}`,
			want: []orb.Point{{13.4, 52.5}, {13.5, 52.6}},
		},
		{
			name: "Feature",
			in:   `{"type": "Feature", "properties": {}, "geometry": {"type": "LineString", "coordinates": [[1, 2], [3, 4]]}}`,
			want: []orb.Point{{1, 2}, {3, 4}},
		},
		{
			name: "FeatureCollection",
			in: `{"type": "FeatureCollection", "features": [
				{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
				{"type": "Feature", "properties": {}, "geometry": {"type": "MultiLineString", "coordinates": [[[1, 1], [2, 2]], [[3, 3]]]}}
			]}`,
			want: []orb.Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGeoJSONTrack([]byte(tt.in))
			require.NoError(t, err)
			require.True(t, got.Geographic)
			if diff := cmp.Diff(tt.want, got.Points); diff != "" {
				t.Errorf("points mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadTrack(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "track.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("x,y\n0,0\n100,0\n"), 0644))
	got, err := readTrack(csvPath)
	require.NoError(t, err)
	require.Len(t, got.Points, 2)

	emptyPath := filepath.Join(dir, "empty.geojson")
	require.NoError(t, os.WriteFile(emptyPath, []byte(`{"type": "FeatureCollection", "features": []}`), 0644))
	_, err = readTrack(emptyPath)
	require.ErrorIs(t, err, errEmptyTrack)

	_, err = readTrack(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}

func TestDensify(t *testing.T) {
	got := densify([]orb.Point{{0, 0}, {10, 0}, {10, 5}}, 4)
	want := []orb.Point{{0, 0}, {10.0 / 3, 0}, {20.0 / 3, 0}, {10, 0}, {10, 2.5}, {10, 5}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("densify mismatch (-want +got):\n%s", diff)
	}

	// Repeated points add nothing.
	require.Len(t, densify([]orb.Point{{1, 1}, {1, 1}}, 4), 1)
	require.Len(t, densify([]orb.Point{{0, 0}, {100, 0}}, 0), 2)
}

func TestTrackUpdates(t *testing.T) {
	planar := track{Points: []orb.Point{{0, 0}, {20, 0}}}
	updates := planar.updates(10)
	require.Equal(t, []manager.Update{
		manager.PlanarUpdate(orb.Point{0, 0}),
		manager.PlanarUpdate(orb.Point{10, 0}),
		manager.PlanarUpdate(orb.Point{20, 0}),
	}, updates)

	origin := geo.Coordinate{Lat: 52.52, Lon: 13.405}
	end := geo.ToCoordinate(origin, orb.Point{100, 0})
	geographic := track{Geographic: true, Points: []orb.Point{origin.Point(), end.Point()}}

	updates = geographic.updates(25)
	require.Len(t, updates, 5)
	require.Equal(t, manager.GeoUpdate(origin), updates[0])
	for _, u := range updates {
		require.True(t, u.Geographic)
	}
	last := geo.ToPlanar(origin, updates[4].Coordinate)
	if diff := cmp.Diff(orb.Point{100, 0}, last, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("last update mismatch (-want +got):\n%s", diff)
	}
}

func TestDeduceKind(t *testing.T) {
	require.Equal(t, "sqlite", deduceKind("", "tiles.db"))
	require.Equal(t, "sqlite", deduceKind("", "/data/tiles.sqlite"))
	require.Equal(t, "dir", deduceKind("", "tiles/{i}/{j}.bin"))
	require.Equal(t, "pack", deduceKind("", "export/tiles.pack"))
	require.Equal(t, "redis", deduceKind("redis", "tiles.db"))
}

func TestSyntheticPayload(t *testing.T) {
	data := syntheticPayload(tile.Index{I: -1, J: 2}, 30)
	require.Len(t, data, 30)
	require.True(t, strings.HasPrefix(string(data), "tile -1 2\ntile -1 2\n"))
	require.Empty(t, syntheticPayload(tile.Index{}, 0))
}

func TestCopyPayloads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := zap.NewNop()

	input := config.Store{Kind: "dir", Path: filepath.Join(dir, "in", "{i}", "{j}.bin")}
	output := config.Store{Kind: "sqlite", Path: filepath.Join(dir, "out.db")}

	in, err := openRawStore(ctx, input, l)
	require.NoError(t, err)
	tiles := map[tile.Index][]byte{
		{I: 0, J: 0}:  []byte("a"),
		{I: -3, J: 4}: []byte("b"),
	}
	for idx, data := range tiles {
		require.NoError(t, in.Put(ctx, idx, data))
	}
	require.NoError(t, in.Close())

	require.NoError(t, copyPayloads(ctx, input, output, l))

	out, err := store.NewSQLiteStore(ctx, output.Path)
	require.NoError(t, err)
	defer out.Close()
	if diff := cmp.Diff(tiles, maps.Collect(tile.IterPayloads(out, nil))); diff != "" {
		t.Errorf("copied payloads mismatch (-want +got):\n%s", diff)
	}

	// Packed archives are read-only: the first Put stops the copy.
	packPath := filepath.Join(dir, "out.pack")
	_, err = exportPack(ctx, input, packPath, l)
	require.NoError(t, err)
	err = copyPayloads(ctx, input, config.Store{Path: packPath}, l)
	require.ErrorIs(t, err, index.ErrReadOnly)
	require.ErrorContains(t, err, "copy tile")
}

func TestExportPack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := zap.NewNop()

	input := config.Store{Kind: "sqlite", Path: filepath.Join(dir, "in.db")}
	in, err := openRawStore(ctx, input, l)
	require.NoError(t, err)
	tiles := map[tile.Index][]byte{
		{I: 0, J: 0}:  []byte("a"),
		{I: 5, J: -2}: []byte("bb"),
		{I: -1, J: 1}: []byte("ccc"),
	}
	for idx, data := range tiles {
		require.NoError(t, in.Put(ctx, idx, data))
	}
	require.NoError(t, in.Close())

	outputPath := filepath.Join(dir, "tiles.pack")
	n, err := exportPack(ctx, input, outputPath, l)
	require.NoError(t, err)
	require.Equal(t, len(tiles), n)

	core, logs := observer.New(zap.InfoLevel)
	pack, err := openRawStore(ctx, config.Store{Path: outputPath}, zap.New(core))
	require.NoError(t, err)
	defer pack.Close()
	opened := logs.FilterMessage("pack opened").All()
	require.Len(t, opened, 1)
	require.Equal(t, int64(len(tiles)), opened[0].ContextMap()["tiles"])
	for idx, data := range tiles {
		got, err := pack.Get(ctx, idx)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestSeedMapTilesFeedsLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := zap.NewNop()
	origin := geo.Coordinate{Lat: 52.52, Lon: 13.405}

	mapPath := filepath.Join(dir, "map.mbtiles")
	n, err := seedMapTiles(mapPath, 500, 14, origin, 2, 64, l)
	require.NoError(t, err)
	require.Positive(t, n)
	require.LessOrEqual(t, n, 25)

	cfg, err := config.Parse(map[string]string{
		"MAPTILES_PATH": mapPath,
		"MAPTILES_ZOOM": "14",
	})
	require.NoError(t, err)

	s, err := openRawStore(ctx, config.Store{Kind: "dir", Path: filepath.Join(dir, "{i}", "{j}.bin")}, l)
	require.NoError(t, err)
	defer s.Close()

	tileLoader, closeLoader, err := newTileLoader(cfg, s, l)
	require.NoError(t, err)
	defer closeLoader()

	tl := tile.New(tile.Index{I: 1, J: -1}, 500, origin)
	require.NoError(t, tileLoader.Load(ctx, tl))
	mt := loader.MapTileAt(tl, 14)
	require.Equal(t, syntheticMapPayload(mt, 64), tl.Payload)

	// Outside the seeded rectangle the store fallback loads an empty payload.
	far := tile.New(tile.Index{I: 400, J: 0}, 500, origin)
	require.NoError(t, tileLoader.Load(ctx, far))
	require.Empty(t, far.Payload)

	cfg.MapTiles.Zoom = 16
	_, _, err = newTileLoader(cfg, s, l)
	require.ErrorContains(t, err, "configured zoom is 16")
}

func TestOpenStoreLayers(t *testing.T) {
	ctx := context.Background()
	cfg := config.Store{
		Kind:         "sqlite",
		Path:         filepath.Join(t.TempDir(), "tiles.db"),
		CacheMaxCost: 1 << 20,
		Compress:     true,
	}

	s, err := openStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &store.Cached{}, s)
	require.NoError(t, s.Put(ctx, tile.Index{I: 1, J: 1}, []byte("hello hello hello")))
	require.NoError(t, s.Close())

	raw, err := openRawStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer raw.Close()
	data, err := raw.Get(ctx, tile.Index{I: 1, J: 1})
	require.NoError(t, err)
	require.NotEqual(t, []byte("hello hello hello"), data)
}
