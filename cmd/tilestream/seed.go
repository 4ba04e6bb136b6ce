package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/loader"
	"github.com/eak1mov/go-tilestream/mbtiles"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/subcommands"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type storeFlags struct {
	path string
	kind string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.path, "store", "", "Store path (overrides STORE_PATH)")
	fs.StringVar(&f.kind, "kind", "", "Store kind: dir, sqlite, redis, pack (deduced from -store when empty)")
}

func (f *storeFlags) apply(cfg *config.Store) {
	if f.path != "" {
		cfg.Path = f.path
		cfg.Kind = f.kind
	} else if f.kind != "" {
		cfg.Kind = f.kind
	}
}

type seedCmd struct {
	store    storeFlags
	radius   int
	size     int
	mapTiles string
	lat, lon float64
}

func (c *seedCmd) Name() string     { return "seed" }
func (c *seedCmd) Synopsis() string { return "fill a store with synthetic tile payloads" }
func (c *seedCmd) Usage() string {
	return "tilestream seed [-store <path> -kind <kind>] [-r <radius> -size <bytes>]\n" +
		"                [-maptiles <path.mbtiles> -lat <deg> -lon <deg>]\n"
}
func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	c.store.register(f)
	f.IntVar(&c.radius, "r", 8, "Seed every index with |i|, |j| <= r")
	f.IntVar(&c.size, "size", 1024, "Payload size in bytes")
	f.StringVar(&c.mapTiles, "maptiles", "", "Also write the map tiles covering the seeded tiles to a new MBTiles file")
	f.Float64Var(&c.lat, "lat", 0, "Latitude of the relative origin used to place map tiles")
	f.Float64Var(&c.lon, "lon", 0, "Longitude of the relative origin used to place map tiles")
}

// syntheticPayload is a recognizable, compressible payload for idx.
func syntheticPayload(idx tile.Index, size int) []byte {
	line := fmt.Appendf(nil, "tile %d %d\n", idx.I, idx.J)
	return bytes.Repeat(line, size/len(line)+1)[:size]
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.radius < 0 || c.size < 0 {
		log.Println("radius and size must not be negative")
		return subcommands.ExitUsageError
	}

	cfg, l, err := loadConfig()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer l.Sync()
	c.store.apply(&cfg.Store)
	cfg.Store.CacheMaxCost = 0

	s, err := openStore(ctx, cfg.Store, l)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closeStore(s)

	side := 2*c.radius + 1
	bar := progressbar.NewOptions(side*side, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	for i := -c.radius; i <= c.radius; i++ {
		for j := -c.radius; j <= c.radius; j++ {
			idx := tile.Index{I: int32(i), J: int32(j)}
			if err := s.Put(ctx, idx, syntheticPayload(idx, c.size)); err != nil {
				bar.Finish()
				log.Println(err)
				return subcommands.ExitFailure
			}
			bar.Add(1)
		}
	}
	bar.Finish()
	fmt.Println()

	if c.mapTiles != "" {
		origin := geo.Coordinate{Lat: c.lat, Lon: c.lon}
		n, err := seedMapTiles(c.mapTiles, cfg.Tiling.TileSize, maptile.Zoom(cfg.MapTiles.Zoom), origin, c.radius, c.size, l)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		l.Info("map tiles written", zap.String("path", c.mapTiles), zap.Int("tiles", n))
	}

	return subcommands.ExitSuccess
}

// seedMapTiles writes one synthetic map tile for every distinct map tile the
// loader would read for the seeded index rectangle, and returns their count.
func seedMapTiles(filePath string, tileSize float64, zoom maptile.Zoom, origin geo.Coordinate, radius, size int, l *zap.Logger) (int, error) {
	w, err := mbtiles.NewWriter(filePath,
		mbtiles.WithName("tilestream seed"),
		mbtiles.WithLogger(l),
	)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	seen := make(map[maptile.Tile]bool)
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			t := tile.New(tile.Index{I: int32(i), J: int32(j)}, tileSize, origin)
			mt := loader.MapTileAt(t, zoom)
			if seen[mt] {
				continue
			}
			seen[mt] = true
			if err := w.WriteTile(mt, syntheticMapPayload(mt, size)); err != nil {
				return 0, err
			}
		}
	}
	return len(seen), w.Finalize()
}

func syntheticMapPayload(mt maptile.Tile, size int) []byte {
	line := fmt.Appendf(nil, "map %d/%d/%d\n", mt.Z, mt.X, mt.Y)
	return bytes.Repeat(line, size/len(line)+1)[:size]
}
