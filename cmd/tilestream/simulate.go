package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/height"
	"github.com/eak1mov/go-tilestream/loader"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/mbtiles"
	"github.com/eak1mov/go-tilestream/store"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/subcommands"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// newTileLoader reads payloads from the map tiles file when configured,
// falling back to the store. Tiles missing from both load empty.
func newTileLoader(cfg *config.Config, s store.Store, l *zap.Logger) (tile.Loader, func() error, error) {
	storeLoader := loader.NewStoreLoader(s, loader.WithMissingOK(), loader.WithLogger(l))
	if cfg.MapTiles.Path == "" {
		return storeLoader, func() error { return nil }, nil
	}

	r, err := mbtiles.NewReader(cfg.MapTiles.Path)
	if err != nil {
		return nil, nil, err
	}
	zoom := maptile.Zoom(cfg.MapTiles.Zoom)
	md, err := r.Metadata()
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("read map tiles metadata: %w", err)
	}
	if !md.CoversZoom(zoom) {
		r.Close()
		return nil, nil, fmt.Errorf("map tiles %q cover zoom %d..%d, configured zoom is %d",
			md.Name, md.MinZoom, md.MaxZoom, zoom)
	}
	l.Info("map tiles opened",
		zap.String("path", cfg.MapTiles.Path),
		zap.String("name", md.Name),
		zap.String("format", md.Format),
		zap.Uint32("zoom", uint32(zoom)),
	)
	mapLoader := loader.NewMapTileLoader(r, zoom)
	return loader.Fallback(mapLoader, storeLoader), r.Close, nil
}

type eventCounter struct {
	mu     sync.Mutex
	counts map[event.Kind]int
}

func (c *eventCounter) Publish(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[event.Kind]int)
	}
	c.counts[e.Kind]++
}

type simulateCmd struct {
	store     storeFlags
	trackPath string
	step      float64
}

func (c *simulateCmd) Name() string     { return "simulate" }
func (c *simulateCmd) Synopsis() string { return "replay a track through a tile manager" }
func (c *simulateCmd) Usage() string {
	return "tilestream simulate -track <path.geojson|path.csv> [-step <units>] [-store <path> -kind <kind>]\n"
}
func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	c.store.register(f)
	f.StringVar(&c.trackPath, "track", "", "GeoJSON or CSV track")
	f.Float64Var(&c.step, "step", 0, "Maximum distance between replayed positions (default: half the sensitivity)")
}

func (c *simulateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.trackPath == "" {
		log.Println("-track is required")
		return subcommands.ExitUsageError
	}

	cfg, l, err := loadConfig()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer l.Sync()
	c.store.apply(&cfg.Store)

	t, err := readTrack(c.trackPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	step := c.step
	if step <= 0 {
		step = max(cfg.Tiling.Sensitivity/2, 1)
	}
	updates := t.updates(step)

	s, err := openStore(ctx, cfg.Store, l)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closeStore(s)

	tileLoader, closeLoader, err := newTileLoader(cfg, s, l)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closeLoader()

	counter := &eventCounter{}
	m, err := manager.New(cfg.Tiling, tileLoader,
		manager.WithHeightProvider(height.Flat{}),
		manager.WithSink(counter),
		manager.WithLogger(l),
	)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	failures, err := replay(ctx, m, updates)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	current, _ := m.CurrentIndex()
	fmt.Printf("updates:   %d (%d failed)\n", len(updates), failures)
	for _, kind := range event.Kinds() {
		fmt.Printf("%-13s %d\n", kind.String()+":", counter.counts[kind])
	}
	fmt.Printf("tiles:     %d (%d active)\n", m.Count(), m.ActiveCount())
	fmt.Printf("current:   %v\n", current)

	if failures > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// replay feeds updates through the manager queue with a progress bar and
// returns how many of them failed.
func replay(ctx context.Context, m *manager.Manager, updates []manager.Update) (int, error) {
	queue := make(chan manager.Update)
	bar := progressbar.NewOptions(len(updates), progressbar.OptionShowIts(), progressbar.OptionShowCount())

	go func() {
		defer close(queue)
		for _, u := range updates {
			select {
			case queue <- u:
				bar.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	failures := 0
	err := m.Run(ctx, queue, func(manager.Update, error) { failures++ })
	bar.Finish()
	fmt.Println()
	return failures, err
}
