package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/height"
	"github.com/eak1mov/go-tilestream/internal/telemetry"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/metrics"
	"github.com/eak1mov/go-tilestream/server"
	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type serveCmd struct {
	store storeFlags
	addr  string
}

func (c *serveCmd) Name() string     { return "serve" }
func (c *serveCmd) Synopsis() string { return "accept positions over HTTP and stream tiles" }
func (c *serveCmd) Usage() string {
	return "tilestream serve [-addr <host:port>] [-store <path> -kind <kind>]\n"
}
func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	c.store.register(f)
	f.StringVar(&c.addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, l, err := loadConfig()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer l.Sync()
	c.store.apply(&cfg.Store)
	if c.addr != "" {
		cfg.HTTP.Addr = c.addr
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store, l)
	if err != nil {
		l.Error("failed to open store", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer closeStore(s)

	tileLoader, closeLoader, err := newTileLoader(cfg, s, l)
	if err != nil {
		l.Error("failed to open map tiles", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer closeLoader()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := event.NewBus(metrics.NewCollector(reg))
	m, err := manager.New(cfg.Tiling, tileLoader,
		manager.WithHeightProvider(height.Flat{}),
		manager.WithSink(bus),
		manager.WithLogger(l),
	)
	if err != nil {
		l.Error("invalid tiling config", zap.Error(err))
		return subcommands.ExitFailure
	}

	opts := []server.Option{
		server.WithLogger(l),
		server.WithMetrics(metrics.NewHTTP(reg), reg),
		server.WithEvents(bus),
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.HTTP.CORSOrigins...))
	}
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			l.Error("failed to initialize telemetry", zap.Error(err))
			return subcommands.ExitFailure
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				l.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
		opts = append(opts, server.WithTracer(otel.Tracer("github.com/eak1mov/go-tilestream/server")))
		l.Info("telemetry initialized", zap.String("endpoint", cfg.Telemetry.OTLPEndpoint))
	}

	l.Info("starting tilestream", zap.Any("tiling", cfg.Tiling), zap.String("store", cfg.Store.Kind))
	err = server.ListenAndServe(ctx, server.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, server.NewRouter(m, opts...), l)
	if err != nil {
		l.Error("server failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	l.Info("server stopped")
	return subcommands.ExitSuccess
}
