// Package server exposes a tile manager over HTTP: position updates come in,
// tile state goes out.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/metrics"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tracker is the part of the manager the server drives.
type Tracker interface {
	manager.Observer
	Snapshot() manager.Snapshot
	Tile(idx tile.Index) (*tile.Tile, bool)
}

var _ Tracker = (*manager.Manager)(nil)

type config struct {
	logger   *zap.Logger
	metrics  *metrics.HTTP
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
	events   *event.Bus
	origins  []string
}

type Option func(*config)

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m *metrics.HTTP, gatherer prometheus.Gatherer) Option {
	return func(c *config) {
		c.metrics = m
		c.gatherer = gatherer
	}
}

// WithTracer enables a server span per request.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithEvents enables the /api/v1/stream websocket, which forwards the events
// published on bus to every connected client.
func WithEvents(bus *event.Bus) Option {
	return func(c *config) { c.events = bus }
}

// WithCORS allows cross-origin requests from the given origins. "*" allows
// any origin.
func WithCORS(origins ...string) Option {
	return func(c *config) { c.origins = origins }
}

func NewRouter(t Tracker, opts ...Option) *gin.Engine {
	c := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if c.tracer != nil {
		r.Use(tracing(c.tracer))
	}
	r.Use(requestLogger(c.logger, c.metrics))
	if len(c.origins) > 0 {
		r.Use(corsMiddleware(c.origins))
	}

	h := &handler{tracker: t, validate: validator.New(), logger: c.logger}

	v1 := r.Group("/api/v1")
	v1.GET("/healthz", h.healthz)
	v1.GET("/tiles", h.tiles)
	v1.GET("/tiles/:i/:j", h.tilePayload)
	v1.POST("/position", h.position)
	if c.events != nil {
		s := &streamer{handler: h, events: c.events}
		v1.GET("/stream", s.stream)
	}

	if c.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ListenAndServe serves handler until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, cfg Config, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
