package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/internal/tiletest"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/metrics"
	"github.com/eak1mov/go-tilestream/server"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager(t *testing.T) *manager.Manager {
	t.Helper()
	m, err := manager.New(manager.Config{
		TileSize:          100,
		Margin:            10,
		Sensitivity:       5,
		AutoEvict:         true,
		CacheSize:         4,
		EvictionThreshold: 4,
	}, tiletest.NewLoader())
	require.NoError(t, err)
	return m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r := server.NewRouter(newManager(t))
	w := do(t, r, http.MethodGet, "/api/v1/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestPlanarPosition(t *testing.T) {
	m := newManager(t)
	r := server.NewRouter(m)

	w := do(t, r, http.MethodPost, "/api/v1/position", `{"x": 0, "y": 0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, "/api/v1/position", `{"x": 45, "y": 0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"position": [45, 0], "current": {"i": 0, "j": 0}}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/tiles", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot manager.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Tiles, 2)
	require.Equal(t, "active", snapshot.Tiles[0].State)
	require.Equal(t, "loaded", snapshot.Tiles[1].State)

	w = do(t, r, http.MethodGet, "/api/v1/tiles/1/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "tile:1:0", w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/tiles/5/5", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/tiles/x/5", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeoPosition(t *testing.T) {
	m := newManager(t)
	r := server.NewRouter(m)

	w := do(t, r, http.MethodPost, "/api/v1/position", `{"lat": 52.52, "lon": 13.405}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	origin, ok := m.Origin()
	require.True(t, ok)
	require.Equal(t, 52.52, origin.Lat)
	require.Equal(t, 13.405, origin.Lon)
}

func TestInvalidPosition(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"NotJSON", `x=1`},
		{"Empty", `{}`},
		{"OnlyX", `{"x": 1}`},
		{"OnlyLat", `{"lat": 1}`},
		{"LatOutOfRange", `{"lat": 91, "lon": 0}`},
		{"LonOutOfRange", `{"lat": 0, "lon": 181}`},
		{"BothForms", `{"lat": 1, "lon": 1, "x": 1, "y": 1}`},
		{"Pole", `{"lat": 90, "lon": 0}`},
		{"BeyondPlane", `{"x": 1e300, "y": 0}`},
	}
	r := server.NewRouter(newManager(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/position", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestLoaderFailureIsServerError(t *testing.T) {
	loader := tiletest.NewLoader()
	m, err := manager.New(manager.DefaultConfig(), loader)
	require.NoError(t, err)
	r := server.NewRouter(m)

	loader.FailOnce(tile.Index{}, context.DeadlineExceeded)
	w := do(t, r, http.MethodPost, "/api/v1/position", `{"x": 0, "y": 0}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/position", `{"x": 0, "y": 0}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := server.NewRouter(newManager(t), server.WithMetrics(metrics.NewHTTP(reg), reg))

	do(t, r, http.MethodGet, "/api/v1/healthz", "")
	w := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `tilestream_http_requests_total{code="200",method="GET",route="/api/v1/healthz"} 1`)
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := server.NewRouter(newManager(t), server.WithTracer(tp.Tracer("test")))
	do(t, r, http.MethodGet, "/api/v1/healthz", "")
	do(t, r, http.MethodGet, "/api/v1/tiles", "")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /api/v1/tiles", spans[0].Name())
}

func TestStream(t *testing.T) {
	bus := event.NewBus()
	m, err := manager.New(manager.Config{
		TileSize:          100,
		Margin:            10,
		Sensitivity:       5,
		AutoEvict:         true,
		CacheSize:         4,
		EvictionThreshold: 4,
	}, tiletest.NewLoader(), manager.WithSink(bus))
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	srv := httptest.NewServer(server.NewRouter(m, server.WithEvents(bus), server.WithLogger(zap.New(core))))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	type message struct {
		Type    string      `json:"type"`
		Kind    string      `json:"kind"`
		Index   tile.Index  `json:"index"`
		Current *tile.Index `json:"current"`
		Error   string      `json:"error"`
	}
	readUntilReply := func() ([]message, message) {
		t.Helper()
		var events []message
		for {
			var msg message
			require.NoError(t, conn.ReadJSON(&msg))
			if msg.Type != "event" {
				return events, msg
			}
			events = append(events, msg)
		}
	}

	require.NoError(t, conn.WriteJSON(map[string]float64{"x": 0, "y": 0}))
	events, reply := readUntilReply()
	require.Equal(t, "position", reply.Type)
	require.Equal(t, &tile.Index{}, reply.Current)

	var kinds []string
	for _, e := range events {
		require.Equal(t, tile.Index{}, e.Index)
		kinds = append(kinds, e.Kind)
	}
	require.Equal(t, []string{"load_started", "load_finished", "activated"}, kinds)

	require.NoError(t, conn.WriteJSON(map[string]float64{"x": 1}))
	events, reply = readUntilReply()
	require.Empty(t, events)
	require.Equal(t, "error", reply.Type)
	require.NotEmpty(t, reply.Error)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return bus.Len() == 0 }, time.Second, 10*time.Millisecond)

	opened := logs.FilterMessage("stream opened").All()
	require.Len(t, opened, 1)
	require.Equal(t, int64(1), opened[0].ContextMap()["subscribers"])
	require.Eventually(t, func() bool {
		return logs.FilterMessage("stream closed").Len() == 1
	}, time.Second, 10*time.Millisecond)
	closed := logs.FilterMessage("stream closed").All()
	require.Equal(t, int64(0), closed[0].ContextMap()["subscribers"])
}

func TestStreamDisabledWithoutEvents(t *testing.T) {
	r := server.NewRouter(newManager(t))
	w := do(t, r, http.MethodGet, "/api/v1/stream", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := server.NewRouter(newManager(t), server.WithCORS("https://map.example.com"))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/position", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://map.example.com")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://map.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("https://other.example.com")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
