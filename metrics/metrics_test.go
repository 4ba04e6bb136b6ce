package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/metrics"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := metrics.NewCollector(reg)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := tile.Index{I: 0, J: 0}, tile.Index{I: 1, J: 0}
	for _, e := range []event.Event{
		{Kind: event.LoadStarted, Index: a, Time: start},
		{Kind: event.LoadFinished, Index: a, Time: start.Add(20 * time.Millisecond)},
		{Kind: event.Activated, Index: a, Time: start},
		{Kind: event.LoadStarted, Index: b, Time: start},
		{Kind: event.LoadFinished, Index: b, Time: start.Add(time.Second)},
		{Kind: event.Activated, Index: b, Time: start},
		{Kind: event.Deactivated, Index: a, Time: start},
		{Kind: event.Destroyed, Index: a, Time: start},
	} {
		c.Publish(e)
	}

	want := `
# HELP tilestream_active_tiles Tiles currently active.
# TYPE tilestream_active_tiles gauge
tilestream_active_tiles 1
# HELP tilestream_events_total Tile lifecycle events by kind.
# TYPE tilestream_events_total counter
tilestream_events_total{kind="activated"} 2
tilestream_events_total{kind="deactivated"} 1
tilestream_events_total{kind="destroyed"} 1
tilestream_events_total{kind="load_finished"} 2
tilestream_events_total{kind="load_started"} 2
# HELP tilestream_tiles Tiles currently loaded, active or not.
# TYPE tilestream_tiles gauge
tilestream_tiles 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"tilestream_active_tiles", "tilestream_events_total", "tilestream_tiles")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "tilestream_tile_load_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCollectorIgnoresUnmatchedFinish(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.Publish(event.Event{Kind: event.LoadFinished, Index: tile.Index{I: 3, J: 3}, Time: time.Now()})

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "tilestream_tile_load_seconds" {
			require.Zero(t, mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}

func TestHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := metrics.NewHTTP(reg)

	h.Observe("GET", "/api/v1/tiles", "200", 5*time.Millisecond)
	h.Observe("GET", "/api/v1/tiles", "200", 7*time.Millisecond)
	h.Observe("POST", "/api/v1/position", "400", time.Millisecond)

	want := `
# HELP tilestream_http_requests_total HTTP requests by route and status code.
# TYPE tilestream_http_requests_total counter
tilestream_http_requests_total{code="200",method="GET",route="/api/v1/tiles"} 2
tilestream_http_requests_total{code="400",method="POST",route="/api/v1/position"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "tilestream_http_requests_total"))
}
