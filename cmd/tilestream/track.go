package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var errEmptyTrack = errors.New("track has no points")

// track is a path to replay. Geographic tracks hold orb.Point{lon, lat}.
type track struct {
	Geographic bool
	Points     []orb.Point
}

func readTrack(filePath string) (track, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return track{}, err
	}
	defer f.Close()

	var t track
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		t, err = parseCSVTrack(f)
	default:
		data, readErr := io.ReadAll(f)
		if readErr != nil {
			return track{}, readErr
		}
		t, err = parseGeoJSONTrack(data)
	}
	if err != nil {
		return track{}, fmt.Errorf("read track %s: %w", filePath, err)
	}
	if len(t.Points) == 0 {
		return track{}, errEmptyTrack
	}
	return t, nil
}

// parseGeoJSONTrack joins every line in a geometry, feature or feature
// collection into one path, in document order.
func parseGeoJSONTrack(data []byte) (track, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return track{}, err
	}

	var geometries []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return track{}, err
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return track{}, err
		}
		geometries = append(geometries, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return track{}, err
		}
		geometries = append(geometries, g.Geometry())
	}

	t := track{Geographic: true}
	for _, g := range geometries {
		switch g := g.(type) {
		case orb.LineString:
			t.Points = append(t.Points, g...)
		case orb.MultiLineString:
			for _, ls := range g {
				t.Points = append(t.Points, ls...)
			}
		case orb.Point:
			t.Points = append(t.Points, g)
		case orb.MultiPoint:
			t.Points = append(t.Points, g...)
		}
	}
	return t, nil
}

// parseCSVTrack reads two columns per row. A header row naming "lat" and
// "lon" makes the track geographic; "x" and "y" or no header make it planar.
func parseCSVTrack(r io.Reader) (track, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return track{}, err
	}
	if len(records) == 0 {
		return track{}, nil
	}

	var t track
	xCol, yCol := 0, 1
	if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][0]), 64); err != nil {
		header := records[0]
		records = records[1:]
		columns := make(map[string]int)
		for k, name := range header {
			columns[strings.ToLower(strings.TrimSpace(name))] = k
		}
		lat, hasLat := columns["lat"]
		lon, hasLon := columns["lon"]
		x, hasX := columns["x"]
		y, hasY := columns["y"]
		switch {
		case hasLat && hasLon:
			t.Geographic = true
			xCol, yCol = lon, lat
		case hasX && hasY:
			xCol, yCol = x, y
		default:
			return track{}, fmt.Errorf("unknown header %v", header)
		}
	}

	for line, record := range records {
		if len(record) <= max(xCol, yCol) {
			return track{}, fmt.Errorf("row %d: too few columns", line+1)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(record[xCol]), 64)
		if err != nil {
			return track{}, fmt.Errorf("row %d: %w", line+1, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[yCol]), 64)
		if err != nil {
			return track{}, fmt.Errorf("row %d: %w", line+1, err)
		}
		t.Points = append(t.Points, orb.Point{x, y})
	}
	return t, nil
}

// densify inserts points along every segment so that consecutive points are
// at most step apart. A non-positive step returns the points unchanged.
func densify(points []orb.Point, step float64) []orb.Point {
	if step <= 0 || len(points) < 2 {
		return points
	}
	result := []orb.Point{points[0]}
	for k := 1; k < len(points); k++ {
		a, b := points[k-1], points[k]
		dx, dy := b[0]-a[0], b[1]-a[1]
		n := int(math.Ceil(math.Hypot(dx, dy) / step))
		for s := 1; s <= n; s++ {
			f := float64(s) / float64(n)
			result = append(result, orb.Point{a[0] + f*dx, a[1] + f*dy})
		}
	}
	return result
}

// updates turns the track into manager updates spaced at most step planar
// units apart. Geographic tracks are densified on the plane anchored at
// their first point, the same origin the manager will pick.
func (t track) updates(step float64) []manager.Update {
	if !t.Geographic {
		points := densify(t.Points, step)
		result := make([]manager.Update, len(points))
		for k, p := range points {
			result[k] = manager.PlanarUpdate(p)
		}
		return result
	}

	origin := geo.FromPoint(t.Points[0])
	planar := make([]orb.Point, len(t.Points))
	for k, p := range t.Points {
		planar[k] = geo.ToPlanar(origin, geo.FromPoint(p))
	}
	planar = densify(planar, step)

	result := make([]manager.Update, len(planar))
	for k, p := range planar {
		result[k] = manager.GeoUpdate(geo.ToCoordinate(origin, p))
	}
	result[0] = manager.GeoUpdate(origin)
	return result
}
