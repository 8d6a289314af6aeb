// Package boundary reads Esri JSON ("pjson") polygon payloads, such as the
// state boundary query result, into go-geom geometries.
package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// ErrNoGeometry is returned when a payload holds no polygon rings.
var ErrNoGeometry = errors.New("no boundary geometry")

// Esri web mercator wkids that PostGIS knows as 3857.
var webMercatorWKIDs = map[int]bool{102100: true, 102113: true, 900913: true}

// SpatialReference is the Esri spatialReference object.
type SpatialReference struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

// SRID maps the reference to a PostGIS SRID. Unknown references are WGS84.
func (sr *SpatialReference) SRID() int {
	if sr == nil {
		return 4326
	}
	id := sr.LatestWKID
	if id == 0 {
		id = sr.WKID
	}
	if webMercatorWKIDs[id] {
		return 3857
	}
	if id == 0 {
		return 4326
	}
	return id
}

// esriPolygon is an Esri polygon geometry.
type esriPolygon struct {
	Rings            [][][]float64     `json:"rings"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

type esriFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *esriPolygon   `json:"geometry"`
}

// esriDocument covers both a feature set and a bare polygon.
type esriDocument struct {
	GeometryType     string            `json:"geometryType"`
	SpatialReference *SpatialReference `json:"spatialReference"`
	Features         []esriFeature     `json:"features"`
	Rings            [][][]float64     `json:"rings"`
}

// Feature is one boundary polygon with its attributes.
type Feature struct {
	Attributes map[string]any
	Geometry   *geom.MultiPolygon
}

// GeoJSON encodes the feature geometry for ST_GeomFromGeoJSON.
func (f Feature) GeoJSON() ([]byte, error) {
	return geojson.Marshal(f.Geometry)
}

// Boundary is a parsed boundary payload.
type Boundary struct {
	SRID     int
	Features []Feature
}

// Parse decodes an Esri JSON feature set or polygon.
func Parse(data []byte) (Boundary, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Boundary{}, ErrNoGeometry
	}

	var doc esriDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Boundary{}, fmt.Errorf("decode esri json: %w", err)
	}

	b := Boundary{SRID: doc.SpatialReference.SRID()}

	if len(doc.Rings) > 0 {
		mp, err := assemble(doc.Rings)
		if err != nil {
			return Boundary{}, err
		}
		b.Features = append(b.Features, Feature{Attributes: map[string]any{}, Geometry: mp})
		return b, nil
	}

	for i, f := range doc.Features {
		if f.Geometry == nil || len(f.Geometry.Rings) == 0 {
			continue
		}
		if doc.SpatialReference == nil && f.Geometry.SpatialReference != nil {
			b.SRID = f.Geometry.SpatialReference.SRID()
		}
		mp, err := assemble(f.Geometry.Rings)
		if err != nil {
			return Boundary{}, fmt.Errorf("feature %d: %w", i, err)
		}
		attrs := f.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		b.Features = append(b.Features, Feature{Attributes: attrs, Geometry: mp})
	}

	if len(b.Features) == 0 {
		return Boundary{}, ErrNoGeometry
	}
	return b, nil
}

// ReadFile parses an Esri JSON file.
func ReadFile(path string) (Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Boundary{}, err
	}
	return Parse(data)
}

// WriteFile dumps a fetched payload to path. A nil payload is written as
// JSON null, which Parse rejects.
func WriteFile(path string, raw json.RawMessage) error {
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return os.WriteFile(path, raw, 0o644)
}

// assemble turns Esri rings into polygons. Clockwise rings are shells and
// counter-clockwise rings are holes of the shell that contains them.
func assemble(rings [][][]float64) (*geom.MultiPolygon, error) {
	type shell struct {
		rings  [][]geom.Coord
		flat   []float64
		bounds *geom.Bounds
	}
	var shells []*shell

	for i, r := range rings {
		coords := closeRing(r)
		if len(coords) < 4 {
			return nil, fmt.Errorf("ring %d has %d points", i, len(coords))
		}

		flat := make([]float64, 0, len(coords)*2)
		for _, c := range coords {
			flat = append(flat, c...)
		}
		bounds := geom.NewBounds(geom.XY).Set(xyBounds(flat)...)

		if !xy.IsRingCounterClockwise(geom.XY, flat) || len(shells) == 0 {
			shells = append(shells, &shell{rings: [][]geom.Coord{coords}, flat: flat, bounds: bounds})
			continue
		}

		// A hole belongs to the shell containing its first vertex; the last
		// shell takes it when none does.
		owner := shells[len(shells)-1]
		for _, s := range shells {
			if s.bounds.OverlapsPoint(geom.XY, coords[0]) && xy.IsPointInRing(geom.XY, coords[0], s.flat) {
				owner = s
				break
			}
		}
		owner.rings = append(owner.rings, coords)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, s := range shells {
		p, err := geom.NewPolygon(geom.XY).SetCoords(s.rings)
		if err != nil {
			return nil, err
		}
		if err := mp.Push(p); err != nil {
			return nil, err
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, ErrNoGeometry
	}
	return mp, nil
}

func closeRing(r [][]float64) []geom.Coord {
	out := make([]geom.Coord, 0, len(r)+1)
	for _, p := range r {
		if len(p) < 2 {
			continue
		}
		out = append(out, geom.Coord{p[0], p[1]})
	}
	if n := len(out); n > 0 && (out[0][0] != out[n-1][0] || out[0][1] != out[n-1][1]) {
		out = append(out, geom.Coord{out[0][0], out[0][1]})
	}
	return out
}

// xyBounds returns minx, miny, maxx, maxy of a flat XY coordinate slice.
func xyBounds(flat []float64) []float64 {
	minX, minY, maxX, maxY := flat[0], flat[1], flat[0], flat[1]
	for i := 2; i+1 < len(flat); i += 2 {
		minX = min(minX, flat[i])
		maxX = max(maxX, flat[i])
		minY = min(minY, flat[i+1])
		maxY = max(maxY, flat[i+1])
	}
	return []float64{minX, minY, maxX, maxY}
}
