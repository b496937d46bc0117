package openair

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aerodata/internal/units"
)

// CloseRings repairs a GeoJSON document by closing every polygon ring that
// does not end on its first coordinate. The input must be a feature
// collection or a bare (Multi)Polygon geometry; other geometries inside a
// feature collection pass through untouched.
func CloseRings(data []byte) ([]byte, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &units.FormatError{Notation: "geojson", Input: "document"}
	}
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, &units.FormatError{Notation: "geojson", Input: "feature collection"}
		}
		for _, f := range fc.Features {
			f.Geometry = closeGeometry(f.Geometry)
		}
		return fc.MarshalJSON()
	case "Polygon", "MultiPolygon":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, &units.FormatError{Notation: "geojson", Input: probe.Type}
		}
		return json.Marshal(geojson.NewGeometry(closeGeometry(g.Geometry())))
	default:
		return nil, &units.FormatError{Notation: "geojson", Input: "type " + probe.Type}
	}
}

func closeGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		for i := range geom {
			geom[i] = closeRing(geom[i])
		}
		return geom
	case orb.MultiPolygon:
		for i := range geom {
			for j := range geom[i] {
				geom[i][j] = closeRing(geom[i][j])
			}
		}
		return geom
	default:
		return g
	}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}
