// Package openair converts between the OpenAir airspace format and GeoJSON.
//
// The OpenAir dialect handled here covers the property markers AC, AN, AY,
// AF, AG, AL and AH, activation times (AA), point outlines (DP) and
// circular areas (V X= plus DC). Airspaces become closed GeoJSON polygon
// features; circles are rasterized.
package openair

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aerodata/internal/units"
)

// propertyKeys maps OpenAir property markers to GeoJSON property names.
var propertyKeys = map[string]string{
	"AC": "class",
	"AN": "name",
	"AY": "type",
	"AF": "frequency",
	"AG": "station",
	"AL": "lower_limit",
	"AH": "upper_limit",
}

// Circle is a circular airspace area before rasterization.
type Circle struct {
	Center   orb.Point // lon, lat
	RadiusNM float64
}

// Airspace is one parsed OpenAir block. Exactly one of Polygon and Circle
// is set for a block that carries geometry.
type Airspace struct {
	Properties map[string]interface{}
	Polygon    []orb.Point // DP outline in file order, not closed
	Circle     *Circle
}

// dmsRe matches a DMS coordinate pair with the hemisphere letter either
// attached or detached, e.g. "46:19:13.0000 N 014:22:12.0000 E" and
// "46:19:13N 014:22:12E".
var dmsRe = regexp.MustCompile(`^(\d+):(\d+):([\d.]+)([NS])?\s*([NS])?\s+(\d+):(\d+):([\d.]+)([EW])?\s*([EW])?`)

// parseLatLon parses an OpenAir DMS coordinate pair to (lat, lon).
func parseLatLon(s string) (float64, float64, error) {
	m := dmsRe.FindStringSubmatch(strings.ReplaceAll(s, ",", " "))
	if m == nil {
		return 0, 0, &units.FormatError{Notation: "openair coordinate", Input: s}
	}
	num := func(s string) float64 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	lat := units.DMSToDecimal(num(m[1]), num(m[2]), num(m[3]))
	lon := units.DMSToDecimal(num(m[6]), num(m[7]), num(m[8]))
	if m[4] == "S" || m[5] == "S" {
		lat = -lat
	}
	if m[9] == "W" || m[10] == "W" {
		lon = -lon
	}
	return lat, lon, nil
}

// Parse reads OpenAir text into airspace blocks. Lines starting with '*'
// are comments; an AC line starts a new block. A malformed coordinate
// aborts the whole parse.
func Parse(text string) ([]Airspace, error) {
	var (
		airspaces []Airspace
		current   = Airspace{Properties: map[string]interface{}{}}
		coords    []orb.Point
		aaTimes   []string
		center    *orb.Point
		radiusNM  = -1.0
	)

	flush := func() {
		if len(coords) > 0 {
			current.Polygon = coords
		} else if center != nil && radiusNM >= 0 {
			current.Circle = &Circle{Center: *center, RadiusNM: radiusNM}
		} else {
			return
		}
		if len(aaTimes) > 0 {
			current.Properties["activation_times"] = append([]string(nil), aaTimes...)
		}
		airspaces = append(airspaces, current)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		if strings.HasPrefix(line, "AC") {
			flush()
			current = Airspace{Properties: map[string]interface{}{}}
			coords, aaTimes, center, radiusNM = nil, nil, nil, -1
		}

		switch {
		case len(line) >= 2 && propertyKeys[line[:2]] != "":
			current.Properties[propertyKeys[line[:2]]] = strings.TrimSpace(cutMarker(line, 3))
		case strings.HasPrefix(line, "AA"):
			aaTimes = append(aaTimes, strings.TrimSpace(cutMarker(line, 3)))
		case strings.HasPrefix(line, "V X="):
			lat, lon, err := parseLatLon(strings.TrimSpace(line[4:]))
			if err != nil {
				return nil, err
			}
			center = &orb.Point{lon, lat}
		case strings.HasPrefix(line, "DP"):
			lat, lon, err := parseLatLon(strings.TrimSpace(cutMarker(line, 3)))
			if err != nil {
				return nil, err
			}
			coords = append(coords, orb.Point{lon, lat})
		case strings.HasPrefix(line, "DC"):
			r, err := strconv.ParseFloat(strings.TrimSpace(cutMarker(line, 3)), 64)
			if err == nil && center != nil {
				radiusNM = r
			}
		}
	}
	flush()
	return airspaces, nil
}

// cutMarker drops the marker prefix, tolerating lines as short as the
// marker itself.
func cutMarker(line string, n int) string {
	if len(line) < n {
		return ""
	}
	return line[n:]
}

// circlePoints is the rasterization resolution for DC circles.
const circlePoints = 64

// rasterizeCircle samples the circle outline as a closed ring. The radius
// uses the 1 degree of latitude per 60 NM approximation; the longitude
// step is widened by the latitude of the center.
func rasterizeCircle(c Circle) orb.Ring {
	lat0 := c.Center[1]
	lon0 := c.Center[0]
	latRad := lat0 * math.Pi / 180
	radiusDeg := c.RadiusNM / 60

	ring := make(orb.Ring, 0, circlePoints+1)
	for i := 0; i < circlePoints; i++ {
		angle := 2 * math.Pi * float64(i) / circlePoints
		dLat := radiusDeg * math.Cos(angle)
		dLon := radiusDeg * math.Sin(angle) / math.Cos(latRad)
		ring = append(ring, orb.Point{lon0 + dLon, lat0 + dLat})
	}
	ring = append(ring, ring[0])
	return ring
}

// ToGeoJSON converts OpenAir text into a GeoJSON feature collection with
// one closed polygon feature per airspace.
func ToGeoJSON(text string) (*geojson.FeatureCollection, error) {
	airspaces, err := Parse(text)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, asp := range airspaces {
		var ring orb.Ring
		switch {
		case len(asp.Polygon) > 0:
			ring = orb.Ring(asp.Polygon)
			if ring[0] != ring[len(ring)-1] {
				ring = append(ring, ring[0])
			}
		case asp.Circle != nil:
			ring = rasterizeCircle(*asp.Circle)
		default:
			continue
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties = asp.Properties
		fc.Append(f)
	}
	return fc, nil
}

// outputProperties is the marker order used when writing OpenAir.
var outputProperties = []struct {
	key    string
	marker string
}{
	{"class", "AC"},
	{"type", "AY"},
	{"name", "AN"},
	{"frequency", "AF"},
	{"station", "AG"},
	{"lower_limit", "AL"},
	{"upper_limit", "AH"},
}

// FromGeoJSON converts a GeoJSON feature collection to OpenAir text. Each
// feature must carry a polygon geometry; only the outer ring is written.
func FromGeoJSON(data []byte) (string, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return "", &units.FormatError{Notation: "geojson", Input: "feature collection"}
	}
	lines := []string{"*VERSION: 2.0", "*WRITTEN_BY: SeeYou"}
	for _, f := range fc.Features {
		for _, p := range outputProperties {
			if v, ok := f.Properties[p.key]; ok {
				lines = append(lines, fmt.Sprintf("%s %v", p.marker, v))
			}
		}
		var ring orb.Ring
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) == 0 {
				return "", &units.FormatError{Notation: "geojson", Input: "polygon without rings"}
			}
			ring = g[0]
		default:
			return "", &units.FormatError{Notation: "geojson", Input: fmt.Sprintf("geometry type %q", f.Geometry.GeoJSONType())}
		}
		for _, pt := range ring {
			lines = append(lines, fmt.Sprintf("DP %s %s", FormatDMS(pt[1], true), FormatDMS(pt[0], false)))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n"), nil
}

// FormatDMS renders decimal degrees as an OpenAir DMS string with four
// second decimals, e.g. "46:19:13.0000N". Longitude degrees are padded to
// three digits.
func FormatDMS(deg float64, isLat bool) string {
	neg := deg < 0
	abs := math.Abs(deg)
	d := int(abs)
	m := int((abs - float64(d)) * 60)
	s := (abs - float64(d) - float64(m)/60) * 3600

	var suffix string
	switch {
	case isLat && neg:
		suffix = "S"
	case isLat:
		suffix = "N"
	case neg:
		suffix = "W"
	default:
		suffix = "E"
	}
	if isLat {
		return fmt.Sprintf("%02d:%02d:%07.4f%s", d, m, s, suffix)
	}
	return fmt.Sprintf("%03d:%02d:%07.4f%s", d, m, s, suffix)
}
