// Package coords extracts coordinates from freeform aeronautical text.
//
// Three notations are understood: OpenAir DP lines (colon-separated DMS),
// AIP compact (455404.3N 0153113.7E, degree and minute symbols tolerated)
// and eAIP spaced DMS (46 10 29 N 013 39 58 E). All results are GeoJSON
// axis order: orb.Point{lon, lat}.
package coords

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aerodata/internal/units"
)

var (
	dpBodyRe = regexp.MustCompile(`^(\d+:\d+:\d+(?:\.\d+)?)([NS]?)\s*([NS])?\s+(\d+:\d+:\d+(?:\.\d+)?)([EW]?)\s*([EW])?`)
	aipRe    = regexp.MustCompile(`^(\d{2,3})(\d{2})(\d{2}(?:\.\d+)?)([NS])\s+(\d{2,3})(\d{2})(\d{2}(?:\.\d+)?)([EW])`)
	eaipRe   = regexp.MustCompile(`(\d+)\s+(\d+)\s+(\d+)\s+([NS])\s+(\d+)\s+(\d+)\s+(\d+)\s+([EW])`)
	eaipLine = regexp.MustCompile(`^(\d+)\s+(\d+)\s+(\d+)\s+([NS])\s+(\d+)\s+(\d+)\s+(\d+)\s+([EW])`)
	icaoRe   = regexp.MustCompile(`(\d{6})([NS])\s+(\d{7})([EW])`)
	icaoLine = regexp.MustCompile(`^(\d{6})([NS])\s*(\d{7})([EW])`)
)

func num(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func signed(dd float64, hemisphere string) float64 {
	if hemisphere == "S" || hemisphere == "W" {
		return -dd
	}
	return dd
}

// ParseDP parses an OpenAir DP line, with the hemisphere letters attached
// or detached, into a point.
func ParseDP(line string) (orb.Point, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "DP ") {
		return orb.Point{}, &units.FormatError{Notation: "DP line", Input: line}
	}
	body := strings.TrimSpace(trimmed[2:])
	m := dpBodyRe.FindStringSubmatch(body)
	if m == nil {
		return orb.Point{}, &units.FormatError{Notation: "DP line", Input: line}
	}
	lat := signed(colonDMS(m[1]), firstOf(m[2], m[3]))
	lon := signed(colonDMS(m[4]), firstOf(m[5], m[6]))
	return orb.Point{lon, lat}, nil
}

func colonDMS(s string) float64 {
	parts := strings.Split(s, ":")
	return units.DMSToDecimal(num(parts[0]), num(parts[1]), num(parts[2]))
}

func firstOf(a, b string) string {
	if a != "" {
		return strings.ToUpper(a)
	}
	return strings.ToUpper(b)
}

// ParseAIP parses an AIP compact coordinate pair like
// "455404.3N 0153113.7E". Degree, minute and second symbols are stripped
// before matching.
func ParseAIP(s string) (orb.Point, error) {
	cleaned := strings.NewReplacer("°", "", "'", "", `"`, "").Replace(strings.TrimSpace(s))
	m := aipRe.FindStringSubmatch(cleaned)
	if m == nil {
		return orb.Point{}, &units.FormatError{Notation: "AIP coordinate", Input: s}
	}
	lat := signed(units.DMSToDecimal(num(m[1]), num(m[2]), num(m[3])), m[4])
	lon := signed(units.DMSToDecimal(num(m[5]), num(m[6]), num(m[7])), m[8])
	return orb.Point{lon, lat}, nil
}

// ParseEAIP parses an eAIP spaced DMS pair like "46 10 29 N 013 39 58 E".
func ParseEAIP(s string) (orb.Point, error) {
	m := eaipLine.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return orb.Point{}, &units.FormatError{Notation: "eAIP coordinate", Input: s}
	}
	return eaipPoint(m), nil
}

func eaipPoint(m []string) orb.Point {
	lat := signed(units.DMSToDecimal(num(m[1]), num(m[2]), num(m[3])), m[4])
	lon := signed(units.DMSToDecimal(num(m[5]), num(m[6]), num(m[7])), m[8])
	return orb.Point{lon, lat}
}

// ParseAny tries every supported notation in a fixed order (DP, AIP,
// eAIP) and returns the first success.
func ParseAny(line string) (orb.Point, error) {
	for _, parse := range []func(string) (orb.Point, error){ParseDP, ParseAIP, ParseEAIP} {
		if p, err := parse(line); err == nil {
			return p, nil
		}
	}
	return orb.Point{}, &units.FormatError{Notation: "coordinate line", Input: line}
}

// ExtractAll scans a whole text blob for coordinates: ICAO compact
// matches first, then eAIP matches, each group in text order and with
// duplicates removed.
func ExtractAll(text string) []orb.Point {
	var found []orb.Point
	found = append(found, findICAOCompact(text)...)
	for _, m := range eaipRe.FindAllStringSubmatch(text, -1) {
		found = append(found, eaipPoint(m))
	}

	seen := make(map[orb.Point]struct{}, len(found))
	unique := found[:0]
	for _, p := range found {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

// findICAOCompact decodes compact ICAO pairs like "461010N 0144103E".
func findICAOCompact(text string) []orb.Point {
	var pts []orb.Point
	for _, m := range icaoRe.FindAllStringSubmatch(text, -1) {
		lat := units.DMSToDecimal(num(m[1][:2]), num(m[1][2:4]), num(m[1][4:6]))
		lon := units.DMSToDecimal(num(m[3][:3]), num(m[3][3:5]), num(m[3][5:7]))
		pts = append(pts, orb.Point{signed(lon, m[4]), signed(lat, m[2])})
	}
	return pts
}

// ICAOPolygon extracts every ICAO compact coordinate from the text and
// builds a closed GeoJSON polygon feature from them.
func ICAOPolygon(text string) (*geojson.Feature, error) {
	pts := findICAOCompact(text)
	if len(pts) == 0 {
		return nil, &units.FormatError{Notation: "ICAO compact coordinates", Input: text}
	}
	ring := orb.Ring(pts)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties = map[string]interface{}{}
	return f, nil
}

// CompactToOpenAir rewrites one ICAO compact pair as an OpenAir DP line,
// e.g. "455210N 0135035E" to "DP 45:52:10N 013:50:35E".
func CompactToOpenAir(line string) (string, error) {
	m := icaoLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", &units.FormatError{Notation: "ICAO compact coordinate", Input: line}
	}
	lat, latH, lon, lonH := m[1], m[2], m[3], m[4]
	return "DP " + lat[:2] + ":" + lat[2:4] + ":" + lat[4:6] + latH +
		" " + lon[:3] + ":" + lon[3:5] + ":" + lon[5:7] + lonH, nil
}

// BatchCompactToOpenAir converts every line of the text that holds an
// ICAO compact pair to a DP line, skipping blank and unparseable lines.
func BatchCompactToOpenAir(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		dp, err := CompactToOpenAir(line)
		if err != nil {
			continue
		}
		out = append(out, dp)
	}
	return out
}
