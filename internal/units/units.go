// Package units converts between the coordinate and distance notations used
// by the CUP waypoint format and plain SI values.
//
// Latitude and longitude travel as fixed-width degrees-decimal-minutes
// strings (DDMM.mmm{N|S} / DDDMM.mmm{E|W}); distances carry a unit suffix
// (ft, m, nm, ml) and are stored internally in meters together with the
// unit they were written in, so re-serialization reproduces the input.
package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Length conversion factors to meters.
const (
	FeetToMeters         = 0.3048
	NauticalMileToMeters = 1852
	StatuteMileToMeters  = 1609.344
)

// FormatError reports text that does not match any supported notation.
type FormatError struct {
	Notation string // which grammar was expected, e.g. "coordinate", "distance"
	Input    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s format: %q", e.Notation, e.Input)
}

// DMSToDecimal converts degrees, minutes and seconds to decimal degrees.
func DMSToDecimal(d, m, s float64) float64 {
	return d + m/60 + s/3600
}

var (
	// Latitude: DDMM.mmm followed by N or S.
	cupLatRe = regexp.MustCompile(`^(\d{2})(\d{2}\.\d{1,3})([NnSs])$`)
	// Longitude: DDDMM.mmm followed by E or W.
	cupLonRe = regexp.MustCompile(`^(\d{3})(\d{2}\.\d{1,3})([EeWw])$`)
)

// ParseLatLon converts a coordinate string in CUP notation to decimal
// degrees. Both the latitude and the longitude pattern are tried, in that
// order. S and W negate the magnitude.
func ParseLatLon(coord string) (float64, error) {
	s := strings.TrimSpace(coord)
	for _, re := range []*regexp.Regexp{cupLatRe, cupLonRe} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		deg, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, &FormatError{Notation: "coordinate", Input: coord}
		}
		min, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, &FormatError{Notation: "coordinate", Input: coord}
		}
		dd := float64(deg) + min/60
		switch strings.ToUpper(m[3]) {
		case "S", "W":
			dd = -dd
		}
		return dd, nil
	}
	return 0, &FormatError{Notation: "coordinate", Input: coord}
}

// FormatLat renders decimal degrees as a CUP latitude (DDMM.mmm{N|S}).
func FormatLat(dd float64) string {
	return formatDDM(dd, true)
}

// FormatLon renders decimal degrees as a CUP longitude (DDDMM.mmm{E|W}).
func FormatLon(dd float64) string {
	return formatDDM(dd, false)
}

func formatDDM(dd float64, isLat bool) string {
	var dir string
	if isLat {
		dir = "N"
		if dd < 0 {
			dir = "S"
		}
	} else {
		dir = "E"
		if dd < 0 {
			dir = "W"
		}
	}
	abs := math.Abs(dd)
	deg := int(abs)
	decMin := (abs - float64(deg)) * 60
	if isLat {
		return fmt.Sprintf("%02d%06.3f%s", deg, decMin, dir)
	}
	return fmt.Sprintf("%03d%06.3f%s", deg, decMin, dir)
}

// Unit is a distance unit as written in a CUP file.
type Unit string

const (
	Meter        Unit = "m"
	Feet         Unit = "ft"
	NauticalMile Unit = "nm"
	StatuteMile  Unit = "ml"
)

func (u Unit) factor() float64 {
	switch u {
	case Feet:
		return FeetToMeters
	case NauticalMile:
		return NauticalMileToMeters
	case StatuteMile:
		return StatuteMileToMeters
	default:
		return 1
	}
}

// Distance is a length in meters together with the unit it was originally
// expressed in. The zero value and the -Inf sentinel both represent an
// absent value and render as the empty string.
type Distance struct {
	Meters float64
	Unit   Unit
}

// EmptyDistance returns the sentinel for an absent distance. The sentinel
// carries negative infinity so that comparisons against real distances
// behave; it is not an error.
func EmptyDistance() Distance {
	return Distance{Meters: math.Inf(-1), Unit: Meter}
}

// IsEmpty reports whether the distance is the absent sentinel.
func (d Distance) IsEmpty() bool {
	return d.Unit == "" || math.IsInf(d.Meters, -1)
}

// MetersDistance wraps a plain meter value (used for values that arrive as
// numbers rather than suffixed strings).
func MetersDistance(m float64) Distance {
	return Distance{Meters: m, Unit: Meter}
}

var cupDistanceRe = regexp.MustCompile(`^([-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?)(ft|m|nm|ml)$`)

// ParseDistance converts a distance string with a unit suffix into meters
// plus the original unit. The numeric part may use scientific notation.
// The empty string is the documented absent sentinel, not an error.
func ParseDistance(s string) (Distance, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return EmptyDistance(), nil
	}
	m := cupDistanceRe.FindStringSubmatch(strings.ToLower(trimmed))
	if m == nil {
		return Distance{}, &FormatError{Notation: "distance", Input: s}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Distance{}, &FormatError{Notation: "distance", Input: s}
	}
	unit := Unit(m[2])
	return Distance{Meters: value * unit.factor(), Unit: unit}, nil
}

// FormatDistance renders a distance in its original unit. Feet print with
// no decimals, nautical and statute miles with two. Meters print with one
// decimal unless the value is an exact tenth, which prints with none; the
// asymmetry matches the format this codec round-trips with.
func FormatDistance(d Distance) string {
	if d.IsEmpty() {
		return ""
	}
	switch d.Unit {
	case Feet:
		return fmt.Sprintf("%.0fft", d.Meters/FeetToMeters)
	case NauticalMile:
		return fmt.Sprintf("%.2fnm", d.Meters/NauticalMileToMeters)
	case StatuteMile:
		return fmt.Sprintf("%.2fml", d.Meters/StatuteMileToMeters)
	default:
		if math.Mod(d.Meters*10, 1) == 0 {
			return fmt.Sprintf("%.0fm", d.Meters)
		}
		return fmt.Sprintf("%.1fm", d.Meters)
	}
}

// cupFreqRe matches the civil VHF aeronautical band 118.000-136.990 MHz
// with 5/10 kHz channel spacing on the third decimal.
var cupFreqRe = regexp.MustCompile(`^(118|119|12[0-9]|13[0-6])\.(?:\d{2}[05]|\d{2}|\d)$`)

// ValidFrequency reports whether s is a valid VHF airband frequency.
func ValidFrequency(s string) bool {
	return cupFreqRe.MatchString(s)
}

// styleNames enumerates the waypoint classification values of the CUP
// format. The numeric codes are part of the wire format.
var styleNames = map[int]string{
	0:  "Unknown",
	1:  "Waypoint",
	2:  "Airfield (Grass runway)",
	3:  "Outlanding",
	4:  "Gliding airfield",
	5:  "Airfield (Solid runway)",
	6:  "Mountain Pass",
	7:  "Mountain Top",
	8:  "Transmitter Mast",
	9:  "VOR",
	10: "NDB",
	11: "Cooling Tower",
	12: "Dam",
	13: "Tunnel",
	14: "Bridge",
	15: "Power Plant",
	16: "Castle",
	17: "Intersection",
	18: "Marker",
	19: "Control/Reporting Point",
	20: "PG Take Off",
	21: "PG Landing Zone",
}

// ValidStyle reports whether the numeric style code is a known waypoint
// classification.
func ValidStyle(style int) bool {
	_, ok := styleNames[style]
	return ok
}

// ParseStyle converts a digit string or integer-valued string to a style
// code and validates it.
func ParseStyle(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !ValidStyle(v) {
		return 0, &FormatError{Notation: "style", Input: s}
	}
	return v, nil
}

// StyleName returns the display name for a style code, or "Unknown" for
// codes outside the enumeration.
func StyleName(style int) string {
	if name, ok := styleNames[style]; ok {
		return name
	}
	return styleNames[0]
}
