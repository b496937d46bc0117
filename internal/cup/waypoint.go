// Package cup implements the SeeYou CUP waypoint file format: a validated
// waypoint entity, and a codec for whole files including their task section.
//
// Waypoint values are stored in SI units regardless of the notation they
// were written in; distances remember their original unit so serialization
// reproduces the source notation.
package cup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"aerodata/internal/units"
)

// ValidationError reports a field value that failed waypoint validation.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for field %q: %s", e.Value, e.Field, e.Reason)
}

// CountryLookup validates ISO 3166-1 alpha-2 country codes.
type CountryLookup interface {
	Contains(iso2 string) bool
}

// Fields holds the raw field values of one CUP record, in source notation.
// Name, Lat and Lon are required; everything else may be empty.
type Fields struct {
	Name     string
	Code     string
	Country  string
	Lat      string
	Lon      string
	Elev     string
	Style    string
	Rwdir    string
	Rwlen    string
	Rwwidth  string
	Freq     string
	Desc     string
	Userdata string
	Pics     string
}

// Waypoint is a validated CUP waypoint. Construct with New; mutate through
// the setters, which enforce the same rules as construction. A Waypoint is
// always in a serializable state.
type Waypoint struct {
	name      string
	code      string
	country   string // uppercase ISO2, "" = none
	location  orb.Point
	elev      units.Distance
	style     int // -1 = absent
	rwdir     int // -1 = absent
	rwlen     units.Distance
	rwwidth   units.Distance
	freq      string
	desc      string
	userdata  string
	pics      string
	countries CountryLookup
}

// New builds a waypoint from raw field values, validating every field.
// Coordinates accept CUP degrees-decimal-minutes notation or plain decimal
// degrees. The countries lookup validates the country field; nil means the
// built-in ISO 3166 table.
func New(f Fields, countries CountryLookup) (*Waypoint, error) {
	if countries == nil {
		countries = ISO3166
	}
	w := &Waypoint{
		elev:      units.EmptyDistance(),
		rwlen:     units.EmptyDistance(),
		rwwidth:   units.EmptyDistance(),
		style:     -1,
		rwdir:     -1,
		countries: countries,
	}
	if err := w.SetName(f.Name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Lat) == "" || strings.TrimSpace(f.Lon) == "" {
		return nil, &ValidationError{Field: "lat", Value: f.Lat + "/" + f.Lon, Reason: "both latitude and longitude are required"}
	}
	lat, err := parseCoordinate(f.Lat, "lat")
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(f.Lon, "lon")
	if err != nil {
		return nil, err
	}
	if err := w.SetLatLon(lat, lon); err != nil {
		return nil, err
	}
	w.SetCode(f.Code)
	if err := w.SetCountry(f.Country); err != nil {
		return nil, err
	}
	elev, err := parseDistanceField(f.Elev, "elev")
	if err != nil {
		return nil, err
	}
	w.elev = elev
	if err := w.setStyleField(f.Style); err != nil {
		return nil, err
	}
	if err := w.setRwdirField(f.Rwdir); err != nil {
		return nil, err
	}
	if w.rwlen, err = parseDistanceField(f.Rwlen, "rwlen"); err != nil {
		return nil, err
	}
	if w.rwwidth, err = parseDistanceField(f.Rwwidth, "rwwidth"); err != nil {
		return nil, err
	}
	if err := w.SetFrequency(f.Freq); err != nil {
		return nil, err
	}
	w.SetDesc(f.Desc)
	w.SetUserdata(f.Userdata)
	w.SetPics(f.Pics)
	return w, nil
}

// parseCoordinate accepts CUP notation first, then plain decimal degrees.
func parseCoordinate(s, field string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if dd, err := units.ParseLatLon(trimmed); err == nil {
		return dd, nil
	}
	dd, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, &ValidationError{Field: field, Value: s, Reason: "not a CUP coordinate or decimal degrees"}
	}
	return dd, nil
}

func parseDistanceField(s, field string) (units.Distance, error) {
	d, err := units.ParseDistance(s)
	if err != nil {
		return units.Distance{}, &ValidationError{Field: field, Value: s, Reason: err.Error()}
	}
	return d, nil
}

func (w *Waypoint) setStyleField(s string) error {
	if strings.TrimSpace(s) == "" {
		w.style = -1
		return nil
	}
	v, err := units.ParseStyle(s)
	if err != nil {
		return &ValidationError{Field: "style", Value: s, Reason: "not a known style code"}
	}
	w.style = v
	return nil
}

func (w *Waypoint) setRwdirField(s string) error {
	if strings.TrimSpace(s) == "" {
		w.rwdir = -1
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return &ValidationError{Field: "rwdir", Value: s, Reason: "not an integer"}
	}
	w.rwdir = v
	return nil
}

// Name returns the waypoint name.
func (w *Waypoint) Name() string { return w.name }

// Code returns the short code, "" when absent.
func (w *Waypoint) Code() string { return w.code }

// Country returns the uppercase ISO2 country code, "" when absent.
func (w *Waypoint) Country() string { return w.country }

// Lat returns the latitude in decimal degrees.
func (w *Waypoint) Lat() float64 { return w.location[1] }

// Lon returns the longitude in decimal degrees.
func (w *Waypoint) Lon() float64 { return w.location[0] }

// Point returns the location as an orb point (lon, lat).
func (w *Waypoint) Point() orb.Point { return w.location }

// Elev returns the elevation.
func (w *Waypoint) Elev() units.Distance { return w.elev }

// Style returns the style code, or -1 when absent.
func (w *Waypoint) Style() int { return w.style }

// Rwdir returns the runway direction in degrees, or -1 when absent.
func (w *Waypoint) Rwdir() int { return w.rwdir }

// Rwlen returns the runway length.
func (w *Waypoint) Rwlen() units.Distance { return w.rwlen }

// Rwwidth returns the runway width.
func (w *Waypoint) Rwwidth() units.Distance { return w.rwwidth }

// Frequency returns the radio frequency string, "" when absent.
func (w *Waypoint) Frequency() string { return w.freq }

// Desc returns the description, "" when absent.
func (w *Waypoint) Desc() string { return w.desc }

// Userdata returns the userdata field, "" when absent.
func (w *Waypoint) Userdata() string { return w.userdata }

// Pics returns the pictures field, "" when absent.
func (w *Waypoint) Pics() string { return w.pics }

// SetName sets the waypoint name; names must be non-empty.
func (w *Waypoint) SetName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "name", Value: name, Reason: "name is required"}
	}
	w.name = trimmed
	return nil
}

// SetCode sets the short code; empty clears it.
func (w *Waypoint) SetCode(code string) {
	w.code = strings.TrimSpace(code)
}

// SetCountry sets the ISO2 country code. Empty and "--" clear it; anything
// else must be a valid ISO 3166-1 alpha-2 code in any case.
func (w *Waypoint) SetCountry(code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || trimmed == "--" {
		w.country = ""
		return nil
	}
	upper := strings.ToUpper(trimmed)
	if len(upper) != 2 || !w.countries.Contains(upper) {
		return &ValidationError{Field: "country", Value: code, Reason: "not an ISO 3166-1 alpha-2 code"}
	}
	w.country = upper
	return nil
}

// SetLatLon sets both coordinates at once so the location is never half
// updated. Latitude must lie in [-90, 90], longitude in [-180, 180].
func (w *Waypoint) SetLatLon(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Value: strconv.FormatFloat(lat, 'f', -1, 64), Reason: "latitude out of [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "lon", Value: strconv.FormatFloat(lon, 'f', -1, 64), Reason: "longitude out of [-180, 180]"}
	}
	w.location = orb.Point{lon, lat}
	return nil
}

// SetElev sets the elevation.
func (w *Waypoint) SetElev(d units.Distance) { w.elev = d }

// SetStyle sets the style code, which must be in the known enumeration.
func (w *Waypoint) SetStyle(style int) error {
	if !units.ValidStyle(style) {
		return &ValidationError{Field: "style", Value: strconv.Itoa(style), Reason: "not a known style code"}
	}
	w.style = style
	return nil
}

// SetRwdir sets the runway direction in degrees; negative clears it.
func (w *Waypoint) SetRwdir(deg int) {
	if deg < 0 {
		w.rwdir = -1
		return
	}
	w.rwdir = deg
}

// SetRwlen sets the runway length.
func (w *Waypoint) SetRwlen(d units.Distance) { w.rwlen = d }

// SetRwwidth sets the runway width.
func (w *Waypoint) SetRwwidth(d units.Distance) { w.rwwidth = d }

// SetFrequency sets the radio frequency; empty clears it.
func (w *Waypoint) SetFrequency(freq string) error {
	trimmed := strings.TrimSpace(freq)
	if trimmed == "" {
		w.freq = ""
		return nil
	}
	if !units.ValidFrequency(trimmed) {
		return &ValidationError{Field: "freq", Value: freq, Reason: "not a VHF airband frequency"}
	}
	w.freq = trimmed
	return nil
}

// SetDesc sets the description; empty clears it.
func (w *Waypoint) SetDesc(desc string) { w.desc = strings.TrimSpace(desc) }

// SetUserdata sets the userdata field; empty clears it.
func (w *Waypoint) SetUserdata(s string) { w.userdata = strings.TrimSpace(s) }

// SetPics sets the pictures field; empty clears it.
func (w *Waypoint) SetPics(s string) { w.pics = strings.TrimSpace(s) }

// IsLandable reports whether the waypoint can be landed on (airfields,
// gliding sites and outlandings).
func (w *Waypoint) IsLandable() bool {
	switch w.style {
	case 2, 3, 4, 5:
		return true
	}
	return false
}

// IsAirport reports whether the waypoint is an airfield or gliding site.
func (w *Waypoint) IsAirport() bool {
	switch w.style {
	case 2, 4, 5:
		return true
	}
	return false
}

// IsOutlanding reports whether the waypoint is an outlanding field.
func (w *Waypoint) IsOutlanding() bool {
	return w.style == 3
}

// Clone returns an independent copy of the waypoint.
func (w *Waypoint) Clone() *Waypoint {
	c := *w
	return &c
}

// Record renders the waypoint as the 14 CUP columns in wire order.
func (w *Waypoint) Record() []string {
	return []string{
		w.name,
		w.code,
		w.country,
		units.FormatLat(w.Lat()),
		units.FormatLon(w.Lon()),
		units.FormatDistance(w.elev),
		formatOptionalInt(w.style),
		formatOptionalInt(w.rwdir),
		units.FormatDistance(w.rwlen),
		units.FormatDistance(w.rwwidth),
		w.freq,
		w.desc,
		w.userdata,
		w.pics,
	}
}

func formatOptionalInt(v int) string {
	if v < 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// String renders the waypoint as a single CUP line with minimal quoting.
func (w *Waypoint) String() string {
	return writeCSVLine(w.Record())
}
