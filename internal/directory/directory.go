// Package directory provides access to an external airport directory: the
// query interface used by reconciliation, the airport record with its CUP
// mapping, and two implementations (HTTP RPC and Postgres/PostGIS).
package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"

	"aerodata/internal/cup"
)

// QueryError reports a failed directory query. A failed query invalidates
// the whole operation it belongs to; callers must not act on partial
// results.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("directory query %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// AirportType is the OpenAIP airport classification.
type AirportType int

const (
	TypeAirport           AirportType = 0
	TypeGliderSite        AirportType = 1
	TypeAirfieldCivil     AirportType = 2
	TypeIntlAirport       AirportType = 3
	TypeHeliportMil       AirportType = 4
	TypeAerodromeMil      AirportType = 5
	TypeULSite            AirportType = 6
	TypeHeliportCivil     AirportType = 7
	TypeClosed            AirportType = 8
	TypeAirportIFR        AirportType = 9
	TypeAirfieldWater     AirportType = 10
	TypeLandingStrip      AirportType = 11
	TypeLandingStripAgric AirportType = 12
	TypeAltiport          AirportType = 13
	TypeUnknown           AirportType = 999
)

var airportTypeNames = map[AirportType]string{
	TypeAirport:           "Airport (civil/military)",
	TypeGliderSite:        "Glider Site",
	TypeAirfieldCivil:     "Airfield Civil",
	TypeIntlAirport:       "International Airport",
	TypeHeliportMil:       "Heliport Military",
	TypeAerodromeMil:      "Military Aerodrome",
	TypeULSite:            "Ultra Light Flying Site",
	TypeHeliportCivil:     "Heliport Civil",
	TypeClosed:            "Aerodrome Closed",
	TypeAirportIFR:        "Airport resp. Airfield IFR",
	TypeAirfieldWater:     "Airfield Water",
	TypeLandingStrip:      "Landing Strip",
	TypeLandingStripAgric: "Agricultural Landing Strip",
	TypeAltiport:          "Altiport",
	TypeUnknown:           "Unknown",
}

func (t AirportType) String() string {
	if name, ok := airportTypeNames[t]; ok {
		return name
	}
	return airportTypeNames[TypeUnknown]
}

// Airport is one directory record. Distances are meters; Location is
// (lon, lat).
type Airport struct {
	ID            int64
	Name          string
	Code          string
	Country       string // ISO2
	Location      orb.Point
	ElevMeters    float64
	Style         int
	Type          AirportType
	RwDir         int     // 0 = unknown
	RwLenMeters   float64 // 0 = unknown
	RwWidthMeters float64 // 0 = unknown
	Frequency     string
	SourceID      string
}

// ToWaypoint converts the directory record to a CUP waypoint. Coordinates
// pass through as exact decimal degrees. A frequency the CUP format
// rejects is dropped rather than failing the conversion.
func (a *Airport) ToWaypoint(countries cup.CountryLookup) (*cup.Waypoint, error) {
	f := cup.Fields{
		Name:    a.Name,
		Code:    a.Code,
		Country: a.Country,
		Lat:     strconv.FormatFloat(a.Location[1], 'f', -1, 64),
		Lon:     strconv.FormatFloat(a.Location[0], 'f', -1, 64),
		Elev:    strconv.FormatFloat(a.ElevMeters, 'f', -1, 64) + "m",
		Style:   strconv.Itoa(a.Style),
	}
	if a.RwDir > 0 {
		f.Rwdir = strconv.Itoa(a.RwDir)
	}
	if a.RwLenMeters > 0 {
		f.Rwlen = strconv.FormatFloat(a.RwLenMeters, 'f', -1, 64) + "m"
	}
	if a.RwWidthMeters > 0 {
		f.Rwwidth = strconv.FormatFloat(a.RwWidthMeters, 'f', -1, 64) + "m"
	}
	wp, err := cup.New(f, countries)
	if err != nil {
		return nil, fmt.Errorf("converting airport %q: %w", a.Name, err)
	}
	if a.Frequency != "" {
		// Best effort; out-of-band directory frequencies are not carried.
		_ = wp.SetFrequency(a.Frequency)
	}
	return wp, nil
}

// Match is the nearest-airport answer for one query point. Airport is nil
// when nothing lies within the threshold.
type Match struct {
	Airport        *Airport
	DistanceMeters float64
}

// Directory answers proximity queries against the airport directory.
type Directory interface {
	// NearestBulk returns one match per input point, aligned by index.
	NearestBulk(ctx context.Context, points []orb.Point, thresholdMeters float64) ([]Match, error)

	// InBoundingBox returns all airports inside the bound, skipping the
	// given source IDs and airport types.
	InBoundingBox(ctx context.Context, bound orb.Bound, excludeSourceIDs []string, excludeTypes []AirportType) ([]*Airport, error)
}
