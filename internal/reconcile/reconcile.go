// Package reconcile updates the airports of a CUP file against an
// external airport directory.
//
// Airports are matched by proximity in batches. Every airport of the
// input file ends up in exactly one outcome class: updated, deleted,
// not found, or not updated. All directory queries run before any
// mutation, so a failed query leaves the input file untouched.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"aerodata/internal/cup"
	"aerodata/internal/directory"
)

// Defaults for the proximity radii.
const (
	DefaultSearchRadiusMeters = 5000
	DefaultUpdateRadiusMeters = 2000
)

// batchSize is the number of points per bulk query.
const batchSize = 500

// addNewExcludedTypes are directory records never added as new waypoints.
var addNewExcludedTypes = []directory.AirportType{
	directory.TypeAirfieldWater,
	directory.TypeClosed,
	directory.TypeHeliportCivil,
	directory.TypeHeliportMil,
	directory.TypeUnknown,
}

// ApplicationError reports a reconciliation request that is invalid
// before any directory work starts.
type ApplicationError struct {
	Reason string
}

func (e *ApplicationError) Error() string { return "reconcile: " + e.Reason }

// Options control a reconciliation run. The zero radii fall back to the
// package defaults.
type Options struct {
	SearchRadiusMeters float64
	UpdateRadiusMeters float64
	FixLocation        bool
	DeleteClosed       bool
	AddNew             bool
}

// DefaultOptions returns the standard run configuration.
func DefaultOptions() Options {
	return Options{
		SearchRadiusMeters: DefaultSearchRadiusMeters,
		UpdateRadiusMeters: DefaultUpdateRadiusMeters,
		FixLocation:        true,
	}
}

// Updated records one modified airport: its state before and after, and
// the distance to the directory record that drove the update.
type Updated struct {
	Old            *cup.Waypoint
	New            *cup.Waypoint
	DistanceMeters float64
}

// Deleted records one removed closed airport and the directory candidate
// that marked it closed.
type Deleted struct {
	Old            *cup.Waypoint
	Candidate      *cup.Waypoint
	DistanceMeters float64
}

// NotUpdated records an airport whose best candidate was out of the
// update radius (or closed without deletion enabled).
type NotUpdated struct {
	Waypoint       *cup.Waypoint
	Candidate      *cup.Waypoint
	DistanceMeters float64
}

// Counts summarizes a run.
type Counts struct {
	TotalWaypointsBefore int
	TotalAirportsBefore  int
	TotalWaypointsAfter  int
	TotalAirportsAfter   int
	Updated              int
	Added                int
	Deleted              int
	NotFound             int
	NotUpdated           int
}

// Result is the full outcome of a run.
type Result struct {
	Counts     Counts
	Updated    []Updated
	Added      []*cup.Waypoint
	Deleted    []Deleted
	NotFound   []*cup.Waypoint
	NotUpdated []NotUpdated

	// DistanceBuckets counts updates per 500 m distance interval below
	// the update radius, keyed like "distance_lte_500m".
	DistanceBuckets map[string]int
}

// plan buffers every mutation decided during the query phase. Nothing in
// it touches the file until apply runs.
type plan struct {
	updates []plannedUpdate
	deletes []plannedDelete
	adds    []*cup.Waypoint
}

type plannedUpdate struct {
	target    *cup.Waypoint
	candidate *cup.Waypoint
	distance  float64
}

type plannedDelete struct {
	target    *cup.Waypoint
	candidate *cup.Waypoint
	distance  float64
}

// Run reconciles the airports of the file against the directory. The file
// is mutated only when every directory query has succeeded; on error it is
// returned untouched.
func Run(ctx context.Context, file *cup.File, dir directory.Directory, opts Options) (*Result, error) {
	searchR := opts.SearchRadiusMeters
	if searchR == 0 {
		searchR = DefaultSearchRadiusMeters
	}
	updateR := opts.UpdateRadiusMeters
	if updateR == 0 {
		updateR = DefaultUpdateRadiusMeters
	}
	if updateR > searchR {
		return nil, &ApplicationError{Reason: fmt.Sprintf(
			"update radius %.0fm exceeds search radius %.0fm", updateR, searchR)}
	}

	airports := file.Airports()
	result := &Result{
		Counts: Counts{
			TotalWaypointsBefore: len(file.Waypoints),
			TotalAirportsBefore:  len(airports),
		},
		DistanceBuckets: map[string]int{},
	}

	var p plan
	seenIDs := []string{}

	for start := 0; start < len(airports); start += batchSize {
		end := start + batchSize
		if end > len(airports) {
			end = len(airports)
		}
		batch := airports[start:end]

		points := make([]orb.Point, len(batch))
		for i, apt := range batch {
			points[i] = apt.Point()
		}
		matches, err := dir.NearestBulk(ctx, points, searchR)
		if err != nil {
			return nil, err
		}
		if len(matches) != len(batch) {
			return nil, &ApplicationError{Reason: fmt.Sprintf(
				"directory answered %d matches for %d points", len(matches), len(batch))}
		}

		for i, apt := range batch {
			match := matches[i]
			if match.Airport == nil {
				result.NotFound = append(result.NotFound, apt)
				continue
			}
			candidate, err := match.Airport.ToWaypoint(nil)
			if err != nil {
				return nil, err
			}

			if match.DistanceMeters <= updateR {
				seenIDs = append(seenIDs, match.Airport.SourceID)
				switch {
				case match.Airport.Type != directory.TypeClosed:
					p.updates = append(p.updates, plannedUpdate{target: apt, candidate: candidate, distance: match.DistanceMeters})
				case opts.DeleteClosed:
					p.deletes = append(p.deletes, plannedDelete{target: apt, candidate: candidate, distance: match.DistanceMeters})
				default:
					result.NotUpdated = append(result.NotUpdated, NotUpdated{Waypoint: apt, Candidate: candidate, DistanceMeters: match.DistanceMeters})
				}
			} else {
				result.NotUpdated = append(result.NotUpdated, NotUpdated{Waypoint: apt, Candidate: candidate, DistanceMeters: match.DistanceMeters})
			}
		}

		if opts.AddNew {
			added, err := planAdditions(ctx, dir, points, seenIDs)
			if err != nil {
				return nil, err
			}
			for _, a := range added {
				seenIDs = append(seenIDs, a.sourceID)
				p.adds = append(p.adds, a.waypoint)
			}
		}
	}

	// All queries succeeded; apply the plan.
	apply(file, &p, result, opts.FixLocation, updateR)

	result.Counts.Updated = len(result.Updated)
	result.Counts.Added = len(result.Added)
	result.Counts.Deleted = len(result.Deleted)
	result.Counts.NotFound = len(result.NotFound)
	result.Counts.NotUpdated = len(result.NotUpdated)
	result.Counts.TotalWaypointsAfter = len(file.Waypoints)
	result.Counts.TotalAirportsAfter = len(file.Airports())
	return result, nil
}

type addition struct {
	waypoint *cup.Waypoint
	sourceID string
}

// planAdditions queries the bound of the current batch for airports the
// file does not have yet.
func planAdditions(ctx context.Context, dir directory.Directory, points []orb.Point, seenIDs []string) ([]addition, error) {
	bound := orb.MultiPoint(points).Bound()
	airports, err := dir.InBoundingBox(ctx, bound, seenIDs, addNewExcludedTypes)
	if err != nil {
		return nil, err
	}
	adds := make([]addition, 0, len(airports))
	for _, apt := range airports {
		wp, err := apt.ToWaypoint(nil)
		if err != nil {
			return nil, err
		}
		adds = append(adds, addition{waypoint: wp, sourceID: apt.SourceID})
	}
	return adds, nil
}

func apply(file *cup.File, p *plan, result *Result, fixLocation bool, updateR float64) {
	for _, u := range p.updates {
		old := u.target.Clone()
		copyFields(u.target, u.candidate, fixLocation)
		result.Updated = append(result.Updated, Updated{Old: old, New: u.target, DistanceMeters: u.distance})
		bucketDistance(result.DistanceBuckets, u.distance, updateR)
	}

	if len(p.deletes) > 0 {
		doomed := make(map[*cup.Waypoint]bool, len(p.deletes))
		for _, d := range p.deletes {
			doomed[d.target] = true
			result.Deleted = append(result.Deleted, Deleted{Old: d.target, Candidate: d.candidate, DistanceMeters: d.distance})
		}
		kept := file.Waypoints[:0]
		for _, wp := range file.Waypoints {
			if !doomed[wp] {
				kept = append(kept, wp)
			}
		}
		file.Waypoints = kept
	}

	for _, wp := range p.adds {
		file.Waypoints = append(file.Waypoints, wp)
		result.Added = append(result.Added, wp)
	}
}

// copyFields overwrites the target's fields with the candidate's, skipping
// values the candidate does not carry. Coordinates move only when
// fix-location is on, each axis on its own.
func copyFields(dst, src *cup.Waypoint, fixLocation bool) {
	if fixLocation {
		lat, lon := dst.Lat(), dst.Lon()
		if src.Lat() != 0 {
			lat = src.Lat()
		}
		if src.Lon() != 0 {
			lon = src.Lon()
		}
		// Both came from validated waypoints; range errors cannot happen.
		_ = dst.SetLatLon(lat, lon)
	}
	if d := src.Elev(); !d.IsEmpty() && d.Meters != 0 {
		dst.SetElev(d)
	}
	if src.Style() > 0 {
		_ = dst.SetStyle(src.Style())
	}
	if src.Rwdir() > 0 {
		dst.SetRwdir(src.Rwdir())
	}
	if d := src.Rwlen(); !d.IsEmpty() && d.Meters != 0 {
		dst.SetRwlen(d)
	}
	if d := src.Rwwidth(); !d.IsEmpty() && d.Meters != 0 {
		dst.SetRwwidth(d)
	}
	if src.Frequency() != "" {
		_ = dst.SetFrequency(src.Frequency())
	}
}

// bucketDistance files an update distance into its 500 m interval. The
// top interval below the update radius is open-ended and intentionally
// unbucketed.
func bucketDistance(buckets map[string]int, distance, updateR float64) {
	top := int(updateR/500) * 500
	for threshold := 500; threshold < top; threshold += 500 {
		if distance <= float64(threshold) {
			buckets[fmt.Sprintf("distance_lte_%dm", threshold)]++
			return
		}
	}
}

// Report renders the human-readable run report.
func (r *Result) Report(fileName string, opts Options) string {
	if fileName == "" {
		fileName = "Unknown File Name"
	}
	searchR := opts.SearchRadiusMeters
	if searchR == 0 {
		searchR = DefaultSearchRadiusMeters
	}
	updateR := opts.UpdateRadiusMeters
	if updateR == 0 {
		updateR = DefaultUpdateRadiusMeters
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
############################################################
Report for: %s
Updated on: %s
############################################################

# General
Before the update the file had:
%d total waypoints
%d airports

We search for candidates in the airport directory with a radius of %.0fm around the point of the
airport stored in the CUP file. The airport is updated if the distance between the point of the
airport and the found airport in the directory is less than the update radius of: %.0fm

After update the file has:
%d total waypoints
%d airports

%d Airports were updated,
%d were added,
%d were deleted,
%d were not found in the directory and,
%d were already up to date.

`,
		fileName,
		time.Now().UTC().Format("2006-01-02T15:04+00:00"),
		r.Counts.TotalWaypointsBefore, r.Counts.TotalAirportsBefore,
		searchR, updateR,
		r.Counts.TotalWaypointsAfter, r.Counts.TotalAirportsAfter,
		r.Counts.Updated, r.Counts.Added, r.Counts.Deleted,
		r.Counts.NotFound, r.Counts.NotUpdated)

	if len(r.Updated) > 0 {
		b.WriteString("# List of updated airports:\n")
		for _, u := range r.Updated {
			fmt.Fprintf(&b, "Old: %s\n", u.Old)
			fmt.Fprintf(&b, "New: %s\n", u.New)
			fmt.Fprintf(&b, "Dst: %.0fm\n\n", u.DistanceMeters)
		}
	}
	if len(r.Added) > 0 {
		b.WriteString("# List of added airports:\n")
		for _, wp := range r.Added {
			fmt.Fprintf(&b, "%s: %.6g, %.6g\n", wp.Name(), wp.Lat(), wp.Lon())
		}
		b.WriteString("\n")
	}
	if len(r.Deleted) > 0 {
		b.WriteString("# List of deleted airports:\n")
		for _, d := range r.Deleted {
			fmt.Fprintf(&b, "%s: %.6g, %.6g Closed. Dst: %.0fm\n", d.Old.Name(), d.Old.Lat(), d.Old.Lon(), d.DistanceMeters)
		}
		b.WriteString("\n")
	}
	if len(r.NotUpdated) > 0 {
		b.WriteString("\n# List of airports that were not updated:\n")
		for _, n := range r.NotUpdated {
			fmt.Fprintf(&b, "Apt in CUP:\t%s\n", n.Waypoint)
			fmt.Fprintf(&b, "Candidate:\t%s\n", n.Candidate)
			fmt.Fprintf(&b, "Dst:\t\t%.0fm > %.0f\n\n", n.DistanceMeters, updateR)
		}
	}
	if len(r.NotFound) > 0 {
		b.WriteString("\n# List of airports that were not found in the directory:\n")
		for _, wp := range r.NotFound {
			fmt.Fprintf(&b, "%s: %.6g, %.6g\n", wp.Name(), wp.Lat(), wp.Lon())
		}
	}
	return b.String()
}

// SortedBucketKeys returns the distance bucket keys in ascending distance
// order, for stable rendering.
func (r *Result) SortedBucketKeys() []string {
	keys := make([]string, 0, len(r.DistanceBuckets))
	for k := range r.DistanceBuckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		var a, b int
		fmt.Sscanf(keys[i], "distance_lte_%dm", &a)
		fmt.Sscanf(keys[j], "distance_lte_%dm", &b)
		return a < b
	})
	return keys
}
