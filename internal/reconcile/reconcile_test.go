package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"aerodata/internal/cup"
	"aerodata/internal/directory"
)

type fakeDirectory struct {
	nearestFn    func(points []orb.Point, threshold float64) ([]directory.Match, error)
	bboxFn       func(bound orb.Bound, excludeIDs []string, excludeTypes []directory.AirportType) ([]*directory.Airport, error)
	nearestCalls int
	bboxCalls    int
}

func (f *fakeDirectory) NearestBulk(_ context.Context, points []orb.Point, threshold float64) ([]directory.Match, error) {
	f.nearestCalls++
	return f.nearestFn(points, threshold)
}

func (f *fakeDirectory) InBoundingBox(_ context.Context, bound orb.Bound, excludeIDs []string, excludeTypes []directory.AirportType) ([]*directory.Airport, error) {
	f.bboxCalls++
	if f.bboxFn == nil {
		return nil, nil
	}
	return f.bboxFn(bound, excludeIDs, excludeTypes)
}

const testFile = `name,code,country,lat,lon,elev,style,rwdir,rwlen,rwwidth,freq,desc,userdata,pics
"Lesce",LESCE,SI,4621.383N,01410.467E,500.0m,5,140,1000.0m,,123.500,,,
"Celje",CELJE,SI,4614.850N,01513.755E,244.0m,5,150,1130.0m,,,,,
"Turnpoint",TP1,SI,4600.000N,01500.000E,,1,,,,,,,
`

func loadTestFile(t *testing.T) *cup.File {
	t.Helper()
	f, err := cup.Parse([]byte(testFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func dirAirport(name, sourceID string, lon, lat float64, aptType directory.AirportType) *directory.Airport {
	return &directory.Airport{
		ID:          1,
		Name:        name,
		Country:     "SI",
		Location:    orb.Point{lon, lat},
		ElevMeters:  504,
		Style:       5,
		Type:        aptType,
		RwDir:       140,
		RwLenMeters: 1130,
		Frequency:   "122.80",
		SourceID:    sourceID,
	}
}

func TestRunUpdatesWithinRadius(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			if threshold != DefaultSearchRadiusMeters {
				t.Errorf("threshold = %v", threshold)
			}
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeAirfieldCivil), DistanceMeters: 300},
				{},
			}, nil
		},
	}

	res, err := Run(context.Background(), f, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Counts.Updated != 1 || res.Counts.NotFound != 1 || res.Counts.NotUpdated != 0 {
		t.Fatalf("counts = %+v", res.Counts)
	}
	// The turnpoint is not an airport and never enters reconciliation.
	if res.Counts.TotalAirportsBefore != 2 || res.Counts.TotalWaypointsBefore != 3 {
		t.Errorf("before counts = %+v", res.Counts)
	}

	lesce := f.Waypoints[0]
	if lesce.Name() != "Lesce" {
		t.Errorf("name was overwritten: %q", lesce.Name())
	}
	if lesce.Lat() != 46.356389 || lesce.Lon() != 14.17445 {
		t.Errorf("location not fixed: %v, %v", lesce.Lat(), lesce.Lon())
	}
	if lesce.Elev().Meters != 504 {
		t.Errorf("elev = %v", lesce.Elev())
	}
	if lesce.Frequency() != "122.80" {
		t.Errorf("freq = %q", lesce.Frequency())
	}

	if len(res.Updated) != 1 {
		t.Fatalf("updated = %d", len(res.Updated))
	}
	u := res.Updated[0]
	if u.Old.Elev().Meters != 500 {
		t.Errorf("old snapshot elev = %v, want pre-update 500", u.Old.Elev())
	}
	if u.New != lesce {
		t.Error("updated entry does not reference the live waypoint")
	}
	if res.DistanceBuckets["distance_lte_500m"] != 1 {
		t.Errorf("buckets = %v", res.DistanceBuckets)
	}
}

func TestRunWithoutFixLocationKeepsCoordinates(t *testing.T) {
	f := loadTestFile(t)
	origLat := f.Waypoints[0].Lat()
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeAirfieldCivil), DistanceMeters: 300},
				{},
			}, nil
		},
	}
	opts := DefaultOptions()
	opts.FixLocation = false

	if _, err := Run(context.Background(), f, dir, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.Waypoints[0].Lat() != origLat {
		t.Errorf("coordinates moved despite fix-location off: %v", f.Waypoints[0].Lat())
	}
	if f.Waypoints[0].Elev().Meters != 504 {
		t.Errorf("non-location fields should still update: %v", f.Waypoints[0].Elev())
	}
}

func TestRunNotUpdatedBeyondRadius(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Far Field", "oap-9", 14.2, 46.4, directory.TypeAirfieldCivil), DistanceMeters: 3500},
				{},
			}, nil
		},
	}

	res, err := Run(context.Background(), f, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Counts.NotUpdated != 1 || res.Counts.Updated != 0 {
		t.Fatalf("counts = %+v", res.Counts)
	}
	if f.Waypoints[0].Elev().Meters != 500 {
		t.Errorf("out-of-radius airport was modified: %v", f.Waypoints[0].Elev())
	}
}

func TestRunDeletesClosed(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeClosed), DistanceMeters: 300},
				{},
			}, nil
		},
	}
	opts := DefaultOptions()
	opts.DeleteClosed = true

	res, err := Run(context.Background(), f, dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Counts.Deleted != 1 {
		t.Fatalf("counts = %+v", res.Counts)
	}
	if len(f.Waypoints) != 2 {
		t.Fatalf("file has %d waypoints, want closed airport removed (2)", len(f.Waypoints))
	}
	for _, wp := range f.Waypoints {
		if wp.Name() == "Lesce" {
			t.Error("closed airport still in file")
		}
	}
	if res.Counts.TotalWaypointsAfter != 2 {
		t.Errorf("after count = %d", res.Counts.TotalWaypointsAfter)
	}
}

func TestRunClosedWithoutDeleteIsNotUpdated(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeClosed), DistanceMeters: 300},
				{},
			}, nil
		},
	}

	res, err := Run(context.Background(), f, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Every airport lands in exactly one class.
	total := res.Counts.Updated + res.Counts.Deleted + res.Counts.NotFound + res.Counts.NotUpdated
	if total != res.Counts.TotalAirportsBefore {
		t.Errorf("classification incomplete: %+v", res.Counts)
	}
	if res.Counts.NotUpdated != 1 {
		t.Errorf("counts = %+v", res.Counts)
	}
	if len(f.Waypoints) != 3 {
		t.Errorf("file mutated: %d waypoints", len(f.Waypoints))
	}
}

func TestRunAddNew(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeAirfieldCivil), DistanceMeters: 300},
				{},
			}, nil
		},
		bboxFn: func(bound orb.Bound, excludeIDs []string, excludeTypes []directory.AirportType) ([]*directory.Airport, error) {
			// The already-matched airport must be excluded.
			found := false
			for _, id := range excludeIDs {
				if id == "oap-1" {
					found = true
				}
			}
			if !found {
				return nil, errors.New("seen id not excluded")
			}
			if len(excludeTypes) != 5 {
				return nil, errors.New("wrong excluded types")
			}
			return []*directory.Airport{
				dirAirport("New Glider Site", "oap-2", 14.9, 46.1, directory.TypeGliderSite),
			}, nil
		},
	}
	opts := DefaultOptions()
	opts.AddNew = true

	res, err := Run(context.Background(), f, dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Counts.Added != 1 {
		t.Fatalf("counts = %+v", res.Counts)
	}
	if len(f.Waypoints) != 4 {
		t.Fatalf("file has %d waypoints, want 4", len(f.Waypoints))
	}
	last := f.Waypoints[3]
	if last.Name() != "New Glider Site" {
		t.Errorf("appended waypoint = %q", last.Name())
	}
	if dir.bboxCalls != 1 {
		t.Errorf("bbox called %d times", dir.bboxCalls)
	}
}

func TestRunQueryFailureLeavesFileUntouched(t *testing.T) {
	f := loadTestFile(t)
	before := string(f.Serialize())

	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return nil, &directory.QueryError{Op: "nearest", Err: errors.New("connection refused")}
		},
	}

	_, err := Run(context.Background(), f, dir, DefaultOptions())
	if err == nil {
		t.Fatal("Run succeeded despite query failure")
	}
	var qerr *directory.QueryError
	if !errors.As(err, &qerr) {
		t.Errorf("error type = %T", err)
	}
	if after := string(f.Serialize()); after != before {
		t.Error("file was mutated by a failed run")
	}
}

func TestRunRejectsInvertedRadii(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return nil, errors.New("must not be called")
		},
	}
	opts := DefaultOptions()
	opts.SearchRadiusMeters = 1000
	opts.UpdateRadiusMeters = 2000

	_, err := Run(context.Background(), f, dir, opts)
	var aerr *ApplicationError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *ApplicationError", err)
	}
	if dir.nearestCalls != 0 {
		t.Errorf("directory was queried %d times before validation", dir.nearestCalls)
	}
}

func TestBucketDistance(t *testing.T) {
	buckets := map[string]int{}
	for _, d := range []float64{100, 450, 500, 700, 1400, 1500, 1800} {
		bucketDistance(buckets, d, 2000)
	}
	if buckets["distance_lte_500m"] != 3 {
		t.Errorf("lte_500m = %d, want 3", buckets["distance_lte_500m"])
	}
	if buckets["distance_lte_1000m"] != 1 {
		t.Errorf("lte_1000m = %d, want 1", buckets["distance_lte_1000m"])
	}
	if buckets["distance_lte_1500m"] != 2 {
		t.Errorf("lte_1500m = %d, want 2", buckets["distance_lte_1500m"])
	}
	// 1800 sits in the open top interval and is not bucketed.
	var total int
	for _, v := range buckets {
		total += v
	}
	if total != 6 {
		t.Errorf("bucketed %d of 7 distances, want 6", total)
	}
}

func TestReport(t *testing.T) {
	f := loadTestFile(t)
	dir := &fakeDirectory{
		nearestFn: func(points []orb.Point, threshold float64) ([]directory.Match, error) {
			return []directory.Match{
				{Airport: dirAirport("Lesce Bled", "oap-1", 14.17445, 46.356389, directory.TypeAirfieldCivil), DistanceMeters: 300},
				{},
			}, nil
		},
	}
	res, err := Run(context.Background(), f, dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	report := res.Report("test.cup", DefaultOptions())
	for _, want := range []string{
		"Report for: test.cup",
		"3 total waypoints",
		"2 airports",
		"1 Airports were updated",
		"1 were not found in the directory",
		"# List of updated airports:",
		"Dst: 300m",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
