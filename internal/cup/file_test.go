package cup

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const sampleFile = `name,code,country,lat,lon,elev,style,rwdir,rwlen,rwwidth,freq,desc,userdata,pics
"Celje",CELJE,SI,4614.850N,01513.755E,244.0m,5,150,1130.0m,,123.500,"Glider field",,
"Lesce",LESCE,SI,4621.383N,01410.467E,504.0m,5,140,1130.0m,30.0m,123.500,"Alpine gliding",,
"Outlanding Polje",OLP1,SI,4605.000N,01500.000E,300.0m,3,,,,,"Field",,
"Mountain Top",MT1,SI,4630.000N,01445.000E,2000.0m,7,,,,,,,
`

func parseSample(t *testing.T, content string) *File {
	t.Helper()
	f, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return f
}

func TestParseBasic(t *testing.T) {
	f := parseSample(t, sampleFile)
	if len(f.Waypoints) != 4 {
		t.Fatalf("parsed %d waypoints, want 4", len(f.Waypoints))
	}
	first := f.Waypoints[0]
	if first.Name() != "Celje" || first.Country() != "SI" || first.Style() != 5 {
		t.Errorf("first waypoint = %q %q %d", first.Name(), first.Country(), first.Style())
	}
	if first.Rwdir() != 150 {
		t.Errorf("rwdir = %d", first.Rwdir())
	}
}

func TestParseViews(t *testing.T) {
	f := parseSample(t, sampleFile)
	if got := len(f.Landables()); got != 3 {
		t.Errorf("Landables = %d, want 3", got)
	}
	if got := len(f.Airports()); got != 2 {
		t.Errorf("Airports = %d, want 2", got)
	}
	out := f.Outlandings()
	if len(out) != 1 || out[0].Name() != "Outlanding Polje" {
		t.Errorf("Outlandings = %v", out)
	}
	// Views preserve file order.
	landables := f.Landables()
	if landables[0].Name() != "Celje" || landables[2].Name() != "Outlanding Polje" {
		t.Errorf("landables out of order: %q, %q", landables[0].Name(), landables[2].Name())
	}
}

func TestParseDeduplicatesExactLines(t *testing.T) {
	dup := sampleFile + `"Celje",CELJE,SI,4614.850N,01513.755E,244.0m,5,150,1130.0m,,123.500,"Glider field",,
`
	f := parseSample(t, dup)
	if len(f.Waypoints) != 4 {
		t.Errorf("parsed %d waypoints, want duplicate dropped (4)", len(f.Waypoints))
	}
}

func TestParseSkipsComments(t *testing.T) {
	content := "name,lat,lon\n# a comment line,0,0\nP1,4600.000N,01500.000E\n"
	f := parseSample(t, content)
	if len(f.Waypoints) != 1 || f.Waypoints[0].Name() != "P1" {
		t.Errorf("waypoints = %v", f.Waypoints)
	}
}

func TestParseHeaderAliases(t *testing.T) {
	content := "Waypoint,Latitude,Longitude,Altitude,Type\nP1,4600.000N,01500.000E,100m,5\n"
	f := parseSample(t, content)
	if len(f.Waypoints) != 1 {
		t.Fatalf("parsed %d waypoints", len(f.Waypoints))
	}
	wp := f.Waypoints[0]
	if wp.Elev().Meters != 100 || wp.Style() != 5 {
		t.Errorf("aliases not mapped: elev %v style %d", wp.Elev(), wp.Style())
	}
}

func TestParseMissingRequiredColumn(t *testing.T) {
	_, err := Parse([]byte("name,lat\nP1,4600.000N\n"))
	var cerr *CodecError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CodecError", err)
	}
	if !strings.Contains(cerr.Reason, "lon") {
		t.Errorf("reason = %q, want mention of lon", cerr.Reason)
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("\n")} {
		_, err := Parse(data)
		var cerr *CodecError
		if !errors.As(err, &cerr) {
			t.Errorf("Parse(%q) error = %v, want *CodecError", data, err)
		}
	}
}

func TestParseInvalidFieldAbortsWithLine(t *testing.T) {
	content := "name,lat,lon\nP1,4600.000N,01500.000E\nP2,garbage,01500.000E\n"
	_, err := Parse([]byte(content))
	if err == nil {
		t.Fatal("Parse accepted invalid latitude")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error %q does not name the offending line", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error chain lacks *ValidationError: %v", err)
	}
}

func TestTasksPreservedVerbatim(t *testing.T) {
	content := sampleFile + "-----Related Tasks-----\n\"Task 1\",Celje,Lesce,Celje\nOptions,NoStart\n"
	f := parseSample(t, content)
	if len(f.Waypoints) != 4 {
		t.Fatalf("parsed %d waypoints, want 4", len(f.Waypoints))
	}
	tasks := f.Tasks()
	if len(tasks) != 2 || tasks[0] != `"Task 1",Celje,Lesce,Celje` {
		t.Errorf("tasks = %q", tasks)
	}
	out := string(f.Serialize())
	if !strings.HasSuffix(out, "-----Related Tasks-----\n\"Task 1\",Celje,Lesce,Celje\nOptions,NoStart") {
		t.Errorf("serialized tail:\n%s", out)
	}
}

func TestSerializeCanonicalRoundTrip(t *testing.T) {
	f := parseSample(t, sampleFile)
	first := f.Serialize()
	f2, err := Parse(first)
	if err != nil {
		t.Fatalf("reparse error: %v", err)
	}
	second := f2.Serialize()
	if !bytes.Equal(first, second) {
		t.Errorf("canonical form not byte-stable:\n%s\n---\n%s", first, second)
	}
}

func TestSerializeHeaderOrder(t *testing.T) {
	f := parseSample(t, sampleFile)
	out := string(f.Serialize())
	wantHeader := "name,code,country,lat,lon,elev,style,rwdir,rwlen,rwwidth,freq,desc,userdata,pics"
	if !strings.HasPrefix(out, wantHeader+"\n") {
		t.Errorf("header = %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, "-----Related Tasks-----\n") {
		t.Error("task separator missing from output with no tasks")
	}
}

func TestParseUTF8BOM(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,lat,lon\nP1,4600.000N,01500.000E\n")...)
	f, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(f.Waypoints) != 1 || f.Waypoints[0].Name() != "P1" {
		t.Errorf("BOM input not handled: %v", f.Waypoints)
	}
}

func TestParseLegacyCodePage(t *testing.T) {
	// Latin-1 bytes (0xFC = ü, 0xE4 = ä), invalid as UTF-8, so parsing
	// only works through charset detection. The comment lines give the
	// detector enough language signal.
	content := "name,code,country,lat,lon,elev,style\n" +
		"# Die Wendepunkte wurden von der Landesgruppe gepr\xFCft und mit den\n" +
		"# Daten der Flugpl\xE4tze in der Region verglichen und erg\xE4nzt. Die\n" +
		"# Angaben sind ohne Gew\xE4hr und der Nutzer ist f\xFCr die Verwendung\n" +
		"# der Daten und die Folgen selbst verantwortlich.\n" +
		"\"M\xFCnster-Telgte\",EDLT,DE,5156.767N,00749.433E,55.0m,5\n"
	f, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(f.Waypoints) != 1 {
		t.Fatalf("parsed %d waypoints, want 1", len(f.Waypoints))
	}
	if got := f.Waypoints[0].Name(); got != "Münster-Telgte" {
		t.Errorf("name = %q, want %q", got, "Münster-Telgte")
	}
}

func TestBoundingBox(t *testing.T) {
	f := parseSample(t, sampleFile)
	b, ok := f.BoundingBox()
	if !ok {
		t.Fatal("BoundingBox reported empty for populated file")
	}
	if b.Min[0] > 14.2 || b.Max[0] < 15.2 || b.Min[1] > 46.1 || b.Max[1] < 46.4 {
		t.Errorf("bound = %+v", b)
	}

	empty := &File{}
	if _, ok := empty.BoundingBox(); ok {
		t.Error("BoundingBox reported non-empty for empty file")
	}
}
