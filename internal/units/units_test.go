package units

import (
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestParseLatLon(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"north latitude", "5107.830N", 51.1305},
		{"south latitude", "4500.000S", -45.0},
		{"lowercase hemisphere", "5107.830n", 51.1305},
		{"east longitude", "01410.467E", 14.17445},
		{"west longitude", "17959.999W", -179.99998333},
		{"zero latitude", "0000.000N", 0},
		{"single decimal", "5107.8N", 51.13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLatLon(tt.input)
			if err != nil {
				t.Fatalf("ParseLatLon(%q) error: %v", tt.input, err)
			}
			if !almostEqual(got, tt.want, 1e-6) {
				t.Errorf("ParseLatLon(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLatLonInvalid(t *testing.T) {
	inputs := []string{
		"",
		"5107830N",    // missing decimal point
		"N5107.830",   // hemisphere first
		"5107.830",    // no hemisphere
		"107.830N",    // too few degree digits
		"5107.8301N",  // too many minute decimals
		"0140.467E",   // longitude with 2-digit degrees
		"51 07.830 N", // embedded spaces
	}
	for _, in := range inputs {
		if _, err := ParseLatLon(in); err == nil {
			t.Errorf("ParseLatLon(%q) accepted invalid input", in)
		}
	}
}

func TestFormatLatLon(t *testing.T) {
	tests := []struct {
		name string
		dd   float64
		lat  bool
		want string
	}{
		{"north", 51.1305, true, "5107.830N"},
		{"south", -45.0, true, "4500.000S"},
		{"equator", 0, true, "0000.000N"},
		{"east", 14.17445, false, "01410.467E"},
		{"west", -8.5, false, "00830.000W"},
		{"wide east", 145.25, false, "14515.000E"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if tt.lat {
				got = FormatLat(tt.dd)
			} else {
				got = FormatLon(tt.dd)
			}
			if got != tt.want {
				t.Errorf("format(%v) = %q, want %q", tt.dd, got, tt.want)
			}
		})
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	for _, s := range []string{"5107.830N", "4500.000S", "01410.467E", "17959.999W"} {
		dd, err := ParseLatLon(s)
		if err != nil {
			t.Fatalf("ParseLatLon(%q) error: %v", s, err)
		}
		var out string
		if len(s) == 9 {
			out = FormatLat(dd)
		} else {
			out = FormatLon(dd)
		}
		if out != s {
			t.Errorf("round trip %q -> %v -> %q", s, dd, out)
		}
	}
}

func TestDMSToDecimal(t *testing.T) {
	tests := []struct {
		d, m, s float64
		want    float64
	}{
		{45, 54, 4.3, 45.90119},
		{0, 0, 0, 0},
		{15, 31, 13.7, 15.52047},
	}
	for _, tt := range tests {
		got := DMSToDecimal(tt.d, tt.m, tt.s)
		if !almostEqual(got, tt.want, 1e-4) {
			t.Errorf("DMSToDecimal(%v, %v, %v) = %v, want %v", tt.d, tt.m, tt.s, got, tt.want)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMeters float64
		wantUnit   Unit
	}{
		{"meters with decimal", "504.0m", 504.0, Meter},
		{"plain meters", "123m", 123, Meter},
		{"feet", "1000ft", 304.8, Feet},
		{"nautical miles", "1nm", 1852, NauticalMile},
		{"statute miles", "1ml", 1609.344, StatuteMile},
		{"scientific notation", "3.280839895013123e2ft", 100, Feet},
		{"uppercase unit", "100FT", 30.48, Feet},
		{"leading dot", ".5nm", 926, NauticalMile},
		{"negative", "-10m", -10, Meter},
		{"surrounding space", " 250m ", 250, Meter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDistance(tt.input)
			if err != nil {
				t.Fatalf("ParseDistance(%q) error: %v", tt.input, err)
			}
			if !almostEqual(got.Meters, tt.wantMeters, 1e-9) {
				t.Errorf("ParseDistance(%q).Meters = %v, want %v", tt.input, got.Meters, tt.wantMeters)
			}
			if got.Unit != tt.wantUnit {
				t.Errorf("ParseDistance(%q).Unit = %q, want %q", tt.input, got.Unit, tt.wantUnit)
			}
		})
	}
}

func TestParseDistanceEmpty(t *testing.T) {
	d, err := ParseDistance("")
	if err != nil {
		t.Fatalf("ParseDistance(\"\") error: %v", err)
	}
	if !d.IsEmpty() {
		t.Errorf("ParseDistance(\"\") = %+v, want empty sentinel", d)
	}
	if !math.IsInf(d.Meters, -1) {
		t.Errorf("empty sentinel meters = %v, want -Inf", d.Meters)
	}
	if d.Unit != Meter {
		t.Errorf("empty sentinel unit = %q, want %q", d.Unit, Meter)
	}
}

func TestParseDistanceInvalid(t *testing.T) {
	inputs := []string{"100", "100km", "ft", "100 ft", "12..5m", "100m junk"}
	for _, in := range inputs {
		if _, err := ParseDistance(in); err == nil {
			t.Errorf("ParseDistance(%q) accepted invalid input", in)
		}
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		name string
		d    Distance
		want string
	}{
		{"empty sentinel", EmptyDistance(), ""},
		{"zero value", Distance{}, ""},
		{"exact tenth meters drop decimals", Distance{Meters: 504.0, Unit: Meter}, "504m"},
		{"half meter keeps one decimal", Distance{Meters: 504.5, Unit: Meter}, "504.5m"},
		{"fractional meters rounded", Distance{Meters: 123.456, Unit: Meter}, "123.5m"},
		{"feet no decimals", Distance{Meters: 304.8, Unit: Feet}, "1000ft"},
		{"nautical miles two decimals", Distance{Meters: 1852, Unit: NauticalMile}, "1.00nm"},
		{"statute miles two decimals", Distance{Meters: 1609.344, Unit: StatuteMile}, "1.00ml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDistance(tt.d); got != tt.want {
				t.Errorf("FormatDistance(%+v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestDistanceRoundTripCanonical(t *testing.T) {
	// "504.0m" parses to 504 m and re-serializes as "504m"; the canonical
	// form then round-trips byte-stable.
	d, err := ParseDistance("504.0m")
	if err != nil {
		t.Fatal(err)
	}
	first := FormatDistance(d)
	if first != "504m" {
		t.Fatalf("first serialization = %q, want \"504m\"", first)
	}
	d2, err := ParseDistance(first)
	if err != nil {
		t.Fatal(err)
	}
	if second := FormatDistance(d2); second != first {
		t.Errorf("canonical form not stable: %q -> %q", first, second)
	}
}

func TestValidFrequency(t *testing.T) {
	valid := []string{"118.0", "118.00", "118.005", "122.80", "128.955", "136.990", "119.1", "135.125"}
	for _, f := range valid {
		if !ValidFrequency(f) {
			t.Errorf("ValidFrequency(%q) = false, want true", f)
		}
	}
	invalid := []string{"", "117.975", "137.000", "118", "118.0000", "118.001", "abc", "12.80", "118,00"}
	for _, f := range invalid {
		if ValidFrequency(f) {
			t.Errorf("ValidFrequency(%q) = true, want false", f)
		}
	}
}

func TestValidStyle(t *testing.T) {
	for v := 0; v <= 21; v++ {
		if !ValidStyle(v) {
			t.Errorf("ValidStyle(%d) = false, want true", v)
		}
	}
	for _, v := range []int{-1, 22, 999} {
		if ValidStyle(v) {
			t.Errorf("ValidStyle(%d) = true, want false", v)
		}
	}
}

func TestStyleName(t *testing.T) {
	tests := []struct {
		style int
		want  string
	}{
		{0, "Unknown"},
		{3, "Outlanding"},
		{5, "Airfield (Solid runway)"},
		{21, "PG Landing Zone"},
		{99, "Unknown"},
	}
	for _, tt := range tests {
		if got := StyleName(tt.style); got != tt.want {
			t.Errorf("StyleName(%d) = %q, want %q", tt.style, got, tt.want)
		}
	}
}

func TestParseStyle(t *testing.T) {
	if v, err := ParseStyle("5"); err != nil || v != 5 {
		t.Errorf("ParseStyle(\"5\") = %d, %v", v, err)
	}
	for _, in := range []string{"", "22", "-1", "x", "2.5"} {
		if _, err := ParseStyle(in); err == nil {
			t.Errorf("ParseStyle(%q) accepted invalid input", in)
		}
	}
}
