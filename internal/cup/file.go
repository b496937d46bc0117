package cup

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/paulmach/orb"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// CodecError reports a structural problem in a CUP file, as opposed to an
// invalid field value.
type CodecError struct {
	Line   int // 1-based, 0 when not tied to a line
	Reason string
}

func (e *CodecError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cup: line %d: %s", e.Line, e.Reason)
	}
	return "cup: " + e.Reason
}

// fieldOrder is the CUP column order on the wire.
var fieldOrder = []string{
	"name", "code", "country", "lat", "lon", "elev", "style",
	"rwdir", "rwlen", "rwwidth", "freq", "desc", "userdata", "pics",
}

// fieldAliases maps each canonical column to the header spellings seen in
// the wild. Matching is case-insensitive.
var fieldAliases = map[string][]string{
	"name":     {"name", "waypoint", "wpname"},
	"code":     {"code", "shortname", "short_name"},
	"country":  {"country", "cntry"},
	"lat":      {"lat", "la", "latitude"},
	"lon":      {"lon", "lo", "long", "longitude"},
	"elev":     {"elev", "elevation", "alt", "altitude"},
	"style":    {"style", "type"},
	"rwdir":    {"rwdir", "rw_dir", "rwy_dir", "runway_direction"},
	"rwlen":    {"rwlen", "rw_len", "rwy_len", "runway_length"},
	"rwwidth":  {"rwwidth", "rw_width", "rwy_width", "runway_width"},
	"freq":     {"freq", "frequency"},
	"desc":     {"desc", "description"},
	"userdata": {"userdata", "user_data"},
	"pics":     {"pics", "pictures", "user_pictures"},
}

// tasksMarker identifies the separator between waypoints and the task
// section; matched case-insensitively on a shortened core so variants with
// more or fewer dashes still hit.
const tasksMarker = "--related tasks--"

// File is a parsed CUP file: an ordered waypoint list plus the verbatim
// task section, which is carried through serialization untouched.
type File struct {
	Name      string
	Waypoints []*Waypoint

	tasks []string
}

// Parse decodes a CUP file from raw bytes. The byte stream may be UTF-8
// (with or without BOM) or a legacy single-byte code page, which is
// detected before parsing. Waypoint lines that repeat byte-for-byte are
// kept once; lines whose first field starts with '#' are comments.
func Parse(data []byte) (*File, error) {
	content, err := decodeBytes(data)
	if err != nil {
		return nil, &CodecError{Reason: fmt.Sprintf("decoding input: %v", err)}
	}
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, &CodecError{Reason: "file is empty"}
	}

	header, err := parseCSVLine(lines[0])
	if err != nil {
		return nil, &CodecError{Line: 1, Reason: fmt.Sprintf("reading header: %v", err)}
	}
	cols, err := columnIndices(header)
	if err != nil {
		return nil, err
	}

	f := &File{}
	seen := make(map[string]struct{})
	for i := 1; i < len(lines); i++ {
		rec, err := parseCSVLine(lines[i])
		if err != nil {
			return nil, &CodecError{Line: i + 1, Reason: fmt.Sprintf("reading record: %v", err)}
		}
		joined := strings.Join(rec, ",")
		if strings.Contains(strings.ToLower(joined), tasksMarker) {
			f.tasks = lines[i+1:]
			break
		}
		if len(rec) == 0 || strings.HasPrefix(rec[0], "#") {
			continue
		}
		if _, dup := seen[joined]; dup {
			continue
		}
		seen[joined] = struct{}{}

		wp, err := waypointFromRecord(rec, cols, i+1)
		if err != nil {
			return nil, err
		}
		f.Waypoints = append(f.Waypoints, wp)
	}
	return f, nil
}

// decodeBytes turns the raw file bytes into text. Any BOM is stripped
// first. An unambiguous detection of a legacy single-byte code page wins;
// otherwise the detector's best guess decides, and the bytes pass through
// as UTF-8 only when no candidate charset can decode them.
func decodeBytes(data []byte) (string, error) {
	stripped, err := io.ReadAll(utfbom.SkipOnly(bytes.NewReader(data)))
	if err != nil {
		return "", err
	}
	results, err := chardet.NewTextDetector().DetectAll(stripped)
	if err != nil {
		return string(stripped), nil
	}
	for _, r := range results {
		name := strings.ToLower(r.Charset)
		if r.Confidence < 100 {
			continue
		}
		if !strings.HasPrefix(name, "windows-") && !strings.HasPrefix(name, "iso-") {
			continue
		}
		if decoded, ok := decodeAs(stripped, name); ok {
			return decoded, nil
		}
	}
	if decoded, ok := decodeAs(stripped, results[0].Charset); ok {
		return decoded, nil
	}
	return string(stripped), nil
}

// decodeAs decodes the bytes as the named charset, resolved through the
// HTML encoding index.
func decodeAs(data []byte, charset string) (string, bool) {
	enc, err := htmlindex.Get(strings.ToLower(charset))
	if err != nil {
		return "", false
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	return rec, err
}

func writeCSVLine(rec []string) string {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	w.Write(rec)
	w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// columnIndices maps canonical field names to header positions via the
// alias table. The name and coordinate columns are mandatory.
func columnIndices(header []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		for field, aliases := range fieldAliases {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					cols[field] = i
					break
				}
			}
		}
	}
	for _, required := range []string{"name", "lat", "lon"} {
		if _, ok := cols[required]; !ok {
			return nil, &CodecError{Line: 1, Reason: fmt.Sprintf("missing required column %q", required)}
		}
	}
	return cols, nil
}

func waypointFromRecord(rec []string, cols map[string]int, lineNr int) (*Waypoint, error) {
	field := func(name string) (string, error) {
		idx, ok := cols[name]
		if !ok {
			return "", nil
		}
		if idx >= len(rec) {
			return "", &CodecError{Line: lineNr, Reason: fmt.Sprintf("record has %d fields, column %q is at index %d", len(rec), name, idx)}
		}
		return strings.TrimSpace(strings.Trim(rec[idx], `"`)), nil
	}

	var f Fields
	for _, bind := range []struct {
		name string
		dst  *string
	}{
		{"name", &f.Name}, {"code", &f.Code}, {"country", &f.Country},
		{"lat", &f.Lat}, {"lon", &f.Lon}, {"elev", &f.Elev},
		{"style", &f.Style}, {"rwdir", &f.Rwdir}, {"rwlen", &f.Rwlen},
		{"rwwidth", &f.Rwwidth}, {"freq", &f.Freq}, {"desc", &f.Desc},
		{"userdata", &f.Userdata}, {"pics", &f.Pics},
	} {
		v, err := field(bind.name)
		if err != nil {
			return nil, err
		}
		*bind.dst = v
	}

	wp, err := New(f, nil)
	if err != nil {
		return nil, fmt.Errorf("cup: line %d: %w", lineNr, err)
	}
	return wp, nil
}

// Serialize renders the file back to bytes: canonical header, one line per
// waypoint in order, the task separator, then the verbatim task section.
func (f *File) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(fieldOrder, ","))
	buf.WriteByte('\n')
	w := csv.NewWriter(&buf)
	for _, wp := range f.Waypoints {
		w.Write(wp.Record())
	}
	w.Flush()
	buf.WriteString("-----Related Tasks-----\n")
	if len(f.tasks) > 0 {
		buf.WriteString(strings.Join(f.tasks, "\n"))
	}
	return buf.Bytes()
}

// Tasks returns the verbatim task section lines.
func (f *File) Tasks() []string { return f.tasks }

// SetTasks replaces the task section.
func (f *File) SetTasks(lines []string) { f.tasks = lines }

// Landables returns the waypoints one can land on, in file order.
func (f *File) Landables() []*Waypoint {
	return f.filter((*Waypoint).IsLandable)
}

// Airports returns the airfield and gliding-site waypoints, in file order.
func (f *File) Airports() []*Waypoint {
	return f.filter((*Waypoint).IsAirport)
}

// Outlandings returns the outlanding waypoints, in file order.
func (f *File) Outlandings() []*Waypoint {
	return f.filter((*Waypoint).IsOutlanding)
}

func (f *File) filter(pred func(*Waypoint) bool) []*Waypoint {
	var out []*Waypoint
	for _, wp := range f.Waypoints {
		if pred(wp) {
			out = append(out, wp)
		}
	}
	return out
}

// BoundingBox returns the bound of all waypoint locations. The second
// return is false when the file holds no waypoints.
func (f *File) BoundingBox() (orb.Bound, bool) {
	if len(f.Waypoints) == 0 {
		return orb.Bound{}, false
	}
	pts := make(orb.MultiPoint, 0, len(f.Waypoints))
	for _, wp := range f.Waypoints {
		pts = append(pts, wp.Point())
	}
	return pts.Bound(), true
}
