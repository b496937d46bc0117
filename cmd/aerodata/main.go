// Command-line entry point for aerodata (waypoint file processing).
//
// Commands:
//
//	update           - update the airports of a CUP file against an airport directory
//	openair2geojson  - convert an OpenAir airspace file to GeoJSON
//	geojson2openair  - convert a GeoJSON polygon file to OpenAir
//	coords           - extract coordinates from freeform aeronautical text
//
// The update command needs a directory backend: either an HTTP RPC
// endpoint (-directory-url) or a PostGIS database (-pg-* flags).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"aerodata/internal/coords"
	"aerodata/internal/cup"
	"aerodata/internal/directory"
	"aerodata/internal/history"
	"aerodata/internal/openair"
	"aerodata/internal/reconcile"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "aerodata - commands:")
	fmt.Fprintln(w, "  update           - update airports of a CUP file against a directory")
	fmt.Fprintln(w, "  openair2geojson  - convert OpenAir airspace text to GeoJSON")
	fmt.Fprintln(w, "  geojson2openair  - convert GeoJSON polygons to OpenAir text")
	fmt.Fprintln(w, "  coords           - extract coordinates from freeform text")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  aerodata update -input waypoints.cup [-output out.cup] [-directory-url URL | -pg-database DB ...]")
	fmt.Fprintln(w, "  aerodata openair2geojson -input airspace.txt [-output out.geojson] [-pretty]")
	fmt.Fprintln(w, "  aerodata geojson2openair -input airspace.geojson [-output out.txt]")
	fmt.Fprintln(w, "  aerodata coords -input notam.txt [-format geojson|openair]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "update":
		runUpdate(os.Args[2:])
	case "openair2geojson":
		runOpenAir2GeoJSON(os.Args[2:])
	case "geojson2openair":
		runGeoJSON2OpenAir(os.Args[2:])
	case "coords":
		runCoords(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	inPath := fs.String("input", "", "Input CUP file (required)")
	outPath := fs.String("output", "", "Output CUP file (default: stdout)")
	reportPath := fs.String("report", "", "Write the run report to a file (default: stderr)")
	historyPath := fs.String("history", "", "SQLite file recording run history (optional)")

	dirURL := fs.String("directory-url", envOrDefault("AERODATA_DIRECTORY_URL", ""), "Airport directory RPC base URL")
	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", "aerodata"), "PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "aerodata"), "PostgreSQL password")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", ""), "PostgreSQL database (PostGIS backend)")

	searchRadius := fs.Float64("search-radius", reconcile.DefaultSearchRadiusMeters, "Candidate search radius in meters")
	updateRadius := fs.Float64("update-radius", reconcile.DefaultUpdateRadiusMeters, "Update radius in meters")
	fixLocation := fs.Bool("fix-location", true, "Move airports to the directory location")
	deleteClosed := fs.Bool("delete-closed", false, "Delete airports marked closed in the directory")
	addNew := fs.Bool("add-new", false, "Add directory airports missing from the file")
	_ = fs.Parse(args)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "update: -input is required")
		os.Exit(2)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	file, err := cup.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse CUP file: %v\n", err)
		os.Exit(1)
	}
	file.Name = *inPath

	ctx := context.Background()
	dir, closeDir, err := openDirectory(ctx, *dirURL, directory.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening directory: %v\n", err)
		os.Exit(1)
	}
	defer closeDir()

	opts := reconcile.Options{
		SearchRadiusMeters: *searchRadius,
		UpdateRadiusMeters: *updateRadius,
		FixLocation:        *fixLocation,
		DeleteClosed:       *deleteClosed,
		AddNew:             *addNew,
	}
	result, err := reconcile.Run(ctx, file, dir, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		os.Exit(1)
	}

	if err := writeOutput(*outPath, file.Serialize()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}

	report := result.Report(*inPath, opts)
	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, []byte(report), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprint(os.Stderr, report)
	}

	if *historyPath != "" {
		recordHistory(ctx, *historyPath, *inPath, result)
	}
}

// openDirectory picks the directory backend: HTTP RPC when a URL is set,
// otherwise PostGIS when a database name is set.
func openDirectory(ctx context.Context, url string, pg directory.PostgresConfig) (directory.Directory, func(), error) {
	if url != "" {
		return directory.NewClient(url), func() {}, nil
	}
	if pg.Database != "" {
		db, err := directory.OpenPostgres(ctx, pg)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("no directory backend configured (set -directory-url or -pg-database)")
}

func recordHistory(ctx context.Context, path, fileName string, result *reconcile.Result) {
	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return
	}
	defer store.Close()
	_, err = store.RecordRun(ctx, history.Run{
		FileName:        fileName,
		Updated:         result.Counts.Updated,
		Added:           result.Counts.Added,
		Deleted:         result.Counts.Deleted,
		NotFound:        result.Counts.NotFound,
		NotUpdated:      result.Counts.NotUpdated,
		WaypointsBefore: result.Counts.TotalWaypointsBefore,
		WaypointsAfter:  result.Counts.TotalWaypointsAfter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record history: %v\n", err)
	}
}

func runOpenAir2GeoJSON(args []string) {
	fs := flag.NewFlagSet("openair2geojson", flag.ExitOnError)
	inPath := fs.String("input", "", "Input OpenAir file (default: stdin)")
	outPath := fs.String("output", "", "Output GeoJSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	data := readInput(*inPath)
	fc, err := openair.ToGeoJSON(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Conversion failed: %v\n", err)
		os.Exit(1)
	}

	enc, err := marshalJSON(fc, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	if err := writeOutput(*outPath, append(enc, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runGeoJSON2OpenAir(args []string) {
	fs := flag.NewFlagSet("geojson2openair", flag.ExitOnError)
	inPath := fs.String("input", "", "Input GeoJSON file (default: stdin)")
	outPath := fs.String("output", "", "Output OpenAir file (default: stdout)")
	_ = fs.Parse(args)

	data := readInput(*inPath)
	text, err := openair.FromGeoJSON(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Conversion failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeOutput(*outPath, []byte(text)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runCoords(args []string) {
	fs := flag.NewFlagSet("coords", flag.ExitOnError)
	inPath := fs.String("input", "", "Input text file (default: stdin)")
	outPath := fs.String("output", "", "Output file (default: stdout)")
	format := fs.String("format", "geojson", "Output format: geojson or openair")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	data := readInput(*inPath)

	switch *format {
	case "geojson":
		fc := geojson.NewFeatureCollection()
		for _, p := range coords.ExtractAll(string(data)) {
			fc.Append(geojson.NewFeature(p))
		}
		enc, err := marshalJSON(fc, *pretty)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
			os.Exit(1)
		}
		if err := writeOutput(*outPath, append(enc, '\n')); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			os.Exit(1)
		}
	case "openair":
		lines := coords.BatchCompactToOpenAir(string(data))
		out := strings.Join(lines, "\n")
		if out != "" {
			out += "\n"
		}
		if err := writeOutput(*outPath, []byte(out)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", *format)
		os.Exit(2)
	}
}

// Helpers shared by the subcommands.

func readInput(path string) []byte {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		return data
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	return data
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
