// Package main provides the aerodata-api server for waypoint file processing.
//
// This is a standalone REST API server that updates CUP waypoint files
// against an airport directory and converts between airspace formats.
// The directory backend is either an HTTP RPC endpoint or a PostGIS
// database.
//
// Usage:
//
//	aerodata-api [options]
//
// Options:
//
//	-directory-url URL  Airport directory RPC base URL (env: AERODATA_DIRECTORY_URL)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: aerodata, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: aerodata, env: POSTGRES_PASSWORD)
//	-history PATH       SQLite file recording run history (default: aerodata_history.db)
//	-port N             HTTP port (default: 8081)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/status
//	    Details of the most recent update run.
//
//	POST /api/v1/cup/update
//	    Update an uploaded CUP file (multipart field "file"). Query
//	    parameters: search_radius, update_radius, fix_location,
//	    delete_closed, add_new.
//
//	POST /api/v1/convert/openair
//	    Convert OpenAir airspace text to GeoJSON.
//
//	POST /api/v1/convert/geojson
//	    Convert GeoJSON polygons to OpenAir text.
//
//	POST /api/v1/convert/coords
//	    Extract coordinates from freeform text (?format=geojson|openair).
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"aerodata/internal/api"
	"aerodata/internal/directory"
	"aerodata/internal/history"
)

func main() {
	// Directory backend flags.
	dirURL := flag.String("directory-url", envOrDefault("AERODATA_DIRECTORY_URL", ""), "Airport directory RPC base URL")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "aerodata"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "aerodata"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", ""), "PostgreSQL database (PostGIS backend)")

	// History and API server flags.
	historyPath := flag.String("history", envOrDefault("AERODATA_HISTORY", "aerodata_history.db"), "SQLite run history file")
	port := flag.Int("port", 8081, "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")

	flag.Parse()

	ctx := context.Background()

	// Open the directory backend.
	var dir directory.Directory
	switch {
	case *dirURL != "":
		dir = directory.NewClient(*dirURL)
	case *pgDB != "":
		pg, err := directory.OpenPostgres(ctx, directory.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		dir = pg
	default:
		fmt.Fprintln(os.Stderr, "No directory backend configured; CUP updates will be unavailable")
	}

	// Open the run history store.
	hist, err := history.Open(*historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	// Create and run server.
	server := api.NewServer(dir, hist, api.Config{
		Port:        *port,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
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
