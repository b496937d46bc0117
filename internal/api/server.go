// Package api provides REST API endpoints for waypoint file processing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb/geojson"

	"aerodata/internal/coords"
	"aerodata/internal/cup"
	"aerodata/internal/directory"
	"aerodata/internal/history"
	"aerodata/internal/openair"
	"aerodata/internal/reconcile"
)

// maxBodyBytes caps uploads and conversion payloads.
const maxBodyBytes = 32 << 20

// Server serves the CUP update and conversion endpoints.
type Server struct {
	dir         directory.Directory
	hist        *history.Store // Optional; status reports no runs without it.
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewServer creates an API server backed by the given airport directory
// and run history store. hist may be nil.
func NewServer(dir directory.Directory, hist *history.Store, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &Server{
		dir:         dir,
		hist:        hist,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Mount("/api/v1", s.Router())

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the route tree without the outer middleware stack, for
// embedding in other servers and for tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Post("/cup/update", s.handleCupUpdate)

	r.Post("/convert/openair", s.handleConvertOpenAir)
	r.Post("/convert/geojson", s.handleConvertGeoJSON)
	r.Post("/convert/coords", s.handleConvertCoords)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusResponse is the JSON response for the status endpoint.
type StatusResponse struct {
	Status  string       `json:"status"`
	LastRun *RunResponse `json:"last_run"`
}

// RunResponse is the JSON shape of one recorded reconciliation run.
type RunResponse struct {
	FileName        string `json:"file_name"`
	Timestamp       string `json:"timestamp"`
	Updated         int    `json:"updated"`
	Added           int    `json:"added"`
	Deleted         int    `json:"deleted"`
	NotFound        int    `json:"not_found"`
	NotUpdated      int    `json:"not_updated"`
	WaypointsBefore int    `json:"waypoints_before"`
	WaypointsAfter  int    `json:"waypoints_after"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "ok"}

	if s.hist != nil {
		run, ok, err := s.hist.LastRun(r.Context(), history.CategoryAirports)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			resp.LastRun = &RunResponse{
				FileName:        run.FileName,
				Timestamp:       run.Timestamp.Format(time.RFC3339),
				Updated:         run.Updated,
				Added:           run.Added,
				Deleted:         run.Deleted,
				NotFound:        run.NotFound,
				NotUpdated:      run.NotUpdated,
				WaypointsBefore: run.WaypointsBefore,
				WaypointsAfter:  run.WaypointsAfter,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateResponse is the JSON response for a CUP update request.
type UpdateResponse struct {
	FileName        string         `json:"file_name"`
	Counts          CountsResponse `json:"counts"`
	DistanceBuckets map[string]int `json:"distance_buckets,omitempty"`
	Report          string         `json:"report"`
	File            string         `json:"file"` // Updated CUP content.
}

// CountsResponse is the JSON shape of the run summary.
type CountsResponse struct {
	TotalWaypointsBefore int `json:"total_waypoints_before"`
	TotalAirportsBefore  int `json:"total_airports_before"`
	TotalWaypointsAfter  int `json:"total_waypoints_after"`
	TotalAirportsAfter   int `json:"total_airports_after"`
	Updated              int `json:"updated"`
	Added                int `json:"added"`
	Deleted              int `json:"deleted"`
	NotFound             int `json:"not_found"`
	NotUpdated           int `json:"not_updated"`
}

func (s *Server) handleCupUpdate(w http.ResponseWriter, r *http.Request) {
	if s.dir == nil {
		writeError(w, http.StatusServiceUnavailable, "No airport directory configured")
		return
	}

	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	upload, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file upload field 'file'")
		return
	}
	defer upload.Close()

	data, err := io.ReadAll(io.LimitReader(upload, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Reading upload: "+err.Error())
		return
	}

	file, err := cup.Parse(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid CUP file: "+err.Error())
		return
	}
	file.Name = header.Filename

	opts, err := optionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := reconcile.Run(r.Context(), file, s.dir, opts)
	if err != nil {
		var appErr *reconcile.ApplicationError
		if errors.As(err, &appErr) {
			writeError(w, http.StatusBadRequest, appErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "Directory query failed: "+err.Error())
		return
	}

	s.recordRun(r.Context(), header.Filename, result)

	writeJSON(w, http.StatusOK, UpdateResponse{
		FileName: header.Filename,
		Counts: CountsResponse{
			TotalWaypointsBefore: result.Counts.TotalWaypointsBefore,
			TotalAirportsBefore:  result.Counts.TotalAirportsBefore,
			TotalWaypointsAfter:  result.Counts.TotalWaypointsAfter,
			TotalAirportsAfter:   result.Counts.TotalAirportsAfter,
			Updated:              result.Counts.Updated,
			Added:                result.Counts.Added,
			Deleted:              result.Counts.Deleted,
			NotFound:             result.Counts.NotFound,
			NotUpdated:           result.Counts.NotUpdated,
		},
		DistanceBuckets: result.DistanceBuckets,
		Report:          result.Report(header.Filename, opts),
		File:            string(file.Serialize()),
	})
}

// optionsFromQuery builds run options from the update endpoint's query
// parameters. Unset parameters keep the defaults.
func optionsFromQuery(r *http.Request) (reconcile.Options, error) {
	opts := reconcile.DefaultOptions()
	q := r.URL.Query()

	if v := q.Get("search_radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, errors.New("search_radius must be a positive number of meters")
		}
		opts.SearchRadiusMeters = f
	}
	if v := q.Get("update_radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, errors.New("update_radius must be a positive number of meters")
		}
		opts.UpdateRadiusMeters = f
	}

	var err error
	if opts.FixLocation, err = boolParam(q.Get("fix_location"), true); err != nil {
		return opts, errors.New("fix_location must be true or false")
	}
	if opts.DeleteClosed, err = boolParam(q.Get("delete_closed"), false); err != nil {
		return opts, errors.New("delete_closed must be true or false")
	}
	if opts.AddNew, err = boolParam(q.Get("add_new"), false); err != nil {
		return opts, errors.New("add_new must be true or false")
	}
	return opts, nil
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// recordRun persists a run in the history store. Failures are logged, not
// surfaced: the update itself already succeeded.
func (s *Server) recordRun(ctx context.Context, fileName string, result *reconcile.Result) {
	if s.hist == nil {
		return
	}
	_, err := s.hist.RecordRun(ctx, history.Run{
		Category:        history.CategoryAirports,
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
		log.Printf("Recording run history: %v", err)
	}
}

func (s *Server) handleConvertOpenAir(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fc, err := openair.ToGeoJSON(string(body))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid OpenAir input: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleConvertGeoJSON(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := openair.FromGeoJSON(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid GeoJSON input: "+err.Error())
		return
	}
	writeText(w, http.StatusOK, text)
}

func (s *Server) handleConvertCoords(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "geojson":
		fc := geojson.NewFeatureCollection()
		for _, p := range coords.ExtractAll(string(body)) {
			fc.Append(geojson.NewFeature(p))
		}
		writeJSON(w, http.StatusOK, fc)
	case "openair":
		lines := coords.BatchCompactToOpenAir(string(body))
		writeText(w, http.StatusOK, strings.Join(lines, "\n"))
	default:
		writeError(w, http.StatusBadRequest, "Unknown format "+strconv.Quote(format))
	}
}

// Helper functions.

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.New("Reading request body: " + err.Error())
	}
	if len(body) == 0 {
		return nil, errors.New("Empty request body")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
