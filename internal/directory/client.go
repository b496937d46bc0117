package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Client talks to a hosted directory over its HTTP RPC endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// airportRecord is the wire shape shared by both RPC responses. A null id
// marks a point with no airport in range.
type airportRecord struct {
	PointIndex int      `json:"point_index,omitempty"`
	ID         *int64   `json:"id"`
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	Country    string   `json:"country"`
	Lon        float64  `json:"lon"`
	Lat        float64  `json:"lat"`
	Elev       float64  `json:"elev"`
	Style      int      `json:"style"`
	AptType    *int     `json:"apt_type"`
	RwDir      int      `json:"rw_dir"`
	RwLen      float64  `json:"rw_len"`
	RwWidth    float64  `json:"rw_width"`
	Freq       string   `json:"freq"`
	SourceID   string   `json:"source_id"`
	Distance   *float64 `json:"distance"`
}

func (r *airportRecord) airport() *Airport {
	apt := &Airport{
		Name:          r.Name,
		Code:          r.Code,
		Country:       r.Country,
		Location:      orb.Point{r.Lon, r.Lat},
		ElevMeters:    r.Elev,
		Style:         r.Style,
		Type:          TypeUnknown,
		RwDir:         r.RwDir,
		RwLenMeters:   r.RwLen,
		RwWidthMeters: r.RwWidth,
		Frequency:     r.Freq,
		SourceID:      r.SourceID,
	}
	if r.ID != nil {
		apt.ID = *r.ID
	}
	if r.AptType != nil {
		apt.Type = AirportType(*r.AptType)
	}
	return apt
}

type wirePoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// rpc posts a JSON payload to an RPC endpoint and decodes the response.
func (c *Client) rpc(ctx context.Context, name string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &QueryError{Op: name, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+name, bytes.NewReader(body))
	if err != nil {
		return &QueryError{Op: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &QueryError{Op: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &QueryError{Op: name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &QueryError{Op: name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// NearestBulk implements Directory over the get_nearby_airports_bulk RPC.
// The response aligns with the request through 1-based point indices.
func (c *Client) NearestBulk(ctx context.Context, points []orb.Point, thresholdMeters float64) ([]Match, error) {
	wire := make([]wirePoint, len(points))
	for i, p := range points {
		wire[i] = wirePoint{Lon: p[0], Lat: p[1]}
	}
	payload := map[string]interface{}{
		"points":    wire,
		"threshold": thresholdMeters,
	}

	var records []airportRecord
	if err := c.rpc(ctx, "get_nearby_airports_bulk", payload, &records); err != nil {
		return nil, err
	}

	matches := make([]Match, len(points))
	for i := range records {
		r := &records[i]
		idx := r.PointIndex - 1
		if idx < 0 || idx >= len(matches) {
			return nil, &QueryError{Op: "get_nearby_airports_bulk", Err: fmt.Errorf("point_index %d out of range", r.PointIndex)}
		}
		if r.ID == nil || r.Distance == nil {
			continue
		}
		matches[idx] = Match{Airport: r.airport(), DistanceMeters: *r.Distance}
	}
	return matches, nil
}

// InBoundingBox implements Directory over the get_airports_in_bbox RPC.
func (c *Client) InBoundingBox(ctx context.Context, bound orb.Bound, excludeSourceIDs []string, excludeTypes []AirportType) ([]*Airport, error) {
	payload := map[string]interface{}{
		"min_lon": bound.Min[0],
		"min_lat": bound.Min[1],
		"max_lon": bound.Max[0],
		"max_lat": bound.Max[1],
	}
	if len(excludeSourceIDs) > 0 {
		payload["exclude_ids"] = excludeSourceIDs
	}
	if len(excludeTypes) > 0 {
		payload["exclude_apt_types"] = excludeTypes
	}

	var records []airportRecord
	if err := c.rpc(ctx, "get_airports_in_bbox", payload, &records); err != nil {
		return nil, err
	}
	airports := make([]*Airport, 0, len(records))
	for i := range records {
		airports = append(airports, records[i].airport())
	}
	return airports, nil
}
