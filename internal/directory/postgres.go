package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
)

// PostgresConfig holds the connection parameters for a directory schema in
// Postgres/PostGIS.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Postgres is a Directory backed by a local airports table with a
// geography location column.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the directory database and verifies the
// connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const airportColumns = `id, name, COALESCE(code, ''), country,
	ST_X(location::geometry), ST_Y(location::geometry),
	elev, style, apt_type,
	COALESCE(rw_dir, 0), COALESCE(rw_len, 0), COALESCE(rw_width, 0),
	COALESCE(freq, ''), source_id`

const nearestQuery = `
SELECT ` + airportColumns + `,
	ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
FROM airports
WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
ORDER BY distance
LIMIT 1`

// NearestBulk implements Directory. Each point is answered with its
// closest airport within the threshold; any row failure fails the whole
// call.
func (p *Postgres) NearestBulk(ctx context.Context, points []orb.Point, thresholdMeters float64) ([]Match, error) {
	matches := make([]Match, len(points))
	for i, pt := range points {
		rows, err := p.pool.Query(ctx, nearestQuery, pt[0], pt[1], thresholdMeters)
		if err != nil {
			return nil, &QueryError{Op: "nearest", Err: err}
		}
		if rows.Next() {
			var apt Airport
			var aptType int
			var distance float64
			err = rows.Scan(
				&apt.ID, &apt.Name, &apt.Code, &apt.Country,
				&apt.Location[0], &apt.Location[1],
				&apt.ElevMeters, &apt.Style, &aptType,
				&apt.RwDir, &apt.RwLenMeters, &apt.RwWidthMeters,
				&apt.Frequency, &apt.SourceID, &distance,
			)
			if err != nil {
				rows.Close()
				return nil, &QueryError{Op: "nearest", Err: err}
			}
			apt.Type = AirportType(aptType)
			matches[i] = Match{Airport: &apt, DistanceMeters: distance}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, &QueryError{Op: "nearest", Err: err}
		}
	}
	return matches, nil
}

const bboxQuery = `
SELECT ` + airportColumns + `
FROM airports
WHERE location::geometry && ST_MakeEnvelope($1, $2, $3, $4, 4326)
	AND NOT (source_id = ANY($5))
	AND NOT (apt_type = ANY($6))
ORDER BY id`

// InBoundingBox implements Directory.
func (p *Postgres) InBoundingBox(ctx context.Context, bound orb.Bound, excludeSourceIDs []string, excludeTypes []AirportType) ([]*Airport, error) {
	if excludeSourceIDs == nil {
		excludeSourceIDs = []string{}
	}
	typeCodes := make([]int, 0, len(excludeTypes))
	for _, t := range excludeTypes {
		typeCodes = append(typeCodes, int(t))
	}

	rows, err := p.pool.Query(ctx, bboxQuery,
		bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1],
		excludeSourceIDs, typeCodes)
	if err != nil {
		return nil, &QueryError{Op: "bbox", Err: err}
	}
	defer rows.Close()

	var airports []*Airport
	for rows.Next() {
		var apt Airport
		var aptType int
		err = rows.Scan(
			&apt.ID, &apt.Name, &apt.Code, &apt.Country,
			&apt.Location[0], &apt.Location[1],
			&apt.ElevMeters, &apt.Style, &aptType,
			&apt.RwDir, &apt.RwLenMeters, &apt.RwWidthMeters,
			&apt.Frequency, &apt.SourceID,
		)
		if err != nil {
			return nil, &QueryError{Op: "bbox", Err: err}
		}
		apt.Type = AirportType(aptType)
		airports = append(airports, &apt)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "bbox", Err: err}
	}
	return airports, nil
}
