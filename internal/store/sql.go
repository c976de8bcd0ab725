package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS overlay_files (
		id TEXT NOT NULL,
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		created_at TIMESTAMP NOT NULL,
		size BIGINT NOT NULL,
		type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS overlay_features (
		source TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		feeder TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		geometry TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_overlay_features_source ON overlay_features(source)`,
}

// SQLStore keeps metadata and feature rows in a SQL database (DuckDB or
// PostgreSQL) and raw files in a Blobs directory.
type SQLStore struct {
	db    *sql.DB
	blobs *Blobs
	log   *slog.Logger
}

// NewSQLStore wraps an open connection and creates the schema if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, blobs *Blobs, log *slog.Logger) (*SQLStore, error) {
	if log == nil {
		log = slog.Default()
	}
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, remote("schema", fmt.Errorf("statement %d: %w", i, err))
		}
	}
	log.Debug("store schema ready")
	return &SQLStore{db: db, blobs: blobs, log: log}, nil
}

// DB returns the underlying connection.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Blobs returns the raw file storage.
func (s *SQLStore) Blobs() *Blobs { return s.blobs }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	url, err := s.blobs.Put(name, data)
	return url, remote("upload", err)
}

func (s *SQLStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, err := s.blobs.Get(name)
	return data, remote("fetch", err)
}

// UpsertMetadata inserts the record or replaces the one with the same name.
func (s *SQLStore) UpsertMetadata(ctx context.Context, rec FileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overlay_files(id, name, url, lat, lng, created_at, size, type)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO UPDATE SET
		   url = EXCLUDED.url, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
		   created_at = EXCLUDED.created_at, size = EXCLUDED.size, type = EXCLUDED.type`,
		rec.ID, rec.Name, rec.URL, nullFloat(rec.Lat), nullFloat(rec.Lng), rec.CreatedAt, rec.Size, rec.Type,
	)
	return remote("upsert metadata", err)
}

func (s *SQLStore) ReplaceFeatureRows(ctx context.Context, source string, rows []FeatureRow) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM overlay_features WHERE source = $1`, source); err != nil {
		return remote("delete features", err)
	}
	for start := 0; start < len(rows); start += BatchSize {
		end := min(start+BatchSize, len(rows))
		if err := s.insertBatch(ctx, source, start, rows[start:end]); err != nil {
			s.log.Warn("feature batch failed", "source", source, "offset", start, "error", err)
			return remote("insert features", err)
		}
	}
	s.log.Debug("feature rows replaced", "source", source, "rows", len(rows))
	return nil
}

func (s *SQLStore) insertBatch(ctx context.Context, source string, offset int, batch []FeatureRow) error {
	const cols = 8
	var b strings.Builder
	b.WriteString(`INSERT INTO overlay_features(source, seq, kind, name, feeder, lat, lng, geometry) VALUES `)
	args := make([]any, 0, len(batch)*cols)
	for i, r := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c+1)
		}
		b.WriteString(")")
		args = append(args, source, offset+i, r.Kind, r.Name, r.Feeder, r.Lat, r.Lng, r.Geometry)
	}
	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

// QueryFeatures matches term case-insensitively against name and feeder.
func (s *SQLStore) QueryFeatures(ctx context.Context, term string, limit int) ([]FeatureRow, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, kind, name, feeder, lat, lng, geometry FROM overlay_features
		 WHERE name ILIKE $1 ESCAPE '\' OR feeder ILIKE $1 ESCAPE '\'
		 ORDER BY source, seq LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, remote("query features", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	return result, remote("query features", err)
}

// ListAllFeatures returns every stored row grouped by source, in upload order
// within each source.
func (s *SQLStore) ListAllFeatures(ctx context.Context) (map[string][]FeatureRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, kind, name, feeder, lat, lng, geometry FROM overlay_features ORDER BY source, seq`)
	if err != nil {
		return nil, remote("list features", err)
	}
	defer rows.Close()

	all, err := scanRows(rows)
	if err != nil {
		return nil, remote("list features", err)
	}
	grouped := make(map[string][]FeatureRow)
	for _, r := range all {
		grouped[r.Source] = append(grouped[r.Source], r)
	}
	return grouped, nil
}

// ListFiles returns file records ordered by name.
func (s *SQLStore) ListFiles(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, lat, lng, created_at, size, type FROM overlay_files ORDER BY name`)
	if err != nil {
		return nil, remote("list files", err)
	}
	defer rows.Close()

	files := []FileRecord{}
	for rows.Next() {
		var rec FileRecord
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.URL, &lat, &lng, &rec.CreatedAt, &rec.Size, &rec.Type); err != nil {
			return nil, remote("list files", err)
		}
		if lat.Valid {
			rec.Lat = &lat.Float64
		}
		if lng.Valid {
			rec.Lng = &lng.Float64
		}
		files = append(files, rec)
	}
	return files, remote("list files", rows.Err())
}

func scanRows(rows *sql.Rows) ([]FeatureRow, error) {
	result := []FeatureRow{}
	for rows.Next() {
		var r FeatureRow
		if err := rows.Scan(&r.Source, &r.Kind, &r.Name, &r.Feeder, &r.Lat, &r.Lng, &r.Geometry); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var _ Store = (*SQLStore)(nil)
