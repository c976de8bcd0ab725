// Package store persists uploaded overlay files and their flattened feature
// rows so they can be searched remotely and restored on startup.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature row kinds.
const (
	KindMarker = "marker"
	KindLine   = "line"
)

// BatchSize is the number of feature rows inserted per statement.
const BatchSize = 100

// Store is the remote side of the overlay viewer.
type Store interface {
	// Upload writes the raw file and returns its public URL.
	Upload(ctx context.Context, name string, data []byte) (string, error)
	// Fetch reads back a previously uploaded file.
	Fetch(ctx context.Context, name string) ([]byte, error)
	UpsertMetadata(ctx context.Context, rec FileRecord) error
	// ReplaceFeatureRows deletes every row of source, then inserts rows in
	// batches of BatchSize. Earlier batches are not rolled back when a later
	// one fails.
	ReplaceFeatureRows(ctx context.Context, source string, rows []FeatureRow) error
	QueryFeatures(ctx context.Context, term string, limit int) ([]FeatureRow, error)
	ListAllFeatures(ctx context.Context) (map[string][]FeatureRow, error)
	ListFiles(ctx context.Context) ([]FileRecord, error)
	Close() error
}

// FileRecord is the metadata row of one uploaded file.
type FileRecord struct {
	ID        string    `json:"id" doc:"Record ID"`
	Name      string    `json:"name" doc:"File name, unique"`
	URL       string    `json:"url" doc:"Public URL of the raw file"`
	Lat       *float64  `json:"lat,omitempty" doc:"Latitude of the file's first feature"`
	Lng       *float64  `json:"lng,omitempty" doc:"Longitude of the file's first feature"`
	CreatedAt time.Time `json:"created_at" doc:"Upload time"`
	Size      int64     `json:"size" doc:"File size in bytes"`
	Type      string    `json:"type" doc:"Lowercase file extension" example:"kmz"`
}

// FeatureRow is one flattened feature of an uploaded file.
type FeatureRow struct {
	Source   string  `json:"source" doc:"File the feature came from"`
	Kind     string  `json:"kind" doc:"marker or line" enum:"marker,line"`
	Name     string  `json:"name" doc:"Feature name"`
	Feeder   string  `json:"feeder" doc:"Feeder (Alimentador) value"`
	Lat      float64 `json:"lat" doc:"Representative latitude"`
	Lng      float64 `json:"lng" doc:"Representative longitude"`
	Geometry string  `json:"geometry" doc:"GeoJSON geometry"`
}

// RemoteError wraps a failed backend operation.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *RemoteError) Unwrap() error { return e.Err }

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// NewRow flattens a feature into a row. name and feeder are read by the
// caller so the row stays independent of the grouping keys in use.
func NewRow(source string, f *geojson.Feature, name, feeder string, at orb.Point) (FeatureRow, error) {
	if f == nil || f.Geometry == nil {
		return FeatureRow{}, fmt.Errorf("feature has no geometry")
	}
	geom, err := json.Marshal(geojson.NewGeometry(f.Geometry))
	if err != nil {
		return FeatureRow{}, err
	}
	kind := KindLine
	if _, ok := f.Geometry.(orb.Point); ok {
		kind = KindMarker
	}
	return FeatureRow{
		Source:   source,
		Kind:     kind,
		Name:     name,
		Feeder:   feeder,
		Lat:      at.Lat(),
		Lng:      at.Lon(),
		Geometry: string(geom),
	}, nil
}

// Feature rebuilds the feature a row was flattened from. Properties carry
// the name and feeder under the given keys. Rows without stored geometry
// fall back to a point at Lng/Lat.
func (r FeatureRow) Feature(nameKey, feederKey string) (*geojson.Feature, error) {
	var geom orb.Geometry = orb.Point{r.Lng, r.Lat}
	if r.Geometry != "" {
		g, err := geojson.UnmarshalGeometry([]byte(r.Geometry))
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", r.Name, err)
		}
		geom = g.Geometry()
	}
	f := geojson.NewFeature(geom)
	if r.Name != "" {
		f.Properties[nameKey] = r.Name
	}
	if r.Feeder != "" {
		f.Properties[feederKey] = r.Feeder
	}
	return f, nil
}

// Collection rebuilds a feature collection from rows.
func Collection(rows []FeatureRow, nameKey, feederKey string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		f, err := r.Feature(nameKey, feederKey)
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, nil
}
