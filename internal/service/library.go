package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-overlay/internal/kml"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/store"
)

// LibraryConfig configures a Library.
type LibraryConfig struct {
	Loader *Loader
	Store  store.Store
	Prefs  *prefs.Store // optional
	Logger *slog.Logger
	// RestoreLimit bounds concurrent source restores. Defaults to
	// DefaultMaxConcurrentLoads.
	RestoreLimit int
}

// Library ties the local registry to the remote store: uploads persist
// before they register locally, stored files can be reopened, and stored
// feature rows are restored on startup.
type Library struct {
	loader *Loader
	store  store.Store
	prefs  *prefs.Store
	log    *slog.Logger
	limit  int
}

// NewLibrary creates a library.
func NewLibrary(cfg LibraryConfig) *Library {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RestoreLimit <= 0 {
		cfg.RestoreLimit = DefaultMaxConcurrentLoads
	}
	return &Library{
		loader: cfg.Loader,
		store:  cfg.Store,
		prefs:  cfg.Prefs,
		log:    cfg.Logger,
		limit:  cfg.RestoreLimit,
	}
}

// Upload validates and decodes a file, writes the raw file, its metadata
// and its feature rows to the store, then registers it locally. at is the
// uploader's location; when nil the first feature's position is recorded.
func (lb *Library) Upload(ctx context.Context, name string, data []byte, at *orb.Point) (*Source, store.FileRecord, error) {
	if err := kml.ValidateName(name); err != nil {
		return nil, store.FileRecord{}, err
	}
	// The name stays claimed from before the store write until the source is
	// registered, so a concurrent upload of it cannot overwrite the store.
	release, err := lb.loader.Reserve(name)
	if err != nil {
		return nil, store.FileRecord{}, err
	}
	defer release()

	c, err := lb.loader.Prepare(ctx, name, data)
	if err != nil {
		return nil, store.FileRecord{}, err
	}

	rec, err := lb.persist(ctx, name, data, c, at)
	if err != nil {
		metrics.LoadFailuresTotal.WithLabelValues("store").Inc()
		return nil, store.FileRecord{}, err
	}
	metrics.UploadsTotal.Inc()

	src, err := lb.loader.Register(ctx, name, c)
	if err != nil {
		return nil, rec, err
	}
	lb.touch(ctx, name)
	return src, rec, nil
}

func (lb *Library) persist(ctx context.Context, name string, data []byte, c Classified, at *orb.Point) (store.FileRecord, error) {
	rows, center, err := featureRows(name, c)
	if err != nil {
		return store.FileRecord{}, err
	}

	url, err := lb.store.Upload(ctx, name, data)
	if err != nil {
		return store.FileRecord{}, err
	}
	rec := store.FileRecord{
		Name:      name,
		URL:       url,
		CreatedAt: time.Now().UTC(),
		Size:      int64(len(data)),
		Type:      trimDot(kml.Ext(name)),
	}
	if at == nil {
		at = center
	}
	if at != nil {
		lat, lng := at.Lat(), at.Lon()
		rec.Lat, rec.Lng = &lat, &lng
	}
	if err := lb.store.UpsertMetadata(ctx, rec); err != nil {
		return store.FileRecord{}, err
	}
	if err := lb.store.ReplaceFeatureRows(ctx, name, rows); err != nil {
		return store.FileRecord{}, err
	}
	lb.log.Info("file stored", "source", name, "rows", len(rows), "bytes", len(data))
	return rec, nil
}

// featureRows flattens markers then lines into store rows and returns the
// position of the first feature.
func featureRows(name string, c Classified) ([]store.FeatureRow, *orb.Point, error) {
	rows := make([]store.FeatureRow, 0, len(c.Points)+len(c.Lines))
	var center *orb.Point
	for _, subset := range [][]*geojson.Feature{c.Points, c.Lines} {
		for _, f := range subset {
			at, ok := Representative(f.Geometry)
			if !ok {
				continue
			}
			row, err := store.NewRow(name, f, PropString(f, KeyName), PropString(f, KeyFeeder), at)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", name, err)
			}
			rows = append(rows, row)
			if center == nil {
				p := at
				center = &p
			}
		}
	}
	return rows, center, nil
}

// Open loads a stored file by name and marks it as recently used.
func (lb *Library) Open(ctx context.Context, name string) (*Source, error) {
	release, err := lb.loader.Reserve(name)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := lb.store.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err := lb.loader.Prepare(ctx, name, data)
	if err != nil {
		return nil, err
	}
	src, err := lb.loader.Register(ctx, name, c)
	if err != nil {
		return nil, err
	}
	lb.touch(ctx, name)
	return src, nil
}

// Restore registers every source stored as feature rows. A failing store
// is logged and leaves the registry empty; individual sources that fail
// are skipped. Returns the number of sources restored.
func (lb *Library) Restore(ctx context.Context) int {
	all, err := lb.store.ListAllFeatures(ctx)
	if err != nil {
		lb.log.Warn("restore skipped", "error", err)
		return 0
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	var restored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lb.limit)
	for _, name := range names {
		rows := all[name]
		g.Go(func() error {
			fc, err := store.Collection(rows, KeyName, KeyFeeder)
			if err != nil {
				lb.log.Warn("restore source failed", "source", name, "error", err)
				return nil
			}
			if _, err := lb.loader.LoadCollection(gctx, name, fc); err != nil {
				lb.log.Warn("restore source failed", "source", name, "error", err)
				return nil
			}
			restored.Add(1)
			return nil
		})
	}
	g.Wait()

	n := int(restored.Load())
	lb.log.Info("sources restored", "count", n, "stored", len(names))
	return n
}

// Files lists stored files, recently used first, then alphabetically.
func (lb *Library) Files(ctx context.Context) ([]store.FileRecord, error) {
	files, err := lb.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	if lb.prefs == nil {
		return files, nil
	}
	byName := make(map[string]store.FileRecord, len(files))
	names := make([]string, len(files))
	for i, f := range files {
		byName[f.Name] = f
		names[i] = f.Name
	}
	ordered := make([]store.FileRecord, 0, len(files))
	for _, name := range prefs.OrderByRecent(names, lb.prefs.Recent()) {
		ordered = append(ordered, byName[name])
	}
	return ordered, nil
}

// SearchRemote queries stored feature rows and converts them to search
// results without distances; rank them with SearchIndex.Rank.
func (lb *Library) SearchRemote(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	rows, err := lb.store.QueryFeatures(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		f, err := r.Feature(KeyName, KeyFeeder)
		if err != nil {
			lb.log.Debug("remote row skipped", "source", r.Source, "error", err)
			continue
		}
		results = append(results, SearchResult{Feature: f, Source: r.Source, Remote: true})
	}
	return results, nil
}

func (lb *Library) touch(ctx context.Context, name string) {
	if lb.prefs == nil {
		return
	}
	if err := lb.prefs.Touch(ctx, name); err != nil {
		lb.log.Warn("recent files not saved", "source", name, "error", err)
	}
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
