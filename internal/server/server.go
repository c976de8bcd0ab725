package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/api"
	"github.com/joeblew999/plat-overlay/internal/api/viewer"
	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/render"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Store and preference backends.
const (
	StoreNone   = "none"
	PrefsFile   = "file"
	PrefsRedis  = "redis"
	PrefsMemory = "memory"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string // optional web/ directory for static files and fragment overrides
	ConfigFile string // optional map configuration YAML

	Store string // db.DuckDB (default), db.Postgres or StoreNone
	PgDSN string

	Prefs         string // PrefsFile (default), PrefsRedis or PrefsMemory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Server is the overlay HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	store    store.Store
	loader   *service.Loader
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
	log      *slog.Logger
}

// New creates a new overlay server.
func New(cfg Config) (*Server, error) {
	log := logger.L()
	mapCfg, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-overlay API", "1.0.0")
	humaConfig.Info.Description = "Map overlay API for loading KML/KMZ files, grouping features, toggling layers and searching."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	renderer, err := templates.New(fragmentsDir(cfg.WebDir))
	if err != nil {
		return nil, fmt.Errorf("load fragment templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		bus:      service.NewEventBus(),
		renderer: renderer,
		log:      log,
	}
	s.openStore()
	s.services = s.newServices(mapCfg, s.openPrefs(mapCfg.DefaultStyle))

	s.routes()
	s.handler = logger.AccessMiddleware(log)(mux)
	return s, nil
}

func fragmentsDir(webDir string) string {
	if webDir == "" {
		return ""
	}
	dir := filepath.Join(webDir, "templates", "fragments")
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.html")); len(matches) > 0 {
		return dir
	}
	return ""
}

// openStore connects the remote store. A failing database logs a warning
// and leaves the server running without upload or remote search.
func (s *Server) openStore() {
	if s.config.Store == StoreNone {
		return
	}
	conn, err := db.Open(db.Config{
		Driver:  s.config.Store,
		DataDir: s.config.DataDir,
		DBName:  "overlay",
		DSN:     s.config.PgDSN,
	})
	if err != nil {
		s.log.Warn("store unavailable", "driver", s.config.Store, "error", err)
		return
	}
	blobs := store.NewBlobs(filepath.Join(s.config.DataDir, "files"), "/files/")
	st, err := store.NewSQLStore(context.Background(), conn, blobs, s.log)
	if err != nil {
		conn.Close()
		s.log.Warn("store unavailable", "driver", s.config.Store, "error", err)
		return
	}
	s.db = conn
	s.store = st
}

func (s *Server) openPrefs(defaultStyle string) *prefs.Store {
	var backend prefs.Backend
	switch s.config.Prefs {
	case PrefsRedis:
		rdb := prefs.OpenRedis(s.config.RedisAddr, s.config.RedisPassword, s.config.RedisDB)
		backend = prefs.NewRedisBackend(rdb, "", prefs.DefaultMaxAge)
	case PrefsMemory:
		backend = &prefs.MemoryBackend{}
	default:
		backend = prefs.NewFileBackend(s.config.DataDir, prefs.DefaultMaxAge)
	}
	return prefs.New(context.Background(), backend, prefs.DefaultPreferences(defaultStyle), s.log)
}

func (s *Server) newServices(mapCfg config.Map, p *prefs.Store) *api.Services {
	stored := p.Preferences()
	style := mapCfg.DefaultStyle
	if _, ok := mapCfg.Style(stored.CurrentStyle); ok {
		style = stored.CurrentStyle
	}

	center := orb.Point{mapCfg.View.Center[0], mapCfg.View.Center[1]}
	scene := render.NewScene(center, mapCfg.View.Zoom)
	scene.Notify = func(c render.Change) {
		s.bus.Publish(service.Event{Resource: "scene", Action: c.Action, ID: c.ID})
	}

	reg := service.NewRegistry(service.RegistryConfig{
		GroupKeys: mapCfg.GroupKeys,
		Colors:    service.NewColorTable(mapCfg.Palette),
		Adapter:   scene,
		Bus:       s.bus,
		Logger:    s.log,
		Style:     style,
	})
	vis := reg.Visibility()
	vis.Set(service.KindMarkers, stored.MarkersVisible)
	vis.Set(service.KindNames, stored.NamesVisible)
	vis.Set(service.KindLines, stored.LinesVisible)

	s.loader = service.NewLoader(service.LoaderConfig{
		Registry:      reg,
		MaxConcurrent: mapCfg.Loading.MaxConcurrent,
		QueueDelay:    mapCfg.Loading.QueueDelay,
		Logger:        s.log,
	})

	search := service.NewSearchIndex(reg, service.SearchConfig{
		DisplayField:   service.KeyName,
		SecondaryField: service.KeyFeeder,
		MinLength:      mapCfg.Search.MinLength,
		MaxResults:     mapCfg.Search.MaxResults,
	})
	svc := &api.Services{
		Registry: reg,
		Loader:   s.loader,
		Search:   search,
		Prefs:    p,
		Scene:    scene,
		Config:   mapCfg,
	}
	if s.store != nil {
		svc.Library = service.NewLibrary(service.LibraryConfig{
			Loader:       s.loader,
			Store:        s.store,
			Prefs:        p,
			Logger:       s.log,
			RestoreLimit: mapCfg.Loading.MaxConcurrent,
		})
	}
	return svc
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired services (CLI subcommands use them directly).
func (s *Server) Services() *api.Services {
	return s.services
}

// Restore registers every source held by the store. It is a no-op without
// a store.
func (s *Server) Restore(ctx context.Context) int {
	if s.services.Library == nil {
		return 0
	}
	return s.services.Library.Restore(ctx)
}

// Close stops the loader and closes the store.
func (s *Server) Close() error {
	s.loader.Close()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Server) storeName() string {
	if s.store == nil {
		return ""
	}
	if s.config.Store == "" {
		return db.DuckDB
	}
	return s.config.Store
}

func (s *Server) prefsName() string {
	if s.config.Prefs == "" {
		return PrefsFile
	}
	return s.config.Prefs
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.storeName(), s.prefsName()).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Register viewer SSE routes using Huma + Datastar SDK
	viewer.New(viewer.Config{
		Registry: s.services.Registry,
		Search:   s.services.Search,
		Bus:      s.bus,
		Scene:    s.services.Scene,
		Prefs:    s.services.Prefs,
		Renderer: s.renderer,
	}).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", metrics.Handler())

	// Uploaded files
	if st, ok := s.store.(*store.SQLStore); ok {
		s.mux.Handle("/files/", http.StripPrefix("/files/", cors(http.FileServer(http.Dir(st.Blobs().Dir())))))
	}

	// Static files and viewer page
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/viewer", s.handleViewer)
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "plat-overlay",
		"status":  "running",
		"sources": s.services.Registry.Len(),
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.config.WebDir, "templates", "viewer.html"))
}

// cors lets the browser map fetch overlay files from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
