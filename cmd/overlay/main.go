package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/server"
)

// Options defines all CLI flags and env vars for the overlay server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --store, --pg-dsn,
// --prefs, --redis-addr, --redis-password, --redis-db
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir       string `doc:"Directory for the store, uploaded files and preferences" default:".data"`
	WebDir        string `doc:"Optional web/ directory for static files and fragment overrides" default:""`
	Config        string `doc:"Map configuration YAML (styles, view, palette)" default:""`
	Store         string `doc:"Remote store: duckdb, postgres or none" default:"duckdb"`
	PgDSN         string `doc:"PostgreSQL DSN; empty reads PG_* env vars" default:""`
	Prefs         string `doc:"Preferences backend: file, redis or memory" default:"file"`
	RedisAddr     string `doc:"Redis address for the redis preferences backend" default:"localhost:6379"`
	RedisPassword string `doc:"Redis password" default:""`
	RedisDB       int    `doc:"Redis database" default:"0"`
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(server.Config{
		Host:          opts.Host,
		Port:          fmt.Sprintf("%d", opts.Port),
		DataDir:       opts.DataDir,
		WebDir:        opts.WebDir,
		ConfigFile:    opts.Config,
		Store:         opts.Store,
		PgDSN:         opts.PgDSN,
		Prefs:         opts.Prefs,
		RedisAddr:     opts.RedisAddr,
		RedisPassword: opts.RedisPassword,
		RedisDB:       opts.RedisDB,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	_ = godotenv.Load(".env")
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv := newServer(opts)

		hooks.OnStart(func() {
			restored := srv.Restore(context.Background())

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-overlay API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s (store: %s, prefs: %s)\n", opts.DataDir, opts.Store, opts.Prefs)
			fmt.Printf("  Sources: %d restored\n", restored)
			fmt.Println()
			fmt.Printf("  Events:  %s/api/v1/viewer/events\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			srv.Close()
		})
	})

	cli.Root().Use = "overlay"
	cli.Root().Short = "Map overlay viewer: KML/KMZ layers, feeder groups and search"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.Store = server.StoreNone
			opts.Prefs = server.PrefsMemory
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// import subcommand: decode and store overlay files
	importCmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Decode KML/KMZ/GeoJSON files and write them to the store",
		Args:  cobra.MinimumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			lib := srv.Services().Library
			if lib == nil {
				fmt.Fprintln(os.Stderr, "Error: store not available")
				os.Exit(1)
			}

			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
					failed++
					continue
				}
				src, rec, err := lib.Upload(cmd.Context(), filepath.Base(path), data, nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Printf("  %s: %d points, %d lines, %d groups -> %s\n",
					src.Name, src.Points, src.Lines, len(src.Groups), rec.URL)
			}
			if failed > 0 {
				os.Exit(1)
			}
		}),
	}
	cli.Root().AddCommand(importCmd)

	// search subcommand: search stored features without starting the server
	searchCmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search stored features by name or feeder, nearest first",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			svc := srv.Services()
			if svc.Library == nil {
				fmt.Fprintln(os.Stderr, "Error: store not available")
				os.Exit(1)
			}

			lon, _ := cmd.Flags().GetFloat64("lon")
			lat, _ := cmd.Flags().GetFloat64("lat")
			limit, _ := cmd.Flags().GetInt("limit")
			ref := orb.Point{lon, lat}
			if lon == 0 && lat == 0 {
				ref = srv.Services().Scene.Camera().Center
			}

			hits, err := svc.Library.SearchRemote(cmd.Context(), args[0], limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			for _, r := range svc.Search.Rank(hits, ref, limit) {
				fmt.Printf("%8.0f m  %-30s  %s\n", r.Distance, r.Display, r.Source)
			}
		}),
	}
	searchCmd.Flags().Float64("lon", 0, "Reference longitude (default: configured map center)")
	searchCmd.Flags().Float64("lat", 0, "Reference latitude (default: configured map center)")
	searchCmd.Flags().Int("limit", 10, "Maximum results")
	cli.Root().AddCommand(searchCmd)

	cli.Run()
}
