// Package config loads the map configuration: basemap styles, initial view,
// group palette and keys, search limits and load concurrency.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Style is a named basemap style.
type Style struct {
	Name string `yaml:"name" json:"name" doc:"Style name" example:"Voyager"`
	URL  string `yaml:"url" json:"url" doc:"MapLibre style URL"`
}

// View is the initial camera.
type View struct {
	Center  [2]float64 `yaml:"center" json:"center" doc:"Initial center [lon, lat]"`
	Zoom    float64    `yaml:"zoom" json:"zoom" doc:"Initial zoom"`
	MinZoom float64    `yaml:"min_zoom" json:"min_zoom" doc:"Minimum zoom"`
	MaxZoom float64    `yaml:"max_zoom" json:"max_zoom" doc:"Maximum zoom"`
}

// Search holds search limits.
type Search struct {
	MaxResults int `yaml:"max_results"`
	MinLength  int `yaml:"min_length"`
}

// Loading holds loader limits.
type Loading struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	QueueDelay    time.Duration `yaml:"queue_delay"`
}

// Map is the full map configuration.
type Map struct {
	Styles       []Style  `yaml:"styles"`
	DefaultStyle string   `yaml:"default_style"`
	View         View     `yaml:"view"`
	GroupKeys    []string `yaml:"group_keys"`
	Palette      []string `yaml:"palette"`
	Search       Search   `yaml:"search"`
	Loading      Loading  `yaml:"loading"`
}

// Default returns the built-in configuration.
func Default() Map {
	return Map{
		Styles: []Style{
			{Name: "Positron", URL: "https://basemaps.cartocdn.com/gl/positron-gl-style/style.json"},
			{Name: "Dark Matter", URL: "https://basemaps.cartocdn.com/gl/dark-matter-gl-style/style.json"},
			{Name: "Voyager", URL: "https://basemaps.cartocdn.com/gl/voyager-gl-style/style.json"},
		},
		DefaultStyle: "Voyager",
		View: View{
			Center:  [2]float64{-47.068847, -22.934973},
			Zoom:    11,
			MinZoom: 4,
			MaxZoom: 18,
		},
		GroupKeys: []string{"Alimentador", "name"},
		Search:    Search{MaxResults: 10, MinLength: 2},
		Loading:   Loading{MaxConcurrent: 3, QueueDelay: 100 * time.Millisecond},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Map, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, fmt.Errorf("read map config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Map{}, fmt.Errorf("parse map config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Map{}, fmt.Errorf("map config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the default style exists and limits are positive.
func (m Map) Validate() error {
	if len(m.Styles) == 0 {
		return fmt.Errorf("no styles configured")
	}
	if _, ok := m.Style(m.DefaultStyle); !ok {
		return fmt.Errorf("default style %q not in styles", m.DefaultStyle)
	}
	if len(m.GroupKeys) == 0 {
		return fmt.Errorf("no group keys configured")
	}
	if m.Search.MaxResults <= 0 || m.Search.MinLength <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if m.Loading.MaxConcurrent <= 0 {
		return fmt.Errorf("loading.max_concurrent must be positive")
	}
	return nil
}

// Style returns the style with the given name.
func (m Map) Style(name string) (Style, bool) {
	for _, s := range m.Styles {
		if s.Name == name {
			return s, true
		}
	}
	return Style{}, false
}
