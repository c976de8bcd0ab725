package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	store   string
	prefs   string
}

func NewInfoHandler(dataDir, store, prefs string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: store, prefs: prefs}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Store    string   `json:"store" doc:"Remote store backend, empty when disabled" example:"duckdb"`
	Prefs    string   `json:"prefs" doc:"Preferences backend" example:"file"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"kml", "kmz", "geojson", "groups", "search"}
	if h.store != "" {
		features = append(features, "upload", "remote-search")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-overlay",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		Store:    h.store,
		Prefs:    h.prefs,
		Features: features,
	}}, nil
}
