package api

import (
	"context"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/service"
)

// Search modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeBoth   = "both"
)

type SearchInput struct {
	Q     string  `query:"q" required:"true" doc:"Search term" example:"chave"`
	Lon   float64 `query:"lon" doc:"Reference longitude; defaults to the last known location"`
	Lat   float64 `query:"lat" doc:"Reference latitude; defaults to the last known location"`
	Limit int     `query:"limit" minimum:"0" maximum:"100" doc:"Maximum results; 0 uses the configured limit"`
	Mode  string  `query:"mode" enum:"local,remote,both" default:"local" doc:"Search loaded sources, stored features or both"`
}

type SearchBody struct {
	Term    string                 `json:"term" doc:"Normalized search term"`
	Mode    string                 `json:"mode" doc:"Search mode"`
	From    orb.Point              `json:"from" doc:"Reference point [lon, lat]"`
	Results []service.SearchResult `json:"results" doc:"Nearest matches first"`
}

// RegisterSearch registers search routes.
func (h *APIHandler) RegisterSearch(api huma.API) {
	huma.Get(api, "/api/v1/search", h.Search, huma.OperationTags("search"))
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*struct{ Body SearchBody }, error) {
	start := time.Now()
	mode := input.Mode
	if mode == "" {
		mode = ModeLocal
	}
	term := strings.TrimSpace(input.Q)
	limit := input.Limit
	if limit <= 0 {
		limit = h.svc.Search.MaxResults()
	}
	ref := h.reference(input.Lon, input.Lat)

	body := SearchBody{Term: strings.ToLower(term), Mode: mode, From: ref, Results: []service.SearchResult{}}
	if !h.svc.Search.Searchable(term) {
		return &struct{ Body SearchBody }{Body: body}, nil
	}

	var local, remote []service.SearchResult
	if mode == ModeLocal || mode == ModeBoth {
		local = h.svc.Search.Search(term, ref, limit)
	}
	if mode == ModeRemote || mode == ModeBoth {
		if h.svc.Library == nil {
			return nil, huma.Error503ServiceUnavailable("store not available")
		}
		hits, err := h.svc.Library.SearchRemote(ctx, term, limit)
		if err != nil {
			return nil, apiError(err)
		}
		remote = hits
	}

	switch mode {
	case ModeLocal:
		body.Results = local
	case ModeRemote:
		body.Results = h.svc.Search.Rank(remote, ref, limit)
	default:
		body.Results = h.svc.Search.MergeResults(local, remote, ref, limit)
	}

	metrics.SearchesTotal.WithLabelValues(mode).Inc()
	metrics.SearchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	return &struct{ Body SearchBody }{Body: body}, nil
}

// reference treats a zero lon/lat pair as absent.
func (h *APIHandler) reference(lon, lat float64) orb.Point {
	var explicit *orb.Point
	if lon != 0 || lat != 0 {
		explicit = &orb.Point{lon, lat}
	}
	return service.ReferencePoint(explicit, h.svc.Prefs, h.svc.Scene.Camera().Center)
}
