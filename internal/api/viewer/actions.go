package viewer

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/service"
)

// Groups applies a group checkbox or an all/none button.
//
// Signals: source (source id, empty for every source), group, selected, all.
func (h *Handler) Groups(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("source")
	group := signals.String("group")
	if group == "" && !signals.Has("all") {
		return nil, huma.Error400BadRequest("group or all is required")
	}
	if group != "" && id == "" {
		return nil, huma.Error400BadRequest("source is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		if err := h.applyGroups(id, group, signals); err != nil {
			sse.Error(err.Error())
			return
		}
		if id == "" {
			sse.Patch(h.renderSources(), SourcesSelector)
			return
		}
		src, err := h.registry.GetByID(id)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		html, err := h.Renderer.Render("source-groups", h.card(src))
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Replace(html, "#source-"+id)
	}), nil
}

func (h *Handler) applyGroups(id, group string, signals humastar.Signals) error {
	all := signals.Bool("all")
	if id == "" {
		if all {
			h.registry.SelectAllGroupsAll()
		} else {
			h.registry.DeselectAllGroupsAll()
		}
		return nil
	}
	src, err := h.registry.GetByID(id)
	if err != nil {
		return err
	}
	switch {
	case group != "":
		return h.registry.SetGroupSelected(src.Name, group, signals.Bool("selected"))
	case all:
		return h.registry.SelectAllGroups(src.Name)
	default:
		return h.registry.DeselectAllGroups(src.Name)
	}
}

// Toggle flips one of the global layer toggles. Signals: kind.
func (h *Handler) Toggle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	kind := signals.String("kind")
	switch kind {
	case service.KindMarkers, service.KindNames, service.KindLines:
	default:
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown layer kind %q", kind))
	}

	return h.Stream(func(sse humastar.SSE) {
		vis := h.registry.Visibility()
		vis.Toggle(kind)
		state := vis.State()
		if h.prefs != nil {
			h.prefs.UpdatePreferences(ctx, func(p *prefs.Preferences) {
				p.MarkersVisible, p.NamesVisible, p.LinesVisible = state.Markers, state.Names, state.Lines
			})
		}
		sse.Signals(map[string]any{
			"markers": state.Markers,
			"names":   state.Names,
			"lines":   state.Lines,
		})
	}), nil
}

// Search renders the nearest local matches. Signals: query, lon, lat.
func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	term := signals.String("query")
	var explicit *orb.Point
	if signals.Has("lon") && signals.Has("lat") {
		explicit = &orb.Point{signals.Float("lon"), signals.Float("lat")}
	}
	ref := service.ReferencePoint(explicit, h.prefs, h.scene.Camera().Center)

	return h.Stream(func(sse humastar.SSE) {
		results := h.search.Search(term, ref, 0)
		html, err := h.Renderer.Render("search-results", results)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(html, ResultsSelector)
		sse.Signals(map[string]any{"resultCount": len(results)})
	}), nil
}
