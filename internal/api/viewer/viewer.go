// Package viewer contains Datastar SSE handlers for the map viewer UI.
package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/render"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Selectors patched by the viewer handlers.
const (
	SourcesSelector = "#sources"
	ResultsSelector = "#search-results"
)

// Handler streams engine state to the viewer and applies its toggles.
type Handler struct {
	humastar.Handler
	registry *service.Registry
	search   *service.SearchIndex
	bus      *service.EventBus
	scene    *render.Scene
	prefs    *prefs.Store // optional
}

// Config holds the viewer handler dependencies.
type Config struct {
	Registry *service.Registry
	Search   *service.SearchIndex
	Bus      *service.EventBus
	Scene    *render.Scene
	Prefs    *prefs.Store
	Renderer *templates.Renderer
}

func New(cfg Config) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: cfg.Renderer},
		registry: cfg.Registry,
		search:   cfg.Search,
		bus:      cfg.Bus,
		scene:    cfg.Scene,
		prefs:    cfg.Prefs,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/groups", h.Groups, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/toggle", h.Toggle, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/search", h.Search, huma.OperationTags("viewer"))
}

// Events pushes the current state, then re-pushes on every engine event
// until the client disconnects.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			sse.Signals(h.state())
			sse.Patch(h.renderSources(), SourcesSelector)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					switch ev.Resource {
					case "sources", "groups", "style":
						sse.Patch(h.renderSources(), SourcesSelector)
					}
					sse.Signals(h.state())
					sse.DispatchCustomEvent("overlay-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}

// state is the flat signal set the viewer binds to.
func (h *Handler) state() map[string]any {
	vis := h.registry.Visibility().State()
	cam := h.scene.Camera()
	return map[string]any{
		"markers":     vis.Markers,
		"names":       vis.Names,
		"lines":       vis.Lines,
		"style":       h.registry.Style(),
		"sourceCount": h.registry.Len(),
		"center":      []float64{cam.Center.Lon(), cam.Center.Lat()},
		"zoom":        cam.Zoom,
	}
}

type groupItem struct {
	Name     string
	Color    string
	Selected bool
}

type sourceCard struct {
	ID        string
	Name      string
	Attribute string
	Groups    []groupItem
	Selected  int
	Total     int
}

func (h *Handler) card(src *service.Source) sourceCard {
	c := sourceCard{
		ID:        src.ID,
		Name:      src.Name,
		Attribute: src.GroupingAttribute,
		Selected:  src.SelectedCount(),
		Total:     len(src.Groups),
	}
	for _, g := range src.Groups {
		color, _ := h.registry.Colors().Lookup(g)
		c.Groups = append(c.Groups, groupItem{Name: g, Color: color, Selected: src.IsSelected(g)})
	}
	return c
}

func (h *Handler) renderSources() string {
	sources := h.registry.List()
	items := make([]any, len(sources))
	for i, src := range sources {
		items[i] = h.card(src)
	}
	return h.RenderList("source-groups", items, "No files loaded", "Upload or open a KML file to get started")
}
