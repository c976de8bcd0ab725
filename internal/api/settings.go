package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
)

type VisibilityOutput struct {
	Body service.VisibilityState
}

type KindInput struct {
	Kind string `path:"kind" enum:"markers,names,lines" doc:"Layer kind"`
}

type StylesBody struct {
	Current string         `json:"current" doc:"Current style name"`
	Styles  []config.Style `json:"styles" doc:"Available basemap styles"`
}

type StyleInput struct {
	Body struct {
		Name string `json:"name" required:"true" doc:"Style name" example:"Dark Matter"`
	}
}

type FilesOutput struct {
	Body []store.FileRecord
}

type PrefsOutput struct {
	Body prefs.State
}

type LocationInput struct {
	Body prefs.Location
}

// RegisterVisibility registers the global layer toggles.
func (h *APIHandler) RegisterVisibility(api huma.API) {
	huma.Get(api, "/api/v1/visibility", h.GetVisibility, huma.OperationTags("visibility"))
	huma.Post(api, "/api/v1/visibility/{kind}/toggle", h.ToggleVisibility, huma.OperationTags("visibility"))
}

// RegisterStyles registers basemap style routes.
func (h *APIHandler) RegisterStyles(api huma.API) {
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("styles"))
	huma.Put(api, "/api/v1/styles/current", h.PutStyle, huma.OperationTags("styles"))
}

// RegisterFiles registers stored file routes.
func (h *APIHandler) RegisterFiles(api huma.API) {
	huma.Get(api, "/api/v1/files", h.ListFiles, huma.OperationTags("files"))
}

// RegisterPrefs registers preference routes.
func (h *APIHandler) RegisterPrefs(api huma.API) {
	huma.Get(api, "/api/v1/prefs", h.GetPrefs, huma.OperationTags("prefs"))
	huma.Put(api, "/api/v1/prefs/location", h.PutLocation, huma.OperationTags("prefs"))
}

func (h *APIHandler) GetVisibility(ctx context.Context, input *struct{}) (*VisibilityOutput, error) {
	return &VisibilityOutput{Body: h.svc.Registry.Visibility().State()}, nil
}

func (h *APIHandler) ToggleVisibility(ctx context.Context, input *KindInput) (*VisibilityOutput, error) {
	vis := h.svc.Registry.Visibility()
	vis.Toggle(input.Kind)
	state := vis.State()
	h.savePrefs(ctx, func(p *prefs.Preferences) {
		p.MarkersVisible, p.NamesVisible, p.LinesVisible = state.Markers, state.Names, state.Lines
	})
	return &VisibilityOutput{Body: state}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *struct{}) (*struct{ Body StylesBody }, error) {
	return &struct{ Body StylesBody }{Body: StylesBody{
		Current: h.svc.Registry.Style(),
		Styles:  h.svc.Config.Styles,
	}}, nil
}

func (h *APIHandler) PutStyle(ctx context.Context, input *StyleInput) (*struct{ Body StylesBody }, error) {
	if _, ok := h.svc.Config.Style(input.Body.Name); !ok {
		return nil, huma.Error404NotFound("style not found: " + input.Body.Name)
	}
	h.svc.Registry.Restyle(input.Body.Name)
	h.savePrefs(ctx, func(p *prefs.Preferences) { p.CurrentStyle = input.Body.Name })
	return h.GetStyles(ctx, nil)
}

func (h *APIHandler) ListFiles(ctx context.Context, input *struct{}) (*FilesOutput, error) {
	if h.svc.Library == nil {
		return &FilesOutput{Body: []store.FileRecord{}}, nil
	}
	files, err := h.svc.Library.Files(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	if files == nil {
		files = []store.FileRecord{}
	}
	return &FilesOutput{Body: files}, nil
}

func (h *APIHandler) GetPrefs(ctx context.Context, input *struct{}) (*PrefsOutput, error) {
	if h.svc.Prefs == nil {
		return nil, huma.Error503ServiceUnavailable("preferences not available")
	}
	return &PrefsOutput{Body: h.svc.Prefs.Snapshot()}, nil
}

func (h *APIHandler) PutLocation(ctx context.Context, input *LocationInput) (*PrefsOutput, error) {
	if h.svc.Prefs == nil {
		return nil, huma.Error503ServiceUnavailable("preferences not available")
	}
	if err := h.svc.Prefs.SetLocation(ctx, input.Body); err != nil {
		return nil, huma.Error502BadGateway("preferences not saved", err)
	}
	return &PrefsOutput{Body: h.svc.Prefs.Snapshot()}, nil
}

// savePrefs persists a preference change; failures are logged by the store
// and never fail the request.
func (h *APIHandler) savePrefs(ctx context.Context, fn func(*prefs.Preferences)) {
	if h.svc.Prefs == nil {
		return
	}
	h.svc.Prefs.UpdatePreferences(ctx, fn)
}
