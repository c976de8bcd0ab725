// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/kml"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/render"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
)

// Services holds the service dependencies for API handlers. Library and
// Prefs may be nil when no store or preferences backend is configured.
type Services struct {
	Registry *service.Registry
	Loader   *service.Loader
	Library  *service.Library
	Search   *service.SearchIndex
	Prefs    *prefs.Store
	Scene    *render.Scene
	Config   config.Map
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Source ID" example:"rede_nortekmz"`
}

type SourceOutput struct {
	Body *service.Source
}

type SourcesOutput struct {
	Body []*service.Source
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type MessageOutput struct {
	Body MessageBody
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Sources int    `json:"sources" doc:"Number of loaded sources"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{
		Status:  "ok",
		Version: "1.0.0",
		Sources: h.svc.Registry.Len(),
	}}, nil
}

// apiError maps engine errors to HTTP problems.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var (
		decodeErr *kml.DecodeError
		remoteErr *store.RemoteError
	)
	switch {
	case errors.Is(err, service.ErrDuplicateSource):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrSourceNotFound), errors.Is(err, fs.ErrNotExist):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrGroupingDisabled), errors.Is(err, service.ErrUnknownGroup):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &decodeErr):
		return huma.Error400BadRequest(err.Error())
	case errors.As(err, &remoteErr):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, service.ErrLoaderClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
