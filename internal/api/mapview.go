package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/render"
)

type MapBody struct {
	Style  config.Style   `json:"style" doc:"Current basemap style"`
	View   config.View    `json:"view" doc:"Configured initial view"`
	Camera render.Camera  `json:"camera" doc:"Last requested camera"`
	Layers []render.Layer `json:"layers" doc:"Overlay layers in draw order"`
}

type MapSourceInput struct {
	ID string `path:"id" doc:"Render source ID" example:"source-rede_nortekml-lines"`
}

type FlyToInput struct {
	Body struct {
		Center orb.Point `json:"center" doc:"Target [lon, lat]"`
		Zoom   float64   `json:"zoom,omitempty" minimum:"0" maximum:"24" doc:"Target zoom; 0 keeps the current zoom"`
	}
}

// RegisterMap registers the render scene routes the browser map reads.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map/layers", h.GetMap, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map/sources/{id}", h.GetMapSource, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/camera", h.FlyTo, huma.OperationTags("map"))
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*struct{ Body MapBody }, error) {
	style, _ := h.svc.Config.Style(h.svc.Registry.Style())
	layers := h.svc.Scene.Layers()
	if layers == nil {
		layers = []render.Layer{}
	}
	return &struct{ Body MapBody }{Body: MapBody{
		Style:  style,
		View:   h.svc.Config.View,
		Camera: h.svc.Scene.Camera(),
		Layers: layers,
	}}, nil
}

func (h *APIHandler) GetMapSource(ctx context.Context, input *MapSourceInput) (*struct{ Body *geojson.FeatureCollection }, error) {
	fc, ok := h.svc.Scene.Source(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("map source not found")
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

func (h *APIHandler) FlyTo(ctx context.Context, input *FlyToInput) (*struct{ Body render.Camera }, error) {
	zoom := input.Body.Zoom
	if zoom == 0 {
		zoom = h.svc.Scene.Camera().Zoom
	}
	h.svc.Scene.FlyTo(input.Body.Center, zoom)
	return &struct{ Body render.Camera }{Body: h.svc.Scene.Camera()}, nil
}
