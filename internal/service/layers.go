package service

import (
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/render"
)

// Marker, label and line styling.
const (
	markerRadius      = 6
	markerColor       = "#FF5722"
	markerStrokeWidth = 2
	markerStrokeColor = "#FFFFFF"
	lineWidth         = 4
	fillOpacity       = 0.2
	labelSize         = 12
	labelColor        = "#000000"
	labelHaloColor    = "#FFFFFF"
	labelHaloWidth    = 1
)

// RenderID is the id prefix of every render source and layer of a source.
func RenderID(sourceID string) string { return "source-" + sourceID }

func markersSourceID(sourceID string) string  { return RenderID(sourceID) + "-markers" }
func linesSourceID(sourceID string) string    { return RenderID(sourceID) + "-lines" }
func polygonsSourceID(sourceID string) string { return RenderID(sourceID) + "-polygons" }

// Layer ids of a source.
func MarkerLayerID(sourceID string) string  { return "marker-circles-" + RenderID(sourceID) }
func LabelLayerID(sourceID string) string   { return "marker-labels-" + RenderID(sourceID) }
func LineLayerID(sourceID string) string    { return "lines-" + RenderID(sourceID) }
func PolygonLayerID(sourceID string) string { return "polygons-" + RenderID(sourceID) }

func renderSourceIDs(sourceID string) []string {
	return []string{markersSourceID(sourceID), linesSourceID(sourceID), polygonsSourceID(sourceID)}
}

// materialize pushes a source's data, layers, filter and visibility to the
// adapter.
func materialize(a render.Adapter, src *Source, vis VisibilityState) {
	filter := CompileFilter(src).Expression()

	if src.HasMarkers() {
		sid := markersSourceID(src.ID)
		a.RegisterSource(sid, collection(src.points))
		a.AddLayer(render.Layer{
			ID:     MarkerLayerID(src.ID),
			Type:   render.TypeCircle,
			Source: sid,
			Paint: map[string]any{
				"circle-radius":       markerRadius,
				"circle-color":        markerColor,
				"circle-stroke-width": markerStrokeWidth,
				"circle-stroke-color": markerStrokeColor,
			},
			Layout: map[string]any{"visibility": render.Visibility(vis.Markers)},
		})
		a.AddLayer(render.Layer{
			ID:     LabelLayerID(src.ID),
			Type:   render.TypeSymbol,
			Source: sid,
			Paint: map[string]any{
				"text-color":      labelColor,
				"text-halo-color": labelHaloColor,
				"text-halo-width": labelHaloWidth,
			},
			Layout: map[string]any{
				"text-field":  []any{"coalesce", []any{"get", KeyName}, []any{"get", KeyFeeder}},
				"text-font":   []any{"Open Sans Semibold", "Arial Unicode MS Bold"},
				"text-size":   labelSize,
				"text-offset": []any{0, 1.5},
				"visibility":  render.Visibility(vis.Names),
			},
		})
	}

	if src.HasPolygons() {
		sid := polygonsSourceID(src.ID)
		a.RegisterSource(sid, collection(src.polygons))
		a.AddLayer(render.Layer{
			ID:     PolygonLayerID(src.ID),
			Type:   render.TypeFill,
			Source: sid,
			Paint: map[string]any{
				"fill-color":   []any{"get", ColorProperty},
				"fill-opacity": fillOpacity,
			},
			Layout: map[string]any{"visibility": render.Visibility(vis.Lines)},
			Filter: filter,
		})
	}

	if src.HasLines() {
		sid := linesSourceID(src.ID)
		a.RegisterSource(sid, collection(src.lines))
		a.AddLayer(render.Layer{
			ID:     LineLayerID(src.ID),
			Type:   render.TypeLine,
			Source: sid,
			Paint: map[string]any{
				"line-color": []any{"get", ColorProperty},
				"line-width": lineWidth,
			},
			Layout: map[string]any{"visibility": render.Visibility(vis.Lines)},
			Filter: filter,
		})
	}
}

// dematerialize removes every render source (and so every layer) of a source.
func dematerialize(a render.Adapter, sourceID string) {
	for _, id := range renderSourceIDs(sourceID) {
		a.RemoveSource(id)
	}
}

// applyFilter pushes the compiled filter to the line and polygon layers.
func applyFilter(a render.Adapter, src *Source) {
	expr := CompileFilter(src).Expression()
	if src.HasLines() {
		a.SetFilter(LineLayerID(src.ID), expr)
	}
	if src.HasPolygons() {
		a.SetFilter(PolygonLayerID(src.ID), expr)
	}
}

func collection(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	return fc
}
