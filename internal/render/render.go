// Package render describes map sources and layers declaratively for the
// browser map engine.
//
// The service layer drives an [Adapter]; [Scene] is the in-process adapter
// that records the resulting state so the viewer can fetch it and be told
// about changes. The adapter never calls back into the service layer.
package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer types understood by the map engine.
const (
	TypeCircle = "circle"
	TypeSymbol = "symbol"
	TypeLine   = "line"
	TypeFill   = "fill"
)

// Layer is a MapLibre-style layer specification.
type Layer struct {
	ID     string         `json:"id" doc:"Layer identifier"`
	Type   string         `json:"type" enum:"circle,symbol,line,fill" doc:"Layer type"`
	Source string         `json:"source" doc:"Source identifier"`
	Paint  map[string]any `json:"paint,omitempty" doc:"Paint properties"`
	Layout map[string]any `json:"layout,omitempty" doc:"Layout properties"`
	Filter []any          `json:"filter,omitempty" doc:"Filter expression; absent means no filter"`
}

// Visible reports whether the layer's layout visibility is "visible".
func (l Layer) Visible() bool {
	v, _ := l.Layout["visibility"].(string)
	return v != "none"
}

// Camera is the last requested map view.
type Camera struct {
	Center orb.Point `json:"center" doc:"[lon, lat]"`
	Zoom   float64   `json:"zoom" doc:"Zoom level"`
}

// Adapter is the narrow contract the service layer drives.
type Adapter interface {
	RegisterSource(id string, data *geojson.FeatureCollection)
	AddLayer(layer Layer)
	RemoveSource(id string)
	SetFilter(layerID string, expr []any)
	SetLayoutVisibility(layerID string, visible bool)
	FlyTo(center orb.Point, zoom float64)
}

// Visibility returns the layout value for a visibility flag.
func Visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "none"
}
