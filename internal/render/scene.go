package render

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Change describes one scene mutation.
type Change struct {
	Action string // "source-added", "source-removed", "filter", "visibility", "camera"
	ID     string // source or layer id
}

// Scene is an Adapter that records sources, layers and camera in memory.
type Scene struct {
	mu      sync.RWMutex
	sources map[string]*geojson.FeatureCollection
	layers  []Layer
	camera  Camera

	// Notify, when set, is called after every mutation (outside the lock).
	Notify func(Change)
}

// NewScene creates an empty scene centered on center.
func NewScene(center orb.Point, zoom float64) *Scene {
	return &Scene{
		sources: make(map[string]*geojson.FeatureCollection),
		camera:  Camera{Center: center, Zoom: zoom},
	}
}

func (s *Scene) notify(c Change) {
	if s.Notify != nil {
		s.Notify(c)
	}
}

// RegisterSource stores (or replaces) a GeoJSON source.
func (s *Scene) RegisterSource(id string, data *geojson.FeatureCollection) {
	s.mu.Lock()
	s.sources[id] = data
	s.mu.Unlock()
	s.notify(Change{Action: "source-added", ID: id})
}

// AddLayer appends a layer, replacing any layer with the same id in place.
func (s *Scene) AddLayer(layer Layer) {
	s.mu.Lock()
	replaced := false
	for i := range s.layers {
		if s.layers[i].ID == layer.ID {
			s.layers[i] = layer
			replaced = true
			break
		}
	}
	if !replaced {
		s.layers = append(s.layers, layer)
	}
	s.mu.Unlock()
}

// RemoveSource drops a source and every layer drawing from it.
func (s *Scene) RemoveSource(id string) {
	s.mu.Lock()
	if _, ok := s.sources[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sources, id)
	kept := s.layers[:0]
	for _, l := range s.layers {
		if l.Source != id {
			kept = append(kept, l)
		}
	}
	s.layers = kept
	s.mu.Unlock()
	s.notify(Change{Action: "source-removed", ID: id})
}

// SetFilter sets or clears (nil expr) a layer filter.
func (s *Scene) SetFilter(layerID string, expr []any) {
	s.mu.Lock()
	found := false
	for i := range s.layers {
		if s.layers[i].ID == layerID {
			s.layers[i].Filter = expr
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(Change{Action: "filter", ID: layerID})
	}
}

// SetLayoutVisibility shows or hides a layer.
func (s *Scene) SetLayoutVisibility(layerID string, visible bool) {
	s.mu.Lock()
	found := false
	for i := range s.layers {
		if s.layers[i].ID == layerID {
			layout := make(map[string]any, len(s.layers[i].Layout)+1)
			for k, v := range s.layers[i].Layout {
				layout[k] = v
			}
			layout["visibility"] = Visibility(visible)
			s.layers[i].Layout = layout
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(Change{Action: "visibility", ID: layerID})
	}
}

// FlyTo records a camera move.
func (s *Scene) FlyTo(center orb.Point, zoom float64) {
	s.mu.Lock()
	s.camera = Camera{Center: center, Zoom: zoom}
	s.mu.Unlock()
	s.notify(Change{Action: "camera"})
}

// Layers returns the layers in draw order.
func (s *Scene) Layers() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Layer(nil), s.layers...)
}

// Layer returns one layer by id.
func (s *Scene) Layer(id string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Source returns the data registered under id.
func (s *Scene) Source(id string) (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc, ok := s.sources[id]
	return fc, ok
}

// SourceCount returns the number of registered sources.
func (s *Scene) SourceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// Camera returns the last requested view.
func (s *Scene) Camera() Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

var _ Adapter = (*Scene)(nil)
