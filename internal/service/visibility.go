package service

import (
	"fmt"
	"sync"

	"github.com/joeblew999/plat-overlay/internal/render"
)

// Visibility kinds.
const (
	KindMarkers = "markers"
	KindNames   = "names"
	KindLines   = "lines"
)

// VisibilityState is the set of global layer toggles.
type VisibilityState struct {
	Markers bool `json:"markers" doc:"Point markers visible"`
	Names   bool `json:"names" doc:"Marker labels visible"`
	Lines   bool `json:"lines" doc:"Lines and polygons visible"`
}

// SourceLister lists the currently loaded sources.
type SourceLister interface {
	List() []*Source
}

// Visibility holds the process-wide marker/name/line toggles and broadcasts
// every change to all loaded sources.
type Visibility struct {
	mu      sync.Mutex
	state   VisibilityState
	sources SourceLister
	adapter render.Adapter
	bus     *EventBus
}

// NewVisibility creates a controller with every toggle on.
func NewVisibility(sources SourceLister, adapter render.Adapter, bus *EventBus) *Visibility {
	return &Visibility{
		state:   VisibilityState{Markers: true, Names: true, Lines: true},
		sources: sources,
		adapter: adapter,
		bus:     bus,
	}
}

// State returns the current toggles.
func (v *Visibility) State() VisibilityState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// ToggleMarkers flips marker visibility.
func (v *Visibility) ToggleMarkers() bool { return v.Toggle(KindMarkers) }

// ToggleNames flips label visibility.
func (v *Visibility) ToggleNames() bool { return v.Toggle(KindNames) }

// ToggleLines flips line and polygon visibility.
func (v *Visibility) ToggleLines() bool { return v.Toggle(KindLines) }

// Toggle flips one kind and returns its new value. Unknown kinds are ignored
// and report false. The read and the flip happen under one lock so
// concurrent toggles never collapse into one.
func (v *Visibility) Toggle(kind string) bool {
	v.mu.Lock()
	cur, ok := v.get(kind)
	if ok {
		v.set(kind, !cur)
	}
	v.mu.Unlock()
	if !ok {
		return false
	}
	v.broadcast(kind, !cur)
	return !cur
}

// Set forces one kind to a value and broadcasts it to every source.
func (v *Visibility) Set(kind string, visible bool) error {
	v.mu.Lock()
	ok := v.set(kind, visible)
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown visibility kind %q", kind)
	}
	v.broadcast(kind, visible)
	return nil
}

func (v *Visibility) broadcast(kind string, visible bool) {
	for _, src := range v.sources.List() {
		switch kind {
		case KindMarkers:
			if src.HasMarkers() {
				v.adapter.SetLayoutVisibility(MarkerLayerID(src.ID), visible)
			}
		case KindNames:
			if src.HasMarkers() {
				v.adapter.SetLayoutVisibility(LabelLayerID(src.ID), visible)
			}
		case KindLines:
			if src.HasLines() {
				v.adapter.SetLayoutVisibility(LineLayerID(src.ID), visible)
			}
			if src.HasPolygons() {
				v.adapter.SetLayoutVisibility(PolygonLayerID(src.ID), visible)
			}
		}
	}
	v.bus.Publish(Event{Resource: "visibility", Action: "updated", ID: kind})
}

// set requires v.mu.
func (v *Visibility) set(kind string, visible bool) bool {
	switch kind {
	case KindMarkers:
		v.state.Markers = visible
	case KindNames:
		v.state.Names = visible
	case KindLines:
		v.state.Lines = visible
	default:
		return false
	}
	return true
}

func (v *Visibility) get(kind string) (bool, bool) {
	switch kind {
	case KindMarkers:
		return v.state.Markers, true
	case KindNames:
		return v.state.Names, true
	case KindLines:
		return v.state.Lines, true
	}
	return false, false
}
