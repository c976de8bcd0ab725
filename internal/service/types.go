// Package service contains the layer/group state engine for the plat-overlay viewer.
package service

import (
	"sort"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Default attribute keys. The feeder key is the preferred grouping attribute,
// the name key is both the grouping fallback and the search display field.
const (
	KeyFeeder = "Alimentador"
	KeyName   = "name"

	// ColorProperty is stamped on every line/polygon feature at ingestion.
	ColorProperty = "color"
)

// DefaultGroupKeys is the prioritized list of grouping attribute candidates.
var DefaultGroupKeys = []string{KeyFeeder, KeyName}

// Classified holds the three renderable subsets of one feature collection.
// Lines holds lines and polygons (polygons are outlined), Polygons holds
// polygons only.
type Classified struct {
	Points   []*geojson.Feature
	Lines    []*geojson.Feature
	Polygons []*geojson.Feature
	Dropped  int // unsupported geometries skipped during classification
}

// Total returns the number of distinct classified entries (polygons count once).
func (c Classified) Total() int {
	return len(c.Points) + len(c.Lines)
}

// Source is one ingested overlay dataset.
type Source struct {
	ID                string    `json:"id" doc:"Source key derived from the display name" example:"rede_norte_kmz"`
	Name              string    `json:"name" doc:"Original file name" example:"Rede Norte.kmz"`
	GroupingAttribute string    `json:"groupingAttribute,omitempty" doc:"Attribute used to group lines and polygons" example:"Alimentador"`
	Groups            []string  `json:"groups" doc:"Groups discovered at ingestion"`
	Selected          []string  `json:"selected" doc:"Groups currently visible"`
	Points            int       `json:"points" doc:"Number of point features"`
	Lines             int       `json:"lines" doc:"Number of line and polygon features"`
	Polygons          int       `json:"polygons" doc:"Number of polygon features"`
	LoadedAt          time.Time `json:"loadedAt" doc:"Registration time"`

	points   []*geojson.Feature
	lines    []*geojson.Feature
	polygons []*geojson.Feature
	selected map[string]struct{}
}

// HasMarkers reports whether the source has point features.
func (s *Source) HasMarkers() bool { return len(s.points) > 0 }

// HasLines reports whether the source has line or polygon features.
func (s *Source) HasLines() bool { return len(s.lines) > 0 }

// HasPolygons reports whether the source has polygon features.
func (s *Source) HasPolygons() bool { return len(s.polygons) > 0 }

// Grouped reports whether a grouping attribute was resolved at ingestion.
func (s *Source) Grouped() bool { return s.GroupingAttribute != "" }

// PointFeatures returns the point subset in insertion order.
func (s *Source) PointFeatures() []*geojson.Feature { return s.points }

// LineFeatures returns the line/polygon subset in insertion order.
func (s *Source) LineFeatures() []*geojson.Feature { return s.lines }

// PolygonFeatures returns the polygon subset in insertion order.
func (s *Source) PolygonFeatures() []*geojson.Feature { return s.polygons }

// IsSelected reports whether a group is currently visible.
func (s *Source) IsSelected(group string) bool {
	_, ok := s.selected[group]
	return ok
}

// SelectedCount returns the number of visible groups.
func (s *Source) SelectedCount() int { return len(s.selected) }

func (s *Source) hasGroup(group string) bool {
	i := sort.SearchStrings(s.Groups, group)
	return i < len(s.Groups) && s.Groups[i] == group
}

// syncSelected refreshes the exported Selected slice from the selection set.
func (s *Source) syncSelected() {
	sel := make([]string, 0, len(s.selected))
	for g := range s.selected {
		sel = append(sel, g)
	}
	sort.Strings(sel)
	s.Selected = sel
}

// snapshot returns a copy safe to hand out of the registry lock.
// Feature slices are shared; they are never mutated after ingestion.
func (s *Source) snapshot() *Source {
	cp := *s
	cp.Groups = append([]string(nil), s.Groups...)
	cp.selected = make(map[string]struct{}, len(s.selected))
	for g := range s.selected {
		cp.selected[g] = struct{}{}
	}
	cp.syncSelected()
	return &cp
}
