package service

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/prefs"
)

// Search defaults.
const (
	MinSearchLength   = 2
	DefaultMaxResults = 10
)

// SearchResult is one ranked search hit. It is computed per query and never
// persisted.
type SearchResult struct {
	Feature  *geojson.Feature `json:"feature" doc:"Matched feature"`
	Source   string           `json:"source" doc:"Source (file) name the hit belongs to"`
	Display  string           `json:"display" doc:"Display value used for deduplication"`
	Center   orb.Point        `json:"center" doc:"Representative point [lon, lat]"`
	Distance float64          `json:"distance" doc:"Distance in meters from the reference point"`
	Remote   bool             `json:"remote,omitempty" doc:"Hit came from the remote store"`
}

// SearchConfig configures a SearchIndex. Zero values pick defaults.
type SearchConfig struct {
	DisplayField   string
	SecondaryField string
	MinLength      int
	MaxResults     int
}

// SearchIndex scans loaded sources for name/attribute matches.
type SearchIndex struct {
	sources    SourceLister
	fields     [2]string
	minLength  int
	maxResults int
}

// NewSearchIndex creates an index over sources, matching the display field
// first and the secondary field second.
func NewSearchIndex(sources SourceLister, cfg SearchConfig) *SearchIndex {
	if cfg.DisplayField == "" {
		cfg.DisplayField = KeyName
	}
	if cfg.SecondaryField == "" {
		cfg.SecondaryField = KeyFeeder
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = MinSearchLength
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &SearchIndex{
		sources:    sources,
		fields:     [2]string{cfg.DisplayField, cfg.SecondaryField},
		minLength:  cfg.MinLength,
		maxResults: cfg.MaxResults,
	}
}

// MinLength is the shortest term the index searches for.
func (ix *SearchIndex) MinLength() int { return ix.minLength }

// MaxResults is the result limit used when callers pass max <= 0.
func (ix *SearchIndex) MaxResults() int { return ix.maxResults }

// Searchable reports whether term is long enough to search for.
func (ix *SearchIndex) Searchable(term string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(term)) >= ix.minLength
}

// Search returns up to max features whose display or secondary field
// contains term (case-insensitive), nearest to ref first. Terms shorter than
// the configured minimum return nothing without scanning.
func (ix *SearchIndex) Search(term string, ref orb.Point, max int) []SearchResult {
	if !ix.Searchable(term) {
		return []SearchResult{}
	}
	needle := strings.ToLower(strings.TrimSpace(term))

	var hits []SearchResult
	for _, src := range ix.sources.List() {
		for _, subset := range [][]*geojson.Feature{src.PointFeatures(), src.LineFeatures()} {
			for _, f := range subset {
				if !ix.matches(f, needle) {
					continue
				}
				hits = append(hits, SearchResult{Feature: f, Source: src.Name})
			}
		}
	}
	return ix.Rank(hits, ref, max)
}

// Rank deduplicates hits by display value (first wins), computes distances
// to ref, sorts ascending (stable) and truncates to max.
func (ix *SearchIndex) Rank(hits []SearchResult, ref orb.Point, max int) []SearchResult {
	if max <= 0 {
		max = ix.maxResults
	}
	seen := make(map[string]struct{}, len(hits))
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		h.Display = ix.DisplayValue(h.Feature)
		if _, dup := seen[h.Display]; dup {
			continue
		}
		// A hit without a position neither ranks nor claims its display value.
		center, ok := Representative(h.Feature.Geometry)
		if !ok {
			continue
		}
		seen[h.Display] = struct{}{}
		h.Center = center
		h.Distance = Distance(ref, center)
		results = append(results, h)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > max {
		results = results[:max]
	}
	return results
}

// MergeResults ranks local hits followed by remote hits as one list.
func (ix *SearchIndex) MergeResults(local, remote []SearchResult, ref orb.Point, max int) []SearchResult {
	all := make([]SearchResult, 0, len(local)+len(remote))
	all = append(all, local...)
	all = append(all, remote...)
	return ix.Rank(all, ref, max)
}

// DisplayValue is the first non-empty of the display and secondary fields.
func (ix *SearchIndex) DisplayValue(f *geojson.Feature) string {
	if v := PropString(f, ix.fields[0]); v != "" {
		return v
	}
	return PropString(f, ix.fields[1])
}

func (ix *SearchIndex) matches(f *geojson.Feature, needle string) bool {
	for _, field := range ix.fields {
		if v := PropString(f, field); v != "" && strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// ReferencePoint picks the point searches measure from: the explicit point,
// then the stored last location, then the map center.
func ReferencePoint(explicit *orb.Point, p *prefs.Store, center orb.Point) orb.Point {
	if explicit != nil {
		return *explicit
	}
	if p != nil {
		if loc := p.Preferences().LastLocation; loc != nil {
			return orb.Point{loc.Lon, loc.Lat}
		}
	}
	return center
}
