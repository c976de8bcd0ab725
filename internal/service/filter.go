package service

import (
	"sort"

	"github.com/paulmach/orb/geojson"
)

// NoMatchValue is compared against the grouping attribute by the no-match
// filter. No real group carries it.
const NoMatchValue = "___no_match___"

// FilterKind is the outcome of compiling a source's group selection.
type FilterKind string

const (
	FilterNone    FilterKind = "none"     // pass-through, every feature drawn
	FilterNoMatch FilterKind = "no-match" // nothing drawn
	FilterMatch   FilterKind = "match"    // only selected groups drawn
)

// Filter is a compiled group filter for one source's line/polygon layers.
type Filter struct {
	Kind      FilterKind `json:"kind" enum:"none,no-match,match" doc:"Filter decision"`
	Attribute string     `json:"attribute,omitempty" doc:"Grouping attribute the filter reads"`
	Values    []string   `json:"values,omitempty" doc:"Selected groups for match filters"`
}

// CompileFilter turns a source's selection into a filter.
//
// An empty selection hides everything, a full selection (same size as the
// groups discovered at ingestion) disables filtering, anything else matches
// the selected values.
func CompileFilter(src *Source) Filter {
	if src == nil || !src.Grouped() {
		return Filter{Kind: FilterNone}
	}
	switch n := src.SelectedCount(); {
	case n == 0:
		return Filter{Kind: FilterNoMatch, Attribute: src.GroupingAttribute}
	case n == len(src.Groups):
		return Filter{Kind: FilterNone}
	default:
		values := make([]string, 0, n)
		for g := range src.selected {
			values = append(values, g)
		}
		sort.Strings(values)
		return Filter{Kind: FilterMatch, Attribute: src.GroupingAttribute, Values: values}
	}
}

// Expression returns the map-engine expression, or nil for no filter. The
// attribute is read through to-string so numeric values compare against
// their group names.
func (f Filter) Expression() []any {
	input := []any{"to-string", []any{"get", f.Attribute}}
	switch f.Kind {
	case FilterNoMatch:
		return []any{"==", input, NoMatchValue}
	case FilterMatch:
		values := make([]any, len(f.Values))
		for i, v := range f.Values {
			values[i] = v
		}
		return []any{"match", input, values, true, false}
	default:
		return nil
	}
}

// Matches evaluates the filter against a feature the way the map engine
// would. Features with a blank grouping value only pass a none filter.
func (f Filter) Matches(feature *geojson.Feature) bool {
	switch f.Kind {
	case FilterNoMatch:
		return PropString(feature, f.Attribute) == NoMatchValue
	case FilterMatch:
		v := PropString(feature, f.Attribute)
		if v == "" {
			return false
		}
		i := sort.SearchStrings(f.Values, v)
		return i < len(f.Values) && f.Values[i] == v
	default:
		return true
	}
}
