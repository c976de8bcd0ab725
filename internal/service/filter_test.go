package service

import (
	"fmt"
	"reflect"
	"strconv"
	"testing"

	"github.com/paulmach/orb/geojson"
)

func groupedSource(t *testing.T) (*Registry, *Source) {
	t.Helper()
	reg := NewRegistry(RegistryConfig{})
	src, err := reg.Add("rede.kml", Classify(collectionOf(
		feature(lineGeom(), map[string]any{"Alimentador": "A"}),
		feature(lineGeom(), map[string]any{"Alimentador": "B"}),
		feature(lineGeom(), map[string]any{"Alimentador": "C"}),
		feature(lineGeom(), map[string]any{"Alimentador": ""}),
	)))
	if err != nil {
		t.Fatal(err)
	}
	return reg, src
}

func TestCompileFilterStates(t *testing.T) {
	reg, src := groupedSource(t)

	f, _ := reg.Filter(src.Name)
	if f.Kind != FilterNone || f.Expression() != nil {
		t.Fatalf("full selection: %+v", f)
	}

	reg.SetGroupSelected(src.Name, "B", false)
	f, _ = reg.Filter(src.Name)
	input := []any{"to-string", []any{"get", "Alimentador"}}
	want := []any{"match", input, []any{"A", "C"}, true, false}
	if f.Kind != FilterMatch || !reflect.DeepEqual(f.Expression(), want) {
		t.Fatalf("partial selection: %#v", f.Expression())
	}

	reg.DeselectAllGroups(src.Name)
	f, _ = reg.Filter(src.Name)
	want = []any{"==", input, NoMatchValue}
	if f.Kind != FilterNoMatch || !reflect.DeepEqual(f.Expression(), want) {
		t.Fatalf("empty selection: %#v", f.Expression())
	}
}

func TestEmptySelectionMatchesNothing(t *testing.T) {
	reg, src := groupedSource(t)
	reg.DeselectAllGroups(src.Name)
	f, _ := reg.Filter(src.Name)

	full, _ := reg.Get(src.Name)
	for _, feat := range full.LineFeatures() {
		if f.Matches(feat) {
			t.Fatalf("no-match filter matched %v", feat.Properties)
		}
	}
}

func TestMatchFilterExcludesBlankValues(t *testing.T) {
	reg, src := groupedSource(t)
	reg.SetGroupSelected(src.Name, "A", false)
	f, _ := reg.Filter(src.Name)

	full, _ := reg.Get(src.Name)
	var shown []string
	for _, feat := range full.LineFeatures() {
		if f.Matches(feat) {
			shown = append(shown, PropString(feat, "Alimentador"))
		}
	}
	if !reflect.DeepEqual(shown, []string{"B", "C"}) {
		t.Fatalf("shown=%v, want [B C]", shown)
	}
}

func TestUngroupedSourceNeverFilters(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	src, err := reg.Add("points.kml", Classify(collectionOf(feature(lineGeom(), map[string]any{"other": "x"}))))
	if err != nil {
		t.Fatal(err)
	}
	f := CompileFilter(src)
	if f.Kind != FilterNone || !f.Matches(src.LineFeatures()[0]) {
		t.Fatalf("filter=%+v", f)
	}
	if CompileFilter(nil).Kind != FilterNone {
		t.Fatal("nil source should compile to none")
	}
}

// engineMatch evaluates a match expression the way the map engine does:
// to-string of the raw property, compared literally.
func engineMatch(t *testing.T, expr []any, feat *geojson.Feature) bool {
	t.Helper()
	input := expr[1].([]any)
	if input[0] != "to-string" {
		t.Fatalf("input=%v, want to-string", input)
	}
	key := input[1].([]any)[1].(string)
	var raw string
	switch v := feat.Properties[key].(type) {
	case string:
		raw = v
	case float64:
		raw = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		raw = fmt.Sprint(v)
	}
	for _, want := range expr[2].([]any) {
		if raw == want {
			return true
		}
	}
	return false
}

func TestMatchFilterNormalizesGroupValues(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	src, err := reg.Add("rede.kml", Classify(collectionOf(
		feature(lineGeom(), map[string]any{"Alimentador": 7.0}),
		feature(lineGeom(), map[string]any{"Alimentador": 8.0}),
		feature(lineGeom(), map[string]any{"Alimentador": " F1 "}),
	)))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(src.Groups, []string{"7", "8", "F1"}) {
		t.Fatalf("groups=%v", src.Groups)
	}
	reg.SetGroupSelected(src.Name, "8", false)
	f, _ := reg.Filter(src.Name)
	expr := f.Expression()

	full, _ := reg.Get(src.Name)
	for _, feat := range full.LineFeatures() {
		group := PropString(feat, "Alimentador")
		want := group != "8"
		if got := f.Matches(feat); got != want {
			t.Errorf("Matches(%q)=%v, want %v", group, got, want)
		}
		if got := engineMatch(t, expr, feat); got != want {
			t.Errorf("engine match(%v)=%v, want %v", feat.Properties["Alimentador"], got, want)
		}
	}
}
