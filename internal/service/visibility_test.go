package service

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
)

func TestTogglesBroadcastToEverySource(t *testing.T) {
	reg, scene, _ := newTestRegistry(t)
	a, _ := reg.Add("a", Classify(collectionOf(
		feature(orb.Point{1, 1}, map[string]any{"name": "p"}),
		feature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, map[string]any{"Alimentador": "A"}),
	)))
	b, _ := reg.Add("b", Classify(collectionOf(feature(orb.Point{2, 2}, nil))))
	vis := reg.Visibility()

	if vis.ToggleMarkers() {
		t.Fatal("ToggleMarkers returned true, want false")
	}
	for _, id := range []string{MarkerLayerID(a.ID), MarkerLayerID(b.ID)} {
		if l, _ := scene.Layer(id); l.Visible() {
			t.Fatalf("%s still visible", id)
		}
	}
	if l, _ := scene.Layer(LabelLayerID(a.ID)); !l.Visible() {
		t.Fatal("labels hidden by the markers toggle")
	}

	vis.ToggleNames()
	if l, _ := scene.Layer(LabelLayerID(b.ID)); l.Visible() {
		t.Fatal("labels of b still visible")
	}

	vis.ToggleLines()
	for _, id := range []string{LineLayerID(a.ID), PolygonLayerID(a.ID)} {
		if l, _ := scene.Layer(id); l.Visible() {
			t.Fatalf("%s still visible", id)
		}
	}

	if !vis.ToggleLines() {
		t.Fatal("second ToggleLines should turn lines back on")
	}
	want := VisibilityState{Markers: false, Names: false, Lines: true}
	if got := vis.State(); got != want {
		t.Fatalf("state=%+v, want %+v", got, want)
	}
}

func TestNewSourcesFollowVisibility(t *testing.T) {
	reg, scene, _ := newTestRegistry(t)
	reg.Visibility().Set(KindMarkers, false)

	src, _ := reg.Add("late", Classify(collectionOf(feature(orb.Point{1, 1}, nil))))
	if l, _ := scene.Layer(MarkerLayerID(src.ID)); l.Visible() {
		t.Fatal("source added after toggle ignores current visibility")
	}
}

func TestSetUnknownKind(t *testing.T) {
	reg, _, bus := newTestRegistry(t)
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	if err := reg.Visibility().Set("polygons", false); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if reg.Visibility().Toggle("polygons") {
		t.Fatal("unknown kind toggled")
	}
	if len(ch) != 0 {
		t.Fatalf("events=%d, want 0", len(ch))
	}
}

func TestConcurrentTogglesAllApply(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	vis := reg.Visibility()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vis.ToggleNames()
		}()
	}
	wg.Wait()
	if !vis.State().Names {
		t.Fatal("even number of toggles left names hidden")
	}

	vis.ToggleNames()
	if vis.State().Names {
		t.Fatal("odd number of toggles left names visible")
	}
}
