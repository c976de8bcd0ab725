package prefs

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestTouchKeepsFiveMostRecent(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, NewFileBackend(t.TempDir(), 0), DefaultPreferences("Voyager"), nil)

	for _, name := range []string{"a", "b", "c", "d", "e", "f", "c"} {
		if err := s.Touch(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"c", "f", "e", "d", "b"}
	if got := s.Recent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("recent=%v, want %v", got, want)
	}
	if s.LastSelected() != "c" {
		t.Fatalf("last selected=%q, want c", s.LastSelected())
	}
}

func TestFileBackendPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := New(ctx, NewFileBackend(dir, 0), DefaultPreferences("Voyager"), nil)
	s.Touch(ctx, "rede.kmz")
	s.UpdatePreferences(ctx, func(p *Preferences) {
		p.NamesVisible = false
		p.CurrentStyle = "Dark Matter"
	})
	s.SetLocation(ctx, Location{Lon: -47.06, Lat: -22.93})

	reloaded := New(ctx, NewFileBackend(dir, 0), DefaultPreferences("Voyager"), nil)
	p := reloaded.Preferences()
	if p.NamesVisible || !p.MarkersVisible || p.CurrentStyle != "Dark Matter" {
		t.Fatalf("preferences=%+v", p)
	}
	if p.LastLocation == nil || p.LastLocation.Lat != -22.93 {
		t.Fatalf("location=%+v", p.LastLocation)
	}
	if got := reloaded.Recent(); !reflect.DeepEqual(got, []string{"rede.kmz"}) {
		t.Fatalf("recent=%v", got)
	}
}

func TestFileBackendExpires(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b := NewFileBackend(dir, time.Hour)
	if err := b.Save(ctx, State{RecentFiles: []string{"old.kml"}, SavedAt: time.Now().Add(-2 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := b.Load(ctx); err != nil || ok {
		t.Fatalf("ok=%v err=%v, want expired", ok, err)
	}
	if _, err := os.Stat(b.configFile()); !os.IsNotExist(err) {
		t.Fatalf("expired file not removed: %v", err)
	}

	s := New(ctx, b, DefaultPreferences("Voyager"), nil)
	if len(s.Recent()) != 0 || !s.Preferences().LinesVisible {
		t.Fatalf("state=%+v, want defaults", s.Snapshot())
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, NewFileBackend(t.TempDir(), 0), DefaultPreferences(""), nil)
	s.Touch(ctx, "a")
	s.Touch(ctx, "b")
	s.Forget(ctx, "b")

	if got := s.Recent(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("recent=%v", got)
	}
	if s.LastSelected() != "" {
		t.Fatalf("last selected=%q, want empty", s.LastSelected())
	}
}

func TestOrderByRecent(t *testing.T) {
	names := []string{"zeta.kml", "alpha.kml", "mid.kmz", "beta.kml"}
	got := OrderByRecent(names, []string{"mid.kmz", "missing.kml", "zeta.kml"})
	want := []string{"mid.kmz", "zeta.kml", "alpha.kml", "beta.kml"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order=%v, want %v", got, want)
	}
	if names[0] != "zeta.kml" {
		t.Fatal("input modified")
	}
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := OpenRedis(addr, os.Getenv("REDIS_PASS"), 0)
	defer rdb.Close()

	prefix := "overlay_test_" + time.Now().Format("150405.000") + ":"
	b := NewRedisBackend(rdb, prefix, time.Minute)
	defer rdb.Del(ctx, b.key(KeyRecentFiles), b.key(KeyLastSelected), b.key(KeyPreferences))

	if _, ok, err := b.Load(ctx); err != nil || ok {
		t.Fatalf("ok=%v err=%v, want empty", ok, err)
	}
	s := New(ctx, b, DefaultPreferences("Voyager"), nil)
	if err := s.Touch(ctx, "rede.kmz"); err != nil {
		t.Fatal(err)
	}

	st, ok, err := b.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if st.LastSelected != "rede.kmz" || st.Preferences.CurrentStyle != "Voyager" {
		t.Fatalf("state=%+v", st)
	}
	ttl, err := rdb.TTL(ctx, b.key(KeyPreferences)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl=%v err=%v", ttl, err)
	}
}
