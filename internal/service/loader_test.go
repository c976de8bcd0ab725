package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/kml"
)

const pointKML = `<kml><Document><Placemark><name>%s</name><Point><coordinates>-47,-22</coordinates></Point></Placemark></Document></kml>`

func newTestLoader(t *testing.T, cfg LoaderConfig) (*Loader, *Registry) {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry, _, _ = newTestRegistry(t)
	}
	if cfg.QueueDelay == 0 {
		cfg.QueueDelay = time.Millisecond
	}
	l := NewLoader(cfg)
	t.Cleanup(l.Close)
	return l, cfg.Registry
}

func TestLoaderLoad(t *testing.T) {
	l, reg := newTestLoader(t, LoaderConfig{})
	src, err := l.Load(context.Background(), "a.kml", []byte(fmt.Sprintf(pointKML, "P1")))
	if err != nil {
		t.Fatal(err)
	}
	if src.Points != 1 || reg.Len() != 1 {
		t.Fatalf("points=%d len=%d", src.Points, reg.Len())
	}

	_, err = l.Load(context.Background(), "a.kml", []byte(fmt.Sprintf(pointKML, "P1")))
	if !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("err=%v, want ErrDuplicateSource", err)
	}
}

func TestLoaderReserve(t *testing.T) {
	l, _ := newTestLoader(t, LoaderConfig{})
	release, err := l.Reserve("a.kml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reserve("a.kml"); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("second reserve err=%v, want ErrDuplicateSource", err)
	}
	if _, err := l.Load(context.Background(), "a.kml", []byte(fmt.Sprintf(pointKML, "P1"))); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("load of claimed name err=%v, want ErrDuplicateSource", err)
	}
	release()
	release()
	if _, err := l.Load(context.Background(), "a.kml", []byte(fmt.Sprintf(pointKML, "P1"))); err != nil {
		t.Fatalf("load after release: %v", err)
	}
	if _, err := l.Reserve("a.kml"); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("reserve of loaded name err=%v, want ErrDuplicateSource", err)
	}
}

func TestLoaderDecodeError(t *testing.T) {
	l, reg := newTestLoader(t, LoaderConfig{})
	_, err := l.Load(context.Background(), "bad.kml", []byte("garbage"))
	var de *kml.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want DecodeError", err)
	}
	if reg.Len() != 0 {
		t.Fatal("failed load registered a source")
	}
}

func TestLoaderBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	decode := func(name string, data []byte) (*geojson.FeatureCollection, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{1, 1}))
		return fc, nil
	}
	l, reg := newTestLoader(t, LoaderConfig{Decode: decode})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), fmt.Sprintf("f%d.kml", i), nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > DefaultMaxConcurrentLoads {
		t.Fatalf("peak concurrent decodes=%d, want <= %d", got, DefaultMaxConcurrentLoads)
	}
	if reg.Len() != 8 {
		t.Fatalf("len=%d, want 8", reg.Len())
	}
}

func TestLoaderLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/remote.kml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, pointKML, "Remote")
	}))
	defer srv.Close()

	l, _ := newTestLoader(t, LoaderConfig{Client: srv.Client()})
	src, err := l.LoadURL(context.Background(), "remote.kml", srv.URL+"/files/remote.kml")
	if err != nil {
		t.Fatal(err)
	}
	if PropString(src.PointFeatures()[0], KeyName) != "Remote" {
		t.Fatalf("feature=%v", src.PointFeatures()[0].Properties)
	}

	if _, err := l.LoadURL(context.Background(), "gone.kml", srv.URL+"/files/gone.kml"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestLoaderClosed(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	l := NewLoader(LoaderConfig{Registry: reg})
	l.Close()
	l.Close()

	_, err := l.Load(context.Background(), "a.kml", []byte(fmt.Sprintf(pointKML, "P")))
	if !errors.Is(err, ErrLoaderClosed) {
		t.Fatalf("err=%v, want ErrLoaderClosed", err)
	}
}

func TestLoaderContextCanceled(t *testing.T) {
	l, _ := newTestLoader(t, LoaderConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "a.kml", []byte(fmt.Sprintf(pointKML, "P"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
