package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/kml"
	"github.com/joeblew999/plat-overlay/internal/prefs"
	"github.com/joeblew999/plat-overlay/internal/store"
)

const networkKML = `<kml><Document>
<Placemark><name>Chave 1</name><Point><coordinates>-47.06,-22.93</coordinates></Point></Placemark>
<Placemark><name>Trecho</name><ExtendedData><Data name="Alimentador"><value>AL-7</value></Data></ExtendedData>
<LineString><coordinates>-47.06,-22.93 -47.08,-22.95</coordinates></LineString></Placemark>
</Document></kml>`

type testLibrary struct {
	lib   *Library
	reg   *Registry
	store *store.SQLStore
	prefs *prefs.Store
}

func newTestLibrary(t *testing.T) testLibrary {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenDuckDB("", "")
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewSQLStore(ctx, conn, store.NewBlobs(t.TempDir(), ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	l, reg := newTestLoader(t, LoaderConfig{})
	p := prefs.New(ctx, prefs.NewFileBackend(t.TempDir(), 0), prefs.DefaultPreferences("Voyager"), nil)
	return testLibrary{
		lib:   NewLibrary(LibraryConfig{Loader: l, Store: st, Prefs: p}),
		reg:   reg,
		store: st,
		prefs: p,
	}
}

func TestUploadPersistsThenRegisters(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()

	src, rec, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.GroupingAttribute != KeyFeeder || src.Points != 1 {
		t.Fatalf("source=%+v", src)
	}
	if rec.URL != "/files/rede.kml" || rec.Type != "kml" || rec.Lat == nil || *rec.Lat != -22.93 {
		t.Fatalf("record=%+v", rec)
	}

	rows, err := tl.store.ListAllFeatures(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := rows["rede.kml"]; len(got) != 2 || got[0].Kind != store.KindMarker || got[1].Feeder != "AL-7" {
		t.Fatalf("rows=%+v", got)
	}
	if tl.prefs.LastSelected() != "rede.kml" {
		t.Fatalf("last selected=%q", tl.prefs.LastSelected())
	}
}

func TestUploadUsesCallerLocation(t *testing.T) {
	tl := newTestLibrary(t)
	at := orb.Point{-46.6, -23.5}
	_, rec, err := tl.lib.Upload(context.Background(), "rede.kml", []byte(networkKML), &at)
	if err != nil {
		t.Fatal(err)
	}
	if *rec.Lng != -46.6 || *rec.Lat != -23.5 {
		t.Fatalf("record at %v,%v", *rec.Lng, *rec.Lat)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()

	if _, _, err := tl.lib.Upload(ctx, "rede;1.kml", []byte(networkKML), nil); err == nil {
		t.Fatal("expected error for invalid name")
	}
	_, _, err := tl.lib.Upload(ctx, "broken.kml", []byte("nope"), nil)
	var de *kml.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want DecodeError", err)
	}
	files, _ := tl.store.ListFiles(ctx)
	if len(files) != 0 || tl.reg.Len() != 0 {
		t.Fatalf("failed upload left files=%d sources=%d", len(files), tl.reg.Len())
	}
}

func TestUploadDuplicateFailsBeforeStore(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()
	if _, _, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("err=%v, want ErrDuplicateSource", err)
	}
}

func TestUploadWhileNameClaimedStoresNothing(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()
	release, err := tl.lib.loader.Reserve("rede.kml")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("err=%v, want ErrDuplicateSource", err)
	}
	if files, _ := tl.store.ListFiles(ctx); len(files) != 0 {
		t.Fatalf("claimed name was stored: %v", files)
	}

	release()
	if _, _, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil); err != nil {
		t.Fatalf("upload after release: %v", err)
	}
}

func TestConcurrentUploadsKeepStoreAndRegistryInSync(t *testing.T) {
	for run := 0; run < 10; run++ {
		tl := newTestLibrary(t)
		ctx := context.Background()

		names := []string{"Alpha", "Bravo"}
		errs := make([]error, len(names))
		var wg sync.WaitGroup
		for i, placemark := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, errs[i] = tl.lib.Upload(ctx, "same.kml", []byte(fmt.Sprintf(pointKML, placemark)), nil)
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case !errors.Is(err, ErrDuplicateSource):
				t.Fatalf("run %d: unexpected error %v", run, err)
			}
		}
		if ok != 1 {
			t.Fatalf("run %d: %d uploads succeeded, want 1 (errs=%v)", run, ok, errs)
		}

		src, err := tl.reg.Get("same.kml")
		if err != nil {
			t.Fatal(err)
		}
		loaded := PropString(src.PointFeatures()[0], KeyName)
		data, err := tl.store.Fetch(ctx, "same.kml")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "<name>"+loaded+"</name>") {
			t.Fatalf("run %d: loaded %q but stored %s", run, loaded, data)
		}
		rows, _ := tl.store.ListAllFeatures(ctx)
		if got := rows["same.kml"]; len(got) != 1 || got[0].Name != loaded {
			t.Fatalf("run %d: loaded %q but stored rows %+v", run, loaded, got)
		}
	}
}

func TestRestoreAndOpen(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, _, err := tl.lib.Upload(ctx, fmt.Sprintf("rede%d.kml", i), []byte(networkKML), nil); err != nil {
			t.Fatal(err)
		}
	}

	fresh, _, _ := newTestRegistry(t)
	l, _ := newTestLoader(t, LoaderConfig{Registry: fresh})
	lib := NewLibrary(LibraryConfig{Loader: l, Store: tl.store})

	if n := lib.Restore(ctx); n != 4 {
		t.Fatalf("restored=%d, want 4", n)
	}
	src, err := fresh.Get("rede2.kml")
	if err != nil {
		t.Fatal(err)
	}
	if src.GroupingAttribute != KeyFeeder || src.Lines != 1 {
		t.Fatalf("restored source=%+v", src)
	}

	fresh.Remove("rede2.kml")
	if _, err := lib.Open(ctx, "rede2.kml"); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Open(ctx, "rede2.kml"); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("err=%v, want ErrDuplicateSource", err)
	}
}

type failingStore struct{ store.Store }

func (failingStore) ListAllFeatures(context.Context) (map[string][]store.FeatureRow, error) {
	return nil, &store.RemoteError{Op: "list features", Err: errors.New("offline")}
}

func TestRestoreToleratesStoreFailure(t *testing.T) {
	l, reg := newTestLoader(t, LoaderConfig{})
	lib := NewLibrary(LibraryConfig{Loader: l, Store: failingStore{}})
	if n := lib.Restore(context.Background()); n != 0 || reg.Len() != 0 {
		t.Fatalf("restored=%d len=%d", n, reg.Len())
	}
}

func TestFilesOrderedByRecent(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()
	for _, name := range []string{"c.kml", "a.kml", "b.kml"} {
		if err := tl.store.UpsertMetadata(ctx, store.FileRecord{Name: name, URL: "/files/" + name, Type: "kml"}); err != nil {
			t.Fatal(err)
		}
	}
	tl.prefs.Touch(ctx, "b.kml")

	files, err := tl.lib.Files(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if fmt.Sprint(names) != "[b.kml a.kml c.kml]" {
		t.Fatalf("files=%v", names)
	}
}

func TestSearchRemote(t *testing.T) {
	tl := newTestLibrary(t)
	ctx := context.Background()
	if _, _, err := tl.lib.Upload(ctx, "rede.kml", []byte(networkKML), nil); err != nil {
		t.Fatal(err)
	}
	results, err := tl.lib.SearchRemote(ctx, "al-7", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].Remote || results[0].Source != "rede.kml" {
		t.Fatalf("results=%+v", results)
	}
	if _, ok := results[0].Feature.Geometry.(orb.LineString); !ok {
		t.Fatalf("geometry=%T", results[0].Feature.Geometry)
	}
}
