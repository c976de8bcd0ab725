package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeblew999/plat-overlay/internal/prefs"
)

const lineKML = `<kml><Document>
<Placemark><name>Trecho</name><ExtendedData><Data name="Alimentador"><value>AL-03</value></Data></ExtendedData>
<LineString><coordinates>-47.06,-22.93 -47.07,-22.94</coordinates></LineString></Placemark>
</Document></kml>`

func newTestServer(t *testing.T, dataDir string) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Config{Host: "localhost", Port: "0", DataDir: dataDir, Prefs: PrefsMemory})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func upload(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, _ := w.CreateFormFile("file", name)
	fw.Write([]byte(content))
	w.Close()
	resp, err := http.Post(url+"/api/v1/sources/upload", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServerRoutes(t *testing.T) {
	s, ts := newTestServer(t, t.TempDir())
	if s.storeName() != "duckdb" || s.prefsName() != PrefsMemory {
		t.Fatalf("store=%q prefs=%q", s.storeName(), s.prefsName())
	}

	if code, body := get(t, ts.URL+"/health"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("health %d %s", code, body)
	}
	if code, body := get(t, ts.URL+"/api/v1/info"); code != http.StatusOK || !strings.Contains(body, "remote-search") {
		t.Fatalf("info %d %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/nope"); code != http.StatusNotFound {
		t.Fatalf("unknown path code=%d", code)
	}

	if resp := upload(t, ts.URL, "rede.kml", lineKML); resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload code=%d", resp.StatusCode)
	}
	code, body := get(t, ts.URL+"/files/rede.kml")
	if code != http.StatusOK || body != lineKML {
		t.Fatalf("stored file %d %q", code, body)
	}

	_, body = get(t, ts.URL+"/metrics")
	if !strings.Contains(body, "overlay_uploads_total") {
		t.Fatal("metrics missing uploads counter")
	}

	var root map[string]any
	_, body = get(t, ts.URL+"/")
	if err := json.Unmarshal([]byte(body), &root); err != nil || root["sources"] != float64(1) {
		t.Fatalf("root %s", body)
	}
}

func TestServerWithoutStore(t *testing.T) {
	s, err := New(Config{DataDir: t.TempDir(), Store: StoreNone, Prefs: PrefsMemory})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Services().Library != nil || s.Restore(context.Background()) != 0 {
		t.Fatal("library wired without a store")
	}
	if s.OpenAPI().Paths["/api/v1/sources/upload"] == nil {
		t.Fatal("upload route not documented")
	}

	ts := httptest.NewServer(s)
	defer ts.Close()
	if resp := upload(t, ts.URL, "rede.kml", lineKML); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("upload without store code=%d, want 503", resp.StatusCode)
	}
	if code, _ := get(t, ts.URL+"/api/v1/store/tables"); code != http.StatusServiceUnavailable {
		t.Fatalf("tables without store code=%d, want 503", code)
	}
}

func TestRestoreAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := New(Config{DataDir: dir, Prefs: PrefsMemory})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(first)
	if resp := upload(t, ts.URL, "rede.kml", lineKML); resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload code=%d", resp.StatusCode)
	}
	ts.Close()
	first.Close()

	second, err := New(Config{DataDir: dir, Prefs: PrefsMemory})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if n := second.Restore(context.Background()); n != 1 {
		t.Fatalf("restored %d sources, want 1", n)
	}
	src, err := second.Services().Registry.Get("rede.kml")
	if err != nil {
		t.Fatal(err)
	}
	if len(src.Groups) != 1 || src.Groups[0] != "AL-03" {
		t.Fatalf("groups=%v", src.Groups)
	}
}

func TestViewerToggle(t *testing.T) {
	s, ts := newTestServer(t, t.TempDir())

	resp, err := http.Post(ts.URL+"/api/v1/viewer/toggle", "application/json", strings.NewReader(`{"kind":"names"}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "datastar-patch-signals") || !strings.Contains(string(body), `"names":false`) {
		t.Fatalf("toggle stream %q", body)
	}
	if s.Services().Registry.Visibility().State().Names {
		t.Fatal("names still visible")
	}
	if s.Services().Prefs.Preferences().NamesVisible {
		t.Fatal("toggle not saved")
	}

	resp, err = http.Post(ts.URL+"/api/v1/viewer/toggle", "application/json", strings.NewReader(`{"kind":"roads"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown kind code=%d, want 400", resp.StatusCode)
	}
}

func TestViewerEvents(t *testing.T) {
	s, ts := newTestServer(t, t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/viewer/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(want string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), want) {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", want, lines.Err())
	}

	waitFor("No files loaded")
	s.Services().Registry.Visibility().ToggleLines()
	waitFor("overlay-changed")
}

const twoLinesKML = `<kml><Document>
<Placemark><name>Trecho Norte</name><LineString><coordinates>-47.06,-22.93 -47.07,-22.94</coordinates></LineString></Placemark>
<Placemark><name>Trecho Sul</name><LineString><coordinates>-47.50,-23.50 -47.51,-23.51</coordinates></LineString></Placemark>
</Document></kml>`

func viewerSearch(t *testing.T, url, signals string) string {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/viewer/search", "application/json", strings.NewReader(signals))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestViewerSearchUsesConfigAndLastLocation(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(cfgFile, []byte("search:\n  min_length: 1\n  max_results: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{DataDir: dir, ConfigFile: cfgFile, Prefs: PrefsMemory})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})

	if resp := upload(t, ts.URL, "rede.kml", twoLinesKML); resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload code=%d", resp.StatusCode)
	}

	// Camera center is near Trecho Norte.
	body := viewerSearch(t, ts.URL, `{"query":"t"}`)
	if !strings.Contains(body, "Trecho Norte") || strings.Contains(body, "Trecho Sul") || !strings.Contains(body, `"resultCount":1`) {
		t.Fatalf("camera-centered search %q", body)
	}

	s.Services().Prefs.SetLocation(context.Background(), prefs.Location{Lon: -47.5, Lat: -23.5})
	body = viewerSearch(t, ts.URL, `{"query":"t"}`)
	if !strings.Contains(body, "Trecho Sul") || strings.Contains(body, "Trecho Norte") {
		t.Fatalf("last-location search %q", body)
	}

	body = viewerSearch(t, ts.URL, `{"query":"t","lon":-47.06,"lat":-22.93}`)
	if !strings.Contains(body, "Trecho Norte") || strings.Contains(body, "Trecho Sul") {
		t.Fatalf("explicit-point search %q", body)
	}
}
