package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/catalog"
	"github.com/basemapper/basemapper/pkg/window"
)

var testWindow = window.Window{Tag: window.TagPre, Year: 2018, Month: 7}

// quadServer serves fixed content per quad ID and counts requests.
type quadServer struct {
	content  map[string]string // quad ID -> body; missing IDs get a 404
	requests int
}

func (s *quadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests++
	id := strings.TrimPrefix(r.URL.Path, "/")
	body, ok := s.content[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, body)
}

func serveQuads(t *testing.T, content map[string]string) (*quadServer, []catalog.Quad) {
	t.Helper()
	qs := &quadServer{content: content}
	srv := httptest.NewServer(qs)
	t.Cleanup(srv.Close)

	ids := make([]string, 0, len(content))
	for id := range content {
		ids = append(ids, id)
	}

	quads := make([]catalog.Quad, 0, len(ids))
	for _, id := range ids {
		quads = append(quads, catalog.Quad{ID: id, DownloadURL: srv.URL + "/" + id})
	}
	return qs, quads
}

func TestFetchQuad(t *testing.T) {
	qs, quads := serveQuads(t, map[string]string{"631-1024": "tile bytes"})
	d := New(Config{Logger: zerolog.Nop()})
	dir := t.TempDir()

	n, skipped, err := d.FetchQuad(context.Background(), quads[0], dir, window.TagPre)
	if err != nil {
		t.Fatalf("FetchQuad error: %v", err)
	}
	if skipped {
		t.Fatal("fresh quad reported as skipped")
	}
	if n != int64(len("tile bytes")) {
		t.Errorf("transferred %d bytes, want %d", n, len("tile bytes"))
	}

	data, err := os.ReadFile(filepath.Join(dir, "631-1024_pre.tiff"))
	if err != nil {
		t.Fatalf("read downloaded quad: %v", err)
	}
	if string(data) != "tile bytes" {
		t.Errorf("quad content = %q", data)
	}
	if qs.requests != 1 {
		t.Errorf("issued %d requests, want 1", qs.requests)
	}
}

func TestFetchQuad_SkipsExisting(t *testing.T) {
	qs, quads := serveQuads(t, map[string]string{"631-1024": "tile bytes"})
	d := New(Config{Logger: zerolog.Nop()})
	dir := t.TempDir()

	path := QuadPath(dir, "631-1024", window.TagPre)
	if err := os.WriteFile(path, []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	n, skipped, err := d.FetchQuad(context.Background(), quads[0], dir, window.TagPre)
	if err != nil {
		t.Fatalf("FetchQuad error: %v", err)
	}
	if !skipped {
		t.Fatal("existing quad not skipped")
	}
	if n != 0 {
		t.Errorf("skipped quad transferred %d bytes", n)
	}
	if qs.requests != 0 {
		t.Errorf("skip issued %d requests, want 0", qs.requests)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "already here" {
		t.Error("existing file was overwritten")
	}
}

func TestFetchQuad_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	d := New(Config{Logger: zerolog.Nop()})
	dir := t.TempDir()
	quad := catalog.Quad{ID: "631-1024", DownloadURL: srv.URL + "/631-1024"}

	_, _, err := d.FetchQuad(context.Background(), quad, dir, window.TagPre)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}

	if _, statErr := os.Stat(QuadPath(dir, "631-1024", window.TagPre)); statErr == nil {
		t.Error("failed fetch left a final file")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("failed fetch left tmp file %s", e.Name())
		}
	}
}

func TestFetchAll_Idempotent(t *testing.T) {
	qs, quads := serveQuads(t, map[string]string{
		"631-1024": "content a",
		"631-1025": "content b",
	})
	d := New(Config{Logger: zerolog.Nop()})
	dir := t.TempDir()

	first, err := d.FetchAll(context.Background(), quads, dir, testWindow)
	if err != nil {
		t.Fatalf("first pass error: %v", err)
	}
	if first.Downloaded != 2 || first.Skipped != 0 || first.Failed != 0 {
		t.Fatalf("first pass = %+v", first)
	}

	requestsAfterFirst := qs.requests

	second, err := d.FetchAll(context.Background(), quads, dir, testWindow)
	if err != nil {
		t.Fatalf("second pass error: %v", err)
	}
	if second.Downloaded != 0 || second.Skipped != 2 {
		t.Fatalf("second pass = %+v", second)
	}
	if second.Bytes != 0 {
		t.Errorf("second pass transferred %d bytes, want 0", second.Bytes)
	}
	if qs.requests != requestsAfterFirst {
		t.Errorf("second pass issued %d extra requests", qs.requests-requestsAfterFirst)
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	_, quads := serveQuads(t, map[string]string{
		"631-1024": "content a",
		"631-1026": "content c",
	})

	// A third quad whose URL 404s.
	broken := catalog.Quad{ID: "631-9999", DownloadURL: quads[0].DownloadURL[:strings.LastIndex(quads[0].DownloadURL, "/")] + "/631-9999"}
	all := append(quads, broken)

	d := New(Config{Logger: zerolog.Nop()})
	dir := t.TempDir()

	result, err := d.FetchAll(context.Background(), all, dir, testWindow)
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if result.Downloaded != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].QuadID != "631-9999" {
		t.Fatalf("failures = %+v", result.Failures)
	}

	// The healthy quads are on disk despite the failure.
	for _, q := range quads {
		if _, err := os.Stat(QuadPath(dir, q.ID, window.TagPre)); err != nil {
			t.Errorf("quad %s missing after partial failure: %v", q.ID, err)
		}
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	_, quads := serveQuads(t, map[string]string{"631-1024": "content"})
	d := New(Config{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.FetchAll(ctx, quads, t.TempDir(), testWindow)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
