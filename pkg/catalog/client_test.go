package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/area"
)

var testBBox = area.BBox{MinX: 116, MinY: -8.8, MaxX: 116.6, MaxY: -8.2}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Logger:  zerolog.Nop(),
	})
	return client, srv
}

func TestResolveMosaic(t *testing.T) {
	var gotAuth, gotName string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if ok {
			gotAuth = user
		}
		gotName = r.URL.Query().Get("name__is")
		fmt.Fprint(w, `{"mosaics": [{"id": "mosaic-123", "name": "global_monthly_2018_07_mosaic"}]}`)
	}))

	id, err := client.ResolveMosaic(context.Background(), "global_monthly_2018_07_mosaic")
	if err != nil {
		t.Fatalf("ResolveMosaic error: %v", err)
	}
	if id != "mosaic-123" {
		t.Errorf("id = %q, want mosaic-123", id)
	}
	if gotName != "global_monthly_2018_07_mosaic" {
		t.Errorf("name__is param = %q", gotName)
	}
	if gotAuth != "test-key" {
		t.Errorf("basic auth user = %q, want API key", gotAuth)
	}
}

func TestResolveMosaic_NoMatch(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mosaics": []}`)
	}))

	_, err := client.ResolveMosaic(context.Background(), "global_monthly_1999_01_mosaic")
	if !errors.Is(err, ErrNoMosaic) {
		t.Fatalf("expected ErrNoMosaic, got: %v", err)
	}
}

func TestResolveMosaic_ServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ResolveMosaic(context.Background(), "global_monthly_2018_07_mosaic")
	if err == nil {
		t.Fatal("expected error for server failure")
	}
	if errors.Is(err, ErrNoMosaic) {
		t.Error("server failure should not be ErrNoMosaic")
	}
}

func TestResolveMosaic_BadJSON(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mosaics": `)
	}))

	_, err := client.ResolveMosaic(context.Background(), "global_monthly_2018_07_mosaic")
	if err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

// pagedHandler serves a 3-page quad listing and records each request.
type pagedHandler struct {
	srvURL   func() string
	requests []string
}

func (h *pagedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests = append(h.requests, r.URL.String())

	page := r.URL.Query().Get("page")
	switch page {
	case "": // first request, bbox-filtered
		fmt.Fprintf(w, `{
			"items": [
				{"id": "quad-1", "_links": {"download": "http://tiles/quad-1"}},
				{"id": "quad-2", "_links": {"download": "http://tiles/quad-2"}}
			],
			"_links": {"_next": "%s/mosaic-123/quads?page=2"}
		}`, h.srvURL())
	case "2":
		fmt.Fprintf(w, `{
			"items": [{"id": "quad-3", "_links": {"download": "http://tiles/quad-3"}}],
			"_links": {"_next": "%s/mosaic-123/quads?page=3"}
		}`, h.srvURL())
	case "3":
		fmt.Fprint(w, `{
			"items": [{"id": "quad-4", "_links": {"download": "http://tiles/quad-4"}}],
			"_links": {}
		}`)
	default:
		http.NotFound(w, r)
	}
}

func TestListQuads_Pagination(t *testing.T) {
	handler := &pagedHandler{}
	client, srv := newTestClient(t, handler)
	handler.srvURL = func() string { return srv.URL }

	quads, err := client.ListQuads(context.Background(), "mosaic-123", testBBox)
	if err != nil {
		t.Fatalf("ListQuads error: %v", err)
	}

	wantIDs := []string{"quad-1", "quad-2", "quad-3", "quad-4"}
	if len(quads) != len(wantIDs) {
		t.Fatalf("got %d quads, want %d", len(quads), len(wantIDs))
	}
	for i, want := range wantIDs {
		if quads[i].ID != want {
			t.Errorf("quads[%d].ID = %q, want %q", i, quads[i].ID, want)
		}
	}
	if quads[0].DownloadURL != "http://tiles/quad-1" {
		t.Errorf("DownloadURL = %q", quads[0].DownloadURL)
	}

	// Exactly 3 requests: one per page.
	if len(handler.requests) != 3 {
		t.Fatalf("issued %d requests, want 3: %v", len(handler.requests), handler.requests)
	}
}

func TestListQuads_BBoxOnlyOnFirstRequest(t *testing.T) {
	handler := &pagedHandler{}
	client, srv := newTestClient(t, handler)
	handler.srvURL = func() string { return srv.URL }

	if _, err := client.ListQuads(context.Background(), "mosaic-123", testBBox); err != nil {
		t.Fatalf("ListQuads error: %v", err)
	}

	first := handler.requests[0]
	if got := mustParseQuery(t, first).Get("bbox"); got != testBBox.String() {
		t.Errorf("first request bbox = %q, want %q", got, testBBox.String())
	}
	if got := mustParseQuery(t, first).Get("minimal"); got != "true" {
		t.Errorf("first request minimal = %q, want true", got)
	}

	for _, req := range handler.requests[1:] {
		if mustParseQuery(t, req).Has("bbox") {
			t.Errorf("continuation request %q carries bbox parameter", req)
		}
	}
}

func TestQuadPager_Exhausted(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [], "_links": {}}`)
	}))

	pager := client.Quads("mosaic-123", testBBox)

	page, err := pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("got %d quads, want 0", len(page))
	}

	// Second call reports exhaustion without issuing a request.
	page, err = pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after exhaustion error: %v", err)
	}
	if page != nil {
		t.Errorf("expected nil page after exhaustion, got %v", page)
	}
	if pager.Pages() != 1 {
		t.Errorf("Pages() = %d, want 1", pager.Pages())
	}
}

func TestListQuads_FirstRequestFails(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListQuads(context.Background(), "mosaic-123", testBBox)
	if err == nil {
		t.Fatal("expected error when first page request fails")
	}
}

func mustParseQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return u.Query()
}
