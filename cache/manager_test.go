package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func testResponse(status int, body string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func testManager(t *testing.T, origin string) *Manager {
	t.Helper()
	originURL, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(NewMemStore(), *originURL, nil, zerolog.Nop())
}

func TestKey(t *testing.T) {
	req, _ := http.NewRequest("GET", "https://feeder.example/stats/daily?days=7", nil)
	if key := Key(req); key != "GET https://feeder.example/stats/daily?days=7" {
		t.Fatalf("Key is %q", key)
	}
}

func TestPutGetRoundTripsResponse(t *testing.T) {
	m := testManager(t, "https://feeder.example")
	if err := m.Put("v1", "GET https://feeder.example/status", testResponse(200, "all good")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	res, ok, err := m.Get("v1", "GET https://feeder.example/status")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("Content-Type is %s", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "all good" {
		t.Fatalf("Body is %q", body)
	}
}

func TestPutOnlyStores200(t *testing.T) {
	m := testManager(t, "https://feeder.example")
	for _, status := range []int{404, 500, 301} {
		if err := m.Put("v1", "GET https://feeder.example/gone", testResponse(status, "nope")); err != nil {
			t.Fatalf("Put %d: %v", status, err)
		}
		if _, ok, _ := m.Get("v1", "GET https://feeder.example/gone"); ok {
			t.Fatalf("Status %d response was persisted", status)
		}
	}
}

func TestPreload(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	})
	r.Get("/screen", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("screen"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	m := testManager(t, server.URL)
	if err := m.Preload(context.Background(), "v1", []string{"/", "/screen"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	res, ok, err := m.Get("v1", "GET "+server.URL+"/screen")
	if err != nil || !ok {
		t.Fatalf("Get after preload: ok=%v err=%v", ok, err)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "screen" {
		t.Fatalf("Body is %q", body)
	}
}

func TestPreloadAbortsOnFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	})
	r.Get("/screen", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	m := testManager(t, server.URL)
	err := m.Preload(context.Background(), "v1", []string{"/", "/screen", "/pets/list"})
	if err == nil {
		t.Fatal("Expected preload to fail")
	}
	// the path after the failing one must not have been fetched
	if _, ok, _ := m.Get("v1", "GET "+server.URL+"/pets/list"); ok {
		t.Fatal("Preload continued past a failure")
	}
}

func TestPreloadDoesNotFollowRedirects(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/screen", http.StatusFound)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	m := testManager(t, server.URL)
	if err := m.Preload(context.Background(), "v1", []string{"/"}); err == nil {
		t.Fatal("Expected preload to fail on a redirect")
	}
}

func TestDeleteAllExcept(t *testing.T) {
	m := testManager(t, "https://feeder.example")
	m.Put("v1", "GET https://feeder.example/", testResponse(200, "old"))
	m.Put("v2", "GET https://feeder.example/", testResponse(200, "new"))

	if err := m.DeleteAllExcept("v2"); err != nil {
		t.Fatalf("DeleteAllExcept: %v", err)
	}
	if _, ok, _ := m.Get("v1", "GET https://feeder.example/"); ok {
		t.Fatal("v1 lookup should miss after activation gc")
	}
	res, ok, _ := m.Get("v2", "GET https://feeder.example/")
	if !ok {
		t.Fatal("v2 entry lost")
	}
	body, _ := io.ReadAll(res.Body)
	if !bytes.Equal(body, []byte("new")) {
		t.Fatalf("Body is %q", body)
	}
}
