package cache

import (
	"path/filepath"
	"sort"
	"testing"
)

func testProviders(t *testing.T) map[string]StoreProvider {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "store.bolt"))
	if err != nil {
		t.Fatalf("Could not open bolt store: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })
	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	t.Cleanup(func() { sqlite.Close() })
	return map[string]StoreProvider{
		"sqlite": sqlite,
		"bolt":   bolt,
		"memory": NewMemStore(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			if err := p.Put("v1", "GET /screen", []byte("stored bytes")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, ok, err := p.Get("v1", "GET /screen")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if string(got) != "stored bytes" {
				t.Fatalf("Got %q", got)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := p.Get("v1", "GET /nothing"); ok || err != nil {
				t.Fatalf("Expected miss, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestOpenIdempotent(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			if err := p.Open("v1"); err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := p.Put("v1", "GET /", []byte("root")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			// reopening must not lose or duplicate entries
			if err := p.Open("v1"); err != nil {
				t.Fatalf("Open again: %v", err)
			}
			got, ok, err := p.Get("v1", "GET /")
			if err != nil || !ok || string(got) != "root" {
				t.Fatalf("Get after reopen: %q ok=%v err=%v", got, ok, err)
			}
			versions, err := p.Versions()
			if err != nil {
				t.Fatalf("Versions: %v", err)
			}
			if len(versions) != 1 || versions[0] != "v1" {
				t.Fatalf("Versions: %v", versions)
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			if err := p.Put("v1", "GET /status", []byte("first")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := p.Put("v1", "GET /status", []byte("second")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, ok, _ := p.Get("v1", "GET /status")
			if !ok || string(got) != "second" {
				t.Fatalf("Got %q ok=%v", got, ok)
			}
		})
	}
}

func TestVersionsAreIsolated(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			p.Put("v1", "GET /", []byte("old"))
			p.Put("v2", "GET /", []byte("new"))
			got, ok, _ := p.Get("v1", "GET /")
			if !ok || string(got) != "old" {
				t.Fatalf("v1 entry is %q ok=%v", got, ok)
			}
			got, ok, _ = p.Get("v2", "GET /")
			if !ok || string(got) != "new" {
				t.Fatalf("v2 entry is %q ok=%v", got, ok)
			}
		})
	}
}

func TestDeleteVersion(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			p.Put("v1", "GET /", []byte("old"))
			p.Put("v2", "GET /", []byte("new"))
			if err := p.DeleteVersion("v1"); err != nil {
				t.Fatalf("DeleteVersion: %v", err)
			}
			if _, ok, _ := p.Get("v1", "GET /"); ok {
				t.Fatal("v1 entry still present after delete")
			}
			if _, ok, _ := p.Get("v2", "GET /"); !ok {
				t.Fatal("v2 entry lost")
			}
			versions, err := p.Versions()
			if err != nil {
				t.Fatalf("Versions: %v", err)
			}
			sort.Strings(versions)
			if len(versions) != 1 || versions[0] != "v2" {
				t.Fatalf("Versions: %v", versions)
			}
			// deleting an absent version is a no-op
			if err := p.DeleteVersion("v1"); err != nil {
				t.Fatalf("DeleteVersion absent: %v", err)
			}
		})
	}
}
