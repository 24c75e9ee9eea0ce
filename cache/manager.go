package cache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	serializer "github.com/cat-feeder/offline-cache/pkg/response-serializer"

	"github.com/rs/zerolog"
)

// Key returns the store key for a request: the method and absolute URL.
// Only GET responses are ever stored, but the method is part of the key
// so that distinct identities never collide.
func Key(r *http.Request) string {
	return r.Method + " " + r.URL.String()
}

// Manager owns all store versions. Strategies and the lifecycle
// controller read and write stores exclusively through it.
type Manager struct {
	provider StoreProvider
	origin   url.URL
	client   http.Client
	log      zerolog.Logger
}

// NewManager creates a store manager on top of the given provider.
// Preload fetches go to the given origin using transport
// (http.DefaultTransport if nil).
func NewManager(provider StoreProvider, origin url.URL, transport http.RoundTripper, logger zerolog.Logger) *Manager {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Manager{
		provider: provider,
		origin:   origin,
		client: http.Client{
			Transport: transport,
			// do not follow redirects: a redirect is stored as-is
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: logger,
	}
}

// Open idempotently opens the store for a version, creating it if absent.
func (m *Manager) Open(version string) error {
	return m.provider.Open(version)
}

// Preload fetches each path from the origin and inserts it into the
// version's store. The first failed fetch (network error or non-200)
// aborts the preload with an error, so the caller can abort its install
// transition and leave the previous version active.
func (m *Manager) Preload(ctx context.Context, version string, paths []string) error {
	if err := m.provider.Open(version); err != nil {
		return fmt.Errorf("opening store %s: %w", version, err)
	}
	for _, path := range paths {
		target := m.origin.ResolveReference(&url.URL{Path: path})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return fmt.Errorf("preload %s: %w", path, err)
		}
		res, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("preload %s: %w", path, err)
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			return fmt.Errorf("preload %s: got status %d", path, res.StatusCode)
		}
		if err := m.Put(version, Key(req), res); err != nil {
			return fmt.Errorf("preload %s: %w", path, err)
		}
		m.log.Trace().Str("version", version).Str("path", path).Msg("Preloaded")
	}
	return nil
}

// Get returns the stored response for a key, if it exists.
func (m *Manager) Get(version, key string) (*http.Response, bool, error) {
	bytes, ok, err := m.provider.Get(version, key)
	if err != nil || !ok {
		return nil, false, err
	}
	captured, err := serializer.BytesToCaptured(bytes)
	if err != nil {
		return nil, false, err
	}
	return captured.Response, true, nil
}

// Put stores a response under the key. Responses with a status other than
// 200 are never persisted; for those Put is a no-op. The response body is
// consumed.
func (m *Manager) Put(version, key string, res *http.Response) error {
	if res.StatusCode != http.StatusOK {
		m.log.Trace().Str("key", key).Int("http-status", res.StatusCode).Msg("Not storing non-200 response")
		return nil
	}
	bytes, err := serializer.CapturedToBytes(serializer.CapturedResponse{
		Response:   res,
		CapturedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	m.log.Trace().Str("key", key).Str("version", version).Msg("Writing to store")
	return m.provider.Put(version, key, bytes)
}

// DeleteAllExcept removes every store version other than the one named.
// It is used during activation garbage collection.
func (m *Manager) DeleteAllExcept(keep string) error {
	versions, err := m.provider.Versions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v == keep {
			continue
		}
		if err := m.provider.DeleteVersion(v); err != nil {
			return err
		}
		m.log.Debug().Str("version", v).Msg("Deleted superseded store")
	}
	return nil
}
