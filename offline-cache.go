package offlinecache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/cat-feeder/offline-cache/cache"
	routepolicy "github.com/cat-feeder/offline-cache/pkg/route-policy"

	"github.com/rs/zerolog"
)

// DefaultVersion is the store version baked in at build time.
// Bump it whenever the preload set or the routing rules change: a version
// bump is the only invalidation path for stored responses.
const DefaultVersion = "cat-feeder-v2"

// DefaultPreload is the fixed asset list guaranteed present in the store
// immediately after a successful install.
var DefaultPreload = []string{
	"/",
	"/screen",
	"/screen/status",
	"/pets/list",
	"/manifest.webmanifest",
	"/assets/tuxedo-cat.png",
	"/apple-touch-icon.png",
}

type Config struct {
	// Storage for captured responses. If nil, the worker degrades to a
	// pure network pass-through.
	Store cache.StoreProvider
	// URL of the application origin whose requests are intercepted.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Store version to serve from. DefaultVersion is used if empty.
	Version string
	// Resources fetched into the store at install time.
	// DefaultPreload is used if empty.
	Preload []string
	// Path prefixes classified as static assets.
	AssetPrefixes []string
	// File extensions classified as static assets.
	AssetExtensions []string
	// Transport used for origin fetches. http.DefaultTransport if nil.
	Transport http.RoundTripper
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Worker intercepts every outgoing request of the application it serves.
// It implements http.RoundTripper, so it can be installed as (or wrapped
// around) an http.Client transport, and http.Handler for running as a
// local proxy in front of the origin.
type Worker struct {
	store     *cache.Manager
	policy    routepolicy.Policy
	transport http.RoundTripper
	origin    url.URL
	version   string
	preload   []string
	log       zerolog.Logger
	writes    sync.WaitGroup
}

// New initializes a worker instance.
func New(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	version := config.Version
	if version == "" {
		version = DefaultVersion
	}
	preload := config.Preload
	if len(preload) == 0 {
		preload = DefaultPreload
	}
	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", version).
		Logger()

	w := &Worker{
		policy:    routepolicy.New(config.OriginURL, config.AssetPrefixes, config.AssetExtensions),
		transport: transport,
		origin:    config.OriginURL,
		version:   version,
		preload:   preload,
		log:       logger,
	}
	if config.Store != nil {
		w.store = cache.NewManager(config.Store, config.OriginURL, transport, logger)
	} else {
		logger.Warn().Msg("No store configured, passing all requests through")
	}
	return w
}

// RoundTrip implements the http.RoundTripper interface.
// It is the single entry point for every outgoing request.
func (w *Worker) RoundTrip(r *http.Request) (*http.Response, error) {
	if w.store == nil {
		return w.transport.RoundTrip(r)
	}
	route := w.policy.Classify(r)
	w.log.Trace().Str("url", r.URL.String()).Str("route", string(route)).Msg("Classified request")
	switch route {
	case routepolicy.RouteAsset:
		return w.cacheFirst(r)
	case routepolicy.RouteNavigate, routepolicy.RouteAPI:
		return w.networkFirst(r)
	default:
		// non-GET and cross-origin requests reach the network untouched
		return w.transport.RoundTrip(r)
	}
}

// cacheFirst serves from the store when present, with no freshness check:
// store entries are valid until the version is superseded. On a miss it
// fetches from network, storing 200s as a detached side effect. Network
// failures are propagated as-is, since static assets have no safe generic
// substitute.
func (w *Worker) cacheFirst(r *http.Request) (*http.Response, error) {
	key := cache.Key(r)
	if res, ok, err := w.store.Get(w.version, key); err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not read from store")
	} else if ok {
		w.log.Trace().Str("key", key).Msg("Store hit")
		return res, nil
	}
	res, err := w.transport.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	w.storeDetached(key, res)
	return res, nil
}

// networkFirst fetches first. A live answer always wins, whatever its
// status: a stale stored 200 never masks an origin 404. Only on network
// failure does it fall back to the store, and as a last resort to a
// synthesized offline response.
func (w *Worker) networkFirst(r *http.Request) (*http.Response, error) {
	key := cache.Key(r)
	res, err := w.transport.RoundTrip(r)
	if err == nil {
		w.storeDetached(key, res)
		return res, nil
	}
	w.log.Debug().Err(err).Str("key", key).Msg("Origin unreachable, trying store")
	if stored, ok, serr := w.store.Get(w.version, key); serr != nil {
		w.log.Error().Err(serr).Str("key", key).Msg("Could not read from store")
	} else if ok {
		return stored, nil
	}
	if routepolicy.IsNavigation(r) {
		w.log.Debug().Str("key", key).Msg("Serving offline fallback page")
		return fallbackDocument(r), nil
	}
	return unavailableResponse(r), nil
}

// storeDetached persists a copy of the response in the background.
// The body is buffered first so the caller can still read it. The write
// is fire-and-forget: once begun it completes even if the surrounding
// request is aborted, and a failed write never fails the in-flight
// response. Non-200 responses are never persisted.
func (w *Worker) storeDetached(key string, res *http.Response) {
	if res.StatusCode != http.StatusOK {
		return
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not buffer response body")
		return
	}
	clone := cloneResponse(res, body)
	w.writes.Add(1)
	go func() {
		defer w.writes.Done()
		if err := w.store.Put(w.version, key, clone); err != nil {
			w.log.Error().Err(err).Str("key", key).Msg("Could not write to store")
		}
	}()
}

// Flush waits for all detached store writes started so far to finish.
func (w *Worker) Flush() {
	w.writes.Wait()
}

// ServeHTTP implements the http.Handler interface. Incoming requests are
// rewritten to the origin and round-tripped through the worker, making it
// usable as a local offline-capable proxy for the application.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.URL.Scheme = w.origin.Scheme
	out.URL.Host = w.origin.Host
	out.Host = w.origin.Host
	out.RequestURI = ""

	res, err := w.RoundTrip(out)
	if err != nil {
		http.Error(rw, "Could not get response", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	if _, err := io.Copy(rw, res.Body); err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

func cloneResponse(res *http.Response, body []byte) *http.Response {
	return &http.Response{
		Status:        res.Status,
		StatusCode:    res.StatusCode,
		Proto:         res.Proto,
		ProtoMajor:    res.ProtoMajor,
		ProtoMinor:    res.ProtoMinor,
		Header:        res.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
