package routepolicy

import (
	"net/http"
	"net/url"
	"strings"
)

// Route is the class a request falls into, which decides the caching
// strategy applied to it.
type Route string

const (
	// RouteIgnore requests pass straight through to the network.
	RouteIgnore Route = "ignore"
	// RouteNavigate is a top-level page navigation.
	RouteNavigate Route = "navigate"
	// RouteAsset is a static asset under a known prefix or extension.
	RouteAsset Route = "static-asset"
	// RouteAPI is every other same-origin GET.
	RouteAPI Route = "api"
)

var (
	// DefaultAssetPrefixes are the path prefixes classified as static assets.
	DefaultAssetPrefixes = []string{"/assets/", "/static/"}
	// DefaultAssetExtensions are the file extensions classified as static
	// assets (images and the web manifest).
	DefaultAssetExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".ico", ".webmanifest"}
)

// Policy classifies requests. It is a pure decision function and holds no
// mutable state.
type Policy struct {
	origin          url.URL
	assetPrefixes   []string
	assetExtensions []string
}

// New creates a routing policy for the given application origin.
// Empty prefix or extension lists fall back to the defaults.
func New(origin url.URL, assetPrefixes, assetExtensions []string) Policy {
	if len(assetPrefixes) == 0 {
		assetPrefixes = DefaultAssetPrefixes
	}
	if len(assetExtensions) == 0 {
		assetExtensions = DefaultAssetExtensions
	}
	return Policy{
		origin:          origin,
		assetPrefixes:   assetPrefixes,
		assetExtensions: assetExtensions,
	}
}

// Classify returns the route class for a request.
func (p Policy) Classify(r *http.Request) Route {
	if r.Method != http.MethodGet {
		return RouteIgnore
	}
	if !p.sameOrigin(r.URL) {
		return RouteIgnore
	}
	if IsNavigation(r) {
		return RouteNavigate
	}
	if p.isAsset(r.URL.Path) {
		return RouteAsset
	}
	return RouteAPI
}

// IsNavigation reports whether a request is a top-level HTML navigation.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// sameOrigin checks scheme and host. Relative URLs are considered
// same-origin, since they can only resolve against the application itself.
func (p Policy) sameOrigin(u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	return strings.EqualFold(u.Scheme, p.origin.Scheme) &&
		strings.EqualFold(u.Host, p.origin.Host)
}

func (p Policy) isAsset(path string) bool {
	for _, prefix := range p.assetPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, ext := range p.assetExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
