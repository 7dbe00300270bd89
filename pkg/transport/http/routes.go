package http

import (
	"net/http"
	"strings"

	"github.com/trygate-dev/trygate/pkg/auth"
)

// route is one entry of the gateway route table.
type route struct {
	method  string
	pattern string // slash-separated, "{x}" matches any one segment
	meta    auth.RouteMeta
}

// RouteTable maps requests to their authentication metadata. It mirrors
// the API surface registered on the adapter mux; unmatched paths are
// static assets and carry no metadata.
type RouteTable struct {
	routes []route
}

// Ensure RouteTable implements auth.RouteResolver at compile time.
var _ auth.RouteResolver = (*RouteTable)(nil)

// NewRouteTable builds the route table for the trygate API surface.
func NewRouteTable() *RouteTable {
	authed := auth.RouteMeta{Authenticated: true}
	admin := auth.RouteMeta{Authenticated: true, AdminOnly: true}
	open := auth.RouteMeta{}

	return &RouteTable{routes: []route{
		{http.MethodGet, "api/templates", open},
		{http.MethodPost, "api/telemetry/{event}", open},
		{http.MethodGet, "api/user", open},

		{http.MethodGet, "api/resource", authed},
		{http.MethodPost, "api/resource", authed},
		{http.MethodDelete, "api/resource", authed},
		{http.MethodGet, "api/resource/getpublishingprofile", authed},
		{http.MethodGet, "api/resource/mobileclient/{platform}", authed},

		{http.MethodGet, "api/resource/all", admin},
		{http.MethodGet, "api/resource/reset", admin},
		{http.MethodGet, "api/resource/reload", admin},
		{http.MethodGet, "api/events", admin},
	}}
}

// Resolve returns the metadata of the route matching the request. The
// second return value is false when no route matches.
func (t *RouteTable) Resolve(r *http.Request) (auth.RouteMeta, bool) {
	segs := splitPath(r.URL.Path)
	for _, rt := range t.routes {
		if rt.method != r.Method {
			continue
		}
		if matchSegments(splitPath(rt.pattern), segs) {
			return rt.meta, true
		}
	}
	return auth.RouteMeta{}, false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			continue
		}
		if !strings.EqualFold(p, segs[i]) {
			return false
		}
	}
	return true
}
