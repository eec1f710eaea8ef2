package gatekeeper

import (
	"path"
	"strings"

	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
)

// Class is the protection level of a route
type Class int

const (
	ClassPublic Class = iota
	ClassProtected
	ClassAdmin
	ClassSeller
)

func (c Class) String() string {
	switch c {
	case ClassProtected:
		return "protected"
	case ClassAdmin:
		return "admin"
	case ClassSeller:
		return "seller"
	}
	return "public"
}

// Route is the classification of one request path
type Route struct {
	Path  string // Cleaned request path
	Class Class
	API   bool // Path is under /api/
	Scope ratelimit.Scope
}

// RouteTable holds path prefixes. Matching is by plain prefix, so /admin also covers /admin-tools.
type RouteTable struct {
	Protected []string
	Admin     []string
	Seller    []string
	AuthScope []string // Prefixes budgeted under the auth scope
}

func DefaultRouteTable() *RouteTable {
	return &RouteTable{
		Protected: []string{"/dashboard", "/profile", "/orders", "/wishlist", "/settings", "/checkout"},
		Admin:     []string{"/admin", "/api/admin"},
		Seller:    []string{"/seller", "/api/seller"},
		AuthScope: []string{"/api/auth"},
	}
}

// Protect adds protected prefixes and returns the table
func (t *RouteTable) Protect(prefixes ...string) *RouteTable {
	t.Protected = append(t.Protected, prefixes...)
	return t
}

// Classify works on the cleaned path so dot segments cannot step around a prefix
func (t *RouteTable) Classify(requestPath string) Route {
	p := CleanPath(requestPath)
	route := Route{
		Path:  p,
		Class: ClassPublic,
		API:   strings.HasPrefix(p, "/api/"),
		Scope: ratelimit.ScopeGeneral,
	}

	switch {
	case hasAnyPrefix(p, t.Admin):
		route.Class = ClassAdmin
	case hasAnyPrefix(p, t.Seller):
		route.Class = ClassSeller
	case hasAnyPrefix(p, t.Protected):
		route.Class = ClassProtected
	}

	switch {
	case hasAnyPrefix(p, t.AuthScope):
		route.Scope = ratelimit.ScopeAuth
	case route.Class == ClassAdmin:
		route.Scope = ratelimit.ScopeAdmin
	}
	return route
}

// CleanPath resolves dot segments and duplicate slashes, keeping a leading slash
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
