package gatekeeper

import (
	"net/http"
	"strings"
)

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self' 'unsafe-inline' 'unsafe-eval'",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data: https: blob:",
	"font-src 'self' data:",
	"connect-src 'self' https:",
	"frame-ancestors 'none'",
}, "; ")

var securityHeaders = map[string]string{
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"X-Frame-Options":           "DENY",
	"X-Content-Type-Options":    "nosniff",
	"X-XSS-Protection":          "1; mode=block",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Content-Security-Policy":   contentSecurityPolicy,
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=(), payment=(self), usb=(), magnetometer=(), gyroscope=(), accelerometer=()",
}

// SecurityHeaderNames lists the headers the gatekeeper owns. Upstream values for them are dropped.
func SecurityHeaderNames() []string {
	names := make([]string, 0, len(securityHeaders))
	for name := range securityHeaders {
		names = append(names, name)
	}
	return names
}

func setSecurityHeaders(h http.Header) {
	for name, value := range securityHeaders {
		h.Set(name, value)
	}
}

func (g *Gatekeeper) setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", g.cfg.GetAppOrigin())
	h.Set("Access-Control-Allow-Methods", g.cfg.GetAllowedMethods())
	h.Set("Access-Control-Allow-Headers", g.cfg.GetAllowedHeaders())
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
}

// SecurityHeadersMiddleware sets the security headers for routes that do not pass through Evaluate,
// and for responses written before it runs
func SecurityHeadersMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		next(w, r)
	}
}
