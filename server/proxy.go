package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/rs/zerolog/log"
)

// NewUpstreamProxy forwards gatekeeper-approved requests to the storefront at target.
// Identity headers set by the gatekeeper travel with the request. The gatekeeper owns the
// security headers, so upstream copies of them are dropped.
func NewUpstreamProxy(target string) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("[NewUpstreamProxy] parse %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[NewUpstreamProxy] %q must be an absolute URL", target)
	}

	owned := gatekeeper.SecurityHeaderNames()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			for _, name := range owned {
				resp.Header.Del(name)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Err(err).Str("path", r.URL.Path).Msg("storefront unavailable")
			writeJSONError(w, "Bad gateway", http.StatusBadGateway)
		},
	}, nil
}
