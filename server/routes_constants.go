package server

// Route path constants
// Every other path is handed to the storefront through the gatekeeper
const (
	// Auth API
	RouteAuthLogin           = "/api/auth/login"
	RouteAuthLogout          = "/api/auth/logout"
	RouteAuthRefresh         = "/api/auth/refresh"
	RouteAuthMe              = "/api/auth/me"
	RouteAPIValidatePassword = "/api/auth/password/validate"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
