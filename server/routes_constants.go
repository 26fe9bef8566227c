package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Portal
	RouteIndex  = "/{$}"
	RouteLaunch = "/go/{id}"

	// Auth Routes - Login & Logout
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	RouteCallback   = "/callback"

	// API Routes
	RouteAPISession = "/api/session"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)
