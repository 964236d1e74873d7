package manabi

import "net/http"

// Role is a user authorization level. Roles are ranked: admin > instructor >
// learner, and a route requiring a role accepts any role ranked at or above it.
type Role string

const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Platform routes share the mux, auth chain, and OTEL instrumentation with
// the built-in routes. The function is called once during New() after all
// built-in routes are registered.
type RouteRegistrar func(mux *http.ServeMux, auth AuthHelper)

// AuthHelper provides RBAC middleware for use in RouteRegistrar.
// It wraps the server's role middleware so embedded routes use the same auth
// chain without depending on internal packages directly.
type AuthHelper interface {
	RequireRole(role Role) func(http.Handler) http.Handler
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /health. Use for tenant gating, custom logging, or cross-cutting headers.
// Multiple middlewares are applied in registration order (first-registered =
// outermost).
type Middleware func(http.Handler) http.Handler
