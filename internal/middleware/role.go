// Package middleware holds the echo middleware shared by every route group:
// token authentication, role checks, rate limiting, response caching and
// request observation.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns a middleware that lets the request through only when
// the authenticated caller has one of roles. The role is read from the
// context key CtxRole, so JWTAuth must run first. Callers without a role
// or with a role outside the set get 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Set of allowed roles; a present key is always true.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// JWTAuth stores the role as a string. Anything else counts
			// as missing.
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
