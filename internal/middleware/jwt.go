package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/utils"
)

// Context keys set by JWTAuth. Handlers read them through getUserID and
// RequireRole reads CtxRole.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates the access token in the Authorization header and stores
// the caller's id (uint64) and role in the echo context under CtxUserID and
// CtxRole. The header must use the Bearer scheme; anything else, or a token
// that fails verification, ends the request with 401 Unauthorized. secret
// must be the same HMAC key the auth handler signs tokens with.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			// ParseAccessToken rejects non-HMAC signing methods and
			// tokens without a valid expiry or subject.
			claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}
