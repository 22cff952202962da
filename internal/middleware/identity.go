package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID renders the authenticated user as a string for cache and
// rate limit keys. JWTAuth stores a uint64, but tests and older callers may
// set other integer types or a string, so each is accepted. Unauthenticated
// requests, and zero or empty ids, map to "anon" and share one bucket.
func currentUserID(c echo.Context) string {
	switch v := c.Get(CtxUserID).(type) {
	case uint64:
		if v != 0 {
			return strconv.FormatUint(v, 10)
		}
	case int64:
		if v != 0 {
			return strconv.FormatInt(v, 10)
		}
	case int:
		if v != 0 {
			return strconv.Itoa(v)
		}
	case string:
		if v != "" {
			return v
		}
	}
	return "anon"
}
