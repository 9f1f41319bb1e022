package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// identity is the caller id used in rate limit keys and request logs:
// the user id when JWTAuth ran, "anon" otherwise.
func identity(c echo.Context) string {
	if uid, ok := c.Get(ctxUserID).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
