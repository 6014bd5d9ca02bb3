package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that rejects request bodies larger than the
// given limit. Limits are human-readable strings: "1M", "256K", a bare
// number is bytes.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// Reject early when the declared length already exceeds the
			// limit; otherwise enforce while reading.
			if req.ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds limit of %s", limit))
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)

			err := next(c)
			if err != nil && strings.Contains(err.Error(), "http: request body too large") {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds limit of %s", limit))
			}
			return err
		}
	}
}

func parseLimit(limit string) int64 {
	limit = strings.TrimSpace(strings.ToUpper(limit))
	if limit == "" {
		return 1 << 20
	}
	multiplier := int64(1)
	switch limit[len(limit)-1] {
	case 'K':
		multiplier = 1 << 10
		limit = limit[:len(limit)-1]
	case 'M':
		multiplier = 1 << 20
		limit = limit[:len(limit)-1]
	case 'G':
		multiplier = 1 << 30
		limit = limit[:len(limit)-1]
	}
	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * multiplier
}
