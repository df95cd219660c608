package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit int64 = 1 << 20

// Longest suffix first so "MB" is not read as "B".
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
}

// BodyLimit answers 413 once a request body grows past limit, given as
// "1M", "512K", "1G" or a plain byte count. Bodies without a trustworthy
// Content-Length are counted while the handler reads them.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return payloadTooLargeError(max)
			}
			req.Body = &countingBody{ReadCloser: req.Body, max: max}
			return next(c)
		}
	}
}

type countingBody struct {
	io.ReadCloser
	max  int64
	read int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	if b.read > b.max {
		return 0, payloadTooLargeError(b.max)
	}
	// Allow one byte past max so an oversized body is noticed.
	if room := b.max - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return 0, payloadTooLargeError(b.max)
	}
	return n, err
}

func payloadTooLargeError(max int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		errorBody("payload_too_large", fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", max)))
}

func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	multiplier := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, multiplier = strings.TrimSuffix(s, u.suffix), u.bytes
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n * multiplier
}
