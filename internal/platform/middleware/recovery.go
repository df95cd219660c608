package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const panicStackSize = 4 << 10

// Recovery turns a handler panic into a 500 and logs it with the request it
// happened on. http.ErrAbortHandler is re-raised so net/http can drop the
// connection as it expects.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				logPanic(logger, c, r)
				err = echo.NewHTTPError(http.StatusInternalServerError,
					errorBody("internal_error", "internal server error")).SetInternal(fmt.Errorf("panic: %v", r))
			}()
			return next(c)
		}
	}
}

func logPanic(logger zerolog.Logger, c echo.Context, r interface{}) {
	buf := make([]byte, panicStackSize)
	buf = buf[:runtime.Stack(buf, false)]

	rid, _ := c.Get("request_id").(string)
	req := c.Request()
	logger.Error().
		Str("request_id", rid).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Interface("panic", r).
		Bytes("stack", buf).
		Msg("recovered from panic")
}
