package middleware

import (
	"time"

	"github.com/ndltd-tw/papergraph/internal/util"
	"github.com/ndltd-tw/papergraph/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestID keeps a well formed incoming X-Request-Id and replaces anything
// else with a fresh nanoid.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if !util.IsNanoid(id) {
				id = util.NewRequestID()
				c.Request().Header.Set(echo.HeaderXRequestID, id)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestLogger logs one line per request through the project logger.
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			keyvals := []any{
				"id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
			}
			if u := CurrentUser(c); u != nil {
				keyvals = append(keyvals, "user", u.Subject, "role", u.Role)
			}
			if v.Error != nil {
				logger.Warn("Request", append(keyvals, "err", v.Error)...)
				return nil
			}
			logger.Info("Request", keyvals...)
			return nil
		},
	})
}
