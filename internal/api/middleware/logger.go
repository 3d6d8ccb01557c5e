// Package middleware provides the middleware for the Echo instance
package middleware

import (
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupLoggerMiddleware adds request ids, request logging and panic recovery, all logged through zaplogger
func SetupLoggerMiddleware(e *echo.Echo) {
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogRequestID: true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := zaplogger.Fields{
				"id":      v.RequestID,
				"ip":      v.RemoteIP,
				"req":     v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				zaplogger.Warn("request", fields)
				return nil
			}
			zaplogger.Debug("request", fields)
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			zaplogger.Error("panic recovered", zaplogger.Fields{
				"uri":   c.Request().RequestURI,
				"error": err.Error(),
				"stack": string(stack),
			})
			return err
		},
	}))
}
