package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request and feeds the request metrics.
// Paths are recorded by route template so ids do not explode label cardinality.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		path, method := RouteLabels(c)
		metrics.RecordRequest(path, method, status, latency)

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.IP()),
		}
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
		return err
	}
}

// RouteLabels returns the route template and method as owned strings.
// fasthttp reuses request buffers, and metric vectors keep their label values.
func RouteLabels(c *fiber.Ctx) (path, method string) {
	path = c.Route().Path
	if path == "" {
		path = c.Path()
	}
	return utils.CopyString(path), utils.CopyString(c.Method())
}
