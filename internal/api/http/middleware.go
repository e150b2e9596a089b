package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/observability"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				path, method := observability.RouteLabels(c)
				metrics.RecordError(path, method, string(domainErr.Code))

				body := fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}
				if len(domainErr.Details) > 0 {
					body["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= http.StatusInternalServerError {
					logger.Error("request failed", zap.String("path", path), zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(fiber.Map{"error": body})
				err = nil
			}
		}()
		return c.Next()
	}
}

// toDomainError also understands fiber's own errors (unknown route, bad method, body limits).
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := apperrors.KindValidation
		switch {
		case fiberErr.Code == http.StatusNotFound:
			kind = apperrors.KindNotFound
		case fiberErr.Code == http.StatusUnauthorized:
			kind = apperrors.KindUnauthorized
		case fiberErr.Code == http.StatusForbidden:
			kind = apperrors.KindForbidden
		case fiberErr.Code == http.StatusTooManyRequests:
			kind = apperrors.KindRateLimited
		case fiberErr.Code >= http.StatusInternalServerError:
			return apperrors.ToDomainError(apperrors.NewInternalError(err))
		}
		return apperrors.NewDomainError(kind, fiberErr.Message, fiberErr.Code, nil)
	}
	return apperrors.ToDomainError(err)
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP; idle buckets are swept lazily.
type ipRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(cfg config.RateLimitConfig) *ipRateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(cfg.PerSecond),
		burst:   burst,
		idleTTL: 5 * time.Minute,
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for key, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit throttles requests per client IP. A non-positive rate disables it.
func RateLimit(cfg config.RateLimitConfig) fiber.Handler {
	if cfg.PerSecond <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	limiter := newIPRateLimiter(cfg)
	return func(c *fiber.Ctx) error {
		ip := utils.CopyString(c.IP())
		if ip == "" {
			ip = "unknown"
		}
		if !limiter.allow(ip) {
			return apperrors.NewRateLimited()
		}
		return c.Next()
	}
}
