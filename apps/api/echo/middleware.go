package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/user"
)

// RequestObserver records the outcome of every request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

type middlewares struct {
	authed   []echo.MiddlewareFunc // valid JWT & active user
	admin    []echo.MiddlewareFunc // authed & admin role
	optional echo.MiddlewareFunc   // reads the JWT when one is sent
}

func newMiddlewares(auth *Auth, svc user.Service) middlewares {
	authed := []echo.MiddlewareFunc{auth.Middleware(), activeUserMiddleware(svc)}
	return middlewares{
		authed:   authed,
		admin:    append(authed[:len(authed):len(authed)], adminMiddleware()),
		optional: auth.OptionalMiddleware(),
	}
}

// adminMiddleware checks the roles of the user loaded by activeUserMiddleware, not the ones in the token.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok := ctx.Get(contextUserKey).(user.User)
			if !ok {
				return errUnauthorized
			}
			if usr.IsAdmin() && hasAnyRole(usr.Roles, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// activeUserMiddleware loads the authenticated user, rejecting deactivated accounts.
func activeUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextUser(ctx, svc); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// isAdminRequest reports whether the request carries an admin's token.
func isAdminRequest(ctx echo.Context) bool {
	claims, err := getContextClaims(ctx)
	return err == nil && claims.IsAdmin
}

// rateLimitMiddleware throttles requests per client IP.
func rateLimitMiddleware(conf core.RateLimitConfig) echo.MiddlewareFunc {
	if conf.AuthRate <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(conf.AuthRate),
		Burst:     conf.AuthBurst,
		ExpiresIn: 10 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client").SetInternal(err)
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
		},
	})
}

// accessLogMiddleware writes one zap entry per request.
func accessLogMiddleware(zl *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(ctx echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.RequestID != "" {
				fields = append(fields, zap.String("request_id", v.RequestID))
			}
			if claims, err := getContextClaims(ctx); err == nil {
				fields = append(fields, zap.String("user_id", claims.Subject))
			}
			zl.Info("request", fields...)
			return nil
		},
	})
}

// metricsMiddleware reports every request to obs, keyed by its route pattern.
func metricsMiddleware(obs RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err) // writes the response so its status is known
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
