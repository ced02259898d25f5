package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
)

type (
	// Metrics observes requests and exposes the collected metrics.
	Metrics interface {
		RequestObserver
		Handler() http.Handler
	}

	// HealthChecker reports whether the storage backend is reachable.
	HealthChecker interface {
		PingContext(ctx context.Context) error
	}

	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		AccessLog  *zap.Logger // nil disables request logs
		Validate   *validator.Validate
		Translator ut.Translator
		DB         HealthChecker // nil when running on in-memory storage
		Metrics    Metrics       // optional
		Files      core.FileStore

		UserSvc    user.Service
		CatalogSvc catalog.Service
		ArticleSvc article.Service
		CartSvc    cart.Service
		RentalSvc  rental.Service
	}

	Server interface {
		http.Handler
		Start() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		app      *echo.Echo
		auth     *Auth
		deps     *Deps
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps *Deps) Server {
	s := &server{
		app:      echo.New(),
		auth:     NewAuth(deps.Conf),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if s.deps.AccessLog != nil && !conf.Server.DisableReqLogs {
		s.app.Use(accessLogMiddleware(s.deps.AccessLog))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if len(conf.Server.AllowedOrigins) > 0 {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: conf.Server.AllowedOrigins}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	s.app.GET("/", home(conf.AppName))
	s.app.GET("/health", s.health)
	if conf.Uploads.Dir != "" {
		s.app.Static(conf.Uploads.BaseURL, conf.Uploads.Dir)
	}

	api := s.app.Group("/api")
	mw := newMiddlewares(s.auth, s.deps.UserSvc)

	registerUserAPI(api, s.auth, mw, s.deps)
	registerCatalogAPI(api, mw, s.deps)
	registerArticleAPI(api, mw, s.deps)
	registerCartAPI(api, mw, s.deps)
	registerRentalAPI(api, mw, s.deps)
	registerAdminAPI(api, mw, s.deps)
}

func (s *server) Start() error {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Address())
	err := s.app.Start(s.deps.Conf.Server.Address())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
		return err
	}
	return nil
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(appName string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+appName+" API!")
	}
}

func (s *server) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": s.deps.Conf.Build}
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(ctx.Request().Context()); err != nil {
			s.deps.Logger.Warn("health check: database unreachable", err)
			status["status"] = "db unreachable"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}
