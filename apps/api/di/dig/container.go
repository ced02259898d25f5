package dig_container

import (
	"context"
	"log"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/kenamplan/backend/apps/api/echo"
	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
	emailsvc "github.com/kenamplan/backend/services/email"
	logsvc "github.com/kenamplan/backend/services/logger"
	metricsvc "github.com/kenamplan/backend/services/metrics"
	"github.com/kenamplan/backend/storage/database"
	inmemdb "github.com/kenamplan/backend/storage/database/inmem"
	pgrepos "github.com/kenamplan/backend/storage/database/postgres"
	"github.com/kenamplan/backend/storage/uploads"
)

type (
	// DBCloser releases the storage backend.
	DBCloser func() error

	// Storage is what the selected storage engine provides.
	Storage struct {
		dig.Out
		Tx          core.Transactor
		Health      echoapi.HealthChecker
		Close       DBCloser
		UserRepo    user.Repository
		CatalogRepo catalog.Repository
		ArticleRepo article.Repository
		CartRepo    cart.Repository
		RentalRepo  rental.Repository
	}

	rentalParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Repo       rental.Repository
		Tx         core.Transactor
		CartSvc    cart.Service
		CatalogSvc catalog.Service
		UserSvc    user.Service
		MailSvc    core.EmailService
		Files      core.FileStore
		Metrics    *metricsvc.Metrics
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     *logsvc.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		DB         echoapi.HealthChecker
		Metrics    *metricsvc.Metrics
		Files      core.FileStore
		UserSvc    user.Service
		CatalogSvc catalog.Service
		ArticleSvc article.Service
		CartSvc    cart.Service
		RentalSvc  rental.Service
	}
)

func newLogger(conf *core.Config) (*logsvc.Logger, error) {
	return logsvc.NewLogger(conf)
}

func asCoreLogger(l *logsvc.Logger) core.Logger { return l }

// newStorage opens the configured storage engine; postgres is created & migrated when needed.
func newStorage(conf *core.Config, logger core.Logger) (Storage, error) {
	if conf.StorageEngine == "inmem" {
		logger.Warn("using in-memory storage: data will be lost on exit")
		db := inmemdb.Open()
		return Storage{
			Tx:          db,
			Health:      db,
			Close:       func() error { return nil },
			UserRepo:    inmemdb.NewUserRepository(db),
			CatalogRepo: inmemdb.NewCatalogRepository(db),
			ArticleRepo: inmemdb.NewArticleRepository(db),
			CartRepo:    inmemdb.NewCartRepository(db),
			RentalRepo:  inmemdb.NewRentalRepository(db),
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return Storage{}, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	return Storage{
		Tx:          database.NewTransactor(db),
		Health:      db,
		Close:       db.Close,
		UserRepo:    pgrepos.NewUserRepository(db),
		CatalogRepo: pgrepos.NewCatalogRepository(db),
		ArticleRepo: pgrepos.NewArticleRepository(db),
		CartRepo:    pgrepos.NewCartRepository(db),
		RentalRepo:  pgrepos.NewRentalRepository(db),
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRentalService(p rentalParams) rental.Service {
	return rental.NewService(rental.Deps{
		Repo:       p.Repo,
		Tx:         p.Tx,
		CartSvc:    p.CartSvc,
		CatalogSvc: p.CatalogSvc,
		UserSvc:    p.UserSvc,
		MailSvc:    p.MailSvc,
		Files:      p.Files,
		Metrics:    p.Metrics,
		Logger:     p.Logger,
		Conf:       p.Conf,
	})
}

func newServer(p serverParams) echoapi.Server {
	var accessLog *zap.Logger
	if !p.Conf.TestMode {
		accessLog = p.Logger.Zap().Named("http")
	}
	return echoapi.NewServer(&echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		AccessLog:  accessLog,
		Validate:   p.Validate,
		Translator: p.Translator,
		DB:         p.DB,
		Metrics:    p.Metrics,
		Files:      p.Files,
		UserSvc:    p.UserSvc,
		CatalogSvc: p.CatalogSvc,
		ArticleSvc: p.ArticleSvc,
		CartSvc:    p.CartSvc,
		RentalSvc:  p.RentalSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(asCoreLogger))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(uploads.NewLocalStore))
	must(c.Provide(metricsvc.New))
	must(c.Provide(core.NewValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(catalog.NewService))
	must(c.Provide(article.NewService))
	must(c.Provide(cart.NewService))
	must(c.Provide(newRentalService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
