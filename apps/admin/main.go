package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jmoiron/sqlx"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
	appfs "github.com/kenamplan/backend/fs"
	emailsvc "github.com/kenamplan/backend/services/email"
	logsvc "github.com/kenamplan/backend/services/logger"
	"github.com/kenamplan/backend/storage/database"
	pgrepos "github.com/kenamplan/backend/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	logger, err := logsvc.NewLogger(conf)
	errAndDie(err)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// set up DB
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// set up services
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	mailSvc := newEmailService(conf, logger)
	cli := newCommandLine(db, conf, logger, mailSvc)

	err = cli.run(ctx, os.Args[1:])
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCommandLine(db *sqlx.DB, conf *core.Config, logger core.Logger, mailSvc core.EmailService) *commandLine {
	usrRepo := pgrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	catalogSvc := catalog.NewService(pgrepos.NewCatalogRepository(db))
	rentalSvc := rental.NewService(rental.Deps{
		Repo:       pgrepos.NewRentalRepository(db),
		Tx:         database.NewTransactor(db),
		CartSvc:    cart.NewService(pgrepos.NewCartRepository(db), catalogSvc, conf),
		CatalogSvc: catalogSvc,
		UserSvc:    usrSvc,
		MailSvc:    mailSvc,
		Logger:     logger,
		Conf:       conf,
	})
	return &commandLine{
		db:        db,
		usrRepo:   usrRepo,
		rentalSvc: rentalSvc,
		out:       os.Stdout,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
