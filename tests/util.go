// Package testutil wires the application on in-memory storage and provides fixtures for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
	appfs "github.com/kenamplan/backend/fs"
	emailsvc "github.com/kenamplan/backend/services/email"
	logsvc "github.com/kenamplan/backend/services/logger"
	metricsvc "github.com/kenamplan/backend/services/metrics"
	inmemdb "github.com/kenamplan/backend/storage/database/inmem"
	"github.com/kenamplan/backend/storage/uploads"
)

// 1x1 transparent PNG
var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==",
)

// PNG returns a valid image upload.
func PNG() *bytes.Reader { return bytes.NewReader(pngPixel) }

// App holds the services of the application, wired on in-memory storage.
type App struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	UploadsFs  afero.Fs
	Files      core.FileStore
	Metrics    *metricsvc.Metrics

	UserRepo    user.Repository
	CatalogRepo catalog.Repository
	ArticleRepo article.Repository
	CartRepo    cart.Repository
	RentalRepo  rental.Repository

	UserSvc    user.Service
	CatalogSvc catalog.Service
	ArticleSvc article.Service
	CartSvc    cart.Service
	RentalSvc  rental.Service
}

// NewApp returns a fresh App; conf defaults to core.NewTestConfig().
// Sent emails are recorded synchronously, see emailsvc.Sent.
func NewApp(t testing.TB, conf ...*core.Config) *App {
	t.Helper()

	app := &App{Conf: core.NewTestConfig()}
	if len(conf) > 0 && conf[0] != nil {
		app.Conf = conf[0]
	}
	app.Logger = logsvc.NewNopLogger()
	app.Validate, app.Translator = core.NewValidator()
	user.InitValidators(app.Validate, app.Translator)
	core.ParseEmailTemplates(appfs.FS, app.Conf, app.Logger)
	emailsvc.ResetSentMessages()

	app.DB = inmemdb.Open()
	app.UploadsFs = afero.NewMemMapFs()
	app.Files = uploads.NewStore(app.UploadsFs, app.Conf, app.Logger)
	app.Metrics = metricsvc.New()

	app.UserRepo = inmemdb.NewUserRepository(app.DB)
	app.CatalogRepo = inmemdb.NewCatalogRepository(app.DB)
	app.ArticleRepo = inmemdb.NewArticleRepository(app.DB)
	app.CartRepo = inmemdb.NewCartRepository(app.DB)
	app.RentalRepo = inmemdb.NewRentalRepository(app.DB)

	mailSvc := emailsvc.NewConsoleServiceMock(app.Conf, app.Logger)
	app.UserSvc = user.NewService(app.UserRepo, mailSvc, app.Conf)
	app.CatalogSvc = catalog.NewService(app.CatalogRepo)
	app.ArticleSvc = article.NewService(app.ArticleRepo)
	app.CartSvc = cart.NewService(app.CartRepo, app.CatalogSvc, app.Conf)
	app.RentalSvc = rental.NewService(rental.Deps{
		Repo:       app.RentalRepo,
		Tx:         app.DB,
		CartSvc:    app.CartSvc,
		CatalogSvc: app.CatalogSvc,
		UserSvc:    app.UserSvc,
		MailSvc:    mailSvc,
		Files:      app.Files,
		Metrics:    app.Metrics,
		Logger:     app.Logger,
		Conf:       app.Conf,
	})
	return app
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if usr.Roles == nil {
		usr.Roles = []string{user.RoleCustomer}
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateCategory(t testing.TB, repo catalog.Repository, name, slug string, penaltyPerHour *decimal.Decimal) catalog.Category {
	t.Helper()

	now := time.Now().UTC()
	cat, err := repo.CreateCategory(context.Background(), catalog.Category{
		Name:           name,
		Slug:           slug,
		PenaltyPerHour: penaltyPerHour,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateCategory(): %v", err)
	}
	return cat
}

// CreateItem creates an item priced at pricePerDay (eg. "48.00").
func CreateItem(t testing.TB, repo catalog.Repository, categoryID, name, slug, pricePerDay string, stock int, isActive bool) catalog.Item {
	t.Helper()

	now := time.Now().UTC()
	it, err := repo.CreateItem(context.Background(), catalog.Item{
		CategoryID:  categoryID,
		Name:        name,
		Slug:        slug,
		PricePerDay: decimal.RequireFromString(pricePerDay),
		Stock:       stock,
		IsActive:    isActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateItem(): %v", err)
	}
	return it
}

func CreateArticle(t testing.TB, repo article.Repository, title, slug string, published bool, authorID string) article.Article {
	t.Helper()

	now := time.Now().UTC()
	a := article.Article{
		Title:       title,
		Slug:        slug,
		Content:     "Lorem ipsum for " + title,
		IsPublished: published,
		AuthorID:    authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if published {
		a.PublishedAt = &now
	}
	a, err := repo.CreateArticle(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateArticle(): %v", err)
	}
	return a
}

// AddToCart puts an item in the user's cart, bypassing the start date validation.
func AddToCart(t testing.TB, repo cart.Repository, userID, itemID string, qty int, start, end time.Time) cart.CartItem {
	t.Helper()

	now := time.Now().UTC()
	ci, err := repo.CreateCartItem(context.Background(), cart.CartItem{
		UserID:    userID,
		ItemID:    itemID,
		Quantity:  qty,
		StartDate: start.UTC(),
		EndDate:   end.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("AddToCart(): %v", err)
	}
	return ci
}

// Checkout rents qty of the item from start to end and returns the pending rental.
func (app *App) Checkout(t testing.TB, userID, itemID string, qty int, start, end time.Time) rental.Rental {
	t.Helper()

	if start.Before(time.Now()) {
		// back-dated rentals are checked out on their start date
		defer func(f func() time.Time) { cart.NowFunc = f }(cart.NowFunc)
		cart.NowFunc = func() time.Time { return start }
	}
	AddToCart(t, app.CartRepo, userID, itemID, qty, start, end)
	r, err := app.RentalSvc.Checkout(context.Background(), userID, rental.Checkout{})
	if err != nil {
		t.Fatalf("Checkout(): %v", err)
	}
	return r
}

// ConfirmedRental walks a rental through checkout, payment proof and confirmation.
func (app *App) ConfirmedRental(t testing.TB, customer user.User, adminID, itemID string, qty int, start, end time.Time) rental.Rental {
	t.Helper()

	ctx := context.Background()
	r := app.Checkout(t, customer.ID, itemID, qty, start, end)
	r, err := app.RentalSvc.UploadPaymentProof(ctx, customer, r.ID, PNG(), "proof.png")
	if err != nil {
		t.Fatalf("ConfirmedRental(): uploading proof: %v", err)
	}
	if r, err = app.RentalSvc.Confirm(ctx, r.ID, adminID); err != nil {
		t.Fatalf("ConfirmedRental(): confirming: %v", err)
	}
	return r
}
