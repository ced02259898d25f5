package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
)

type catalogApi struct {
	svc      catalog.Service
	files    core.FileStore
	logger   core.Logger
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, mw middlewares, deps *Deps) {
	api := catalogApi{
		svc:      deps.CatalogSvc,
		files:    deps.Files,
		logger:   deps.Logger,
		validate: deps.Validate,
	}
	admin := mw.admin

	cg := g.Group("/categories")
	cg.GET("", api.queryCategories)
	cg.GET("/:slug", api.retrieveCategory)
	cg.POST("", api.createCategory, admin...)
	cg.PUT("/:id", api.updateCategory, admin...)
	cg.DELETE("/:id", api.destroyCategory, admin...)

	ig := g.Group("/items")
	ig.GET("", api.queryItems, mw.optional)
	ig.GET("/:id", api.retrieveItem, mw.optional)
	ig.POST("", api.createItem, admin...)
	ig.PUT("/:id", api.updateItem, admin...)
	ig.DELETE("/:id", api.destroyItem, admin...)
	ig.POST("/:id/image", api.uploadItemImage, admin...)
}

// Categories

func (api *catalogApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.QueryCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) retrieveCategory(ctx echo.Context) error {
	cat, err := api.svc.GetCategoryBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) updateCategory(ctx echo.Context) error {
	var data catalog.UpdateCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) destroyCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Items

func (api *catalogApi) queryItems(ctx echo.Context) error {
	filter := new(catalog.ItemFilter)
	if err := bindQuery(ctx, filter); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, catalog.ItemOrderingFields)

	// only admins browse inactive items
	if !isAdminRequest(ctx) {
		active := true
		filter.IsActive = &active
	}

	items, err := api.svc.QueryItems(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *catalogApi) retrieveItem(ctx echo.Context) error {
	it, err := api.svc.GetItem(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting item")
	}
	if !it.IsActive && !isAdminRequest(ctx) {
		return errors.Wrap(catalog.ErrItemNotFound, "getting item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *catalogApi) createItem(ctx echo.Context) error {
	var data catalog.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.CreateItem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *catalogApi) updateItem(ctx echo.Context) error {
	var data catalog.UpdateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.UpdateItem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *catalogApi) destroyItem(ctx echo.Context) error {
	if err := api.svc.DeleteItem(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) uploadItemImage(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	it, err := api.svc.GetItem(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting item")
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return errMissingFile
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer src.Close()

	url, err := api.files.Save(reqCtx, src, fh.Filename, core.ImageContentTypes...)
	if err != nil {
		return errors.Wrap(err, "saving item image")
	}
	prev := it.ImageURL
	if it, err = api.svc.SetItemImage(reqCtx, it.ID, url); err != nil {
		return errors.Wrap(err, "setting item image")
	}
	if prev != "" {
		if err = api.files.Delete(reqCtx, prev); err != nil {
			api.logger.Warn("deleting previous item image", err)
		}
	}
	return ctx.JSON(http.StatusOK, it)
}
