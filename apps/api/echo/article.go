package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core/article"
)

type articleApi struct {
	svc      article.Service
	validate *validator.Validate
}

func registerArticleAPI(g *echo.Group, mw middlewares, deps *Deps) {
	api := articleApi{svc: deps.ArticleSvc, validate: deps.Validate}

	ag := g.Group("/articles")
	ag.GET("", api.query, mw.optional)
	ag.GET("/:slug", api.retrieve, mw.optional)
	ag.POST("", api.create, mw.admin...)
	ag.PUT("/:id", api.update, mw.admin...)
	ag.DELETE("/:id", api.destroy, mw.admin...)
}

func (api *articleApi) query(ctx echo.Context) error {
	filter := new(article.QueryFilter)
	if err := bindQuery(ctx, filter); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	if !isAdminRequest(ctx) {
		published := true
		filter.IsPublished = &published
	}

	articles, err := api.svc.Query(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying articles")
	}
	return ctx.JSON(http.StatusOK, articles)
}

func (api *articleApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting article")
	}
	if !a.IsPublished && !isAdminRequest(ctx) {
		return errors.Wrap(article.ErrNotFound, "getting article")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *articleApi) create(ctx echo.Context) error {
	var data article.NewArticle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewArticle")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating article")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *articleApi) update(ctx echo.Context) error {
	var data article.UpdateArticle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateArticle")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating article")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *articleApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting article")
	}
	return ctx.NoContent(http.StatusNoContent)
}
