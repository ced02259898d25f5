package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/cart"
)

type cartApi struct {
	svc      cart.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerCartAPI(g *echo.Group, mw middlewares, deps *Deps) {
	api := cartApi{svc: deps.CartSvc, conf: deps.Conf, validate: deps.Validate}

	cg := g.Group("/cart", mw.authed...)
	cg.GET("", api.retrieve)
	cg.POST("", api.add)
	cg.DELETE("", api.clear)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.remove)
}

func (api *cartApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	crt, err := api.svc.Get(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return ctx.JSON(http.StatusOK, crt)
}

func (api *cartApi) add(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data cart.NewCartItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCartItem")
	}
	if err = data.Validate(api.validate, api.conf.Rental.Location); err != nil {
		return err
	}

	line, err := api.svc.Add(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "adding to cart")
	}
	return ctx.JSON(http.StatusCreated, line)
}

func (api *cartApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data cart.UpdateCartItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCartItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	line, err := api.svc.Update(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating cart item")
	}
	return ctx.JSON(http.StatusOK, line)
}

func (api *cartApi) remove(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Remove(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing cart item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cartApi) clear(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Clear(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "clearing cart")
	}
	return ctx.NoContent(http.StatusNoContent)
}
