package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
)

type rentalApi struct {
	svc      rental.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerRentalAPI(g *echo.Group, mw middlewares, deps *Deps) {
	api := rentalApi{svc: deps.RentalSvc, userSvc: deps.UserSvc, validate: deps.Validate}

	rg := g.Group("/rentals", mw.authed...)
	rg.POST("/checkout", api.checkout)
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
	rg.GET("/:id/payments", api.payments)
	rg.POST("/:id/payment-proof", api.uploadPaymentProof)
	rg.POST("/:id/cancel", api.cancel)

	// back office
	admin := adminMiddleware()
	rg.POST("/:id/confirm", api.confirm, admin)
	rg.POST("/:id/reject-payment", api.rejectPayment, admin)
	rg.GET("/:id/return-preview", api.previewReturn, admin)
	rg.POST("/:id/return", api.markReturned, admin)
	rg.POST("/:id/complete", api.complete, admin)
}

func (api *rentalApi) checkout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data rental.Checkout
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Checkout")
	}
	data.Clean()
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	r, err := api.svc.Checkout(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *rentalApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	filter := new(rental.QueryFilter)
	if err = bindQuery(ctx, filter); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, rental.OrderingFields)

	rentals, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying rentals")
	}
	return ctx.JSON(http.StatusOK, rentals)
}

func (api *rentalApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	r, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rental")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rentalApi) payments(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	payments, err := api.svc.Payments(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []rental.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *rentalApi) uploadPaymentProof(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
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

	r, err := api.svc.UploadPaymentProof(ctx.Request().Context(), actor, ctx.Param("id"), src, fh.Filename)
	if err != nil {
		return errors.Wrap(err, "uploading payment proof")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rentalApi) cancel(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	r, err := api.svc.Cancel(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling rental")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rentalApi) confirm(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	r, err := api.svc.Confirm(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "confirming rental")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rentalApi) rejectPayment(ctx echo.Context) error {
	var data rental.RejectPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectPayment")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	r, err := api.svc.RejectPayment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting payment")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rentalApi) previewReturn(ctx echo.Context) error {
	returnedAt, err := bindTimeParam(ctx, "returned_at", time.Now().UTC())
	if err != nil {
		return err
	}
	bd, err := api.svc.PreviewReturn(ctx.Request().Context(), ctx.Param("id"), returnedAt)
	if err != nil {
		return errors.Wrap(err, "previewing return")
	}
	return ctx.JSON(http.StatusOK, bd)
}

func (api *rentalApi) markReturned(ctx echo.Context) error {
	var data rental.ReturnRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReturnRequest")
	}
	returnedAt := time.Now().UTC()
	if data.ReturnedAt != nil {
		returnedAt = data.ReturnedAt.UTC()
	}

	r, bd, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"), returnedAt)
	if err != nil {
		return errors.Wrap(err, "returning rental")
	}
	return ctx.JSON(http.StatusOK, ReturnResponse{Rental: r, Breakdown: bd})
}

func (api *rentalApi) complete(ctx echo.Context) error {
	r, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing rental")
	}
	return ctx.JSON(http.StatusOK, r)
}

type ReturnResponse struct {
	Rental    rental.Rental          `json:"rental"`
	Breakdown rental.ReturnBreakdown `json:"breakdown"`
}
