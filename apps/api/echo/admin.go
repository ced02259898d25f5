package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core/rental"
)

type adminApi struct {
	rentalSvc rental.Service
}

func registerAdminAPI(g *echo.Group, mw middlewares, deps *Deps) {
	api := adminApi{rentalSvc: deps.RentalSvc}

	ag := g.Group("/admin", mw.admin...)
	ag.GET("/stats", api.stats)
	ag.GET("/overdue", api.overdue)
}

func (api *adminApi) stats(ctx echo.Context) error {
	stats, err := api.rentalSvc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) overdue(ctx echo.Context) error {
	rentals, err := api.rentalSvc.Overdue(ctx.Request().Context(), time.Now())
	if err != nil {
		return errors.Wrap(err, "querying overdue rentals")
	}
	if rentals == nil {
		rentals = []rental.Rental{}
	}
	return ctx.JSON(http.StatusOK, rentals)
}
