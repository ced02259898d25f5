package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=name,-created_at`, keeping only the allowed fields.
func (ord *Ordering) Bind(ctx echo.Context, allowed map[string]string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrdering(val, allowed)
}

// bindQuery binds the query params to dest, whatever the request method.
func bindQuery(ctx echo.Context, dest interface{}) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, dest); err != nil {
		return core.NewValidationError(errors.Wrap(err, "invalid query params"))
	}
	return nil
}

func bindPage(ctx echo.Context) (core.PageFilter, error) {
	var page core.PageFilter
	if err := bindQuery(ctx, &page); err != nil {
		return page, err
	}
	page.Clean()
	return page, nil
}

// bindTimeParam parses an optional RFC 3339 query param, defaulting to def.
func bindTimeParam(ctx echo.Context, name string, def time.Time) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, core.NewFieldValidationError(name, "invalid datetime, expected RFC 3339")
	}
	return t.UTC(), nil
}
