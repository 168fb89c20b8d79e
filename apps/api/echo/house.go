package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/house"
)

type houseApi struct {
	opts *Options
	svc  house.Service
}

func registerHouseAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := houseApi{opts: opts, svc: opts.HouseSvc}

	hg := g.Group("/houses", jwt)
	hg.POST("", api.create, adminMiddleware())
	hg.GET("", api.query)
	hg.GET("/leaderboard", api.leaderboard)
	hg.GET("/:id", api.retrieve)
	hg.PUT("/:id", api.update, adminMiddleware())
	hg.DELETE("/:id", api.destroy, adminMiddleware())
	hg.GET("/:id/points", api.housePoints)

	g.GET("/users/:id/points", api.userPoints, jwt)
}

// Handlers

func (api *houseApi) create(ctx echo.Context) error {
	var data house.NewHouse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewHouse")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	h, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == house.ErrNameExists {
			return core.NewConflictError(err)
		}
		return errors.Wrap(err, "creating house")
	}
	return ctx.JSON(http.StatusCreated, h)
}

func (api *houseApi) query(ctx echo.Context) error {
	houses, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying houses")
	}
	if houses == nil {
		houses = []house.House{}
	}
	return ctx.JSON(http.StatusOK, houses)
}

func (api *houseApi) retrieve(ctx echo.Context) error {
	var win house.Window
	if err := ctx.Bind(&win); err != nil {
		return errors.Wrap(err, "binding to Window")
	}

	detail, err := api.svc.Detail(ctx.Request().Context(), ctx.Param("id"), win)
	if err != nil {
		return errors.Wrap(err, "loading house detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *houseApi) update(ctx echo.Context) error {
	var data house.UpdateHouse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateHouse")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	h, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating house")
	}
	return ctx.JSON(http.StatusOK, h)
}

func (api *houseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting house")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *houseApi) leaderboard(ctx echo.Context) error {
	var win house.Window
	if err := ctx.Bind(&win); err != nil {
		return errors.Wrap(err, "binding to Window")
	}

	standings, err := api.svc.Leaderboard(ctx.Request().Context(), win)
	if err != nil {
		return errors.Wrap(err, "loading leaderboard")
	}
	if standings == nil {
		standings = []house.Standing{}
	}
	return ctx.JSON(http.StatusOK, standings)
}

func (api *houseApi) housePoints(ctx echo.Context) error {
	var win house.Window
	if err := ctx.Bind(&win); err != nil {
		return errors.Wrap(err, "binding to Window")
	}

	points, err := api.svc.HouseTotals(ctx.Request().Context(), ctx.Param("id"), win)
	if err != nil {
		return errors.Wrap(err, "loading house totals")
	}
	return ctx.JSON(http.StatusOK, points)
}

func (api *houseApi) userPoints(ctx echo.Context) error {
	var win house.Window
	if err := ctx.Bind(&win); err != nil {
		return errors.Wrap(err, "binding to Window")
	}

	points, err := api.svc.UserTotals(ctx.Request().Context(), ctx.Param("id"), win)
	if err != nil {
		return errors.Wrap(err, "loading user totals")
	}
	return ctx.JSON(http.StatusOK, points)
}
