package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core/event"
)

type eventApi struct {
	opts *Options
	svc  event.Service
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := eventApi{opts: opts, svc: opts.EventSvc}

	eg := g.Group("/events", jwt)
	eg.POST("", api.create, staffMiddleware())
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/register", api.register)
	eg.POST("/:id/allocate", api.allocate)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ev, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *eventApi) query(ctx echo.Context) error {
	events, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	ev, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) register(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Register(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "registering for event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) allocate(ctx echo.Context) error {
	var data event.AllocateInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AllocateInput")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.Allocate(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.PointsPerParticipant)
	if err != nil {
		return errors.Wrap(err, "allocating event points")
	}
	return ctx.JSON(http.StatusOK, res)
}
