package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/certificate"
)

type certificateApi struct {
	opts *Options
	svc  certificate.Service
}

func registerCertificateAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := certificateApi{opts: opts, svc: opts.CertificateSvc}

	cg := g.Group("/certificates", jwt)
	cg.POST("", api.submit)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/evidence", api.evidence)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.POST("/:id/review", api.review, staffMiddleware())
}

// bindWithEvidence decodes the request into dst. File evidence travels as a
// multipart form: a "data" field holding the JSON document and a "file" field
// holding the blob. Plain JSON bodies bind directly with no blob.
func (api *certificateApi) bindWithEvidence(ctx echo.Context, dst interface{}) (io.ReadCloser, error) {
	contentType := ctx.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		return nil, ctx.Bind(dst)
	}

	data := ctx.FormValue("data")
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "decoding data field"))
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return nil, nil // no blob attached
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening evidence upload")
	}
	return f, nil
}

// Handlers

func (api *certificateApi) submit(ctx echo.Context) error {
	var data certificate.NewCertificate
	evidence, err := api.bindWithEvidence(ctx, &data)
	if err != nil {
		return errors.Wrap(err, "binding to NewCertificate")
	}
	if evidence != nil {
		defer func() { _ = evidence.Close() }()
	}
	if err := data.Validate(api.opts.Validate, api.opts.Conf); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var r io.Reader
	if evidence != nil {
		r = evidence
	}
	cert, err := api.svc.Submit(ctx.Request().Context(), ctxUsr, data, r)
	if err != nil {
		return errors.Wrap(err, "submitting certificate")
	}
	return ctx.JSON(http.StatusCreated, cert)
}

func (api *certificateApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ownerID := ctx.QueryParam("owner_id")
	if ownerID == "" {
		ownerID = ctxUsr.ID
	}

	certs, err := api.svc.QueryByOwner(ctx.Request().Context(), ctxUsr, ownerID)
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cert, err := api.svc.GetByID(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) evidence(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, filename, err := api.svc.OpenEvidence(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening certificate evidence")
	}
	defer func() { _ = r.Close() }()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Stream(http.StatusOK, echo.MIMEOctetStream, r)
}

func (api *certificateApi) update(ctx echo.Context) error {
	var data certificate.UpdateCertificate
	evidence, err := api.bindWithEvidence(ctx, &data)
	if err != nil {
		return errors.Wrap(err, "binding to UpdateCertificate")
	}
	if evidence != nil {
		defer func() { _ = evidence.Close() }()
	}
	if err := data.Validate(api.opts.Validate, api.opts.Conf); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var r io.Reader
	if evidence != nil {
		r = evidence
	}
	cert, err := api.svc.Edit(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data, r)
	if err != nil {
		return errors.Wrap(err, "updating certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) review(ctx echo.Context) error {
	var data ReviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewRequest")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cert, err := api.svc.Review(
		ctx.Request().Context(), ctxUsr, ctx.Param("id"),
		certificate.Decision(data.Decision),
		certificate.ReviewInput{Points: data.Points, Comment: data.Comment},
	)
	if err != nil {
		return errors.Wrap(err, "reviewing certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Remove(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Points   int    `json:"points" validate:"omitempty,min=0"`
	Comment  string `json:"comment"`
}

func (rr *ReviewRequest) Validate(validate *validator.Validate) error {
	rr.Comment = core.CleanString(rr.Comment)
	return validate.Struct(rr)
}
