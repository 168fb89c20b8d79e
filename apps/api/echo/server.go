package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc        user.Service
		CertificateSvc certificate.Service
		HouseSvc       house.Service
		EventSvc       event.Service

		// SignalShutdown is called when a fatal storage error requires a
		// graceful restart.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf
	appJWTConfig.SigningKey = []byte(conf.SecretKey)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(metricsMiddleware())
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts)
	registerCertificateAPI(v1, jwt, s.opts)
	registerHouseAPI(v1, jwt, s.opts)
	registerEventAPI(v1, jwt, s.opts)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Conf.Server.Address()))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Meridian API!")
}
