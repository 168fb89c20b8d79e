package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/meridian-edu/meridian/apps/api/echo"
	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
	emailsvc "github.com/meridian-edu/meridian/services/email"
	logsvc "github.com/meridian-edu/meridian/services/logger"
	"github.com/meridian-edu/meridian/storage/blob"
	"github.com/meridian-edu/meridian/storage/database"
	pgrepos "github.com/meridian-edu/meridian/storage/database/postgres"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	evidenceStore, err := blob.NewEvidenceStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up evidence store: %v", err), err)
	}

	userRepo := pgrepos.NewUserRepository(db)
	certRepo := pgrepos.NewCertificateRepository(db)
	houseRepo := pgrepos.NewHouseRepository(db)
	eventRepo := pgrepos.NewEventRepository(db)

	usrSvc := user.NewService(userRepo, mailSvc, conf)
	certSvc := certificate.NewService(certRepo, userRepo, houseRepo, evidenceStore, mailSvc, logger, conf)
	houseSvc := house.NewService(houseRepo, userRepo)
	eventSvc := event.NewService(eventRepo, userRepo, certRepo, houseRepo, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	certificate.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		CertificateSvc: certSvc,
		HouseSvc:       houseSvc,
		EventSvc:       eventSvc,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
