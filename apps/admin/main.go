package main

import (
	"fmt"
	"log"
	"os"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/user"
	emailsvc "github.com/meridian-edu/meridian/services/email"
	logsvc "github.com/meridian-edu/meridian/services/logger"
	"github.com/meridian-edu/meridian/storage/database"
	pgrepos "github.com/meridian-edu/meridian/storage/database/postgres"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false) // CLI output stays local

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	errAndDie(database.Migrate(db.DB))

	userRepo := pgrepos.NewUserRepository(db)
	certRepo := pgrepos.NewCertificateRepository(db)
	houseRepo := pgrepos.NewHouseRepository(db)
	eventRepo := pgrepos.NewEventRepository(db)

	usrSvc := user.NewService(userRepo, emailsvc.NewConsoleService(conf), conf)
	eventSvc := event.NewService(eventRepo, userRepo, certRepo, houseRepo, appLogger)

	// start CLI
	cli := commandLine{
		usrSvc:   usrSvc,
		eventSvc: eventSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
	fmt.Println("Done.")
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
