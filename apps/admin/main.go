package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	catalogsvc "github.com/qahhor/FREE-LMS-sub001/services/catalog"
	logsvc "github.com/qahhor/FREE-LMS-sub001/services/logger"
	"github.com/qahhor/FREE-LMS-sub001/storage/database"
	sqlxrepos "github.com/qahhor/FREE-LMS-sub001/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Flush()

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	repo := sqlxrepos.NewScormRepository(db)
	catalog := sqlxrepos.NewPackageCatalog(db)
	mgr := scorm.NewManager(repo, catalog, logger, conf.Scorm)

	// start CLI
	cli := commandLine{
		db:      db,
		mgr:     mgr,
		sweeper: scorm.NewSweeper(mgr, logger, conf.Scorm),
		catalog: catalog,
		loader:  catalogsvc.NewLoader(validate, translator),
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	if cErr := db.Close(); cErr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cErr), cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		logger.Flush()
		os.Exit(1)
	}
}
