package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/tablesync/crdb"
	"github.com/danthegoodman1/tablesync/gologger"
	"github.com/danthegoodman1/tablesync/http_server"
	"github.com/danthegoodman1/tablesync/migrations"
	"github.com/danthegoodman1/tablesync/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting tablesync")

	cfg, err := utils.LoadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("error loading config")
		os.Exit(1)
	}
	if err := gologger.SetLevel(cfg.LogLevel); err != nil {
		logger.Error().Err(err).Msg("error setting log level")
		os.Exit(1)
	}
	utils.S3_BUCKET_NAME = cfg.S3BucketName
	utils.S3_ENDPOINT = cfg.S3Endpoint
	utils.AWS_DEFAULT_REGION = cfg.AWSDefaultRegion

	if err := crdb.ConnectToDB(cfg.PGDSN); err != nil {
		logger.Error().Err(err).Msg("error connecting to PostgreSQL")
		os.Exit(1)
	}

	if cfg.RunMigrations {
		applied, err := migrations.RunMigrations(cfg.PGDSN)
		if err != nil {
			logger.Error().Err(err).Msg("error running migrations")
			os.Exit(1)
		}
		logger.Info().Int("applied", applied).Msg("ran migrations")
	}

	// schema changes are only audited when the bookkeeping table is there
	audit := true
	if err := migrations.CheckMigrations(cfg.PGDSN); err != nil {
		logger.Warn().Err(err).Msg("migrations not applied, schema changes will not be audited")
		audit = false
	}

	httpServer := http_server.StartHTTPServer(cfg, audit)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := cfg.ShutdownSleepSec
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}
	crdb.PGPool.Close()
}
