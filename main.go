package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/config"
	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/internal/database"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/server"
	"github.com/imsportal/filingstack/services"
	"github.com/imsportal/filingstack/services/email_processor"
)

func main() {
	app := &cli.App{
		Name:  "filingstack",
		Usage: "files inbound email into IMS",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:  "process",
				Usage: "Run one processing pass and print its summary",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "instance",
						Usage: "only process mailboxes of this instance",
					},
				},
				Action: process,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig.DatabaseConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return cfg, db, nil
}

func migrate(_ *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}

	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runServer(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Filingstack starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// process runs a single pass outside the scheduler, for operators and
// one-off backfills.
func process(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	defer appLogger.Sync()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	defer closer.Close()
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(cfg, appLogger, repos, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer svcs.Close()

	processor := email_processor.NewProcessor(*cfg.Processor, repos, svcs.ProcessorServices(), svcs.Metrics, appLogger)

	var summary *dto.TickSummary
	if instanceID := c.String("instance"); instanceID != "" {
		summary, err = processor.ProcessInstanceNow(c.Context, instanceID)
	} else {
		summary, err = processor.Tick(c.Context)
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
