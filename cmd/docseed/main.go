/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/suparena/docstore"
	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore/ddb"
	"github.com/suparena/docstore/logger"
	"github.com/suparena/docstore/processor"
)

var (
	cfg       *config.Config
	appLogger *log.Logger

	// stdout receives step summaries and the metrics dump
	stdout      io.Writer = os.Stdout
	dumpMetrics bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:    "docseed",
		Usage:   "Replay document store scenarios against an in-memory database",
		Version: docstore.Version,
		Flags:   append(append([]cli.Flag{}, globalFlags...), demoFlags...),
		Before:  setup,
		Action: func(c *cli.Context) error {
			return demo(ctx, c.String(demoStudents))
		},
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "Run the bundled walkthrough over users, articles and students",
				Flags: demoFlags,
				Action: func(c *cli.Context) error {
					return demo(ctx, c.String(demoStudents))
				},
			},
			{
				Name:  "run",
				Usage: "Run a YAML scenario",
				Flags: runFlags,
				Action: func(c *cli.Context) error {
					path := c.String(runScenario)
					if path == "" {
						path = cfg.Scenario
					}
					if path == "" {
						return cli.Exit("no scenario given: use --scenario or set scenario in the config", 2)
					}
					sc, err := processor.LoadScenario(path)
					if err != nil {
						return err
					}
					return run(ctx, sc, c.String(demoStudents))
				},
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					info := docstore.GetVersionInfo()
					fmt.Printf("docseed version %s\n", info.Version)
					if info.Modified {
						fmt.Printf("Git commit: %s (modified)\n", info.GitCommit)
					} else {
						fmt.Printf("Git commit: %s\n", info.GitCommit)
					}
					fmt.Printf("Build date: %s\n", info.BuildDate)
					fmt.Printf("Go version: %s\n", info.GoVersion)
					return nil
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		if appLogger != nil {
			appLogger.Fatal("docseed failed", "err", err)
		}
		log.Fatal("docseed failed", "err", err)
	}
}

// setup loads the configuration and builds the logger shared by every command.
func setup(c *cli.Context) error {
	var err error
	cfg, err = config.Load(config.Options{
		ConfigFile: c.String(globalConfig),
		EnvFile:    c.String(globalEnvFile),
	})
	if err != nil {
		return err
	}
	if c.IsSet(globalLogLevel) {
		cfg.Log.Level = c.String(globalLogLevel)
	}
	if c.IsSet(globalLogFormat) {
		cfg.Log.Format = c.String(globalLogFormat)
	}

	dumpMetrics = c.Bool(globalMetrics)
	appLogger, err = logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Prefix: "docseed"})
	return err
}

func demo(ctx context.Context, students string) error {
	sc, err := processor.Demo()
	if err != nil {
		return err
	}
	return run(ctx, sc, students)
}

func run(ctx context.Context, sc *processor.Scenario, students string) error {
	if students == "" {
		students = cfg.StudentsFile
	}

	db := docstore.NewDatabase(docstore.WithLogger(appLogger))
	defer db.Close()
	if dumpMetrics {
		// written on every return, failed runs included
		defer metrics.WritePrometheus(stdout, false)
	}

	p := processor.New(db,
		processor.WithLogger(appLogger),
		processor.WithOutput(stdout),
		processor.WithFiles(processor.DemoFiles()),
		processor.WithFileOverride(processor.DemoStudentsFile, students),
		processor.WithScanClient(scanClient, cfg.AWS.Table),
	)
	report, err := p.Run(ctx, sc)
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d steps failed", len(failed), len(report.Steps)), 1)
	}
	return nil
}

func scanClient(ctx context.Context) (sdk.ScanAPIClient, error) {
	return ddb.NewDynamoDBClient(ctx, ddb.ClientConfig{
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
		Region:    cfg.AWS.Region,
		Endpoint:  cfg.AWS.Endpoint,
	})
}
