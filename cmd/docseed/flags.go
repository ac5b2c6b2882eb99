/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"github.com/urfave/cli/v2"
)

const (
	globalConfig    = "config"
	globalEnvFile   = "env-file"
	globalLogLevel  = "log-level"
	globalLogFormat = "log-format"
	globalMetrics   = "metrics"

	demoStudents = "students"
	runScenario  = "scenario"
)

var (
	globalFlags = []cli.Flag{
		&cli.StringFlag{
			Name:  globalConfig,
			Usage: "Path to an optional YAML config file",
		},
		&cli.StringFlag{
			Name:  globalEnvFile,
			Usage: "Path to a .env file to load. By default ./.env is loaded when present",
		},
		&cli.StringFlag{
			Name:  globalLogLevel,
			Usage: "Log level: debug, info, warn or error. Overrides log.level of the config",
		},
		&cli.StringFlag{
			Name:  globalLogFormat,
			Usage: "Log format: text, json or logfmt. Overrides log.format of the config",
		},
		&cli.BoolFlag{
			Name:  globalMetrics,
			Value: false,
			Usage: "Whether to print metrics in Prometheus text format at exit",
		},
	}

	demoFlags = []cli.Flag{
		&cli.StringFlag{
			Name:  demoStudents,
			Usage: "Path to a students JSON file replacing the bundled data set",
		},
	}

	runFlags = []cli.Flag{
		&cli.StringFlag{
			Name:    runScenario,
			Aliases: []string{"f"},
			Usage:   "Path to the YAML scenario to run. Defaults to the scenario of the config",
		},
		&cli.StringFlag{
			Name:  demoStudents,
			Usage: "Path to a JSON file read wherever the scenario imports students.json",
		},
	}
)
