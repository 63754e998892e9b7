package main

import (
	"os"

	"github.com/bookferry/bookferry/pkg/version"
	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:    "bookferryctl",
		Usage:   "run and inspect bookferry post-processing from the command line",
		Version: version.Version,
		Commands: []*cli.Command{
			runCommand,
			sweepCommand,
			requestsCommand,
			downloadsCommand,
			passesCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("bookferryctl error")
	}
}
