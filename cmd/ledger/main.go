package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"ledger/internal/cli"
	"ledger/internal/log"
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cli.Register(commander, &cli.App{
		// configuration is only needed by commands that touch the ledger
		Open: func(ctx context.Context) (*cli.Session, error) {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return nil, err
			}
			cli.SetupLogger(cfg.LogLevel, log.ComponentCLI)
			return cli.OpenSession(ctx, cfg)
		},
	})

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
