package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/devserver/cmd/devserver/commands"
	derrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("devserver"),
		kong.Description("Development server that transforms modules and HTML pages on request."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		os.Exit(derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err))
	}
}
