package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagepub/cmd/pagepub/commands"
	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
)

var version = "dev"

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("pagepub"),
		kong.Description("Generate a static site from markdown sources and publish it to a git-backed hosting target."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := ctx.Run(&commands.Global{}, &cli); err != nil {
		slog.Error("command failed", "category", string(perrors.GetCategory(err)), "error", err)
		os.Exit(1)
	}
}
