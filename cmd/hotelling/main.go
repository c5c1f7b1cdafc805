package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the game server"`
	Bot     BotCmd           `cmd:"" help:"Play one or more devices against a running server"`
	History HistoryCmd       `cmd:"" help:"Summarise a saved session"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("hotelling"),
		kong.Description("Turn server for spatial competition experiments between firms and customers"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
