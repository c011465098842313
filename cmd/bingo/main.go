package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set by ldflags during build
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	LogLevel string `short:"l" env:"BINGO_LOG_LEVEL" help:"Log level (debug, info, warn, error)"`
}

type CLI struct {
	Globals

	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Serve    ServeCmd         `cmd:"" help:"Run the bingo hall server"`
	Card     CardCmd          `cmd:"" help:"Render the card for a card number"`
	Simulate SimulateCmd      `cmd:"" help:"Run rounds headless with scripted players"`
	Watch    WatchCmd         `cmd:"" help:"Watch and play rounds from the terminal"`
	Wallet   WalletCmd        `cmd:"" help:"Inspect and fund player wallets"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bingo"),
		kong.Description("Timed multiplayer bingo rounds over WebSocket"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
