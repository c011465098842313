package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/lox/bingohall/cmd/bingo/shared"
	"github.com/lox/bingohall/internal/client"
	"github.com/lox/bingohall/internal/config"
	"github.com/lox/bingohall/internal/display"
)

// WatchCmd connects to a running server with the interactive player UI
type WatchCmd struct {
	Server string        `default:"http://localhost:8080" env:"BINGO_SERVER" help:"Server base URL"`
	Player string        `short:"p" env:"BINGO_PLAYER" help:"Player id (random when empty)"`
	Config string        `short:"c" default:"bingo.hcl" env:"BINGO_CONFIG" help:"HCL configuration file supplying the card layout"`
	Wait   time.Duration `default:"10s" help:"How long to wait for the server to open a round"`
}

func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	// The UI owns the terminal, so keep client logging quiet by default.
	level := "error"
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	logger := shared.SetupLogger(level)

	if _, err := waitForRound(c.Server, c.Wait); err != nil {
		return err
	}

	playerID := c.Player
	if playerID == "" {
		playerID = "player-" + uuid.NewString()[:8]
	}

	ctx := shared.SetupSignalHandler(logger)
	cl := client.NewClient(c.Server, logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer cl.Close()

	helloCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	welcome, err := cl.Hello(helloCtx, playerID)
	cancel()
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	model := display.NewModel(cl, cl.Events(), welcome.PlayerID, welcome.Status, engineCfg.Layout)
	model.AddLogEntry(fmt.Sprintf("Connected as %s to %s", welcome.PlayerID, c.Server))

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch UI: %w", err)
	}
	return nil
}
