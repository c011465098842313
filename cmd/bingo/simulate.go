package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/coder/quartz"
	"github.com/lox/bingohall/cmd/bingo/shared"
	"github.com/lox/bingohall/internal/config"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
	"github.com/lox/bingohall/internal/simulator"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/wallet"
)

// SimulateCmd plays rounds in-process with scripted players
type SimulateCmd struct {
	Config      string        `short:"c" default:"bingo.hcl" env:"BINGO_CONFIG" help:"Path to HCL configuration file"`
	Rounds      int           `short:"n" default:"3" help:"Number of rounds to play"`
	Players     int           `short:"p" default:"4" help:"Number of scripted players"`
	Balance     int64         `default:"100" help:"Starting balance per player"`
	RandomCards bool          `help:"Pick random card numbers instead of the lowest free card"`
	Seed        int64         `help:"Deterministic seed for draws and card picks (optional)"`
	Fast        bool          `default:"true" negatable:"" help:"Use the shortest permitted phase timings"`
	Timeout     time.Duration `default:"30m" help:"Give up after this long"`
	Output      string        `short:"o" type:"path" help:"Write a JSON report to this file"`
}

func (c *SimulateCmd) Run(g *Globals) error {
	if c.Players <= 0 || c.Rounds <= 0 {
		return errors.New("players and rounds must be positive")
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Server.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	logger := shared.SetupLogger(level)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	if c.Fast {
		engineCfg.DrawInterval = engine.MinDrawInterval
		engineCfg.CountdownDuration = engine.MinCountdownDuration
		engineCfg.CardSelectionDuration = engine.MinCardSelectionDuration
		engineCfg.AnnouncementDuration = engine.MinAnnouncementDuration
	}
	if engineCfg.MinPlayers > c.Players {
		logger.Warn("Fewer players than the round minimum, every round will be cancelled",
			"players", c.Players, "min_players", engineCfg.MinPlayers)
	}

	clk := quartz.NewReal()
	wallets := wallet.NewMemory(clk)
	players := make([]string, c.Players)

	ctx, cancel := context.WithTimeout(shared.SetupSignalHandler(logger), c.Timeout)
	defer cancel()

	for i := range players {
		players[i] = fmt.Sprintf("bot-%02d", i+1)
		if err := wallets.Deposit(ctx, players[i], prize.Amount(c.Balance)); err != nil {
			return err
		}
	}

	eng, err := engine.New(engine.Options{
		Config: engineCfg,
		Clock:  clk,
		Wallet: wallets,
		Store:  store.NewMemory(),
		Logger: logger,
		Seed:   c.Seed,
	})
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	simCfg := simulator.Config{
		Rounds:  c.Rounds,
		Players: players,
		Seed:    c.Seed,
		Logger:  logger,
	}
	if c.RandomCards {
		simCfg.MaxCards = engineCfg.MaxCards
	}

	logger.Info("Starting simulation", "rounds", c.Rounds, "players", c.Players,
		"bet", engineCfg.BetAmount, "draw_interval", engineCfg.DrawInterval)
	start := time.Now()
	stats, err := simulator.New(eng, simCfg).Run(ctx)
	// Stop waits for the last round's credits so balances are final.
	eng.Stop()
	if err != nil {
		return fmt.Errorf("simulation stopped after %d rounds: %w", stats.Rounds(), err)
	}

	fmt.Println(roundsTable(stats))
	fmt.Println(balancesTable(ctx, wallets, players, stats))
	fmt.Println(simulator.Summary(stats))
	if names := stats.PatternNames(); len(names) > 0 {
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s×%d", name, stats.Patterns[name])
		}
		fmt.Println("Winning patterns: " + strings.Join(parts, ", "))
	}
	if c.Output != "" {
		if err := simulator.WriteReport(c.Output, stats); err != nil {
			return err
		}
		logger.Info("Report written", "path", c.Output)
	}
	logger.Info("Simulation complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func resultTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

func roundsTable(stats *simulator.Statistics) string {
	t := resultTable("Round", "Outcome", "Players", "Draws", "Pool", "Winners")
	for _, r := range stats.Results {
		winners := make([]string, len(r.Winners))
		for i, w := range r.Winners {
			winners[i] = fmt.Sprintf("%s (%s, %d)", w.PlayerID, w.Pattern, w.Share)
		}
		outcome := r.Reason
		if r.Cancelled {
			outcome = "cancelled: " + r.Reason
		}
		t.Row(
			r.RoundID,
			outcome,
			strconv.Itoa(r.Players),
			strconv.Itoa(r.Draws),
			strconv.FormatInt(int64(r.Pool), 10),
			strings.Join(winners, ", "),
		)
	}
	return t.String()
}

func balancesTable(ctx context.Context, w *wallet.Memory, players []string, stats *simulator.Statistics) string {
	t := resultTable("Player", "Wins", "Balance")
	for _, id := range players {
		bal, err := w.Balance(ctx, id)
		balance := strconv.FormatInt(int64(bal), 10)
		if err != nil {
			balance = err.Error()
		}
		t.Row(id, strconv.Itoa(stats.Wins[id]), balance)
	}
	return t.String()
}
