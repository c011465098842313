// Package config loads the bingo server's HCL configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
	"github.com/shopspring/decimal"
)

// Config represents the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Redis  RedisSettings  `hcl:"redis,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// file mirrors Config with every block optional.
type file struct {
	Server *ServerSettings `hcl:"server,block"`
	Redis  *RedisSettings  `hcl:"redis,block"`
	Game   *GameSettings   `hcl:"game,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// RedisSettings configures the wallet and round store. An empty address
// selects the in-memory gateways.
type RedisSettings struct {
	Address  string `hcl:"address,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	RoundTTL string `hcl:"round_ttl,optional"`
}

// GameSettings holds the round parameters. Durations are Go duration
// strings such as "5s".
type GameSettings struct {
	DrawInterval     string         `hcl:"draw_interval,optional"`
	Countdown        string         `hcl:"countdown,optional"`
	CardSelection    string         `hcl:"card_selection,optional"`
	Announcement     string         `hcl:"announcement,optional"`
	MaxRoundDuration string         `hcl:"max_round_duration,optional"`
	MinPlayers       int            `hcl:"min_players,optional"`
	MaxPlayers       int            `hcl:"max_players,optional"`
	MaxCards         int            `hcl:"max_cards,optional"`
	MaxDraws         int            `hcl:"max_draws,optional"`
	BetAmount        *int64         `hcl:"bet_amount,optional"`
	PayoutPercent    string         `hcl:"payout_percent,optional"`
	CardSize         int            `hcl:"card_size,optional"`
	Columns          []ColumnConfig `hcl:"column,block"`
}

// ColumnConfig defines the number range of one card column
type ColumnConfig struct {
	Label string `hcl:"label,label"`
	Min   int    `hcl:"min"`
	Max   int    `hcl:"max"`
}

// Default returns default server configuration
func Default() *Config {
	def := engine.DefaultConfig()
	cols := make([]ColumnConfig, len(def.Layout.Columns))
	for i, c := range def.Layout.Columns {
		cols[i] = ColumnConfig{Label: c.Label, Min: c.Min, Max: c.Max}
	}
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Redis: RedisSettings{
			RoundTTL: "168h",
		},
		Game: GameSettings{
			DrawInterval:     def.DrawInterval.String(),
			Countdown:        def.CountdownDuration.String(),
			CardSelection:    def.CardSelectionDuration.String(),
			Announcement:     def.AnnouncementDuration.String(),
			MaxRoundDuration: def.MaxRoundDuration.String(),
			MinPlayers:       def.MinPlayers,
			MaxPlayers:       def.MaxPlayers,
			MaxCards:         def.MaxCards,
			MaxDraws:         def.MaxDraws,
			BetAmount:        ptr(int64(def.BetAmount)),
			PayoutPercent:    def.PayoutPercent.String(),
			CardSize:         def.Layout.Size,
			Columns:          cols,
		},
	}
}

func ptr[T any](v T) *T { return &v }

// Load loads configuration from an HCL file. A missing file yields the
// defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw file
	diags = gohcl.DecodeBody(f.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config := Default()
	if raw.Server != nil {
		config.Server = *raw.Server
	}
	if raw.Redis != nil {
		config.Redis = *raw.Redis
	}
	if raw.Game != nil {
		config.Game = *raw.Game
	}
	config.applyDefaults()
	return config, nil
}

// applyDefaults fills in values left unset in the file
func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Redis.RoundTTL == "" {
		c.Redis.RoundTTL = def.Redis.RoundTTL
	}

	g, d := &c.Game, def.Game
	setString := func(v *string, fallback string) {
		if *v == "" {
			*v = fallback
		}
	}
	setInt := func(v *int, fallback int) {
		if *v == 0 {
			*v = fallback
		}
	}
	setString(&g.DrawInterval, d.DrawInterval)
	setString(&g.Countdown, d.Countdown)
	setString(&g.CardSelection, d.CardSelection)
	setString(&g.Announcement, d.Announcement)
	setString(&g.MaxRoundDuration, d.MaxRoundDuration)
	setString(&g.PayoutPercent, d.PayoutPercent)
	setInt(&g.MinPlayers, d.MinPlayers)
	setInt(&g.MaxPlayers, d.MaxPlayers)
	setInt(&g.MaxCards, max(d.MaxCards, g.MaxPlayers))
	if g.BetAmount == nil {
		g.BetAmount = ptr(*d.BetAmount)
	}
	if len(g.Columns) == 0 {
		g.Columns = d.Columns
	}
	setInt(&g.CardSize, len(g.Columns))
}

// Validate validates the configuration, including the game settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	if _, err := c.RoundTTL(); err != nil {
		return err
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoundTTL parses the stored-round expiry.
func (c *Config) RoundTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Redis.RoundTTL)
	if err != nil {
		return 0, fmt.Errorf("redis: invalid round_ttl %q: %w", c.Redis.RoundTTL, err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("redis: round_ttl must not be negative")
	}
	return ttl, nil
}

// EngineConfig converts the game block into a validated engine.Config.
func (c *Config) EngineConfig() (engine.Config, error) {
	g := c.Game
	var (
		cfg  engine.Config
		errs []error
	)
	parse := func(name, v string) time.Duration {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("game: invalid %s %q", name, v))
		}
		return d
	}

	cfg.DrawInterval = parse("draw_interval", g.DrawInterval)
	cfg.CountdownDuration = parse("countdown", g.Countdown)
	cfg.CardSelectionDuration = parse("card_selection", g.CardSelection)
	cfg.AnnouncementDuration = parse("announcement", g.Announcement)
	cfg.MaxRoundDuration = parse("max_round_duration", g.MaxRoundDuration)
	cfg.MinPlayers = g.MinPlayers
	cfg.MaxPlayers = g.MaxPlayers
	cfg.MaxCards = g.MaxCards
	cfg.MaxDraws = g.MaxDraws
	if g.BetAmount != nil {
		cfg.BetAmount = prize.Amount(*g.BetAmount)
	}

	pct, err := decimal.NewFromString(g.PayoutPercent)
	if err != nil {
		errs = append(errs, fmt.Errorf("game: invalid payout_percent %q", g.PayoutPercent))
	}
	cfg.PayoutPercent = pct

	cfg.Layout = card.Layout{Size: g.CardSize}
	for _, col := range g.Columns {
		cfg.Layout.Columns = append(cfg.Layout.Columns, card.Column{Label: col.Label, Min: col.Min, Max: col.Max})
	}

	if len(errs) > 0 {
		return engine.Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}
