package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lox/bingohall/internal/config"
	"github.com/lox/bingohall/internal/prize"
	"github.com/lox/bingohall/internal/wallet"
	"github.com/redis/go-redis/v9"
)

// WalletCmd manages player balances in the Redis wallet
type WalletCmd struct {
	Deposit WalletDepositCmd `cmd:"" help:"Add funds to a player's balance"`
	Balance WalletBalanceCmd `cmd:"" help:"Show a player's balance"`
	Ledger  WalletLedgerCmd  `cmd:"" help:"Show a player's recent ledger entries"`
}

// RedisFlags locates the wallet's Redis instance.
type RedisFlags struct {
	Config        string `short:"c" default:"bingo.hcl" env:"BINGO_CONFIG" help:"Path to HCL configuration file"`
	RedisAddr     string `env:"BINGO_REDIS_ADDR" help:"Redis address (overrides config)"`
	RedisPassword string `env:"BINGO_REDIS_PASSWORD" help:"Redis password (overrides config)"`
}

// WalletDepositCmd adds funds to a player
type WalletDepositCmd struct {
	RedisFlags
	Player string `arg:"" help:"Player id"`
	Amount int64  `arg:"" help:"Amount in the smallest currency unit"`
}

// WalletBalanceCmd prints a player's balance
type WalletBalanceCmd struct {
	RedisFlags
	Player string `arg:"" help:"Player id"`
}

// WalletLedgerCmd prints a player's ledger
type WalletLedgerCmd struct {
	RedisFlags
	Player string `arg:"" help:"Player id"`
	Limit  int    `short:"n" default:"20" help:"Number of entries to show"`
}

// open connects to the configured Redis wallet.
func (c *RedisFlags) open() (*wallet.Redis, func(), error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	addr, password := cfg.Redis.Address, cfg.Redis.Password
	if c.RedisAddr != "" {
		addr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		password = c.RedisPassword
	}
	if addr == "" {
		return nil, nil, fmt.Errorf("no Redis address configured: set redis.address or --redis-addr")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: cfg.Redis.DB})
	w, err := wallet.NewRedis(&wallet.Config{RedisClient: rdb})
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return w, func() { _ = rdb.Close() }, nil
}

func (d *WalletDepositCmd) Run(g *Globals) error {
	w, done, err := d.open()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Deposit(ctx, d.Player, prize.Amount(d.Amount)); err != nil {
		return err
	}
	balance, err := w.Balance(ctx, d.Player)
	if err != nil {
		return err
	}
	fmt.Printf("Deposited %d to %s, balance %d\n", d.Amount, d.Player, balance)
	return nil
}

func (b *WalletBalanceCmd) Run(g *Globals) error {
	w, done, err := b.open()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	balance, err := w.Balance(ctx, b.Player)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d\n", b.Player, balance)
	return nil
}

func (l *WalletLedgerCmd) Run(g *Globals) error {
	w, done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := w.Ledger(ctx, l.Player, l.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No ledger entries for %s\n", l.Player)
		return nil
	}
	fmt.Println(ledgerTable(entries))
	return nil
}

func ledgerTable(entries []wallet.Entry) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	credit := cell.Foreground(lipgloss.Color("#04B575"))
	debit := cell.Foreground(lipgloss.Color("#FF5F87"))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("When", "Type", "Amount", "Balance").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 1 || col == 2 {
				if entries[row].Type == wallet.EntryCredit {
					return credit
				}
				return debit
			}
			return cell
		})
	for _, e := range entries {
		t.Row(
			e.At.Local().Format(time.DateTime),
			string(e.Type),
			strconv.FormatInt(int64(e.Amount), 10),
			strconv.FormatInt(int64(e.Balance), 10),
		)
	}
	return t.String()
}
