package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/bingohall/internal/config"
	"github.com/lox/bingohall/internal/display"
	"github.com/lox/bingohall/internal/pattern"
	"github.com/muesli/termenv"
)

// CardCmd renders the card a card number maps to
type CardCmd struct {
	Number  int    `arg:"" help:"Card number"`
	Config  string `short:"c" default:"bingo.hcl" env:"BINGO_CONFIG" help:"HCL configuration file supplying the card layout"`
	Mark    []int  `short:"m" help:"Numbers to show as marked"`
	NoColor bool   `help:"Disable colour output"`
}

func (c *CardCmd) Run(g *Globals) error {
	if c.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	if c.Number < 1 || c.Number > engineCfg.MaxCards {
		return fmt.Errorf("card number must be between 1 and %d", engineCfg.MaxCards)
	}

	layout := engineCfg.Layout
	bingoCard := layout.Generate(c.Number)

	marked := make(pattern.Marked, len(c.Mark))
	for _, n := range c.Mark {
		if !bingoCard.Contains(n) {
			return fmt.Errorf("%d is not on card %d", n, c.Number)
		}
		marked[n] = struct{}{}
	}

	fmt.Println(display.RenderCard(bingoCard, layout, marked, 0, display.DefaultStyles()))

	detector := pattern.NewDetector(layout)
	for _, p := range detector.EvaluateAll(bingoCard, marked) {
		fmt.Printf("Completes %s: %v\n", p.Name(), pattern.Numbers(bingoCard, p))
	}
	return nil
}
