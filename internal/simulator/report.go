package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lox/bingohall/internal/prize"
)

// Report is the JSON form of a finished simulation.
type Report struct {
	Rounds      int            `json:"rounds"`
	Completed   int            `json:"completed"`
	Cancelled   int            `json:"cancelled"`
	MeanDraws   float64        `json:"meanDraws"`
	StdDevDraws float64        `json:"stdDevDraws"`
	Paid        prize.Amount   `json:"paid"`
	House       prize.Amount   `json:"house"`
	Patterns    map[string]int `json:"patterns,omitempty"`
	Wins        map[string]int `json:"wins,omitempty"`
	Results     []Result       `json:"results"`
}

// NewReport summarises stats.
func NewReport(stats *Statistics) Report {
	return Report{
		Rounds:      stats.Rounds(),
		Completed:   stats.Completed,
		Cancelled:   stats.Cancelled,
		MeanDraws:   stats.MeanDraws(),
		StdDevDraws: stats.StdDevDraws(),
		Paid:        stats.Paid,
		House:       stats.House,
		Patterns:    stats.Patterns,
		Wins:        stats.Wins,
		Results:     stats.Results,
	}
}

// WriteReport writes stats as indented JSON to filename. The file is
// written to a temporary sibling and renamed into place, so readers see
// either the previous report or the complete new one.
func WriteReport(filename string, stats *Statistics) error {
	data, err := json.MarshalIndent(NewReport(stats), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
