package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lox/bingohall/internal/engine"
)

// WaitForRound polls /status until the engine is running with an open round
// and returns that status. baseURL is the server's base URL, e.g.
// "http://localhost:8080".
func WaitForRound(ctx context.Context, baseURL string) (engine.Status, error) {
	statusURL := baseURL + "/status"
	client := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := fetchStatus(ctx, client, statusURL)
		if err == nil {
			switch {
			case status.Halted:
				err = errors.New("engine halted")
			case status.RoundID == "":
				err = errors.New("no round open yet")
			default:
				return status, nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return engine.Status{}, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

func fetchStatus(ctx context.Context, client *http.Client, url string) (engine.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.Status{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return engine.Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.Status{}, fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	var status engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return engine.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
