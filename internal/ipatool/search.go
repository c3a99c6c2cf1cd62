package ipatool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SearchResult is one app entry from an ipatool search.
type SearchResult struct {
	BundleID string  `json:"bundleID"`
	Name     string  `json:"name"`
	Version  string  `json:"version"`
	Price    float64 `json:"price"`
	ID       int64   `json:"id"`
}

// searchEnvelope matches the JSON result line ipatool prints for search.
type searchEnvelope struct {
	Count int            `json:"count"`
	Apps  []SearchResult `json:"apps"`
}

// Search queries the App Store catalog through ipatool.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 25
	}
	out, err := c.runner.Run(ctx, c.binary,
		"search", query,
		"-l", strconv.Itoa(limit),
		"--format", "json",
		"--non-interactive",
	)
	if err != nil {
		analysis := Classify(string(out), "", query)
		if analysis.AuthError {
			return nil, fmt.Errorf("%w: %s", ErrSessionInvalid, firstErrorField(string(out)))
		}
		return nil, fmt.Errorf("ipatool search failed: %s: %w", firstErrorField(string(out)), err)
	}

	results, perr := parseSearchOutput(string(out))
	if perr != nil {
		return nil, perr
	}
	return results, nil
}

// parseSearchOutput finds the JSON line carrying the search envelope.
// Verbose runs interleave log lines, so every {...}-shaped line is tried.
func parseSearchOutput(output string) ([]SearchResult, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var env searchEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			continue
		}
		if env.Apps != nil {
			return env.Apps, nil
		}
	}
	return nil, ErrNoResultLine
}
