package ipatool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel errors for ipatool invocations.
var (
	ErrSessionInvalid = errors.New("ipatool session is not valid")
	ErrNoResultLine   = errors.New("no JSON result line in ipatool output")
)

// vendorReservedPrefix marks bundle identifiers that cannot be purchased
// through ipatool (first-party apps are provisioned differently).
const vendorReservedPrefix = "com.apple."

// IsVendorReserved reports whether a bundle identifier belongs to the
// vendor-reserved namespace, which the purchase operation cannot service.
func IsVendorReserved(bundleID string) bool {
	return strings.HasPrefix(strings.ToLower(bundleID), vendorReservedPrefix)
}

// Client invokes the ipatool binary.
type Client struct {
	binary string
	runner CommandRunner
	logger *slog.Logger
}

// NewClient creates a client for the given ipatool binary path.
func NewClient(binary string, runner CommandRunner, logger *slog.Logger) *Client {
	return &Client{
		binary: binary,
		runner: runner,
		logger: logger,
	}
}

// DownloadArgs constructs the argument array for a download invocation.
// Paid apps carry the purchase flag so the tool acquires the entitlement
// in the same session.
func DownloadArgs(bundleID, outputDir string, paid bool) []string {
	args := []string{
		"download",
		"-b", bundleID,
		"-o", outputDir,
		"--format", "json",
		"--non-interactive",
		"--verbose",
	}
	if paid {
		args = append(args, "--purchase")
	}
	return args
}

// StartDownload launches a download subprocess and returns its handle.
func (c *Client) StartDownload(ctx context.Context, bundleID, outputDir string, paid bool) (Process, error) {
	args := DownloadArgs(bundleID, outputDir, paid)
	c.logger.Debug("spawning ipatool download", "bundle_id", bundleID, "output_dir", outputDir, "purchase", paid)
	return c.runner.Start(ctx, c.binary, args...)
}

// CheckSession confirms the stored App Store session is usable.
// Returns ErrSessionInvalid when ipatool reports the account is not
// authenticated.
func (c *Client) CheckSession(ctx context.Context) error {
	out, err := c.runner.Run(ctx, c.binary, "auth", "info", "--format", "json", "--non-interactive")
	if err == nil {
		return nil
	}
	if code := extractExitCode(err); code < 0 {
		// Spawn failure rather than a tool-reported one.
		return fmt.Errorf("failed to run ipatool auth info: %w", err)
	}
	analysis := Classify(string(out), "", "")
	if analysis.AuthError {
		return fmt.Errorf("%w: %s", ErrSessionInvalid, firstErrorField(string(out)))
	}
	return fmt.Errorf("%w: %s", ErrSessionInvalid, strings.TrimSpace(string(out)))
}

// Version returns the raw output of the tool's version command.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, c.binary, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to run ipatool --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// firstErrorField scans JSON lines for an "error" field and returns its
// value, falling back to the trimmed raw output.
func firstErrorField(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if msg, ok := obj["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(output)
}
