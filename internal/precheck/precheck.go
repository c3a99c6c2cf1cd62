// Package precheck validates the environment before a download is attempted.
package precheck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ipagrab/ipagrab/internal/appfile"
)

// FallbackRequiredBytes is assumed when the catalog does not report a size.
const FallbackRequiredBytes int64 = 300 << 20 // 300 MiB

// fuzzyNameMinLen guards the name-prefix directory scan against false
// positives on very short app names.
const fuzzyNameMinLen = 3

// Result is the outcome of prerequisite validation.
type Result struct {
	Valid bool

	// Message describes the failed check when Valid is false.
	Message string

	// Cancelled is true when the user declined to overwrite an existing
	// file. That is a deliberate skip, not an error.
	Cancelled bool
}

// Confirmer asks the user a destructive-style yes/no question.
type Confirmer interface {
	ConfirmOverwrite(path string) (bool, error)
}

// ProbeStatus is the outcome of a network reachability probe.
type ProbeStatus int

const (
	// ProbeReachable means the probe confirmed connectivity.
	ProbeReachable ProbeStatus = iota
	// ProbeUnreachable means the probe ran and confirmed a failure.
	ProbeUnreachable
	// ProbeUnavailable means the probe mechanism itself could not run.
	// This is inconclusive and must never block a download.
	ProbeUnavailable
)

// Prober checks whether a well-known host is reachable.
type Prober interface {
	Probe(ctx context.Context, host string) ProbeStatus
}

// Validator runs the prerequisite checks for a download directory.
type Validator struct {
	dir       string
	confirmer Confirmer
	prober    Prober
	logger    *slog.Logger

	// freeSpace is swappable in tests; defaults to the platform probe.
	freeSpace func(dir string) (uint64, error)
}

// NewValidator creates a validator for the given download directory.
func NewValidator(dir string, confirmer Confirmer, prober Prober, logger *slog.Logger) *Validator {
	return &Validator{
		dir:       dir,
		confirmer: confirmer,
		prober:    prober,
		logger:    logger,
		freeSpace: freeSpace,
	}
}

// Validate runs the four prerequisite checks in order, short-circuiting on
// the first failure. It is invoked once per download, never on retries.
func (v *Validator) Validate(ctx context.Context, bundleID, appName string, expectedSize int64, appVersion string) Result {
	if res := v.checkWritable(); !res.Valid {
		return res
	}
	if res := v.checkDiskSpace(expectedSize); !res.Valid {
		return res
	}
	res := v.checkExistingFile(bundleID, appName, appVersion)
	if !res.Valid {
		return res
	}
	return v.checkNetwork(ctx)
}

// checkWritable confirms the download directory exists and accepts writes.
func (v *Validator) checkWritable() Result {
	if err := os.MkdirAll(v.dir, 0755); err != nil {
		return Result{Message: fmt.Sprintf("Cannot create download directory %s: %v", v.dir, err)}
	}

	probe := filepath.Join(v.dir, ".ipagrab-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return Result{Message: fmt.Sprintf("No write permission on download directory %s.", v.dir)}
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return Result{Valid: true}
}

// checkDiskSpace compares available space against the expected download size
// or a fixed fallback floor. A failing probe skips the check with a warning
// rather than blocking the download.
func (v *Validator) checkDiskSpace(expectedSize int64) Result {
	required := expectedSize
	if required <= 0 {
		required = FallbackRequiredBytes
	}

	avail, err := v.freeSpace(v.dir)
	if err != nil {
		v.logger.Warn("disk space probe failed, skipping check", "dir", v.dir, "error", err)
		return Result{Valid: true}
	}

	if avail < uint64(required) {
		return Result{Message: fmt.Sprintf("Not enough disk space: %s required but only %s available in %s.",
			humanize.IBytes(uint64(required)), humanize.IBytes(avail), v.dir)}
	}
	return Result{Valid: true}
}

// checkExistingFile looks for a previous download of the same app and asks
// the user before it would be overwritten.
func (v *Validator) checkExistingFile(bundleID, appName, appVersion string) Result {
	match := v.findExisting(bundleID, appName, appVersion)
	if match == "" {
		return Result{Valid: true}
	}

	ok, err := v.confirmer.ConfirmOverwrite(match)
	if err != nil {
		return Result{Message: fmt.Sprintf("Could not confirm overwrite of %s: %v", match, err)}
	}
	if !ok {
		return Result{Cancelled: true, Message: fmt.Sprintf("Kept the existing file %s.", match)}
	}
	return Result{Valid: true}
}

// findExisting returns the path of a conflicting file, or "".
// Candidate names are checked in preference order, then the directory is
// scanned for fuzzy matches: a name containing the exact bundle identifier,
// or starting with the sanitized app name plus a space. The fuzzy scan
// catches downloads that were renamed after completion.
func (v *Validator) findExisting(bundleID, appName, appVersion string) string {
	sanitized := appfile.SanitizeName(appName)

	candidates := []string{bundleID + appfile.Extension}
	if sanitized != "" {
		if appVersion != "" {
			candidates = append(candidates, appfile.Name(appName, appVersion))
		}
		candidates = append(candidates, appfile.Name(appName, ""))
	}
	for _, name := range candidates {
		path := filepath.Join(v.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), appfile.Extension) {
			continue
		}
		if strings.Contains(e.Name(), bundleID) {
			return filepath.Join(v.dir, e.Name())
		}
		if len(sanitized) >= fuzzyNameMinLen && strings.HasPrefix(e.Name(), sanitized+" ") {
			return filepath.Join(v.dir, e.Name())
		}
	}
	return ""
}

// checkNetwork runs the reachability probe. Only a confirmed failed probe is
// a hard failure; an unavailable mechanism is inconclusive and passes.
func (v *Validator) checkNetwork(ctx context.Context) Result {
	switch v.prober.Probe(ctx, "apps.apple.com") {
	case ProbeUnreachable:
		return Result{Message: "No network connection to the App Store. Check your connection and try again."}
	case ProbeUnavailable:
		v.logger.Debug("reachability probe unavailable, proceeding")
		fallthrough
	default:
		return Result{Valid: true}
	}
}
