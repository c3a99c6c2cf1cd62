package download

import (
	"errors"
	"fmt"

	"github.com/ipagrab/ipagrab/internal/ipatool"
)

// Sentinel errors callers match with errors.Is to drive their own handling.
var (
	// ErrEmptyBundleID rejects a request without a bundle identifier.
	ErrEmptyBundleID = errors.New("bundle identifier is required")

	// ErrAuthRequired marks failures that need interactive re-authentication
	// rather than a retry.
	ErrAuthRequired = errors.New("authentication required")

	// ErrValidation marks prerequisite failures (disk, permission, network).
	ErrValidation = errors.New("download prerequisites not met")

	// ErrStalled marks a download killed after making no progress within the
	// stall window.
	ErrStalled = errors.New("download stalled")

	// ErrCorrupted marks an archive that failed integrity checks after the
	// retry budget for corruption was spent.
	ErrCorrupted = errors.New("downloaded archive failed integrity checks")

	// ErrLicenseUnavailable marks a license-required failure that survived
	// the automatic purchase-then-retry recovery.
	ErrLicenseUnavailable = errors.New("license could not be obtained")
)

// attemptFailure carries the classified outcome of one failed subprocess
// attempt through the retry loop.
type attemptFailure struct {
	analysis ipatool.Analysis
	stalled  bool
	spawnErr error
}

func (f *attemptFailure) Error() string {
	return f.analysis.UserMessage
}

func (f *attemptFailure) Unwrap() error {
	return f.spawnErr
}

// terminalError converts an exhausted or unrecoverable attempt failure into
// the error surfaced to the caller.
func terminalError(f *attemptFailure) error {
	if f.stalled {
		return fmt.Errorf("%w: %s", ErrStalled, f.analysis.UserMessage)
	}
	return errors.New(f.analysis.UserMessage)
}
