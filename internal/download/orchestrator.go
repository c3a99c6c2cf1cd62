// Package download orchestrates ipa downloads through the external ipatool
// binary: prerequisite validation, subprocess supervision with filesystem
// progress polling, failure classification with bounded retries, automatic
// license acquisition for free apps, and archive integrity verification.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ipagrab/ipagrab/internal/ipatool"
	"github.com/ipagrab/ipagrab/internal/notify"
	"github.com/ipagrab/ipagrab/internal/precheck"
	"github.com/ipagrab/ipagrab/internal/verify"
)

// Defaults for the orchestration tunables. Every one of them is
// configurable; these match the shipped configuration.
const (
	DefaultMaxRetries         = 3
	DefaultInitialRetryDelay  = 2 * time.Second
	DefaultNetworkDelayCap    = 10 * time.Second
	DefaultThrottleDelayFloor = 5 * time.Second
	DefaultThrottleDelayCap   = 30 * time.Second
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultStallWindow        = 90 * time.Second
	DefaultProgressDelta      = 512 << 10 // 512 KiB
)

// ProgressFunc receives progress updates for an in-flight download.
// fraction is in [0, 1] and non-decreasing within one attempt.
type ProgressFunc func(fraction float64, sizeBytes, expectedBytes int64)

// Tool is the subset of the ipatool client the orchestrator drives.
type Tool interface {
	StartDownload(ctx context.Context, bundleID, outputDir string, paid bool) (ipatool.Process, error)
	Purchase(ctx context.Context, bundleID, displayName string) ipatool.PurchaseOutcome
}

// AuthChecker confirms the stored session is usable before spawning.
type AuthChecker interface {
	CheckSession(ctx context.Context) error
}

// Validator gates the initial attempt. Satisfied by *precheck.Validator.
type Validator interface {
	Validate(ctx context.Context, bundleID, appName string, expectedSize int64, appVersion string) precheck.Result
}

// Metadata is catalog information about an app, used for progress sizing
// and final naming. All fields are optional.
type Metadata struct {
	Name      string
	Version   string
	SizeBytes int64
}

// MetadataSource resolves catalog metadata by bundle identifier. A nil
// result with a nil error means the catalog has no entry; that is not a
// failure and never blocks a download.
type MetadataSource interface {
	Lookup(ctx context.Context, bundleID string) (*Metadata, error)
}

// Record is one finished download handed to the history collaborator.
type Record struct {
	AttemptID string
	BundleID  string
	Name      string
	Version   string
	Path      string
	SizeBytes int64
	Status    string
	Error     string
	Duration  time.Duration
}

// Recorder persists download history. Failures to record are logged, never
// surfaced.
type Recorder interface {
	RecordDownload(rec Record) error
}

// Options are the orchestration tunables. Zero durations and counts select
// the defaults; MaxRetries < 0 disables automatic retries entirely.
type Options struct {
	// Dir is the output directory the tool downloads into.
	Dir string

	MaxRetries         int
	InitialRetryDelay  time.Duration
	NetworkDelayCap    time.Duration
	ThrottleDelayFloor time.Duration
	ThrottleDelayCap   time.Duration
	PollInterval       time.Duration
	StallWindow        time.Duration

	// OverallTimeout bounds one subprocess attempt end to end. Zero means
	// no overall bound (the stall window still applies).
	OverallTimeout time.Duration

	// ProgressDelta is the minimum file growth in bytes between progress
	// reports.
	ProgressDelta int64
}

func (o *Options) applyDefaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialRetryDelay == 0 {
		o.InitialRetryDelay = DefaultInitialRetryDelay
	}
	if o.NetworkDelayCap == 0 {
		o.NetworkDelayCap = DefaultNetworkDelayCap
	}
	if o.ThrottleDelayFloor == 0 {
		o.ThrottleDelayFloor = DefaultThrottleDelayFloor
	}
	if o.ThrottleDelayCap == 0 {
		o.ThrottleDelayCap = DefaultThrottleDelayCap
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StallWindow == 0 {
		o.StallWindow = DefaultStallWindow
	}
	if o.ProgressDelta == 0 {
		o.ProgressDelta = DefaultProgressDelta
	}
}

// Deps are the orchestrator's collaborators. Tool, Auth, Validator and
// Logger are required; the rest may be nil.
type Deps struct {
	Tool      Tool
	Auth      AuthChecker
	Validator Validator
	Metadata  MetadataSource
	Notifier  notify.Notifier
	Recorder  Recorder
	Logger    *slog.Logger
}

// Orchestrator runs the download state machine. One invocation owns its
// attempt state exclusively; concurrent downloads of the same bundle id are
// not coordinated against.
type Orchestrator struct {
	tool      Tool
	auth      AuthChecker
	validator Validator
	metadata  MetadataSource
	notifier  notify.Notifier
	recorder  Recorder
	logger    *slog.Logger
	opts      Options

	// sleep is swappable in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	opts.applyDefaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.Silent{}
	}
	return &Orchestrator{
		tool:      deps.Tool,
		auth:      deps.Auth,
		validator: deps.Validator,
		metadata:  deps.Metadata,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		opts:      opts,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// Request describes one download invocation.
type Request struct {
	BundleID   string
	AppName    string
	AppVersion string

	// Price is the string-encoded decimal price; a value greater than zero
	// marks a paid app, which changes the spawn arguments.
	Price string

	// ExpectedSize, when positive, skips the metadata lookup for sizing.
	// It is carried forward across retries and never re-fetched.
	ExpectedSize int64

	OnProgress ProgressFunc
}

// Download runs the full pipeline for one app. It returns the final file
// path on success and "" with a nil error when the user deliberately skipped
// the download (declined overwrite). All other outcomes are errors;
// ErrAuthRequired is matchable with errors.Is to trigger re-authentication.
func (o *Orchestrator) Download(ctx context.Context, req Request) (string, error) {
	if req.BundleID == "" {
		return "", ErrEmptyBundleID
	}

	attemptID := uuid.NewString()
	start := o.now()
	display := req.AppName
	if display == "" {
		display = req.BundleID
	}
	log := o.logger.With("bundle_id", req.BundleID, "attempt_id", attemptID)

	// Prerequisites gate the initial attempt only; retries inside run never
	// re-validate.
	res := o.validator.Validate(ctx, req.BundleID, req.AppName, req.ExpectedSize, req.AppVersion)
	if res.Cancelled {
		log.Info("download skipped by user", "reason", res.Message)
		o.notifier.Status(res.Message)
		return "", nil
	}
	if !res.Valid {
		o.notifier.Failure(res.Message)
		return "", fmt.Errorf("%w: %s", ErrValidation, res.Message)
	}

	if err := o.auth.CheckSession(ctx); err != nil {
		msg := fmt.Sprintf("Your App Store session is not valid. Sign in with ipatool, then retry downloading %s.", display)
		o.notifier.Failure(msg)
		return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	name, version, expected := o.resolveMetadata(ctx, req, log)
	if name != "" {
		display = name
	}

	path, err := o.run(ctx, req, display, name, version, expected, log)

	o.record(Record{
		AttemptID: attemptID,
		BundleID:  req.BundleID,
		Name:      name,
		Version:   version,
		Path:      path,
		SizeBytes: fileSize(path),
		Status:    statusOf(err),
		Error:     errText(err),
		Duration:  o.now().Sub(start),
	}, log)

	if err != nil {
		o.notifier.Failure(userMessage(err, display))
		return "", err
	}
	o.notifier.Success(fmt.Sprintf("Downloaded %s to %s.", display, path))
	return path, nil
}

// resolveMetadata fills in missing name/version/size from the catalog,
// best-effort. Lookup failures only lose progress reporting, never the
// download.
func (o *Orchestrator) resolveMetadata(ctx context.Context, req Request, log *slog.Logger) (name, version string, expected int64) {
	name, version, expected = req.AppName, req.AppVersion, req.ExpectedSize
	if o.metadata == nil || (expected > 0 && name != "" && version != "") {
		return name, version, expected
	}

	meta, err := o.metadata.Lookup(ctx, req.BundleID)
	if err != nil {
		log.Debug("metadata lookup failed, proceeding without it", "error", err)
		return name, version, expected
	}
	if meta == nil {
		return name, version, expected
	}
	if expected <= 0 {
		expected = meta.SizeBytes
	}
	if name == "" {
		name = meta.Name
	}
	if version == "" {
		version = meta.Version
	}
	return name, version, expected
}

// run is the bounded attempt loop. The recursive-retry control flow of the
// UI ancestor is deliberately flattened into a loop with explicit backoff
// state so terminal conditions are checkable.
func (o *Orchestrator) run(ctx context.Context, req Request, display, name, version string, expected int64, log *slog.Logger) (string, error) {
	paid := priceIsPaid(req.Price)
	delay := o.opts.InitialRetryDelay
	attempt := 0
	purchased := false
	purchaseMsg := ""
	corruptRetried := false

	for {
		result, aerr := o.runAttempt(ctx, req.BundleID, display, expected, paid, req.OnProgress, log.With("attempt", attempt))

		if aerr == nil {
			vres := verify.Archive(result.path, display, &verify.Expected{SizeBytes: expected}, o.logger)
			if vres.Valid {
				if name == "" {
					name = result.meta.Name
				}
				if version == "" {
					version = result.meta.Version
				}
				return o.finalize(result.path, name, version, log), nil
			}

			log.Warn("integrity check failed", "path", result.path, "reason", vres.Message)
			if err := os.Remove(result.path); err != nil && !os.IsNotExist(err) {
				log.Warn("could not delete corrupted file", "path", result.path, "error", err)
			}
			if vres.ShouldRetry && !corruptRetried {
				corruptRetried = true
				attempt++
				o.notifier.Status(vres.Message + " Retrying once.")
				continue
			}
			return "", fmt.Errorf("%w: %s", ErrCorrupted, vres.Message)
		}

		var fail *attemptFailure
		if !errors.As(aerr, &fail) {
			// Context cancellation or another non-classified failure.
			return "", aerr
		}
		an := fail.analysis

		switch {
		case an.AuthError:
			return "", fmt.Errorf("%w: %s", ErrAuthRequired, an.UserMessage)

		case an.LicenseRequired && purchased:
			// The purchase-then-retry recovery already ran once; surface
			// what the purchase step reported.
			return "", fmt.Errorf("%w: %s", ErrLicenseUnavailable, purchaseMsg)

		case an.LicenseRequired && ipatool.IsVendorReserved(req.BundleID):
			return "", fmt.Errorf("%w: %s is published by Apple and cannot be licensed through ipatool", ErrLicenseUnavailable, display)

		case an.LicenseRequired && !paid:
			purchased = true
			o.notifier.Status(fmt.Sprintf("%s needs a license. Obtaining one now.", display))
			outcome := o.tool.Purchase(ctx, req.BundleID, display)
			if outcome.AuthRequired {
				return "", fmt.Errorf("%w: %s", ErrAuthRequired, outcome.Message)
			}
			purchaseMsg = outcome.Message
			o.notifier.Status(outcome.Message)
			// One unconditional fresh retry regardless of the reported
			// purchase outcome; a lying success marker costs one attempt.
			attempt = 0
			delay = o.opts.InitialRetryDelay
			continue

		case retryable(an.Type) && attempt < o.opts.MaxRetries:
			throttled := an.Type == ipatool.ErrorTypeRateLimited || an.Type == ipatool.ErrorTypeMaintenance
			wait := retryWait(delay, throttled, o.opts)
			o.notifier.Status(fmt.Sprintf("%s Retrying in %s (attempt %d of %d).",
				an.UserMessage, wait.Round(100*time.Millisecond), attempt+1, o.opts.MaxRetries))
			log.Info("retrying download", "reason", an.Type, "wait", wait, "attempt", attempt+1)
			if err := o.sleep(ctx, wait); err != nil {
				return "", err
			}
			delay = grow(wait)
			attempt++
			continue

		default:
			return "", terminalError(fail)
		}
	}
}

// retryable reports whether an error category is recovered by backoff.
func retryable(t ipatool.ErrorType) bool {
	switch t {
	case ipatool.ErrorTypeNetwork, ipatool.ErrorTypeTimeout,
		ipatool.ErrorTypeRateLimited, ipatool.ErrorTypeMaintenance:
		return true
	}
	return false
}

// priceIsPaid parses the string-encoded price; anything above zero is paid.
func priceIsPaid(price string) bool {
	if price == "" {
		return false
	}
	v, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return false
	}
	return v > 0
}

func (o *Orchestrator) record(rec Record, log *slog.Logger) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordDownload(rec); err != nil {
		log.Warn("failed to record download history", "error", err)
	}
}

func statusOf(err error) string {
	if err == nil {
		return "succeeded"
	}
	return "failed"
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// userMessage strips sentinel prefixes for display; the wrapped message is
// already user-facing.
func userMessage(err error, display string) string {
	for _, sentinel := range []error{ErrAuthRequired, ErrStalled, ErrCorrupted, ErrLicenseUnavailable, ErrValidation} {
		if errors.Is(err, sentinel) {
			if msg, ok := trimSentinel(err.Error(), sentinel.Error()); ok {
				return msg
			}
		}
	}
	return fmt.Sprintf("Download of %s failed: %v", display, err)
}

func trimSentinel(full, prefix string) (string, bool) {
	if len(full) > len(prefix)+2 && full[:len(prefix)] == prefix && full[len(prefix):len(prefix)+2] == ": " {
		return full[len(prefix)+2:], true
	}
	return "", false
}

// sleepCtx waits for d or context cancellation, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
