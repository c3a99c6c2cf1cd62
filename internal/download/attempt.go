package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ipagrab/ipagrab/internal/appfile"
	"github.com/ipagrab/ipagrab/internal/ipatool"
)

// attemptResult is the successful outcome of one subprocess attempt.
type attemptResult struct {
	path string
	meta ipatool.DownloadMetadata
}

// runAttempt spawns one download subprocess and supervises it: the output
// directory is polled for file growth, a stall timer races process exit, and
// raw output is classified on failure. Progress state is local to the
// attempt, so every retry starts from zero.
func (o *Orchestrator) runAttempt(ctx context.Context, bundleID, display string, expected int64, paid bool, onProgress ProgressFunc, log *slog.Logger) (attemptResult, error) {
	actx := ctx
	if o.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.opts.OverallTimeout)
		defer cancel()
	}

	proc, err := o.tool.StartDownload(actx, bundleID, o.opts.Dir, paid)
	if err != nil {
		// Spawn errors get the same network heuristic as process output.
		return attemptResult{}, &attemptFailure{
			analysis: ipatool.Classify(err.Error(), "", display),
			spawnErr: err,
		}
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()
	stall := time.NewTimer(o.opts.StallWindow)
	defer stall.Stop()

	progress := newProgressTracker(expected, o.opts.ProgressDelta)

	for {
		select {
		case werr := <-done:
			if werr == nil {
				path, _, ok := o.findArtifact(bundleID)
				if !ok {
					// Let the integrity verifier report the missing file;
					// its existence failure is the retryable one.
					path = filepath.Join(o.opts.Dir, bundleID+appfile.Extension)
				}
				return attemptResult{
					path: path,
					meta: ipatool.ParseDownloadMetadata(proc.Output()),
				}, nil
			}
			if ctx.Err() != nil {
				o.cleanupPartials(bundleID, log)
				return attemptResult{}, ctx.Err()
			}
			if actx.Err() != nil {
				// The overall timeout killed the process.
				o.cleanupPartials(bundleID, log)
				return attemptResult{}, &attemptFailure{analysis: ipatool.Analysis{
					Type:        ipatool.ErrorTypeTimeout,
					UserMessage: fmt.Sprintf("The download of %s exceeded the overall time limit of %s.", display, o.opts.OverallTimeout),
				}}
			}
			return attemptResult{}, &attemptFailure{
				analysis: ipatool.Classify(proc.Output(), proc.Stderr(), display),
			}

		case <-ticker.C:
			_, size, ok := o.findArtifact(bundleID)
			if !ok {
				continue
			}
			fraction, report, progressed := progress.observe(size)
			if !progressed {
				continue
			}
			resetTimer(stall, o.opts.StallWindow)
			if !report {
				continue
			}
			o.notifier.Progress(display, fraction)
			if onProgress != nil {
				onProgress(fraction, size, expected)
			}

		case <-stall.C:
			_ = proc.Kill()
			<-done
			o.cleanupPartials(bundleID, log)
			return attemptResult{}, &attemptFailure{
				stalled: true,
				analysis: ipatool.Analysis{
					Type:        ipatool.ErrorTypeTimeout,
					UserMessage: fmt.Sprintf("The download of %s made no progress for %s and was aborted.", display, o.opts.StallWindow),
				},
			}

		case <-ctx.Done():
			_ = proc.Kill()
			<-done
			o.cleanupPartials(bundleID, log)
			return attemptResult{}, ctx.Err()
		}
	}
}

// findArtifact locates the tool's output file for this bundle id. The tool
// names files "{bundleId}_{internalId}_{version}.ipa" with an internal id we
// cannot know ahead of time, hence the prefix scan. The most recently
// modified match wins.
func (o *Orchestrator) findArtifact(bundleID string) (path string, size int64, ok bool) {
	entries, err := os.ReadDir(o.opts.Dir)
	if err != nil {
		return "", 0, false
	}

	var best os.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, bundleID) || !strings.HasSuffix(name, appfile.Extension) {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		if best == nil || info.ModTime().After(best.ModTime()) {
			best = info
			path = filepath.Join(o.opts.Dir, name)
		}
	}
	if best == nil {
		return "", 0, false
	}
	return path, best.Size(), true
}

// cleanupPartials removes partial output files after a killed attempt.
func (o *Orchestrator) cleanupPartials(bundleID string, log *slog.Logger) {
	entries, err := os.ReadDir(o.opts.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, bundleID) || !strings.HasSuffix(name, appfile.Extension) {
			continue
		}
		path := filepath.Join(o.opts.Dir, name)
		if err := os.Remove(path); err != nil {
			log.Warn("could not remove partial download", "path", path, "error", err)
		} else {
			log.Debug("removed partial download", "path", path)
		}
	}
}

// finalize renames the verified archive to "{sanitized name} {version}.ipa".
// Rename failure is non-fatal; the original path is kept.
func (o *Orchestrator) finalize(path, name, version string, log *slog.Logger) string {
	if name == "" {
		return path
	}
	target := filepath.Join(o.opts.Dir, appfile.Name(name, version))
	if target == path {
		return path
	}
	if err := os.Rename(path, target); err != nil {
		log.Warn("could not rename download, keeping original name", "from", path, "to", target, "error", err)
		return path
	}
	return target
}

// resetTimer safely restarts a timer that may have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
